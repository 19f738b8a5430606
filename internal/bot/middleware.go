package bot

import "context"

// Middleware functions types
type textHandler func(ctx context.Context, m TextMessage) error

const adminDenied = "You don't have permission to perform this action. Only administrators can do this."

// IsAdmin reports whether the user is listed in the configuration or flagged in the database.
func (b *Bot) IsAdmin(ctx context.Context, telegramID int64) bool {
	return b.cfg.IsAdminID(telegramID) || b.users.IsAdmin(ctx, telegramID)
}

// AdminCheckMiddleware wraps a text handler with admin verification
func (b *Bot) AdminCheckMiddleware(handler textHandler) textHandler {
	return func(ctx context.Context, m TextMessage) error {
		if !b.IsAdmin(ctx, m.Sender.ID) {
			b.reply(ctx, m.ChatID, adminDenied, b.menuFor(ctx, m.Sender.ID))
			return nil
		}
		return handler(ctx, m)
	}
}
