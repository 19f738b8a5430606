package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"regbot/internal/dialog"
	"regbot/internal/model"
	"regbot/internal/service"
)

func (b *Bot) rate(ctx context.Context, c Callback, eventID int64, rating int) (notice, error) {
	_, created, err := b.feedback.Rate(ctx, c.Sender.ID, eventID, rating)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return notice{text: "Event not found.", alert: true}, nil
	case errors.Is(err, service.ErrEventNotCompleted):
		return notice{text: "You can rate this event once it has finished.", alert: true}, nil
	case errors.Is(err, service.ErrInvalidRating):
		return notice{text: "Invalid rating.", alert: true}, nil
	case err != nil:
		return notice{}, err
	}

	text := fmt.Sprintf("Thank you for your rating: %s", strings.Repeat("⭐", rating))
	if !created {
		text = fmt.Sprintf("Your rating has been updated: %s", strings.Repeat("⭐", rating))
	}
	b.editText(ctx, c.ChatID, c.MessageID, text, nil)
	b.dialogs.Set(c.Sender.ID, dialog.FeedbackComment{EventID: eventID})
	b.reply(ctx, c.ChatID, "Would you like to add a comment? Send it now, or tap Skip.", skipKeyboard())
	return notice{text: "Rating saved."}, nil
}

func (b *Bot) feedbackCommentText(ctx context.Context, m TextMessage, st dialog.FeedbackComment, text string) error {
	b.dialogs.Clear(m.Sender.ID)
	menu := b.menuFor(ctx, m.Sender.ID)
	if text == btnSkip || text == "" {
		b.reply(ctx, m.ChatID, "Thank you for your feedback!", menu)
		return nil
	}
	_, err := b.feedback.Comment(ctx, m.Sender.ID, st.EventID, text)
	if errors.Is(err, service.ErrNotFound) {
		b.reply(ctx, m.ChatID, "Please rate the event before leaving a comment.", menu)
		return nil
	}
	if err != nil {
		return err
	}
	b.reply(ctx, m.ChatID, "Thank you, your comment has been saved.", menu)
	return nil
}

// RequestFeedback asks the approved registrants of each completed event for a rating.
func (b *Bot) RequestFeedback(ctx context.Context, events []model.Event) {
	for _, e := range events {
		regs, err := b.events.Registrants(ctx, e.ID)
		if err != nil {
			logf(ctx, "error listing registrants of event %d: %v", e.ID, err)
			continue
		}
		var recipients []int64
		for _, r := range regs {
			if r.Status == model.RegistrationApproved {
				recipients = append(recipients, r.UserID)
			}
		}
		if len(recipients) == 0 {
			continue
		}
		res := Broadcast(ctx, b.msgr, recipients, Message{
			Text:   fmt.Sprintf("Thanks for attending %q! How would you rate it?", e.Name),
			Inline: ratingKeyboard(e.ID),
		}, b.cfg.BroadcastConcurrency)
		logf(ctx, "feedback requested for event %d: %d sent, %d failed", e.ID, res.Sent, res.Failed)
	}
}
