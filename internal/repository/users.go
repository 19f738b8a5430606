package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"regbot/internal/model"
)

const userColumns = `u.telegram_id, u.first_name, u.last_name, u.phone_number, u.student_id,
	u.is_admin, u.is_registered, u.notifications_enabled, u.created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, u *model.User) error {
	var createdAt string
	var isAdmin, isRegistered, notifications int
	err := row.Scan(&u.TelegramID, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.StudentID,
		&isAdmin, &isRegistered, &notifications, &createdAt)
	if err != nil {
		return err
	}
	u.IsAdmin = isAdmin == 1
	u.IsRegistered = isRegistered == 1
	u.NotificationsEnabled = notifications == 1
	u.CreatedAt = parseTime(createdAt)
	return nil
}

// EnsureUser inserts the user on first interaction and leaves existing rows untouched
func (r *SQLiteRepository) EnsureUser(ctx context.Context, u model.User) error {
	stmt, err := r.db.PrepareContext(ctx, `INSERT OR IGNORE INTO users
		(telegram_id, first_name, last_name, is_admin, notifications_enabled, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx, u.TelegramID, u.FirstName, u.LastName, boolInt(u.IsAdmin), formatTime(time.Now()))
	return err
}

// GetUser returns the user or ErrNotFound
func (r *SQLiteRepository) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.telegram_id = ?`, telegramID)
	var u model.User
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateUserProfile saves the profile fields and recomputes is_registered
func (r *SQLiteRepository) UpdateUserProfile(ctx context.Context, u model.User) error {
	return r.execOne(ctx, `UPDATE users SET first_name = ?, last_name = ?, phone_number = ?, student_id = ?,
		is_registered = ? WHERE telegram_id = ?`,
		u.FirstName, u.LastName, u.PhoneNumber, u.StudentID, boolInt(u.ProfileComplete()), u.TelegramID)
}

// SetUserNotifications toggles announcement delivery for a user
func (r *SQLiteRepository) SetUserNotifications(ctx context.Context, telegramID int64, enabled bool) error {
	return r.execOne(ctx, `UPDATE users SET notifications_enabled = ? WHERE telegram_id = ?`, boolInt(enabled), telegramID)
}

// ListUsers returns every known user
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users u ORDER BY u.created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
