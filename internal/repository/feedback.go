package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"regbot/internal/model"
)

// FindFeedback returns the feedback a user left for an event, or ErrNotFound
func (r *SQLiteRepository) FindFeedback(ctx context.Context, userID, eventID int64) (*model.Feedback, error) {
	var f model.Feedback
	var createdAt string
	err := r.db.QueryRowContext(ctx, `SELECT id, user_id, event_id, rating, comment, created_at
		FROM feedback WHERE user_id = ? AND event_id = ?`, userID, eventID).
		Scan(&f.ID, &f.UserID, &f.EventID, &f.Rating, &f.Comment, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// InsertFeedback saves a new feedback row and fills in its id
func (r *SQLiteRepository) InsertFeedback(ctx context.Context, f *model.Feedback) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	stmt, err := r.db.PrepareContext(ctx, `INSERT INTO feedback (user_id, event_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, f.UserID, f.EventID, f.Rating, f.Comment, formatTime(f.CreatedAt))
	if err != nil {
		return err
	}
	f.ID, err = res.LastInsertId()
	return err
}

// UpdateFeedback overwrites rating and comment in place
func (r *SQLiteRepository) UpdateFeedback(ctx context.Context, f *model.Feedback) error {
	return r.execOne(ctx, `UPDATE feedback SET rating = ?, comment = ? WHERE id = ?`, f.Rating, f.Comment, f.ID)
}

// ListEventFeedback returns an event's feedback with the author joined, newest first
func (r *SQLiteRepository) ListEventFeedback(ctx context.Context, eventID int64) ([]model.Feedback, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT f.id, f.user_id, f.event_id, f.rating, f.comment, f.created_at,
		`+userColumns+`
		FROM feedback f JOIN users u ON u.telegram_id = f.user_id
		WHERE f.event_id = ? ORDER BY f.created_at DESC, f.id DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Feedback
	for rows.Next() {
		var f model.Feedback
		var createdAt, userCreated string
		var isAdmin, isRegistered, notifications int
		err := rows.Scan(&f.ID, &f.UserID, &f.EventID, &f.Rating, &f.Comment, &createdAt,
			&f.User.TelegramID, &f.User.FirstName, &f.User.LastName, &f.User.PhoneNumber, &f.User.StudentID,
			&isAdmin, &isRegistered, &notifications, &userCreated)
		if err != nil {
			return nil, err
		}
		f.CreatedAt = parseTime(createdAt)
		f.User.IsAdmin = isAdmin == 1
		f.User.IsRegistered = isRegistered == 1
		f.User.NotificationsEnabled = notifications == 1
		f.User.CreatedAt = parseTime(userCreated)
		list = append(list, f)
	}
	return list, rows.Err()
}

// AverageRating returns the mean rating of an event; ok is false when nobody rated it
func (r *SQLiteRepository) AverageRating(ctx context.Context, eventID int64) (float64, bool, error) {
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT AVG(rating) FROM feedback WHERE event_id = ?`, eventID).Scan(&avg)
	if err != nil {
		return 0, false, err
	}
	return avg.Float64, avg.Valid, nil
}

// GetForumTopic returns the remembered topic thread, or ErrNotFound
func (r *SQLiteRepository) GetForumTopic(ctx context.Context, chatID int64, name string) (*model.ForumTopic, error) {
	t := model.ForumTopic{ChatID: chatID, Name: name}
	err := r.db.QueryRowContext(ctx, `SELECT thread_id FROM forum_topics WHERE chat_id = ? AND name = ?`, chatID, name).
		Scan(&t.ThreadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// SaveForumTopic remembers a topic thread
func (r *SQLiteRepository) SaveForumTopic(ctx context.Context, t model.ForumTopic) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO forum_topics (chat_id, name, thread_id) VALUES (?, ?, ?)`,
		t.ChatID, t.Name, t.ThreadID)
	return err
}
