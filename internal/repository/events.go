package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"regbot/internal/model"
)

const eventColumns = `e.id, e.name, e.description, e.capacity, e.fee, e.student_fee, e.date,
	e.location, e.poster_id, e.status, e.created_at`

func scanEvent(row rowScanner, e *model.Event) error {
	var date, createdAt, status string
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Capacity, &e.Fee, &e.StudentFee, &date,
		&e.Location, &e.PosterID, &status, &createdAt)
	if err != nil {
		return err
	}
	e.Date = parseTime(date)
	e.CreatedAt = parseTime(createdAt)
	e.Status = model.EventStatus(status)
	return nil
}

// CreateEvent inserts a new event; an empty status defaults to active
func (r *SQLiteRepository) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.Status == "" {
		e.Status = model.EventActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	stmt, err := r.db.PrepareContext(ctx, `INSERT INTO events
		(name, description, capacity, fee, student_fee, date, location, poster_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, e.Name, e.Description, e.Capacity, e.Fee, e.StudentFee,
		formatTime(e.Date), e.Location, e.PosterID, string(e.Status), formatTime(e.CreatedAt))
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// GetEvent returns the event or ErrNotFound
func (r *SQLiteRepository) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
	var e model.Event
	if err := scanEvent(row, &e); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// SaveEvent writes every mutable column of the event
func (r *SQLiteRepository) SaveEvent(ctx context.Context, e *model.Event) error {
	return r.execOne(ctx, `UPDATE events SET name = ?, description = ?, capacity = ?, fee = ?, student_fee = ?,
		date = ?, location = ?, poster_id = ?, status = ? WHERE id = ?`,
		e.Name, e.Description, e.Capacity, e.Fee, e.StudentFee, formatTime(e.Date), e.Location, e.PosterID,
		string(e.Status), e.ID)
}

// SetEventStatus sets the status unconditionally
func (r *SQLiteRepository) SetEventStatus(ctx context.Context, id int64, status model.EventStatus) error {
	return r.execOne(ctx, `UPDATE events SET status = ? WHERE id = ?`, string(status), id)
}

// CompleteEvent marks an active or full event completed. It reports whether the row changed,
// so a concurrent cancellation is never overwritten.
func (r *SQLiteRepository) CompleteEvent(ctx context.Context, id int64) (bool, error) {
	err := r.execOne(ctx, `UPDATE events SET status = 'completed' WHERE id = ? AND status IN ('active', 'full')`, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListEvents returns all events ordered by date
func (r *SQLiteRepository) ListEvents(ctx context.Context) ([]model.Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events e ORDER BY e.date ASC`)
}

// ListEventsByStatus returns the events in any of the given statuses ordered by date
func (r *SQLiteRepository) ListEventsByStatus(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error) {
	in, args := statusArgs(statuses)
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.status IN (`+in+`) ORDER BY e.date ASC`, args...)
}

// ListEventsBefore returns events dated strictly before cutoff in any of the given statuses
func (r *SQLiteRepository) ListEventsBefore(ctx context.Context, cutoff time.Time, statuses ...model.EventStatus) ([]model.Event, error) {
	in, args := statusArgs(statuses)
	args = append([]interface{}{formatTime(cutoff)}, args...)
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.date < ? AND e.status IN (`+in+`) ORDER BY e.date ASC`, args...)
}

// ListEventsAfter returns events dated strictly after the given time in any of the given statuses
func (r *SQLiteRepository) ListEventsAfter(ctx context.Context, after time.Time, statuses ...model.EventStatus) ([]model.Event, error) {
	in, args := statusArgs(statuses)
	args = append([]interface{}{formatTime(after)}, args...)
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.date > ? AND e.status IN (`+in+`) ORDER BY e.date ASC`, args...)
}

func (r *SQLiteRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
