package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"regbot/internal/model"
)

const registrationColumns = `r.id, r.user_id, r.event_id, r.receipt_file_id, r.receipt_archive_url, r.status,
	r.registered_at, r.approval_chat_id, r.approval_message_id`

const registrationDetailsQuery = `SELECT ` + registrationColumns + `, ` + userColumns + `, ` + eventColumns + `
	FROM registrations r
	JOIN users u ON u.telegram_id = r.user_id
	JOIN events e ON e.id = r.event_id`

func registrationDest(reg *model.Registration, status, registeredAt *string) []interface{} {
	return []interface{}{&reg.ID, &reg.UserID, &reg.EventID, &reg.ReceiptFileID, &reg.ReceiptArchiveURL, status,
		registeredAt, &reg.ApprovalChatID, &reg.ApprovalMessageID}
}

func scanRegistration(row rowScanner, reg *model.Registration) error {
	var status, registeredAt string
	if err := row.Scan(registrationDest(reg, &status, &registeredAt)...); err != nil {
		return err
	}
	reg.Status = model.RegistrationStatus(status)
	reg.RegisteredAt = parseTime(registeredAt)
	return nil
}

// scanRegistrationDetails scans a row produced by registrationDetailsQuery.
func scanRegistrationDetails(row rowScanner, d *model.RegistrationDetails) error {
	var status, registeredAt string
	var userCreated string
	var isAdmin, isRegistered, notifications int
	var eventDate, eventCreated, eventStatus string

	dest := registrationDest(&d.Registration, &status, &registeredAt)
	dest = append(dest,
		&d.User.TelegramID, &d.User.FirstName, &d.User.LastName, &d.User.PhoneNumber, &d.User.StudentID,
		&isAdmin, &isRegistered, &notifications, &userCreated,
		&d.Event.ID, &d.Event.Name, &d.Event.Description, &d.Event.Capacity, &d.Event.Fee, &d.Event.StudentFee,
		&eventDate, &d.Event.Location, &d.Event.PosterID, &eventStatus, &eventCreated,
	)
	if err := row.Scan(dest...); err != nil {
		return err
	}

	d.Status = model.RegistrationStatus(status)
	d.RegisteredAt = parseTime(registeredAt)
	d.User.IsAdmin = isAdmin == 1
	d.User.IsRegistered = isRegistered == 1
	d.User.NotificationsEnabled = notifications == 1
	d.User.CreatedAt = parseTime(userCreated)
	d.Event.Date = parseTime(eventDate)
	d.Event.CreatedAt = parseTime(eventCreated)
	d.Event.Status = model.EventStatus(eventStatus)
	return nil
}

// CountRegistrations counts the registrations of an event in the given status
func (r *SQLiteRepository) CountRegistrations(ctx context.Context, eventID int64, status model.RegistrationStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status = ?`,
		eventID, string(status)).Scan(&count)
	return count, err
}

// InsertRegistration saves a new registration and fills in its id
func (r *SQLiteRepository) InsertRegistration(ctx context.Context, reg *model.Registration) error {
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now()
	}
	stmt, err := r.db.PrepareContext(ctx, `INSERT INTO registrations
		(user_id, event_id, receipt_file_id, status, registered_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, reg.UserID, reg.EventID, reg.ReceiptFileID, string(reg.Status), formatTime(reg.RegisteredAt))
	if err != nil {
		return err
	}
	reg.ID, err = res.LastInsertId()
	return err
}

// SaveRegistration writes the mutable columns of an existing registration
func (r *SQLiteRepository) SaveRegistration(ctx context.Context, reg *model.Registration) error {
	return r.execOne(ctx, `UPDATE registrations SET receipt_file_id = ?, receipt_archive_url = ?, status = ?,
		registered_at = ?, approval_chat_id = ?, approval_message_id = ? WHERE id = ?`,
		reg.ReceiptFileID, reg.ReceiptArchiveURL, string(reg.Status), formatTime(reg.RegisteredAt),
		reg.ApprovalChatID, reg.ApprovalMessageID, reg.ID)
}

// SetRegistrationStatus updates the status of a registration
func (r *SQLiteRepository) SetRegistrationStatus(ctx context.Context, id int64, status model.RegistrationStatus) error {
	return r.execOne(ctx, `UPDATE registrations SET status = ? WHERE id = ?`, string(status), id)
}

// SetApprovalMessage remembers the admin message that asks for approval
func (r *SQLiteRepository) SetApprovalMessage(ctx context.Context, id int64, chatID int64, messageID int) error {
	return r.execOne(ctx, `UPDATE registrations SET approval_chat_id = ?, approval_message_id = ? WHERE id = ?`,
		chatID, messageID, id)
}

// SetReceiptArchive stores the mirrored receipt location
func (r *SQLiteRepository) SetReceiptArchive(ctx context.Context, id int64, url string) error {
	return r.execOne(ctx, `UPDATE registrations SET receipt_archive_url = ? WHERE id = ?`, url, id)
}

// GetRegistration returns the registration with its user and event, or ErrNotFound
func (r *SQLiteRepository) GetRegistration(ctx context.Context, id int64) (*model.RegistrationDetails, error) {
	row := r.db.QueryRowContext(ctx, registrationDetailsQuery+` WHERE r.id = ?`, id)
	var d model.RegistrationDetails
	if err := scanRegistrationDetails(row, &d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// FindRegistration returns the registration of a user for an event, or ErrNotFound
func (r *SQLiteRepository) FindRegistration(ctx context.Context, userID, eventID int64) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations r
		WHERE r.user_id = ? AND r.event_id = ?`, userID, eventID)
	var reg model.Registration
	if err := scanRegistration(row, &reg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &reg, nil
}

// ListUserRegistrations returns a user's registrations, most recent first
func (r *SQLiteRepository) ListUserRegistrations(ctx context.Context, userID int64) ([]model.RegistrationDetails, error) {
	return r.queryRegistrations(ctx, registrationDetailsQuery+` WHERE r.user_id = ? ORDER BY r.registered_at DESC, r.id DESC`, userID)
}

// ListEventRegistrations returns an event's registrants, most recent first
func (r *SQLiteRepository) ListEventRegistrations(ctx context.Context, eventID int64) ([]model.RegistrationDetails, error) {
	return r.queryRegistrations(ctx, registrationDetailsQuery+` WHERE r.event_id = ? ORDER BY r.registered_at DESC, r.id DESC`, eventID)
}

func (r *SQLiteRepository) queryRegistrations(ctx context.Context, query string, args ...interface{}) ([]model.RegistrationDetails, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []model.RegistrationDetails
	for rows.Next() {
		var d model.RegistrationDetails
		if err := scanRegistrationDetails(rows, &d); err != nil {
			return nil, err
		}
		regs = append(regs, d)
	}
	return regs, rows.Err()
}
