package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"regbot/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for database operations
type Repository interface {
	CreateTables(ctx context.Context) error

	EnsureUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	UpdateUserProfile(ctx context.Context, u model.User) error
	SetUserNotifications(ctx context.Context, telegramID int64, enabled bool) error
	ListUsers(ctx context.Context) ([]model.User, error)

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	SaveEvent(ctx context.Context, e *model.Event) error
	SetEventStatus(ctx context.Context, id int64, status model.EventStatus) error
	CompleteEvent(ctx context.Context, id int64) (bool, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	ListEventsByStatus(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error)
	ListEventsBefore(ctx context.Context, cutoff time.Time, statuses ...model.EventStatus) ([]model.Event, error)
	ListEventsAfter(ctx context.Context, after time.Time, statuses ...model.EventStatus) ([]model.Event, error)

	CountRegistrations(ctx context.Context, eventID int64, status model.RegistrationStatus) (int, error)
	InsertRegistration(ctx context.Context, r *model.Registration) error
	SaveRegistration(ctx context.Context, r *model.Registration) error
	SetRegistrationStatus(ctx context.Context, id int64, status model.RegistrationStatus) error
	SetApprovalMessage(ctx context.Context, id int64, chatID int64, messageID int) error
	SetReceiptArchive(ctx context.Context, id int64, url string) error
	GetRegistration(ctx context.Context, id int64) (*model.RegistrationDetails, error)
	FindRegistration(ctx context.Context, userID, eventID int64) (*model.Registration, error)
	ListUserRegistrations(ctx context.Context, userID int64) ([]model.RegistrationDetails, error)
	ListEventRegistrations(ctx context.Context, eventID int64) ([]model.RegistrationDetails, error)

	FindFeedback(ctx context.Context, userID, eventID int64) (*model.Feedback, error)
	InsertFeedback(ctx context.Context, f *model.Feedback) error
	UpdateFeedback(ctx context.Context, f *model.Feedback) error
	ListEventFeedback(ctx context.Context, eventID int64) ([]model.Feedback, error)
	AverageRating(ctx context.Context, eventID int64) (float64, bool, error)

	GetForumTopic(ctx context.Context, chatID int64, name string) (*model.ForumTopic, error)
	SaveForumTopic(ctx context.Context, t model.ForumTopic) error
}

// SQLiteRepository implements the Repository interface
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLiteRepository
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Open opens the sqlite file at path and creates the schema.
func Open(ctx context.Context, path string) (*sql.DB, *SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, nil, err
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY between handlers
	db.SetMaxOpenConns(1)

	repo := NewSQLiteRepository(db)
	if err := repo.CreateTables(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, repo, nil
}

// CreateTables creates the necessary tables for users, events, registrations and feedback
func (r *SQLiteRepository) CreateTables(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id INTEGER PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			student_id TEXT NOT NULL DEFAULT '',
			is_admin INTEGER NOT NULL DEFAULT 0,
			is_registered INTEGER NOT NULL DEFAULT 0,
			notifications_enabled INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			capacity INTEGER NOT NULL,
			fee REAL NOT NULL DEFAULT 0,
			student_fee REAL NOT NULL DEFAULT 0,
			date TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			poster_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS registrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(telegram_id),
			event_id INTEGER NOT NULL REFERENCES events(id),
			receipt_file_id TEXT NOT NULL DEFAULT '',
			receipt_archive_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			registered_at TEXT NOT NULL,
			approval_chat_id INTEGER NOT NULL DEFAULT 0,
			approval_message_id INTEGER NOT NULL DEFAULT 0,
			UNIQUE(user_id, event_id)
		);`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(telegram_id),
			event_id INTEGER NOT NULL REFERENCES events(id),
			rating INTEGER NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE(user_id, event_id)
		);`,
		`CREATE TABLE IF NOT EXISTS forum_topics (
			chat_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			thread_id INTEGER NOT NULL,
			PRIMARY KEY(chat_id, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_status_date ON events(status, date);`,
		`CREATE INDEX IF NOT EXISTS idx_registrations_event_status ON registrations(event_id, status);`,
	}

	for _, stmt := range tables {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Times are stored as UTC RFC3339 text so that string comparison in SQL orders them.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// execOne runs a statement that must touch exactly one row.
func (r *SQLiteRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func statusArgs[S ~string](statuses []S) (string, []interface{}) {
	placeholders := make([]byte, 0, len(statuses)*2)
	args := make([]interface{}, 0, len(statuses))
	for i, s := range statuses {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, string(s))
	}
	return string(placeholders), args
}
