package service

import (
	"context"
	"fmt"

	"regbot/internal/model"
	"regbot/internal/repository"
)

// ProfileField names an editable profile field.
type ProfileField string

const (
	FieldFirstName ProfileField = "first_name"
	FieldLastName  ProfileField = "last_name"
	FieldPhone     ProfileField = "phone"
	FieldStudentID ProfileField = "student_id"
)

// UserService manages user profiles.
type UserService struct {
	repo repository.Repository
}

// NewUserService constructs a UserService.
func NewUserService(repo repository.Repository) *UserService {
	return &UserService{repo: repo}
}

// Ensure creates the user on first contact and returns the stored record.
func (s *UserService) Ensure(ctx context.Context, telegramID int64, firstName, lastName string) (*model.User, error) {
	if err := s.repo.EnsureUser(ctx, model.User{TelegramID: telegramID, FirstName: firstName, LastName: lastName}); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.Get(ctx, telegramID)
}

// Get returns a user or ErrNotFound.
func (s *UserService) Get(ctx context.Context, telegramID int64) (*model.User, error) {
	u, err := s.repo.GetUser(ctx, telegramID)
	if err != nil {
		return nil, notFound(err, "get user")
	}
	return u, nil
}

// SaveProfile stores the registration profile fields.
func (s *UserService) SaveProfile(ctx context.Context, u model.User) error {
	if err := s.repo.UpdateUserProfile(ctx, u); err != nil {
		return notFound(err, "save profile")
	}
	return nil
}

// UpdateField changes one profile field. The value must already be validated.
func (s *UserService) UpdateField(ctx context.Context, telegramID int64, field ProfileField, value string) (*model.User, error) {
	u, err := s.Get(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	switch field {
	case FieldFirstName:
		u.FirstName = value
	case FieldLastName:
		u.LastName = value
	case FieldPhone:
		u.PhoneNumber = value
	case FieldStudentID:
		u.StudentID = value
	default:
		return nil, fmt.Errorf("unknown profile field %q", field)
	}
	if err := s.SaveProfile(ctx, *u); err != nil {
		return nil, err
	}
	u.IsRegistered = u.ProfileComplete()
	return u, nil
}

// SetNotifications toggles announcement delivery.
func (s *UserService) SetNotifications(ctx context.Context, telegramID int64, enabled bool) error {
	if err := s.repo.SetUserNotifications(ctx, telegramID, enabled); err != nil {
		return notFound(err, "set notifications")
	}
	return nil
}

// Recipients returns the users who accept announcements.
func (s *UserService) Recipients(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if u.NotificationsEnabled {
			out = append(out, u)
		}
	}
	return out, nil
}

// IsAdmin reports the stored admin flag; unknown users are not admins.
func (s *UserService) IsAdmin(ctx context.Context, telegramID int64) bool {
	u, err := s.repo.GetUser(ctx, telegramID)
	return err == nil && u.IsAdmin
}
