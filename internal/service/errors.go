// Package service implements the event and registration lifecycles, fee
// resolution and feedback on top of the repository layer.
package service

import (
	"errors"
	"fmt"

	"regbot/internal/repository"
)

var (
	// ErrNotFound is returned when an event, registration, user or feedback row is absent.
	ErrNotFound = errors.New("not found")

	// ErrEventFull is returned when an event has no room for another registration.
	ErrEventFull = errors.New("event is full")

	// ErrRegistrationClosed is returned when the event no longer accepts registrations.
	ErrRegistrationClosed = errors.New("registration for this event is closed")

	// ErrCapacityNotChecked is returned with the updated registration when an
	// approval was stored but the event capacity could not be re-checked.
	ErrCapacityNotChecked = errors.New("capacity not re-checked")

	// ErrNotCancellable is returned when an admin tries to cancel an event that is neither active nor full.
	ErrNotCancellable = errors.New("event cannot be cancelled in its current status")

	// ErrEventNotCompleted is returned when feedback is submitted for an event that has not finished.
	ErrEventNotCompleted = errors.New("event is not completed")

	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// notFound maps the repository sentinel onto the service one and wraps anything else.
func notFound(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
