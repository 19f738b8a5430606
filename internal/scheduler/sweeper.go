// Package scheduler runs the periodic event completion sweep.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"regbot/internal/model"
)

// Completer marks finished events as completed and returns them.
type Completer interface {
	CompletionSweep(ctx context.Context) ([]model.Event, error)
}

// CompletedFunc is told about every event a sweep completed.
type CompletedFunc func(ctx context.Context, events []model.Event)

// Sweeper runs the completion sweep on a cron schedule.
type Sweeper struct {
	events      Completer
	onCompleted CompletedFunc
	timeout     time.Duration
	cron        *cron.Cron
}

// New constructs a Sweeper. onCompleted may be nil.
func New(events Completer, onCompleted CompletedFunc) *Sweeper {
	return &Sweeper{
		events:      events,
		onCompleted: onCompleted,
		timeout:     4 * time.Minute,
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// RunOnce performs one sweep and returns how many events it completed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	completed, err := s.events.CompletionSweep(ctx)
	if err != nil {
		log.Printf("[SWEEP] error: %v", err)
	}
	if len(completed) == 0 {
		return 0
	}
	for _, e := range completed {
		log.Printf("[SWEEP] event %d %q completed", e.ID, e.Name)
	}
	if s.onCompleted != nil {
		s.onCompleted(ctx, completed)
	}
	return len(completed)
}

// Start runs a sweep right away and then on schedule.
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	log.Printf("[SWEEP] started schedule=%q", schedule)
	s.RunOnce(context.Background())
	s.cron.Start()
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
