package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regbot/internal/archive"
	"regbot/internal/bot"
	"regbot/internal/config"
	"regbot/internal/health"
	"regbot/internal/repository"
	"regbot/internal/scheduler"
	"regbot/internal/service"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repo, err := repository.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	tg, err := bot.NewTelegram(cfg.BotToken, cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Authorized on account %s", tg.Username())
	if cfg.BotUsername == "" {
		cfg.BotUsername = tg.Username()
	}

	archiver, err := archive.New(cfg.CloudinaryURL)
	if err != nil {
		log.Fatal(err)
	}

	events := service.NewEventService(repo)
	svc := bot.Services{
		Users:         service.NewUserService(repo),
		Events:        events,
		Registrations: service.NewRegistrationService(repo, events),
		Fees:          service.NewFeeResolver(repo),
		Feedback:      service.NewFeedbackService(repo),
	}
	b := bot.New(tg, cfg, svc, repo, archiver)

	sweeper := scheduler.New(events, b.RequestFeedback)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		log.Fatalf("sweep schedule: %v", err)
	}
	defer sweeper.Stop()

	if cfg.HTTPAddr != "" {
		srv := health.NewServer(cfg.HTTPAddr, db)
		go func() {
			log.Printf("Health endpoint listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("health server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	updates, err := tg.Updates(60)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		tg.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}
