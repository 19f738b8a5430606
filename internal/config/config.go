// Package config loads the bot configuration from .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config represents the bot configuration
type Config struct {
	BotToken             string  `validate:"required"`
	BotUsername          string  `validate:"omitempty,excludes=@"`
	AdminUserIDs         []int64 `validate:"dive,gt=0"`
	AdminGroupID         int64
	DatabasePath         string `validate:"required"`
	PaymentCardNumber    string
	PaymentCardOwner     string
	PublicGroupLink      string `validate:"omitempty,url"`
	PublicChannelLink    string `validate:"omitempty,url"`
	Timezone             string `validate:"required"`
	Location             *time.Location
	SweepSchedule        string `validate:"required"`
	BroadcastConcurrency int    `validate:"min=1,max=64"`
	HTTPAddr             string
	CloudinaryURL        string `validate:"omitempty,startswith=cloudinary://"`
	Debug                bool
}

var validate = validator.New()

// Load reads envFile when it exists, then the process environment.
func Load(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err == nil {
		log.Printf("Loaded %s", envFile)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}

	cfg := &Config{
		BotToken:          os.Getenv("TELEGRAM_TOKEN"),
		BotUsername:       strings.TrimPrefix(os.Getenv("BOT_USERNAME"), "@"),
		DatabasePath:      getEnv("DATABASE_PATH", "./bot.db"),
		PublicGroupLink:   os.Getenv("PUBLIC_GROUP_LINK"),
		PublicChannelLink: os.Getenv("PUBLIC_CHANNEL_LINK"),
		Timezone:          getEnv("TIMEZONE", "Asia/Tehran"),
		SweepSchedule:     getEnv("SWEEP_SCHEDULE", "@every 1h"),
		HTTPAddr:          os.Getenv("HTTP_ADDR"),
		CloudinaryURL:     os.Getenv("CLOUDINARY_URL"),
	}

	var err error
	if cfg.AdminUserIDs, err = parseIDs(os.Getenv("ADMIN_USER_IDS")); err != nil {
		return nil, fmt.Errorf("ADMIN_USER_IDS: %w", err)
	}
	if v := os.Getenv("ADMIN_GROUP_ID"); v != "" {
		if cfg.AdminGroupID, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
			return nil, fmt.Errorf("ADMIN_GROUP_ID: %w", err)
		}
	}
	if cfg.BroadcastConcurrency, err = strconv.Atoi(getEnv("BROADCAST_CONCURRENCY", "4")); err != nil {
		return nil, fmt.Errorf("BROADCAST_CONCURRENCY: %w", err)
	}
	if v := os.Getenv("DEBUG"); v != "" {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("DEBUG: %w", err)
		}
	}
	cfg.PaymentCardNumber, cfg.PaymentCardOwner = parsePaymentCard(os.Getenv("PAYMENT_CARD_NUMBER"))

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Location, err = time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		return nil, fmt.Errorf("SWEEP_SCHEDULE: %w", err)
	}

	if len(cfg.AdminUserIDs) == 0 {
		log.Println("Warning: ADMIN_USER_IDS not set. Only users flagged in the database have admin access.")
	}
	if cfg.AdminGroupID == 0 {
		log.Println("Warning: ADMIN_GROUP_ID not set. Approval requests cannot be delivered.")
	}
	return cfg, nil
}

// IsAdminID reports whether id is listed in ADMIN_USER_IDS.
func (c *Config) IsAdminID(id int64) bool {
	for _, admin := range c.AdminUserIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// PaymentInstructions returns the card details shown before the receipt upload.
func (c *Config) PaymentInstructions() (number, owner string) {
	if c.PaymentCardNumber == "" {
		return "Please contact admin for payment details", ""
	}
	return c.PaymentCardNumber, c.PaymentCardOwner
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parseCommaSeparated parses a comma-separated string into a slice
func parseCommaSeparated(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range parseCommaSeparated(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PAYMENT_CARD_NUMBER is "number,owner".
func parsePaymentCard(s string) (number, owner string) {
	number, owner, _ = strings.Cut(s, ",")
	return strings.TrimSpace(number), strings.TrimSpace(owner)
}
