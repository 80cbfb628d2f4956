package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Storage
	Bucket string // S3 bucket receiving gmail/<namespace>/message_<id>.json

	// Provider
	GmailUserID  string // "me" or an explicit address
	ListPageSize int    // ids per Gmail list call, 1..500

	// Secrets: read from SSM when ParamPrefix is set, otherwise from env
	ParamPrefix  string
	ClientID     string
	ClientSecret string
	RefreshToken string

	// Run ledger (optional)
	RunTable string
	RunTTL   time.Duration

	LogLevel slog.Level
}

// FromEnv reads configuration from the process environment.
func FromEnv() (Config, error) {
	c := Config{}

	c.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET_NAME"))
	c.GmailUserID = getenv("GMAIL_USER_ID", "me")
	c.ListPageSize = getenvi("LIST_PAGE_SIZE", 500)

	c.ParamPrefix = strings.TrimSpace(os.Getenv("PARAM_PREFIX"))
	c.ClientID = os.Getenv("CLIENT_ID")
	c.ClientSecret = os.Getenv("CLIENT_SECRET")
	c.RefreshToken = os.Getenv("REFRESH_TOKEN")

	c.RunTable = strings.TrimSpace(os.Getenv("RUN_TABLE"))
	if d, err := time.ParseDuration(getenv("RUN_TTL", "720h")); err == nil {
		c.RunTTL = d
	} else {
		c.RunTTL = 720 * time.Hour
	}

	if err := c.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		c.LogLevel = slog.LevelInfo
	}

	return c, c.Validate()
}

// Validate reports settings the function cannot start without. Missing
// secrets are not fatal here; they surface per invocation as auth errors.
func (c Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET_NAME is required"))
	}
	if c.ListPageSize < 1 || c.ListPageSize > 500 {
		errs = append(errs, fmt.Errorf("LIST_PAGE_SIZE must be between 1 and 500, got %d", c.ListPageSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// UseParamStore reports whether secrets come from SSM.
func (c Config) UseParamStore() bool {
	return c.ParamPrefix != ""
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvi(k string, def int) int {
	v := getenv(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
