// Package config resolves the migration tool's typed configuration
// from environment variables (bound by cmd/migrate through viper/
// godotenv), mirroring the teacher's profile.Profile FromEnv/Validate
// shape (spec §6).
package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Filter is the optional conversation filter named in spec §6.
type Filter struct {
	IncludeIDs       []string
	ExcludeIDs       []string
	IncludeTypes     []string
	ExcludeTypes     []string
	MinMessageCount  int
	MaxMessageCount  int
}

// Config is the migration run's full resolved configuration (spec §6).
type Config struct {
	// Required
	APIID       int
	APIHash     string
	PhoneA      string
	TargetUserB string

	// Optional, with defaults
	SessionPath          string
	ProgressPath         string
	BatchSize            int
	BatchDelayMs         int
	FloodWaitThreshold   int // seconds
	GroupNamePrefix      string
	LogLevel             string
	LogFilePath          string
	GroupCreationDelayMs int
	DailyGroupLimit      int

	Filter  Filter
	MinDate *time.Time
	MaxDate *time.Time
}

var apiHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
var phonePattern = regexp.MustCompile(`^\+\d{6,15}$`)

// getEnvOrDefault mirrors the teacher's profile helper of the same
// shape.
func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables, applying the
// defaults named in spec §6. Required fields are left empty/zero if
// unset; Validate reports that.
func FromEnv() Config {
	c := Config{
		APIID:                getEnvOrDefaultInt("TGMIGRATE_API_ID", 0),
		APIHash:              getEnvOrDefault("TGMIGRATE_API_HASH", ""),
		PhoneA:               getEnvOrDefault("TGMIGRATE_PHONE_A", ""),
		TargetUserB:          getEnvOrDefault("TGMIGRATE_TARGET_USER_B", ""),
		SessionPath:          getEnvOrDefault("TGMIGRATE_SESSION_PATH", "./session.txt"),
		ProgressPath:         getEnvOrDefault("TGMIGRATE_PROGRESS_PATH", "./progress.json"),
		BatchSize:            getEnvOrDefaultInt("TGMIGRATE_BATCH_SIZE", 100),
		BatchDelayMs:         getEnvOrDefaultInt("TGMIGRATE_BATCH_DELAY_MS", 1000),
		FloodWaitThreshold:   getEnvOrDefaultInt("TGMIGRATE_FLOOD_WAIT_THRESHOLD", 300),
		GroupNamePrefix:      getEnvOrDefault("TGMIGRATE_GROUP_NAME_PREFIX", "[Migrated] "),
		LogLevel:             getEnvOrDefault("TGMIGRATE_LOG_LEVEL", "info"),
		LogFilePath:          getEnvOrDefault("TGMIGRATE_LOG_FILE_PATH", "./migration.log"),
		GroupCreationDelayMs: getEnvOrDefaultInt("TGMIGRATE_GROUP_CREATION_DELAY_MS", 60000),
		DailyGroupLimit:      getEnvOrDefaultInt("TGMIGRATE_DAILY_GROUP_LIMIT", 50),
	}
	return c
}

// Validate checks the required fields and their shape, matching the
// fixed formats named in spec §6 (positive apiId, 32-hex apiHash,
// "+"-prefixed phoneA).
func (c Config) Validate() error {
	if c.APIID <= 0 {
		return errors.New("apiId must be a positive integer")
	}
	if !apiHashPattern.MatchString(c.APIHash) {
		return errors.New("apiHash must be 32 hex characters")
	}
	if !phonePattern.MatchString(c.PhoneA) {
		return errors.New("phoneA must be a \"+\"-prefixed international number")
	}
	if c.TargetUserB == "" {
		return errors.New("targetUserB is required")
	}
	if c.BatchSize <= 0 {
		return errors.New("batchSize must be positive")
	}
	if c.DailyGroupLimit <= 0 {
		return errors.New("dailyGroupLimit must be positive")
	}
	return nil
}

// BatchDelay returns BatchDelayMs as a time.Duration.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMs) * time.Millisecond
}

// GroupCreationDelay returns GroupCreationDelayMs as a time.Duration.
func (c Config) GroupCreationDelay() time.Duration {
	return time.Duration(c.GroupCreationDelayMs) * time.Millisecond
}

// FloodWaitThresholdDuration returns FloodWaitThreshold as a time.Duration.
func (c Config) FloodWaitThresholdDuration() time.Duration {
	return time.Duration(c.FloodWaitThreshold) * time.Second
}
