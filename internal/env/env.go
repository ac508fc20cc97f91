package env

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/ichi0g0y/wheel-overlay/internal/settings"
	"github.com/ichi0g0y/wheel-overlay/internal/shared/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// EnvValue はプロセス起動時に確定する設定値
type EnvValue struct {
	ServerPort        int
	DebugOutput       bool
	LiveSource        string
	RelayURL          *string
	TwitchClientID    *string
	TwitchAccessToken *string
	TwitchUserID      *string
}

var Value EnvValue

// LoadEnv reads .env (if present), migrates its values into the settings table
// and fills Value from the effective settings.
func LoadEnv(db *sql.DB) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env file", zap.Error(err))
	}

	sm := settings.NewStore(db)
	if err := sm.MigrateFromEnv(); err != nil {
		return fmt.Errorf("failed to migrate env settings: %w", err)
	}

	values, err := sm.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	Value = fromMap(values)
	logger.Info("Configuration loaded",
		zap.Int("server_port", Value.ServerPort),
		zap.String("live_source", Value.LiveSource),
		zap.Bool("debug", Value.DebugOutput))
	return nil
}

func fromMap(values map[string]string) EnvValue {
	v := EnvValue{
		ServerPort:  8080,
		LiveSource:  "none",
		DebugOutput: values["DEBUG_OUTPUT"] == "true",
	}
	if port, err := strconv.Atoi(values["SERVER_PORT"]); err == nil && port > 0 {
		v.ServerPort = port
	}
	if src := values["LIVE_SOURCE"]; src != "" {
		v.LiveSource = src
	}
	v.RelayURL = optional(values["RELAY_URL"])
	v.TwitchClientID = optional(values["TWITCH_CLIENT_ID"])
	v.TwitchAccessToken = optional(values["TWITCH_ACCESS_TOKEN"])
	v.TwitchUserID = optional(values["TWITCH_USER_ID"])
	return v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
