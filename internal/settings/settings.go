package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/ichi0g0y/wheel-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

type Kind string

const (
	KindNormal Kind = "normal"
	KindSecret Kind = "secret"
)

var (
	// ErrUnknownKey is returned for keys missing from DefaultSettings.
	ErrUnknownKey = errors.New("unknown setting key")
	// ErrInvalidValue wraps every ValidateSetting failure.
	ErrInvalidValue = errors.New("invalid setting value")
)

// ホイール設定のキー
const (
	KeyWheelMode       = "WHEEL_MODE"
	KeyCoinsPerEntry   = "COINS_PER_ENTRY"
	KeyLikesPerEntry   = "LIKES_PER_ENTRY"
	KeySpinDuration    = "SPIN_DURATION"
	KeyShuffleOnSpin   = "SHUFFLE_ON_SPIN"
	KeyTriggerWord     = "TRIGGER_WORD"
	KeyUseTriggerWord  = "USE_TRIGGER_WORD"
	KeySubscriberOnly  = "SUBSCRIBER_ONLY"
	KeyAutoSpinMinutes = "AUTO_SPIN_MINUTES"
	KeyAutoSpinSeconds = "AUTO_SPIN_SECONDS"
	KeyWheelSize       = "WHEEL_SIZE"
	KeyTextSize        = "TEXT_SIZE"
	KeyCenterSize      = "CENTER_SIZE"
	KeyShowTextShadows = "SHOW_TEXT_SHADOWS"
	KeyShowEntryList   = "SHOW_ENTRY_LIST"
)

// プロセス設定のキー
const (
	KeyServerPort        = "SERVER_PORT"
	KeyDebugOutput       = "DEBUG_OUTPUT"
	KeyLiveSource        = "LIVE_SOURCE"
	KeyRelayURL          = "RELAY_URL"
	KeyTwitchClientID    = "TWITCH_CLIENT_ID"
	KeyTwitchAccessToken = "TWITCH_ACCESS_TOKEN"
	KeyTwitchUserID      = "TWITCH_USER_ID"
)

type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Type        Kind      `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
	// HasValue stays meaningful after a secret's value is masked.
	HasValue bool `json:"has_value"`
}

func normal(key, value, description string) Setting {
	return Setting{Key: key, Value: value, Type: KindNormal, Description: description}
}

func secret(key, description string) Setting {
	return Setting{Key: key, Type: KindSecret, Description: description}
}

func table(settings ...Setting) map[string]Setting {
	m := make(map[string]Setting, len(settings))
	for _, s := range settings {
		m[s.Key] = s
	}
	return m
}

// DefaultSettings lists every known key with its default.
var DefaultSettings = table(
	normal(KeyWheelMode, "joins", "Entry mode (gifts, likes, chat, joins)"),
	normal(KeyCoinsPerEntry, "1", "Gift coins required for one entry"),
	normal(KeyLikesPerEntry, "100", "Likes required for one entry"),
	normal(KeySpinDuration, "15", "Target spin duration in seconds"),
	normal(KeyShuffleOnSpin, "true", "Shuffle entries when a spin starts"),
	normal(KeyTriggerWord, "!spin", "Chat word that grants an entry in chat mode"),
	normal(KeyUseTriggerWord, "true", "Require the trigger word in chat mode"),
	normal(KeySubscriberOnly, "false", "Only subscribers can enter"),
	normal(KeyAutoSpinMinutes, "5", "Auto-spin countdown minutes"),
	normal(KeyAutoSpinSeconds, "0", "Auto-spin countdown seconds"),

	normal(KeyWheelSize, "119", "Wheel size in percent"),
	normal(KeyTextSize, "300", "Segment label size in percent"),
	normal(KeyCenterSize, "210", "Center hub size in pixels"),
	normal(KeyShowTextShadows, "true", "Draw shadows behind segment labels"),
	normal(KeyShowEntryList, "true", "Show the entry list next to the wheel"),

	normal(KeyServerPort, "8080", "Web server port for the overlay"),
	normal(KeyDebugOutput, "false", "Verbose console logging"),

	normal(KeyLiveSource, "none", "Live event source (none, relay, twitch)"),
	normal(KeyRelayURL, "", "WebSocket relay URL forwarding the live platform feed"),
	secret(KeyTwitchClientID, "Twitch application client ID"),
	secret(KeyTwitchAccessToken, "Twitch user access token for EventSub"),
	secret(KeyTwitchUserID, "Twitch broadcaster user ID"),
)

// Store keeps settings in the SQLite settings table. Keys never written fall
// back to DefaultSettings.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FeatureStatus reports whether the chosen live source has what it needs.
type FeatureStatus struct {
	LiveSource       string   `json:"live_source"`
	SourceConfigured bool     `json:"source_configured"`
	MissingSettings  []string `json:"missing_settings"`
	Warnings         []string `json:"warnings"`
}

func (s *Store) CheckFeatureStatus() (*FeatureStatus, error) {
	source, err := s.GetSetting(KeyLiveSource)
	if err != nil {
		return nil, err
	}
	status := &FeatureStatus{
		LiveSource:       source,
		SourceConfigured: true,
		MissingSettings:  []string{},
		Warnings:         []string{},
	}

	var required []string
	switch source {
	case "relay":
		required = []string{KeyRelayURL}
	case "twitch":
		required = []string{KeyTwitchClientID, KeyTwitchAccessToken, KeyTwitchUserID}
	default:
		status.Warnings = append(status.Warnings, "LIVE_SOURCE is none - only injected events reach the wheel")
	}

	for _, key := range required {
		if v, err := s.GetSetting(key); err != nil || v == "" {
			status.MissingSettings = append(status.MissingSettings, key)
			status.SourceConfigured = false
		}
	}
	return status, nil
}

// GetSetting returns the stored value, or the default when the key was never written.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		if def, ok := DefaultSettings[key]; ok {
			return def.Value, nil
		}
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return value, err
}

// SetSetting writes value without validation.
func (s *Store) SetSetting(key, value string) error {
	def, ok := DefaultSettings[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value, string(def.Type), def.Required, def.Description,
	)
	return err
}

// Save validates and persists a setting. It is the write path used by the wheel.
func (s *Store) Save(key, value string) error {
	if err := ValidateSetting(key, value); err != nil {
		return err
	}
	return s.SetSetting(key, value)
}

// Load returns the current value for every known key, DB first then defaults.
func (s *Store) Load() (map[string]string, error) {
	all, err := s.GetAllSettings()
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(all))
	for key, st := range all {
		values[key] = st.Value
	}
	return values, nil
}

func (s *Store) GetAllSettings() (map[string]Setting, error) {
	rows, err := s.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all := make(map[string]Setting, len(DefaultSettings))
	for rows.Next() {
		var (
			st          Setting
			kind        string
			description sql.NullString
		)
		if err := rows.Scan(&st.Key, &st.Value, &kind, &st.Required, &description, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Type = Kind(kind)
		st.Description = description.String
		st.HasValue = st.Value != ""
		all[st.Key] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for key, def := range DefaultSettings {
		if _, ok := all[key]; !ok {
			def.HasValue = def.Value != ""
			all[key] = def
		}
	}
	return all, nil
}

// seed writes value for key only if the key has never been stored.
// It reports whether a row was written.
func (s *Store) seed(key, value string) (bool, error) {
	def := DefaultSettings[key]
	res, err := s.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		key, value, string(def.Type), def.Required, def.Description,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func sortedKeys() []string {
	keys := make([]string, 0, len(DefaultSettings))
	for key := range DefaultSettings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MigrateFromEnv copies valid environment values into keys the DB does not hold yet.
func (s *Store) MigrateFromEnv() error {
	migrated := 0
	for _, key := range sortedKeys() {
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		if err := ValidateSetting(key, value); err != nil {
			logger.Warn("Skipping invalid environment setting", zap.String("key", key), zap.Error(err))
			continue
		}
		written, err := s.seed(key, value)
		if err != nil {
			return fmt.Errorf("failed to migrate %s: %w", key, err)
		}
		if written {
			logger.Info("Migrated setting from environment", zap.String("key", key))
			migrated++
		}
	}

	if migrated > 0 {
		logger.Info("Environment migration completed", zap.Int("migrated_count", migrated))
	}
	return nil
}

// InitializeDefaultSettings stores the default of every key not yet in the DB.
func (s *Store) InitializeDefaultSettings() error {
	for _, key := range sortedKeys() {
		if _, err := s.seed(key, DefaultSettings[key].Value); err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
	}
	return nil
}

type intRange struct{ min, max int }

var intRules = map[string]intRange{
	KeyCoinsPerEntry:   {1, math.MaxInt32},
	KeyLikesPerEntry:   {1, math.MaxInt32},
	KeySpinDuration:    {1, 120},
	KeyAutoSpinMinutes: {0, 60},
	KeyAutoSpinSeconds: {0, 59},
	KeyWheelSize:       {10, 300},
	KeyTextSize:        {0, 500},
	KeyCenterSize:      {0, 500},
	KeyServerPort:      {1, 65535},
}

var boolKeys = map[string]bool{
	KeyShuffleOnSpin:   true,
	KeyUseTriggerWord:  true,
	KeySubscriberOnly:  true,
	KeyShowTextShadows: true,
	KeyShowEntryList:   true,
	KeyDebugOutput:     true,
}

// ValidateSetting checks value against the rule for key. Keys without a rule
// accept any value.
func ValidateSetting(key, value string) error {
	if err := validateSetting(key, value); err != nil {
		return fmt.Errorf("%w: %s %v", ErrInvalidValue, key, err)
	}
	return nil
}

func validateSetting(key, value string) error {
	if r, ok := intRules[key]; ok {
		v, err := strconv.Atoi(value)
		if err != nil || v < r.min || v > r.max {
			if r.max == math.MaxInt32 {
				return fmt.Errorf("must be integer greater than %d", r.min-1)
			}
			return fmt.Errorf("must be integer between %d and %d", r.min, r.max)
		}
		return nil
	}
	if boolKeys[key] {
		if value != "true" && value != "false" {
			return fmt.Errorf("must be 'true' or 'false'")
		}
		return nil
	}

	switch key {
	case KeyWheelMode:
		switch value {
		case "gifts", "likes", "chat", "joins":
		default:
			return fmt.Errorf("must be one of gifts, likes, chat, joins")
		}
	case KeyLiveSource:
		switch value {
		case "none", "relay", "twitch":
		default:
			return fmt.Errorf("must be one of none, relay, twitch")
		}
	case KeyRelayURL:
		if value == "" {
			return nil
		}
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("must be a ws:// or wss:// URL")
		}
	}
	return nil
}
