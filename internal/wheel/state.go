package wheel

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ichi0g0y/wheel-overlay/internal/perf"
	"github.com/ichi0g0y/wheel-overlay/internal/settings"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
)

// Phase is the lifecycle stage of one drawing.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCollecting Phase = "collecting"
	PhaseSpinning   Phase = "spinning"
	PhaseResolved   Phase = "resolved"
)

const (
	maxPerformanceWarnings = 10
	criticalSpinCap        = 10 * time.Second
)

// Settings are the persisted wheel settings.
type Settings struct {
	CoinsPerEntry   int64  `json:"coinsPerEntry"`
	LikesPerEntry   int64  `json:"likesPerEntry"`
	SpinDuration    int    `json:"spinDuration"`
	ShuffleOnSpin   bool   `json:"shuffleEntriesOnSpin"`
	TriggerWord     string `json:"triggerWord"`
	UseTriggerWord  bool   `json:"useTriggerWord"`
	SubscriberOnly  bool   `json:"subscriberOnly"`
	AutoSpinMinutes int    `json:"autoSpinMinutes"`
	AutoSpinSeconds int    `json:"autoSpinSeconds"`
	WheelSize       int    `json:"wheelSize"`
	TextSize        int    `json:"textSize"`
	CenterSize      int    `json:"centerSize"`
	ShowTextShadows bool   `json:"showTextShadows"`
	ShowEntryList   bool   `json:"showEntryList"`
}

// AutoSpinDuration is the configured countdown length.
func (s Settings) AutoSpinDuration() time.Duration {
	return time.Duration(s.AutoSpinMinutes)*time.Minute + time.Duration(s.AutoSpinSeconds)*time.Second
}

// DefaultSettings mirrors settings.DefaultSettings.
func DefaultSettings() Settings {
	s, _ := SettingsFromMap(nil)
	return s
}

// SettingsFromMap builds Settings and the mode from stored key/values,
// falling back to defaults for missing or unparsable entries.
func SettingsFromMap(values map[string]string) (Settings, types.Mode) {
	var s Settings
	mode := types.ModeJoins
	for key, def := range settings.DefaultSettings {
		if !IsWheelSetting(key) {
			continue
		}
		v, ok := values[key]
		if !ok || settings.ValidateSetting(key, v) != nil {
			v = def.Value
		}
		if key == settings.KeyWheelMode {
			mode = types.Mode(v)
			continue
		}
		_ = s.apply(key, v)
	}
	return s, mode
}

// IsWheelSetting reports whether key is owned by the wheel.
func IsWheelSetting(key string) bool {
	switch key {
	case settings.KeyWheelMode, settings.KeyCoinsPerEntry, settings.KeyLikesPerEntry,
		settings.KeySpinDuration, settings.KeyShuffleOnSpin, settings.KeyTriggerWord,
		settings.KeyUseTriggerWord, settings.KeySubscriberOnly, settings.KeyAutoSpinMinutes,
		settings.KeyAutoSpinSeconds, settings.KeyWheelSize, settings.KeyTextSize,
		settings.KeyCenterSize, settings.KeyShowTextShadows, settings.KeyShowEntryList:
		return true
	}
	return false
}

func (s *Settings) apply(key, value string) error {
	atoi := func() (int, error) { return strconv.Atoi(value) }
	var err error
	switch key {
	case settings.KeyCoinsPerEntry:
		var v int
		v, err = atoi()
		s.CoinsPerEntry = int64(v)
	case settings.KeyLikesPerEntry:
		var v int
		v, err = atoi()
		s.LikesPerEntry = int64(v)
	case settings.KeySpinDuration:
		s.SpinDuration, err = atoi()
	case settings.KeyShuffleOnSpin:
		s.ShuffleOnSpin = value == "true"
	case settings.KeyTriggerWord:
		s.TriggerWord = value
	case settings.KeyUseTriggerWord:
		s.UseTriggerWord = value == "true"
	case settings.KeySubscriberOnly:
		s.SubscriberOnly = value == "true"
	case settings.KeyAutoSpinMinutes:
		s.AutoSpinMinutes, err = atoi()
	case settings.KeyAutoSpinSeconds:
		s.AutoSpinSeconds, err = atoi()
	case settings.KeyWheelSize:
		s.WheelSize, err = atoi()
	case settings.KeyTextSize:
		s.TextSize, err = atoi()
	case settings.KeyCenterSize:
		s.CenterSize, err = atoi()
	case settings.KeyShowTextShadows:
		s.ShowTextShadows = value == "true"
	case settings.KeyShowEntryList:
		s.ShowEntryList = value == "true"
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return err
}

// AutoSpin is the countdown status.
type AutoSpin struct {
	Active           bool `json:"active"`
	RemainingSeconds *int `json:"remainingSeconds"`
}

// PerformanceWarning is one recorded slowdown.
type PerformanceWarning struct {
	Timestamp time.Time     `json:"timestamp"`
	Severity  perf.Severity `json:"severity"`
	FPS       float64       `json:"fps"`
	Message   string        `json:"message"`
}

// State is a read-only snapshot of the wheel.
type State struct {
	Mode         types.Mode         `json:"mode"`
	Phase        Phase              `json:"phase"`
	IsCollecting bool               `json:"isCollecting"`
	IsSpinning   bool               `json:"isSpinning"`
	Entries      []types.WheelEntry `json:"entries"`
	WinnerIndex  int                `json:"winnerIndex"`
	Winner       *types.WheelEntry  `json:"winner,omitempty"`
	Settings     Settings           `json:"settings"`
	AutoSpin     AutoSpin           `json:"autoSpin"`
	Rotation     float64            `json:"rotation"`
	SpinID       string             `json:"spinId,omitempty"`

	TriggerSpinAfterAuto  bool `json:"triggerSpinAfterAuto"`
	TriggerResetAfterAuto bool `json:"triggerResetAfterAuto"`

	StatusText    string `json:"statusText"`
	UIStatus      string `json:"wheelUiStatus"`
	EntryCostText string `json:"wheelEntryCostText"`

	HasError     bool   `json:"hasError"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	PerformanceWarnings    []PerformanceWarning `json:"performanceWarnings"`
	LastPerformanceWarning *PerformanceWarning  `json:"lastPerformanceWarning,omitempty"`
	SpinDurationCap        int                  `json:"spinDurationCap,omitempty"`

	IsConnected bool `json:"isConnected"`
}

func (s State) clone() State {
	c := s
	c.Entries = append([]types.WheelEntry(nil), s.Entries...)
	if c.Entries == nil {
		c.Entries = []types.WheelEntry{}
	}
	c.PerformanceWarnings = append([]PerformanceWarning(nil), s.PerformanceWarnings...)
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	if s.AutoSpin.RemainingSeconds != nil {
		r := *s.AutoSpin.RemainingSeconds
		c.AutoSpin.RemainingSeconds = &r
	}
	if s.LastPerformanceWarning != nil {
		w := *s.LastPerformanceWarning
		c.LastPerformanceWarning = &w
	}
	return c
}

const (
	uiGettingReady = "Getting ready..."
	uiEnterNow     = "ENTER NOW!!!!"
	uiEnterNowAuto = "ENTER NOW!!!! (AUTO)"
	uiSpinning     = "Spinning..."

	statusIdle = `Select a mode and click "Start Collecting" or "Start Auto Spin"`
)

// EntryCostText is the banner describing what earns an entry.
func EntryCostText(mode types.Mode, s Settings) string {
	switch mode {
	case types.ModeGifts:
		suffix := ""
		if s.CoinsPerEntry > 1 {
			suffix = "S"
		}
		return fmt.Sprintf("ENTRIES ARE FOR %d COIN%s", s.CoinsPerEntry, suffix)
	case types.ModeLikes:
		return fmt.Sprintf("ENTRIES ARE FOR %d LIKES", s.LikesPerEntry)
	case types.ModeChat:
		return fmt.Sprintf("ENTRIES ARE FOR CHAT (%s)", s.TriggerWord)
	case types.ModeJoins:
		return "ENTRIES ARE FOR JOINS"
	}
	return ""
}
