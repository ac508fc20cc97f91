// Package wheel owns the prize wheel: the entry pool, the drawing lifecycle,
// the auto-spin countdown and the in-flight spin.
//
// All state lives behind one mutex. Actions run to completion under the lock
// and queue notifications, which are delivered to listeners after the lock is
// released.
package wheel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ichi0g0y/wheel-overlay/internal/accumulator"
	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/localdb"
	"github.com/ichi0g0y/wheel-overlay/internal/lottery"
	"github.com/ichi0g0y/wheel-overlay/internal/metrics"
	"github.com/ichi0g0y/wheel-overlay/internal/perf"
	"github.com/ichi0g0y/wheel-overlay/internal/settings"
	"github.com/ichi0g0y/wheel-overlay/internal/spin"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/looplab/fsm"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
	TriggerRespin = "respin"

	// RespinDelay lets the overlay settle after a winner is removed.
	RespinDelay = 300 * time.Millisecond
)

// fsm events
const (
	evCollect     = "collect"
	evStopCollect = "stop_collect"
	evSpin        = "spin"
	evResolve     = "resolve"
	evReset       = "reset"
	evFail        = "fail"
)

// SettingsStore persists one validated setting.
type SettingsStore interface {
	Save(key, value string) error
}

// Config wires a Machine. Zero values get working defaults.
type Config struct {
	Logger *zap.Logger
	Now    func() time.Time
	Random lottery.Source
	Store  SettingsStore
	// Recorder stores resolved spins. Called outside the lock.
	Recorder func(localdb.SpinHistory) error
	// After schedules fn once d has passed.
	After    func(d time.Duration, fn func())
	Mode     types.Mode
	Settings *Settings
}

type spinRuntime struct {
	id        string
	trigger   string
	driver    *spin.Driver
	snapshot  []types.WheelEntry
	startedAt time.Time
}

type Machine struct {
	mu sync.Mutex

	log      *zap.Logger
	now      func() time.Time
	random   lottery.Source
	store    SettingsStore
	recorder func(localdb.SpinHistory) error
	after    func(time.Duration, func())

	phase   *fsm.FSM
	acc     *accumulator.Accumulator
	state   State
	spin    *spinRuntime
	monitor *perf.Monitor

	countdownEnd    time.Time
	spinDurationCap time.Duration
	respinToken     int

	// spinStarted wakes the frame loop.
	spinStarted chan struct{}

	changed     bool
	pending     []Notification
	afterUnlock []func()

	subMu     sync.RWMutex
	listeners map[int]Listener
	nextSub   int
}

func NewMachine(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Random == nil {
		cfg.Random = lottery.NewSecureSource()
	}
	if cfg.After == nil {
		cfg.After = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	s := DefaultSettings()
	if cfg.Settings != nil {
		s = *cfg.Settings
	}
	mode := cfg.Mode
	if !mode.Valid() {
		mode = types.ModeJoins
	}

	m := &Machine{
		log:         cfg.Logger,
		now:         cfg.Now,
		random:      cfg.Random,
		store:       cfg.Store,
		recorder:    cfg.Recorder,
		after:       cfg.After,
		acc:         accumulator.New(cfg.Logger.Named("accumulator"), cfg.Now),
		monitor:     perf.NewMonitor(perf.ReportInterval),
		spinStarted: make(chan struct{}, 1),
		listeners:   make(map[int]Listener),
	}
	m.phase = fsm.NewFSM(
		string(PhaseIdle),
		fsm.Events{
			{Name: evCollect, Src: []string{string(PhaseIdle), string(PhaseCollecting), string(PhaseResolved)}, Dst: string(PhaseCollecting)},
			{Name: evStopCollect, Src: []string{string(PhaseCollecting)}, Dst: string(PhaseIdle)},
			{Name: evSpin, Src: []string{string(PhaseIdle), string(PhaseCollecting), string(PhaseResolved)}, Dst: string(PhaseSpinning)},
			{Name: evResolve, Src: []string{string(PhaseSpinning)}, Dst: string(PhaseResolved)},
			{Name: evReset, Src: []string{string(PhaseIdle), string(PhaseCollecting), string(PhaseResolved)}, Dst: string(PhaseIdle)},
			{Name: evFail, Src: []string{string(PhaseIdle), string(PhaseCollecting), string(PhaseSpinning), string(PhaseResolved)}, Dst: string(PhaseIdle)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.log.Debug("Wheel phase changed", zap.String("from", e.Src), zap.String("to", e.Dst), zap.String("event", e.Event))
			},
		},
	)
	m.state = State{
		Mode:        mode,
		Phase:       PhaseIdle,
		Entries:     []types.WheelEntry{},
		WinnerIndex: -1,
		Settings:    s,
		StatusText:  statusIdle,
		UIStatus:    uiGettingReady,
	}
	m.state.EntryCostText = EntryCostText(mode, s)
	return m
}

// fire moves the phase machine. Self transitions are not errors.
func (m *Machine) fire(event string) error {
	err := m.phase.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return err
	}
	m.state.Phase = Phase(m.phase.Current())
	m.changed = true
	return nil
}

// do runs fn under the lock, then delivers what it queued.
func (m *Machine) do(action string, fn func() error) error {
	pending, after, err := m.locked(fn)
	if err != nil {
		metrics.RejectedActions.WithLabelValues(action).Inc()
		if rejection(err) {
			m.log.Warn("Wheel action rejected", zap.String("action", action), zap.Error(err))
		} else {
			m.log.Error("Wheel action failed", zap.String("action", action), zap.Error(err))
		}
	}
	m.dispatch(pending)
	for _, f := range after {
		f()
	}
	return err
}

// locked releases the lock even if fn panics, so a recovered frame loop can
// still report the fault.
func (m *Machine) locked(fn func() error) (pending []Notification, after []func(), err error) {
	m.mu.Lock()
	defer func() {
		if m.changed {
			m.emit(NotifyStateChanged, m.state.clone())
			m.changed = false
		}
		pending, after = m.pending, m.afterUnlock
		m.pending, m.afterUnlock = nil, nil
		m.mu.Unlock()
	}()
	return nil, nil, fn()
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// SpinStarted fires (without blocking) whenever a spin begins.
func (m *Machine) SpinStarted() <-chan struct{} {
	return m.spinStarted
}

func (m *Machine) setEntries(entries []types.WheelEntry) {
	if entries == nil {
		entries = []types.WheelEntry{}
	}
	m.state.Entries = entries
	metrics.Entries.Set(float64(len(entries)))
	m.emitEntries()
	m.changed = true
}

func (m *Machine) clearWinner() {
	m.state.WinnerIndex = -1
	m.state.Winner = nil
}

func (m *Machine) stopAutoSpinLocked() {
	m.state.AutoSpin = AutoSpin{}
	m.countdownEnd = time.Time{}
	m.changed = true
}

func (m *Machine) gate() accumulator.Gate {
	s := m.state.Settings
	return accumulator.Gate{
		Mode:           m.state.Mode,
		Collecting:     m.state.IsCollecting,
		Spinning:       m.state.IsSpinning,
		CoinsPerEntry:  s.CoinsPerEntry,
		LikesPerEntry:  s.LikesPerEntry,
		SubscriberOnly: s.SubscriberOnly,
		TriggerWord:    s.TriggerWord,
		UseTriggerWord: s.UseTriggerWord,
	}
}

// SetMode switches the entry mode. Entries, winner, combo progress and
// auto-spin are cleared.
func (m *Machine) SetMode(mode types.Mode) error {
	return m.do("set_mode", func() error {
		return m.setModeLocked(mode)
	})
}

func (m *Machine) setModeLocked(mode types.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if m.state.IsSpinning {
		return ErrSpinning
	}
	if m.store != nil {
		if err := m.store.Save(settings.KeyWheelMode, string(mode)); err != nil {
			return fmt.Errorf("failed to persist wheel mode: %w", err)
		}
	}
	if err := m.fire(evReset); err != nil {
		return err
	}
	m.state.Mode = mode
	m.state.IsCollecting = false
	m.clearWinner()
	m.stopAutoSpinLocked()
	m.acc.Reset()
	m.setEntries(nil)
	m.state.EntryCostText = EntryCostText(mode, m.state.Settings)
	m.state.StatusText = fmt.Sprintf(`Mode set to %s. Click "Start Collecting" to begin.`, mode)
	m.state.UIStatus = uiGettingReady
	m.emit(NotifySettingsChanged, SettingChanged{Key: settings.KeyWheelMode, Value: string(mode)})
	return nil
}

// StartCollecting begins a fresh collection.
func (m *Machine) StartCollecting() error {
	return m.do("start_collecting", func() error {
		if m.state.IsSpinning {
			return ErrSpinning
		}
		if m.state.HasError {
			return ErrFaulted
		}
		if err := m.fire(evCollect); err != nil {
			return err
		}
		m.respinToken++
		m.stopAutoSpinLocked()
		m.acc.Reset()
		m.clearWinner()
		m.setEntries(nil)
		m.state.IsCollecting = true
		m.state.StatusText = fmt.Sprintf("Collecting entries for %s...", strings.ToUpper(string(m.state.Mode)))
		m.state.UIStatus = uiEnterNow
		return nil
	})
}

// StopCollecting closes the pool without spinning. Entries are kept.
func (m *Machine) StopCollecting() error {
	return m.do("stop_collecting", func() error {
		if m.state.IsSpinning {
			return ErrSpinning
		}
		if err := m.fire(evStopCollect); err != nil {
			return ErrNotCollecting
		}
		m.state.IsCollecting = false
		m.stopAutoSpinLocked()
		m.state.StatusText = fmt.Sprintf("Collection stopped with %d entries.", len(m.state.Entries))
		m.state.UIStatus = uiGettingReady
		return nil
	})
}

// StartSpin locks the pool and starts a spin. trigger labels the metric.
func (m *Machine) StartSpin(trigger string) error {
	if trigger == "" {
		trigger = TriggerManual
	}
	return m.do("start_spin", func() error {
		return m.startSpinLocked(trigger)
	})
}

func (m *Machine) startSpinLocked(trigger string) error {
	if m.state.IsSpinning {
		return ErrSpinning
	}
	if m.state.HasError {
		return ErrFaulted
	}
	if len(m.state.Entries) == 0 {
		m.emit(NotifyNotice, Notice{Message: "No entries to spin"})
		return ErrNoEntries
	}
	if err := m.fire(evSpin); err != nil {
		return err
	}

	entries := append([]types.WheelEntry(nil), m.state.Entries...)
	if m.state.Settings.ShuffleOnSpin {
		lottery.Shuffle(entries, m.random)
	}
	// スナップショットはシャッフル後に取る
	snapshot := append([]types.WheelEntry(nil), entries...)

	duration := time.Duration(m.state.Settings.SpinDuration) * time.Second
	if m.spinDurationCap > 0 && duration > m.spinDurationCap {
		duration = m.spinDurationCap
	}
	rotation := math.Mod(m.state.Rotation, 360) + lottery.StartOffset(m.random)

	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("spin-%d", m.now().UnixNano())
	}
	now := m.now()
	m.spin = &spinRuntime{
		id:        id,
		trigger:   trigger,
		driver:    spin.NewDriver(spin.NewPhysics(rotation, duration, len(snapshot)), now),
		snapshot:  snapshot,
		startedAt: now,
	}
	m.monitor.Start(now)

	m.stopAutoSpinLocked()
	m.clearWinner()
	m.state.Entries = entries
	m.emitEntries()
	m.state.IsSpinning = true
	m.state.IsCollecting = false
	m.state.Rotation = rotation
	m.state.SpinID = id
	m.state.StatusText = uiSpinning
	m.state.UIStatus = uiSpinning

	metrics.Spins.WithLabelValues(trigger).Inc()
	m.emit(NotifySpinStarted, SpinStarted{
		SpinID:          id,
		Trigger:         trigger,
		Entries:         append([]types.WheelEntry(nil), snapshot...),
		Rotation:        rotation,
		DurationSeconds: duration.Seconds(),
	})
	m.log.Info("Spin started",
		zap.String("spin_id", id),
		zap.String("trigger", trigger),
		zap.Int("entries", len(snapshot)),
		zap.Duration("target", duration))

	select {
	case m.spinStarted <- struct{}{}:
	default:
	}
	return nil
}

// Advance moves the in-flight spin to now. It returns false once no spin is
// running, which tells the frame loop to stop.
func (m *Machine) Advance(now time.Time) bool {
	running := true
	_ = m.do("advance", func() error {
		if !m.state.IsSpinning || m.spin == nil {
			running = false
			return nil
		}
		res, dt, stepped := m.spin.driver.Frame(now)
		if !stepped {
			return nil
		}
		if report, low := m.monitor.RecordFrame(dt, now); low {
			m.recordPerformanceLocked(report)
		}
		p := m.spin.driver.Physics()
		m.state.Rotation = p.Rotation
		if res.Tick {
			m.emit(NotifySpinTick, SpinTick{SpinID: m.spin.id, Index: res.Index, Rotation: p.Rotation})
		}
		if res.Done {
			running = false
			return m.resolveLocked(res.Index)
		}
		return nil
	})
	return running
}

// ResolveSpin finishes the in-flight spin with winnerIndex. The index refers
// to the entries locked at spin start.
func (m *Machine) ResolveSpin(winnerIndex int) error {
	return m.do("resolve_spin", func() error {
		return m.resolveLocked(winnerIndex)
	})
}

func (m *Machine) resolveLocked(idx int) error {
	if !m.state.IsSpinning || m.spin == nil {
		return ErrNotSpinning
	}
	run := m.spin
	if idx < 0 || idx >= len(run.snapshot) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidWinner, idx, len(run.snapshot))
	}
	if err := m.fire(evResolve); err != nil {
		return err
	}
	m.monitor.Stop()
	m.spin = nil

	winner := run.snapshot[idx]
	m.state.Entries = append([]types.WheelEntry(nil), run.snapshot...)
	m.state.IsSpinning = false
	m.state.WinnerIndex = idx
	m.state.Winner = &winner
	m.state.StatusText = fmt.Sprintf("Winner: %s! Reset or act.", winner.Name)
	m.state.UIStatus = uiGettingReady

	elapsed := m.now().Sub(run.startedAt)
	metrics.SpinDuration.Observe(elapsed.Seconds())
	m.emit(NotifySpinResolved, SpinResolved{
		SpinID:      run.id,
		WinnerIndex: idx,
		Winner:      winner,
		Rotation:    m.state.Rotation,
	})
	m.log.Info("Spin resolved",
		zap.String("spin_id", run.id),
		zap.String("winner", winner.Name),
		zap.Int("index", idx),
		zap.Duration("elapsed", elapsed))

	if m.recorder != nil {
		history := localdb.SpinHistory{
			ID:           run.id,
			WinnerName:   winner.Name,
			WinnerAvatar: winner.Avatar,
			IsSubscriber: winner.IsSubscriber,
			Mode:         string(m.state.Mode),
			TotalEntries: len(run.snapshot),
			WinnerIndex:  idx,
			SpunAt:       m.now(),
		}
		if b, err := json.Marshal(run.snapshot); err == nil {
			history.EntriesJSON = string(b)
		}
		record := m.recorder
		m.afterUnlock = append(m.afterUnlock, func() {
			if err := record(history); err != nil {
				m.log.Error("Failed to save spin history", zap.String("spin_id", history.ID), zap.Error(err))
			}
		})
	}
	return nil
}

// Reset clears entries, winner and auto-spin. Settings and mode are kept.
func (m *Machine) Reset() error {
	return m.do("reset", m.resetLocked)
}

func (m *Machine) resetLocked() error {
	if m.state.IsSpinning {
		return ErrSpinning
	}
	if err := m.fire(evReset); err != nil {
		return err
	}
	m.respinToken++
	m.acc.Reset()
	m.clearWinner()
	m.stopAutoSpinLocked()
	m.setEntries(nil)
	m.state.IsCollecting = false
	m.state.TriggerSpinAfterAuto = false
	m.state.TriggerResetAfterAuto = false
	m.state.HasError = false
	m.state.Error = ""
	m.state.ErrorMessage = ""
	m.state.SpinID = ""
	m.state.StatusText = statusIdle
	m.state.UIStatus = uiGettingReady
	return nil
}

// StartAutoSpin collects for the configured duration and then spins.
// Entries already being collected are kept.
func (m *Machine) StartAutoSpin() error {
	return m.do("start_auto_spin", func() error {
		if m.state.IsSpinning {
			return ErrSpinning
		}
		if m.state.HasError {
			return ErrFaulted
		}
		d := m.state.Settings.AutoSpinDuration()
		if d <= 0 {
			return ErrNoCountdown
		}
		wasCollecting := m.state.IsCollecting
		if err := m.fire(evCollect); err != nil {
			return err
		}
		m.respinToken++
		if !wasCollecting {
			m.acc.Reset()
			m.clearWinner()
			m.setEntries(nil)
		}
		remaining := int(d / time.Second)
		m.countdownEnd = m.now().Add(d)
		m.state.IsCollecting = true
		m.state.AutoSpin = AutoSpin{Active: true, RemainingSeconds: &remaining}
		m.state.StatusText = fmt.Sprintf("Auto-spin started (%dm %ds). Collecting entries...",
			m.state.Settings.AutoSpinMinutes, m.state.Settings.AutoSpinSeconds)
		m.state.UIStatus = uiEnterNowAuto
		m.emit(NotifyCountdownTick, CountdownTick{RemainingSeconds: remaining})
		return nil
	})
}

// StopAutoSpin cancels the countdown. Entries and collection are untouched.
func (m *Machine) StopAutoSpin() error {
	return m.do("stop_auto_spin", func() error {
		if !m.state.AutoSpin.Active {
			return nil
		}
		m.stopAutoSpinLocked()
		if m.state.IsCollecting {
			m.state.UIStatus = uiEnterNow
		}
		return nil
	})
}

// TickCountdown updates the auto-spin countdown. When it reaches zero the
// wheel spins if it has entries and resets otherwise. Returns false when no
// countdown is active.
func (m *Machine) TickCountdown(now time.Time) bool {
	active := true
	_ = m.do("countdown", func() error {
		if !m.state.AutoSpin.Active || m.countdownEnd.IsZero() {
			active = false
			return nil
		}
		left := m.countdownEnd.Sub(now)
		remaining := int(math.Ceil(left.Seconds()))
		if remaining < 0 {
			remaining = 0
		}
		if prev := m.state.AutoSpin.RemainingSeconds; prev == nil || *prev != remaining {
			m.state.AutoSpin.RemainingSeconds = &remaining
			m.emit(NotifyCountdownTick, CountdownTick{RemainingSeconds: remaining})
			m.changed = true
		}
		if remaining > 0 {
			return nil
		}

		active = false
		m.stopAutoSpinLocked()
		if len(m.state.Entries) > 0 {
			m.state.TriggerSpinAfterAuto = true
		} else {
			m.state.TriggerResetAfterAuto = true
		}
		m.state.StatusText = "Auto-spin timer finished!"
		m.emit(NotifyAutoSpinElapsed, CountdownTick{RemainingSeconds: 0})

		// 一度だけ発火させるためフラグは処理前に落とす
		spinNow := m.state.TriggerSpinAfterAuto
		m.state.TriggerSpinAfterAuto = false
		m.state.TriggerResetAfterAuto = false
		if spinNow {
			return m.startSpinLocked(TriggerAuto)
		}
		return m.resetLocked()
	})
	return active
}

// UpdateSetting validates, persists and applies one wheel setting.
func (m *Machine) UpdateSetting(key, value string) error {
	return m.do("update_setting", func() error {
		if key == settings.KeyWheelMode {
			return m.setModeLocked(types.Mode(value))
		}
		if !IsWheelSetting(key) {
			return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
		}
		if err := settings.ValidateSetting(key, value); err != nil {
			return err
		}
		if m.store != nil {
			if err := m.store.Save(key, value); err != nil {
				return fmt.Errorf("failed to persist %s: %w", key, err)
			}
		}
		if err := m.state.Settings.apply(key, value); err != nil {
			return err
		}
		m.state.EntryCostText = EntryCostText(m.state.Mode, m.state.Settings)
		m.changed = true
		m.emit(NotifySettingsChanged, SettingChanged{Key: key, Value: value})
		return nil
	})
}

// AddEntries appends entries to the pool.
func (m *Machine) AddEntries(entries ...types.WheelEntry) error {
	return m.do("add_entries", func() error {
		if m.state.IsSpinning {
			return ErrSpinning
		}
		if len(entries) == 0 {
			return nil
		}
		m.setEntries(append(append([]types.WheelEntry(nil), m.state.Entries...), entries...))
		return nil
	})
}

// SetEntries replaces the pool, for operator edits.
func (m *Machine) SetEntries(entries []types.WheelEntry) error {
	return m.do("set_entries", func() error {
		if m.state.IsSpinning {
			return ErrSpinning
		}
		m.clearWinner()
		m.setEntries(append([]types.WheelEntry(nil), entries...))
		return nil
	})
}

// AddTestEntries appends n generated entries for rehearsal.
func (m *Machine) AddTestEntries(n int) error {
	return m.do("add_test_entries", func() error {
		if m.state.IsSpinning {
			return ErrSpinning
		}
		if n <= 0 {
			return nil
		}
		m.setEntries(append(append([]types.WheelEntry(nil), m.state.Entries...), lottery.TestEntries(n, m.random)...))
		m.state.StatusText = fmt.Sprintf("Added %d test entries.", n)
		return nil
	})
}

// Ingest feeds one normalized live event through the accumulator. It returns
// the number of entries granted.
func (m *Machine) Ingest(ev livefeed.Event) int {
	granted := 0
	_ = m.do("ingest", func() error {
		entries := m.acc.Process(ev, m.gate())
		if len(entries) == 0 {
			return nil
		}
		granted = len(entries)
		m.setEntries(append(append([]types.WheelEntry(nil), m.state.Entries...), entries...))
		metrics.EntriesGranted.WithLabelValues(string(m.state.Mode)).Add(float64(granted))
		return nil
	})
	return granted
}

// SweepSessions drops idle combo sessions.
func (m *Machine) SweepSessions(maxIdle time.Duration) int {
	return m.acc.Sweep(maxIdle)
}

// ReportError moves the wheel into the error state. Any spin and countdown stop.
func (m *Machine) ReportError(errMsg, message string) {
	_ = m.do("error", func() error {
		if err := m.fire(evFail); err != nil {
			return err
		}
		m.respinToken++
		m.spin = nil
		m.monitor.Stop()
		m.stopAutoSpinLocked()
		m.state.IsSpinning = false
		m.state.IsCollecting = false
		m.state.HasError = true
		m.state.Error = errMsg
		m.state.ErrorMessage = message
		m.state.StatusText = fmt.Sprintf("Error: %s. Reset to continue.", message)
		m.state.UIStatus = uiGettingReady
		m.emit(NotifyError, WheelError{Error: errMsg, Message: message})
		m.log.Error("Wheel error", zap.String("error", errMsg), zap.String("message", message))
		return nil
	})
}

// ResetError clears the error state and returns to idle with an empty pool.
func (m *Machine) ResetError() error {
	return m.do("reset_error", func() error {
		if err := m.resetLocked(); err != nil {
			return err
		}
		m.state.StatusText = "Wheel reset after error. Ready to continue."
		return nil
	})
}

// ReportPerformance records a frame-rate report from outside the frame loop,
// for example from the overlay.
func (m *Machine) ReportPerformance(r perf.Report) {
	_ = m.do("performance", func() error {
		m.recordPerformanceLocked(r)
		return nil
	})
}

func (m *Machine) recordPerformanceLocked(r perf.Report) {
	severity := r.Severity
	if severity == "" {
		severity = perf.Classify(r.AverageFPS)
	}
	w := PerformanceWarning{Timestamp: r.At, Severity: severity, FPS: r.AverageFPS, Message: r.Message()}
	if w.Timestamp.IsZero() {
		w.Timestamp = m.now()
	}
	m.state.PerformanceWarnings = append(m.state.PerformanceWarnings, w)
	if n := len(m.state.PerformanceWarnings); n > maxPerformanceWarnings {
		m.state.PerformanceWarnings = m.state.PerformanceWarnings[n-maxPerformanceWarnings:]
	}
	m.state.LastPerformanceWarning = &w
	if severity == perf.SeverityCritical {
		// 進行中のスピンは止めず、次回以降の長さだけ抑える
		m.spinDurationCap = criticalSpinCap
		m.state.SpinDurationCap = int(criticalSpinCap / time.Second)
		if m.state.IsSpinning {
			m.state.StatusText = fmt.Sprintf("Performance warning: %s", w.Message)
		}
	}
	metrics.PerformanceWarnings.WithLabelValues(string(severity)).Inc()
	m.emit(NotifyPerformanceWarning, w)
	m.changed = true
}

// SetConnected records the live feed connection state.
func (m *Machine) SetConnected(connected bool) {
	_ = m.do("connection", func() error {
		if m.state.IsConnected == connected {
			return nil
		}
		m.state.IsConnected = connected
		m.changed = true
		m.emit(NotifyFeedConnection, FeedConnection{Connected: connected})
		return nil
	})
}

// RemoveWinnerAndRespin drops the winning entry and spins again after
// RespinDelay, or resets if the pool is empty by then.
func (m *Machine) RemoveWinnerAndRespin() error {
	return m.do("remove_winner", func() error {
		return m.removeWinnerLocked(false)
	})
}

// RemoveAllMatchingAndRespin drops every entry named like the winner, then
// behaves like RemoveWinnerAndRespin.
func (m *Machine) RemoveAllMatchingAndRespin() error {
	return m.do("remove_all_matching", func() error {
		return m.removeWinnerLocked(true)
	})
}

func (m *Machine) removeWinnerLocked(allMatching bool) error {
	if m.state.IsSpinning {
		return ErrSpinning
	}
	idx := m.state.WinnerIndex
	if idx < 0 || idx >= len(m.state.Entries) || m.state.Winner == nil {
		return ErrNotResolved
	}

	name := m.state.Entries[idx].Name
	var remaining []types.WheelEntry
	for i, e := range m.state.Entries {
		if i == idx || (allMatching && e.Name == name) {
			continue
		}
		remaining = append(remaining, e)
	}
	m.clearWinner()
	m.setEntries(remaining)

	m.respinToken++
	token := m.respinToken
	after := m.after
	m.afterUnlock = append(m.afterUnlock, func() {
		after(RespinDelay, func() { m.respin(token) })
	})
	return nil
}

func (m *Machine) respin(token int) {
	_ = m.do("respin", func() error {
		// 待機中に別の操作が入っていたら何もしない
		if token != m.respinToken || m.state.IsSpinning || m.state.HasError {
			return nil
		}
		if len(m.state.Entries) > 0 {
			return m.startSpinLocked(TriggerRespin)
		}
		return m.resetLocked()
	})
}
