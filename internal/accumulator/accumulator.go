// Package accumulator converts normalized live events into wheel entries.
//
// Gifts and likes accumulate per viewer: every CoinsPerEntry (or
// LikesPerEntry) contributed becomes one entry and the rest carries forward.
// Combo events report running totals, so each combo session remembers the
// last total it saw and only the growth counts.
package accumulator

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/lottery"
	"github.com/ichi0g0y/wheel-overlay/internal/metrics"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"go.uber.org/zap"
)

const (
	// SessionTimeout is how long a combo session may stay idle before Sweep drops it.
	SessionTimeout = 30 * time.Second

	// MaxEntriesPerEvent bounds what a single event can add to the pool.
	// Anything earned above it is logged and counted, not granted.
	MaxEntriesPerEvent = 1000

	profileCacheSize = 5000
	profileCacheTTL  = 30 * time.Minute
)

// Gate is the slice of wheel state and settings that decides whether an
// event may grant entries.
type Gate struct {
	Mode           types.Mode
	Collecting     bool
	Spinning       bool
	CoinsPerEntry  int64
	LikesPerEntry  int64
	SubscriberOnly bool
	TriggerWord    string
	UseTriggerWord bool
}

// ComboSession tracks the running total of one gift or like combo.
type ComboSession struct {
	Key               string
	LastObservedTotal int64
	LastSeenAt        time.Time
	// Tracked is true when the platform supplied the combo id.
	Tracked bool
}

// Remainder is a viewer's unconverted progress toward the next entry.
type Remainder struct {
	Remainder int64
	Divisor   int64
}

type ledger struct {
	sessions   map[string]*ComboSession
	remainders map[string]*Remainder
}

func newLedger() ledger {
	return ledger{
		sessions:   make(map[string]*ComboSession),
		remainders: make(map[string]*Remainder),
	}
}

type Accumulator struct {
	mu    sync.Mutex
	log   *zap.Logger
	now   func() time.Time
	gifts ledger
	likes ledger

	// 付与時点の表示名・アバター・サブスク状態を解決するためのキャッシュ
	profiles *expirable.LRU[string, types.WheelEntry]

	triggerWord  string
	triggerRegex *regexp.Regexp
}

func New(log *zap.Logger, now func() time.Time) *Accumulator {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Accumulator{
		log:      log,
		now:      now,
		gifts:    newLedger(),
		likes:    newLedger(),
		profiles: expirable.NewLRU[string, types.WheelEntry](profileCacheSize, nil, profileCacheTTL),
	}
}

// Process returns the entries ev earns under g. It never returns entries
// while the wheel is spinning, not collecting, or in a different mode.
func (a *Accumulator) Process(ev livefeed.Event, g Gate) []types.WheelEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	profile := a.rememberProfile(ev)

	if !g.Collecting || g.Spinning {
		return nil
	}
	if mode, ok := types.ModeFor(ev.Kind); !ok || mode != g.Mode {
		return nil
	}
	if g.SubscriberOnly && !profile.IsSubscriber {
		return nil
	}

	var grants int64
	switch ev.Kind {
	case types.EventGift:
		grants = a.contribute(&a.gifts, ev, g.CoinsPerEntry)
	case types.EventLike:
		grants = a.contribute(&a.likes, ev, g.LikesPerEntry)
	case types.EventChat:
		if a.chatQualifies(ev.Comment, g) {
			grants = 1
		}
	case types.EventMember:
		grants = 1
	}
	if grants <= 0 {
		return nil
	}
	if grants > MaxEntriesPerEvent {
		a.log.Warn("Entry grant capped",
			zap.String("kind", string(ev.Kind)),
			zap.String("user", ev.UserKey),
			zap.Int64("earned", grants),
			zap.Int64("granted", MaxEntriesPerEvent))
		metrics.EntriesCapped.WithLabelValues(string(g.Mode)).Add(float64(grants - MaxEntriesPerEvent))
		grants = MaxEntriesPerEvent
	}

	entries := make([]types.WheelEntry, grants)
	for i := range entries {
		entries[i] = profile
	}
	a.log.Debug("Entries granted",
		zap.String("kind", string(ev.Kind)),
		zap.String("user", ev.UserKey),
		zap.Int64("entries", grants))
	return entries
}

// contribute applies one gift/like event to its combo session and the
// viewer's remainder, returning the number of whole entries earned.
func (a *Accumulator) contribute(l *ledger, ev livefeed.Event, divisor int64) int64 {
	if divisor <= 0 {
		divisor = 1
	}

	s, exists := l.sessions[ev.SessionKey]
	var delta int64
	switch {
	case !exists:
		delta = ev.Magnitude
		s = &ComboSession{Key: ev.SessionKey, Tracked: !ev.Synthesized()}
		l.sessions[ev.SessionKey] = s
	case s.Tracked && !ev.Synthesized():
		delta = lottery.ComboDelta(s.LastObservedTotal, ev.Magnitude)
	default:
		delta = ev.Magnitude
	}

	// 順序が入れ替わった古い合計値で巻き戻さない
	if !s.Tracked || ev.Magnitude > s.LastObservedTotal {
		s.LastObservedTotal = ev.Magnitude
	}
	s.LastSeenAt = a.now()

	r, ok := l.remainders[ev.UserKey]
	if !ok {
		r = &Remainder{}
		l.remainders[ev.UserKey] = r
	}
	r.Divisor = divisor
	var grants int64
	grants, r.Remainder = lottery.ConvertContribution(r.Remainder, delta, divisor)

	if ev.ComboEnd && s.Tracked {
		delete(l.sessions, ev.SessionKey)
	}
	return grants
}

func (a *Accumulator) chatQualifies(comment string, g Gate) bool {
	word := strings.TrimSpace(g.TriggerWord)
	if !g.UseTriggerWord || word == "" {
		return true
	}
	if a.triggerRegex == nil || a.triggerWord != word {
		a.triggerWord = word
		a.triggerRegex = triggerPattern(word)
	}
	return a.triggerRegex.MatchString(comment)
}

// triggerPattern matches word case-insensitively when it is not glued to
// letters, digits or underscores on either side. Unlike \b this also works
// for words starting or ending with punctuation such as "!spin".
func triggerPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(word) + `(?:$|[^\p{L}\p{N}_])`)
}

// rememberProfile merges ev into the profile cache and returns the profile
// to stamp on entries granted now.
func (a *Accumulator) rememberProfile(ev livefeed.Event) types.WheelEntry {
	profile := ev.Entry()
	if cached, ok := a.profiles.Get(ev.UserKey); ok {
		if profile.Avatar == "" || profile.Avatar == livefeed.DefaultAvatar {
			profile.Avatar = cached.Avatar
		}
		profile.IsSubscriber = profile.IsSubscriber || cached.IsSubscriber
	}
	if profile.Avatar == "" {
		profile.Avatar = livefeed.DefaultAvatar
	}
	a.profiles.Add(ev.UserKey, profile)
	return profile
}

// Sweep drops combo sessions idle for longer than maxIdle. Entries already
// granted and per-viewer remainders are untouched.
func (a *Accumulator) Sweep(maxIdle time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-maxIdle)
	removed := 0
	for _, l := range []*ledger{&a.gifts, &a.likes} {
		for key, s := range l.sessions {
			if s.LastSeenAt.Before(cutoff) {
				delete(l.sessions, key)
				removed++
			}
		}
	}
	if removed > 0 {
		a.log.Debug("Swept stale combo sessions", zap.Int("removed", removed))
	}
	return removed
}

// Reset forgets every session and remainder.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gifts = newLedger()
	a.likes = newLedger()
}

// SessionCount returns the number of live combo sessions.
func (a *Accumulator) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.gifts.sessions) + len(a.likes.sessions)
}

func (a *Accumulator) remainder(kind types.EventKind, userKey string) (Remainder, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	l := &a.gifts
	if kind == types.EventLike {
		l = &a.likes
	}
	r, ok := l.remainders[userKey]
	if !ok {
		return Remainder{}, false
	}
	return *r, true
}
