package accumulator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAccumulator() (*Accumulator, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(nil, clock.Now), clock
}

func giftGate() Gate {
	return Gate{Mode: types.ModeGifts, Collecting: true, CoinsPerEntry: 100, LikesPerEntry: 100}
}

func comboGift(user, combo string, total int64) livefeed.Event {
	return livefeed.Event{
		Kind: types.EventGift, UserKey: user, DisplayName: user, Avatar: livefeed.DefaultAvatar,
		ComboID: combo, SessionKey: "gift:" + combo, Magnitude: total, RepeatCount: 1,
	}
}

func singleGift(user string, seq int, amount int64) livefeed.Event {
	return livefeed.Event{
		Kind: types.EventGift, UserKey: user, DisplayName: user, Avatar: livefeed.DefaultAvatar,
		SessionKey: fmt.Sprintf("gift-single:%s:%d", user, seq), Magnitude: amount, RepeatCount: 1,
	}
}

func TestGiftComboAccrual(t *testing.T) {
	acc, _ := newTestAccumulator()
	g := giftGate()

	first := acc.Process(comboGift("alice", "g1", 250), g)
	assert.Len(t, first, 2)
	r, ok := acc.remainder(types.EventGift, "alice")
	require.True(t, ok)
	assert.Equal(t, int64(50), r.Remainder)

	second := acc.Process(comboGift("alice", "g1", 320), g)
	assert.Len(t, second, 1)
	r, _ = acc.remainder(types.EventGift, "alice")
	assert.Equal(t, int64(20), r.Remainder)
}

func TestHugeContributionIsCapped(t *testing.T) {
	acc, _ := newTestAccumulator()
	g := giftGate()

	entries := acc.Process(singleGift("whale", 1, 9_000_000_000_000_000), g)
	assert.Len(t, entries, MaxEntriesPerEvent)

	entries = acc.Process(singleGift("whale", 2, math.MaxInt64), g)
	assert.Len(t, entries, MaxEntriesPerEvent)

	r, ok := acc.remainder(types.EventGift, "whale")
	require.True(t, ok)
	assert.GreaterOrEqual(t, r.Remainder, int64(0))
	assert.Less(t, r.Remainder, g.CoinsPerEntry)

	assert.Len(t, acc.Process(singleGift("minnow", 3, 250), g), 2)
}

func TestComboEndDeletesTrackedSession(t *testing.T) {
	acc, _ := newTestAccumulator()
	g := giftGate()

	ev := comboGift("bob", "g2", 100)
	acc.Process(ev, g)
	assert.Equal(t, 1, acc.SessionCount())

	ev.Magnitude = 150
	ev.ComboEnd = true
	acc.Process(ev, g)
	assert.Equal(t, 0, acc.SessionCount())
}

func TestOutOfOrderComboTotalNeverGoesNegative(t *testing.T) {
	acc, _ := newTestAccumulator()
	g := giftGate()

	acc.Process(comboGift("carol", "g3", 180), g)
	assert.Empty(t, acc.Process(comboGift("carol", "g3", 120), g))
	r, _ := acc.remainder(types.EventGift, "carol")
	assert.Equal(t, int64(80), r.Remainder)

	// 巻き戻らないので200到達で+20だけ加算される
	got := acc.Process(comboGift("carol", "g3", 200), g)
	assert.Len(t, got, 1)
	r, _ = acc.remainder(types.EventGift, "carol")
	assert.Equal(t, int64(0), r.Remainder)
}

func TestRemainderInvariant(t *testing.T) {
	acc, _ := newTestAccumulator()
	rng := rand.New(rand.NewPCG(11, 22))
	users := []string{"u1", "u2", "u3"}
	totals := map[string]int64{}

	for i := 0; i < 2000; i++ {
		g := giftGate()
		g.CoinsPerEntry = int64(1 + rng.IntN(150))
		user := users[rng.IntN(len(users))]

		var ev livefeed.Event
		if rng.IntN(2) == 0 {
			ev = singleGift(user, i, int64(rng.IntN(500)))
		} else {
			totals[user] += int64(rng.IntN(300))
			ev = comboGift(user, "combo-"+user, totals[user])
		}
		acc.Process(ev, g)

		r, ok := acc.remainder(types.EventGift, user)
		require.True(t, ok)
		require.GreaterOrEqual(t, r.Remainder, int64(0), "step %d", i)
		require.Less(t, r.Remainder, r.Divisor, "step %d", i)
		require.Equal(t, g.CoinsPerEntry, r.Divisor)
	}
}

func TestConservationAcrossChunking(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))

	for trial := 0; trial < 50; trial++ {
		amounts := make([]int64, 1+rng.IntN(40))
		var total int64
		for i := range amounts {
			amounts[i] = int64(rng.IntN(400))
			total += amounts[i]
		}
		want := total / 100

		// 個別イベントとして受け取る場合
		singles, _ := newTestAccumulator()
		granted := 0
		for i, amt := range amounts {
			granted += len(singles.Process(singleGift("viewer", i, amt), giftGate()))
		}
		require.Equal(t, want, int64(granted), "singles trial %d", trial)

		// 1つのコンボの累計値として受け取る場合
		combo, _ := newTestAccumulator()
		granted = 0
		var running int64
		for _, amt := range amounts {
			running += amt
			granted += len(combo.Process(comboGift("viewer", "c", running), giftGate()))
		}
		require.Equal(t, want, int64(granted), "combo trial %d", trial)

		// まとめて1イベント
		batch, _ := newTestAccumulator()
		granted = len(batch.Process(singleGift("viewer", 0, total), giftGate()))
		require.Equal(t, want, int64(granted), "batch trial %d", trial)
	}
}

func TestDivisorChangeKeepsRemainder(t *testing.T) {
	acc, _ := newTestAccumulator()
	g := giftGate()

	acc.Process(singleGift("dan", 1, 80), g)
	g.CoinsPerEntry = 25
	got := acc.Process(singleGift("dan", 2, 0), g)
	assert.Len(t, got, 3)
	r, _ := acc.remainder(types.EventGift, "dan")
	assert.Equal(t, Remainder{Remainder: 5, Divisor: 25}, r)
}

func TestDuplicateRawGiftGrantsOnce(t *testing.T) {
	acc, _ := newTestAccumulator()
	n := livefeed.NewNormalizer(nil)
	raw := []byte(`{"userId": "77", "uniqueId": "erin", "diamondCount": 100, "repeatCount": 2, "createTime": 1767323045}`)

	granted := 0
	for i := 0; i < 2; i++ {
		ev, err := n.Normalize(types.EventGift, raw)
		if err != nil {
			continue
		}
		granted += len(acc.Process(ev, giftGate()))
	}
	assert.Equal(t, 2, granted)
}

func TestLikeAccumulation(t *testing.T) {
	acc, _ := newTestAccumulator()
	g := Gate{Mode: types.ModeLikes, Collecting: true, LikesPerEntry: 100}

	like := func(count int64) livefeed.Event {
		return livefeed.Event{
			Kind: types.EventLike, UserKey: "fay", DisplayName: "fay",
			SessionKey: "like-fay", Magnitude: count, RepeatCount: 1,
		}
	}
	assert.Empty(t, acc.Process(like(60), g))
	assert.Len(t, acc.Process(like(60), g), 1, "synthesized like sessions add each event's count")
	r, _ := acc.remainder(types.EventLike, "fay")
	assert.Equal(t, int64(20), r.Remainder)
}

func TestModeIsolation(t *testing.T) {
	acc, _ := newTestAccumulator()
	like := livefeed.Event{Kind: types.EventLike, UserKey: "gus", SessionKey: "like-gus", Magnitude: 1000}

	assert.Empty(t, acc.Process(like, giftGate()))
	_, ok := acc.remainder(types.EventLike, "gus")
	assert.False(t, ok, "events for another mode must not touch remainders")
}

func TestGating(t *testing.T) {
	acc, _ := newTestAccumulator()
	ev := singleGift("hal", 1, 500)

	notCollecting := giftGate()
	notCollecting.Collecting = false
	assert.Empty(t, acc.Process(ev, notCollecting))

	spinning := giftGate()
	spinning.Spinning = true
	assert.Empty(t, acc.Process(ev, spinning))

	subsOnly := giftGate()
	subsOnly.SubscriberOnly = true
	assert.Empty(t, acc.Process(singleGift("hal", 2, 500), subsOnly))

	// 一度サブスク判定されたユーザーはフラグなしのイベントでも通る
	subEvent := singleGift("hal", 3, 500)
	subEvent.IsSubscriber = true
	assert.Len(t, acc.Process(subEvent, subsOnly), 5)
	assert.Len(t, acc.Process(singleGift("hal", 4, 500), subsOnly), 5)
}

func TestChatTriggerGating(t *testing.T) {
	tests := []struct {
		name    string
		word    string
		useWord bool
		comment string
		want    int
	}{
		{name: "trigger inside sentence", word: "!spin", useWord: true, comment: "please !spin me in", want: 1},
		{name: "no trigger", word: "!spin", useWord: true, comment: "spinning without trigger", want: 0},
		{name: "case insensitive", word: "!spin", useWord: true, comment: "!SPIN", want: 1},
		{name: "glued to word", word: "spin", useWord: true, comment: "spinning", want: 0},
		{name: "plain word", word: "spin", useWord: true, comment: "let it spin!", want: 1},
		{name: "regex characters are literal", word: "a.b", useWord: true, comment: "axb", want: 0},
		{name: "trigger disabled", word: "!spin", useWord: false, comment: "hello", want: 1},
		{name: "blank trigger", word: "  ", useWord: true, comment: "hello", want: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			acc, _ := newTestAccumulator()
			g := Gate{Mode: types.ModeChat, Collecting: true, TriggerWord: tc.word, UseTriggerWord: tc.useWord}
			ev := livefeed.Event{Kind: types.EventChat, UserKey: "ivy", DisplayName: "ivy", Comment: tc.comment}
			assert.Len(t, acc.Process(ev, g), tc.want)
		})
	}
}

func TestJoinGrantsOneEntry(t *testing.T) {
	acc, _ := newTestAccumulator()
	g := Gate{Mode: types.ModeJoins, Collecting: true}
	ev := livefeed.Event{Kind: types.EventMember, UserKey: "1", DisplayName: "jay", Avatar: "https://cdn.example.com/j.png"}

	got := acc.Process(ev, g)
	require.Len(t, got, 1)
	assert.Equal(t, types.WheelEntry{Name: "jay", Avatar: "https://cdn.example.com/j.png"}, got[0])
}

func TestProfileResolvedAtGrantTime(t *testing.T) {
	acc, _ := newTestAccumulator()
	g := giftGate()

	first := singleGift("kim", 1, 50)
	first.Avatar = "https://cdn.example.com/k.png"
	acc.Process(first, g)

	second := singleGift("kim", 2, 50)
	second.DisplayName = "Kim (renamed)"
	got := acc.Process(second, g)
	require.Len(t, got, 1)
	assert.Equal(t, "Kim (renamed)", got[0].Name)
	assert.Equal(t, "https://cdn.example.com/k.png", got[0].Avatar)
}

func TestSweepDropsStaleSessions(t *testing.T) {
	acc, clock := newTestAccumulator()
	g := giftGate()

	acc.Process(comboGift("lee", "old", 50), g)
	clock.Advance(20 * time.Second)
	acc.Process(comboGift("lee", "fresh", 50), g)
	clock.Advance(15 * time.Second)

	assert.Equal(t, 1, acc.Sweep(SessionTimeout))
	assert.Equal(t, 1, acc.SessionCount())
	r, ok := acc.remainder(types.EventGift, "lee")
	require.True(t, ok, "sweeping sessions keeps remainders")
	assert.Equal(t, int64(0), r.Remainder)
}

func TestReset(t *testing.T) {
	acc, _ := newTestAccumulator()
	acc.Process(comboGift("max", "g", 50), giftGate())

	acc.Reset()
	assert.Equal(t, 0, acc.SessionCount())
	_, ok := acc.remainder(types.EventGift, "max")
	assert.False(t, ok)
}
