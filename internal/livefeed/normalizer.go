package livefeed

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/tidwall/gjson"
)

var (
	ErrMalformed   = errors.New("malformed live event")
	ErrDuplicate   = errors.New("duplicate live event")
	ErrUnsupported = errors.New("unsupported event kind")
)

// Event is the canonical shape handed to the accumulator.
type Event struct {
	Kind         types.EventKind
	UserKey      string
	DisplayName  string
	Avatar       string
	IsSubscriber bool

	// ComboID is the platform group id. Empty when the platform sent none.
	ComboID string
	// SessionKey is ComboID-derived, or synthesized when ComboID is empty.
	SessionKey string
	// Magnitude is diamonds x repeat for gifts and the running (or per-event)
	// like count for likes.
	Magnitude   int64
	RepeatCount int64
	ComboEnd    bool

	GiftID  string
	Comment string

	Timestamp time.Time
	Signature string
}

// Synthesized reports whether the session key was made up locally.
func (e Event) Synthesized() bool {
	return e.ComboID == ""
}

// Entry builds the wheel entry for the event's viewer.
func (e Event) Entry() types.WheelEntry {
	return types.WheelEntry{Name: e.DisplayName, Avatar: e.Avatar, IsSubscriber: e.IsSubscriber}
}

// Normalizer turns raw platform payloads into Events and drops repeats.
type Normalizer struct {
	dedup *Deduper
	now   func() time.Time
}

func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{dedup: NewDeduper(), now: now}
}

// ClearDedup empties the duplicate window. Called on a fixed interval.
func (n *Normalizer) ClearDedup() int {
	return n.dedup.Clear()
}

// Normalize parses raw. Malformed payloads return ErrMalformed; repeats seen
// since the last ClearDedup return the parsed event together with ErrDuplicate.
func (n *Normalizer) Normalize(kind types.EventKind, raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return Event{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}

	ev := Event{
		Kind:         kind,
		UserKey:      UserKey(raw),
		DisplayName:  DisplayName(raw),
		Avatar:       Avatar(raw),
		IsSubscriber: IsSubscriber(raw),
		Timestamp:    n.timestamp(raw),
	}
	if ev.UserKey == "" {
		return Event{}, fmt.Errorf("%w: missing user identity", ErrMalformed)
	}
	second := ev.Timestamp.Unix()

	switch kind {
	case types.EventGift:
		r := gjson.GetManyBytes(raw,
			"diamondCount", "gift.diamond_count", "giftValue",
			"repeatCount", "gift.repeat_count",
			"repeatEnd", "gift.repeat_end",
			"groupId", "giftId", "gift.gift_id", "gift.id")
		diamonds := firstPositive(1, r[0], r[1], r[2])
		ev.RepeatCount = firstPositive(1, r[3], r[4])
		ev.Magnitude = saturatingMul(diamonds, ev.RepeatCount)
		ev.ComboEnd = r[5].Bool() || r[6].Int() == 1
		ev.ComboID = str(r[7])
		ev.GiftID = firstNonEmpty("", str(r[8]), str(r[9]), str(r[10]))
		if ev.Synthesized() {
			ev.SessionKey = fmt.Sprintf("gift-single:%s:%s:%d", ev.UserKey, ev.GiftID, ev.Timestamp.UnixMilli())
		} else {
			ev.SessionKey = "gift:" + ev.ComboID
		}
		ev.Signature = fmt.Sprintf("gift|%s|%s|%d|%d|%d", ev.UserKey, ev.GiftID, ev.Magnitude, ev.RepeatCount, second)

	case types.EventLike:
		r := gjson.GetManyBytes(raw, "likeCount", "totalLikeCount", "groupId", "repeatEnd")
		likeCount := firstPositive(1, r[0])
		ev.ComboID = str(r[2])
		ev.ComboEnd = r[3].Bool()
		ev.RepeatCount = 1
		if ev.Synthesized() {
			ev.Magnitude = likeCount
			ev.SessionKey = "like-" + ev.UserKey
		} else {
			ev.Magnitude = firstPositive(likeCount, r[1])
			ev.SessionKey = "like:" + ev.ComboID
		}
		ev.Signature = fmt.Sprintf("like|%s|%d|%d|%d", ev.UserKey, likeCount, ev.Magnitude, second)

	case types.EventChat:
		r := gjson.GetManyBytes(raw, "comment", "message", "text")
		ev.Comment = firstNonEmpty("", str(r[0]), str(r[1]), str(r[2]))
		ev.Signature = fmt.Sprintf("chat|%s|%s|%d", ev.UserKey, ev.Comment, second)

	case types.EventMember:
		ev.Signature = fmt.Sprintf("member|%s|%d", ev.UserKey, second)

	default:
		return Event{}, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}

	if n.dedup.Seen(ev.Signature) {
		return ev, ErrDuplicate
	}
	return ev, nil
}

// timestamp reads createTime/timestamp (seconds or milliseconds) and falls
// back to the receive time.
func (n *Normalizer) timestamp(raw []byte) time.Time {
	r := gjson.GetManyBytes(raw, "createTime", "timestamp", "common.createTime")
	for _, v := range r {
		ts := toInt(v)
		if ts <= 0 {
			continue
		}
		if ts < 1e12 {
			return time.Unix(ts, 0)
		}
		return time.UnixMilli(ts)
	}
	return n.now()
}

func toInt(r gjson.Result) int64 {
	switch r.Type {
	case gjson.Number:
		return r.Int()
	case gjson.String:
		v, err := strconv.ParseInt(r.Str, 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}

// saturatingMul multiplies two positive values, pinning the result at
// math.MaxInt64 instead of wrapping.
func saturatingMul(a, b int64) int64 {
	if a > 0 && b > math.MaxInt64/a {
		return math.MaxInt64
	}
	return a * b
}

func firstPositive(fallback int64, values ...gjson.Result) int64 {
	for _, v := range values {
		if n := toInt(v); n > 0 {
			return n
		}
	}
	return fallback
}
