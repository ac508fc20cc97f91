package types

// Mode はホイールのエントリー獲得方法
type Mode string

const (
	ModeGifts Mode = "gifts"
	ModeLikes Mode = "likes"
	ModeChat  Mode = "chat"
	ModeJoins Mode = "joins"
)

// Valid reports whether m is one of the four entry modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeGifts, ModeLikes, ModeChat, ModeJoins:
		return true
	}
	return false
}

// WheelEntry はホイール上の1枠。同名のエントリーも別枠として扱う
type WheelEntry struct {
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	IsSubscriber bool   `json:"isSubscriber"`
}

// EventKind はライブフィードのイベント種別
type EventKind string

const (
	EventGift       EventKind = "gift"
	EventLike       EventKind = "like"
	EventChat       EventKind = "chat"
	EventMember     EventKind = "member"
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
)

// EventKinds lists every named feed channel.
var EventKinds = []EventKind{EventGift, EventLike, EventChat, EventMember, EventConnect, EventDisconnect}

// ModeFor returns the entry mode an event kind feeds, if any.
func ModeFor(kind EventKind) (Mode, bool) {
	switch kind {
	case EventGift:
		return ModeGifts, true
	case EventLike:
		return ModeLikes, true
	case EventChat:
		return ModeChat, true
	case EventMember:
		return ModeJoins, true
	}
	return "", false
}
