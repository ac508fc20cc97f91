package livefeed

import (
	"testing"

	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestEmitterOnOff(t *testing.T) {
	e := NewEmitter()
	var got []string

	sub := e.On(types.EventChat, func(payload []byte) { got = append(got, string(payload)) })
	e.On(types.EventGift, func(payload []byte) { got = append(got, "gift:"+string(payload)) })

	e.Emit(types.EventChat, []byte("a"))
	e.Emit(types.EventGift, []byte("b"))
	e.Off(sub)
	e.Emit(types.EventChat, []byte("c"))

	assert.Equal(t, []string{"a", "gift:b"}, got)
}

func TestSubscribeAll(t *testing.T) {
	e := NewEmitter()
	seen := map[types.EventKind]int{}

	unsubscribe := SubscribeAll(e, func(kind types.EventKind, _ []byte) { seen[kind]++ })
	for _, kind := range types.EventKinds {
		e.Emit(kind, []byte(`{}`))
	}
	unsubscribe()
	e.Emit(types.EventLike, []byte(`{}`))

	for _, kind := range types.EventKinds {
		assert.Equal(t, 1, seen[kind], "kind %s", kind)
	}
}
