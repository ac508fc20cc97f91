package livefeed

import "sync"

// Deduper remembers event signatures until the next Clear. The window is
// cleared wholesale on a timer rather than expiring per signature.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Seen records sig and reports whether it was already present.
func (d *Deduper) Seen(sig string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[sig]; ok {
		return true
	}
	d.seen[sig] = struct{}{}
	return false
}

// Clear drops every remembered signature and returns how many were dropped.
func (d *Deduper) Clear() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.seen)
	d.seen = make(map[string]struct{})
	return n
}
