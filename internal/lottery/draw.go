package lottery

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"

	"github.com/ichi0g0y/wheel-overlay/internal/types"
)

var (
	ErrEmptyPool      = errors.New("no entries to spin")
	errInvalidMaximum = errors.New("invalid random maximum")
)

// Source はスピンで使う乱数源。本番はcrypto/rand、テストはシード付きPCGを使う。
type Source interface {
	// IntN returns a uniform int in [0, n).
	IntN(n int) int
	// Float64 returns a uniform float in [0, 1).
	Float64() float64
}

var secureRandomInt = secureRandomIntImpl

type secureSource struct{}

// NewSecureSource returns a Source backed by crypto/rand.
func NewSecureSource() Source {
	return secureSource{}
}

func (secureSource) IntN(n int) int {
	v, err := secureRandomInt(int64(n))
	if err != nil {
		// crypto/randが失敗する環境では非暗号乱数で続行する
		return rand.IntN(n)
	}
	return int(v)
}

func (secureSource) Float64() float64 {
	const precision = 1 << 53
	v, err := secureRandomInt(precision)
	if err != nil {
		return rand.Float64()
	}
	return float64(v) / precision
}

// NewSeededSource returns a deterministic Source for reproducible spins.
func NewSeededSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Shuffle はFisher-Yatesでエントリーをその場で並べ替える。
func Shuffle(entries []types.WheelEntry, src Source) {
	for i := len(entries) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		entries[i], entries[j] = entries[j], entries[i]
	}
}

// StartOffset returns a uniform rotation offset in [0, 360) degrees.
func StartOffset(src Source) float64 {
	return src.Float64() * 360
}

var testNames = []string{
	"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank", "Grace", "Heidi",
	"Ivan", "Judy", "Mallory", "Niaj", "Olivia", "Peggy", "Rupert", "Sybil",
}

// TestEntries builds n rehearsal entries with names drawn from a fixed list.
func TestEntries(n int, src Source) []types.WheelEntry {
	if n <= 0 {
		return []types.WheelEntry{}
	}
	entries := make([]types.WheelEntry, n)
	for i := range entries {
		name := testNames[src.IntN(len(testNames))]
		entries[i] = types.WheelEntry{
			Name:         fmt.Sprintf("%s %d", name, i+1),
			Avatar:       DefaultAvatar,
			IsSubscriber: src.IntN(4) == 0,
		}
	}
	return entries
}

// DefaultAvatar is used when a viewer has no profile picture.
const DefaultAvatar = "https://www.tiktok.com/favicon.ico"

func secureRandomIntImpl(max int64) (int64, error) {
	if max <= 0 {
		return 0, errInvalidMaximum
	}

	n, err := crand.Int(crand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
