package wheel

import (
	"errors"

	"github.com/ichi0g0y/wheel-overlay/internal/lottery"
)

var (
	ErrSpinning       = errors.New("wheel is spinning")
	ErrNoEntries      = lottery.ErrEmptyPool
	ErrInvalidMode    = errors.New("invalid wheel mode")
	ErrNotResolved    = errors.New("no resolved winner")
	ErrNotSpinning    = errors.New("wheel is not spinning")
	ErrNotCollecting  = errors.New("wheel is not collecting")
	ErrNoCountdown    = errors.New("auto-spin duration must be positive")
	ErrInvalidWinner  = errors.New("winner index outside the spin snapshot")
	ErrFaulted        = errors.New("wheel is in an error state")
	ErrUnknownSetting = errors.New("not a wheel setting")
)

// rejection reports whether err is an ordinary refused transition rather than
// a fault.
func rejection(err error) bool {
	return errors.Is(err, ErrSpinning) ||
		errors.Is(err, ErrNoEntries) ||
		errors.Is(err, ErrNotResolved) ||
		errors.Is(err, ErrNotSpinning) ||
		errors.Is(err, ErrNotCollecting) ||
		errors.Is(err, ErrInvalidWinner) ||
		errors.Is(err, ErrFaulted)
}
