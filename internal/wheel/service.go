package wheel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ichi0g0y/wheel-overlay/internal/accumulator"
	"github.com/ichi0g0y/wheel-overlay/internal/livefeed"
	"github.com/ichi0g0y/wheel-overlay/internal/metrics"
	"github.com/ichi0g0y/wheel-overlay/internal/spin"
	"github.com/ichi0g0y/wheel-overlay/internal/status"
	"github.com/ichi0g0y/wheel-overlay/internal/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	countdownInterval = 500 * time.Millisecond
	sweepSpec         = "@every 30s"
	dedupClearSpec    = "@every 60s"
)

// Service connects a live feed and the clocks to a Machine.
type Service struct {
	machine    *Machine
	feed       *status.Feed
	normalizer *livefeed.Normalizer
	log        *zap.Logger
	now        func() time.Time

	cron        *cron.Cron
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewService wires m to feed. A nil feed gets a private one.
func NewService(m *Machine, feed *status.Feed, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if feed == nil {
		feed = status.NewFeed("")
	}
	feed.OnChange(m.SetConnected)
	return &Service{
		machine:    m,
		feed:       feed,
		normalizer: livefeed.NewNormalizer(m.now),
		log:        log,
		now:        m.now,
		cron:       cron.New(),
	}
}

func (s *Service) Machine() *Machine {
	return s.machine
}

func (s *Service) Feed() *status.Feed {
	return s.feed
}

// Start subscribes to src (if any) and starts the frame, countdown and sweep loops.
func (s *Service) Start(ctx context.Context, src livefeed.Source) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if src != nil {
		s.unsubscribe = livefeed.SubscribeAll(src, s.HandleRaw)
	}

	if _, err := s.cron.AddFunc(sweepSpec, func() {
		if n := s.machine.SweepSessions(accumulator.SessionTimeout); n > 0 {
			s.log.Debug("Swept combo sessions", zap.Int("removed", n))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(dedupClearSpec, func() {
		s.normalizer.ClearDedup()
	}); err != nil {
		return fmt.Errorf("failed to schedule dedup reset: %w", err)
	}
	s.cron.Start()

	s.wg.Add(2)
	go s.frameLoop(ctx)
	go s.countdownLoop(ctx)

	s.log.Info("Wheel service started")
	return nil
}

// Stop unsubscribes from the feed and waits for the loops to exit.
func (s *Service) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("Wheel service stopped")
}

// HandleRaw processes one raw payload from the live feed.
// A panic while handling it puts the wheel into the error state instead of
// unwinding into the source's read loop.
func (s *Service) HandleRaw(kind types.EventKind, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Live event handler panicked", zap.String("kind", string(kind)), zap.Any("panic", r))
			s.machine.ReportError("ingest", fmt.Sprint(r))
		}
	}()

	metrics.EventsReceived.WithLabelValues(string(kind)).Inc()

	switch kind {
	case types.EventConnect:
		s.feed.SetConnected(true)
		return
	case types.EventDisconnect:
		s.feed.SetConnected(false)
		return
	}

	ev, err := s.normalizer.Normalize(kind, payload)
	switch {
	case errors.Is(err, livefeed.ErrDuplicate):
		metrics.EventsDropped.WithLabelValues("duplicate").Inc()
		s.log.Debug("Duplicate live event dropped", zap.String("kind", string(kind)), zap.String("signature", ev.Signature))
		return
	case errors.Is(err, livefeed.ErrMalformed):
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		s.log.Debug("Malformed live event dropped", zap.String("kind", string(kind)), zap.Error(err))
		return
	case err != nil:
		metrics.EventsDropped.WithLabelValues("unsupported").Inc()
		s.log.Debug("Live event dropped", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	s.machine.Ingest(ev)
}

// frameLoop drives each spin at the physics tick rate. It sleeps between spins.
func (s *Service) frameLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.machine.SpinStarted():
			s.runSpin(ctx)
		}
	}
}

func (s *Service) runSpin(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Spin loop panicked", zap.Any("panic", r))
			s.machine.ReportError("spin_loop", fmt.Sprint(r))
		}
	}()

	ticker := time.NewTicker(spin.FrameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.machine.Advance(s.now()) {
				return
			}
		}
	}
}

func (s *Service) countdownLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(countdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickCountdown()
		}
	}
}

func (s *Service) tickCountdown() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Countdown panicked", zap.Any("panic", r))
			s.machine.ReportError("countdown", fmt.Sprint(r))
		}
	}()
	s.machine.TickCountdown(s.now())
}
