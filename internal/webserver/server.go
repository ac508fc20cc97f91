package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/ichi0g0y/wheel-overlay/internal/settings"
	"github.com/ichi0g0y/wheel-overlay/internal/wheel"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the wheel to the control panel and the overlay.
type Server struct {
	service  *wheel.Service
	settings *settings.Store
	hub      *Hub
	log      *zap.Logger

	httpServer  *http.Server
	cancelHub   context.CancelFunc
	unsubscribe func()
}

func NewServer(service *wheel.Service, sm *settings.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		service:  service,
		settings: sm,
		hub:      NewHub(log.Named("ws")),
		log:      log,
	}
	s.hub.SetGreeting(s.greeting)
	return s
}

// Hub returns the overlay websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Get("/ws", s.hub.ServeWS)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/version", handleVersion)

	r.Route("/api/wheel", func(r chi.Router) {
		r.Get("/state", s.handleWheelState)
		r.Get("/layout", s.handleWheelLayout)

		r.Post("/mode", s.handleSetMode)
		r.Post("/collect/start", s.action(s.machine().StartCollecting))
		r.Post("/collect/stop", s.action(s.machine().StopCollecting))
		r.Post("/spin", s.action(func() error { return s.machine().StartSpin(wheel.TriggerManual) }))
		r.Post("/reset", s.action(s.machine().Reset))
		r.Post("/autospin/start", s.action(s.machine().StartAutoSpin))
		r.Post("/autospin/stop", s.action(s.machine().StopAutoSpin))
		r.Post("/winner/remove", s.action(s.machine().RemoveWinnerAndRespin))
		r.Post("/winner/remove-all", s.action(s.machine().RemoveAllMatchingAndRespin))
		r.Post("/error", s.handleReportError)
		r.Post("/error/reset", s.action(s.machine().ResetError))
		r.Post("/performance", s.handleReportPerformance)

		r.Post("/entries/test", s.handleAddTestEntries)
		r.Put("/entries", s.handleSetEntries)

		r.Get("/history", handleGetHistory)
		r.Delete("/history/{id}", handleDeleteHistory)
	})

	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/", s.handleGetSettings)
		r.Put("/", s.handlePutSettings)
		r.Get("/status", s.handleFeatureStatus)
	})

	r.Route("/api/feed", func(r chi.Router) {
		r.Post("/event", s.handleInjectEvent)
		r.Get("/status", s.handleFeedStatus)
	})

	return r
}

func (s *Server) machine() *wheel.Machine {
	return s.service.Machine()
}

// greeting sends the current wheel state to a freshly connected overlay.
func (s *Server) greeting() []Message {
	data, err := marshalRaw(s.machine().Snapshot())
	if err != nil {
		s.log.Error("Failed to marshal wheel state", zap.Error(err))
		return nil
	}
	return []Message{{Type: string(wheel.NotifyStateChanged), Data: data}}
}

// Start starts the hub and listens on port.
func (s *Server) Start(port int) error {
	hubCtx, cancel := context.WithCancel(context.Background())
	s.cancelHub = cancel
	go s.hub.Run(hubCtx)

	s.unsubscribe = s.machine().Subscribe(func(n wheel.Notification) {
		s.hub.Broadcast(string(n.Type), n.Data)
	})

	addr := fmt.Sprintf(":%d", port)
	s.log.Info("Starting web server", zap.String("address", addr))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 起動直後のバインドエラーだけ待って拾う
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			s.log.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on port %d: %w", port, err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	s.log.Info("Web server started",
		zap.String("control", fmt.Sprintf("http://localhost:%d/api/wheel/state", port)),
		zap.String("overlay_ws", fmt.Sprintf("ws://localhost:%d/ws", port)))
	return nil
}

// Shutdown gracefully shuts down the web server
func (s *Server) Shutdown() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("Failed to shutdown web server gracefully", zap.Error(err))
		} else {
			s.log.Info("Web server shutdown complete")
		}
	}
	if s.cancelHub != nil {
		s.cancelHub()
	}
}
