package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const writeWait = 5 * time.Second

// StatsSource exposes the live session statistics.
type StatsSource interface {
	Active() bool
	Snapshot() model.SessionStats
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Active             bool               `json:"active"`
	TimeInRangePercent float64            `json:"time_in_range_percent"`
	GoalPercent        float64            `json:"goal_achievement_percent"`
	Stats              model.SessionStats `json:"stats"`
}

// Server serves status events over websocket plus a JSON stats endpoint.
type Server struct {
	hub      *Hub
	stats    StatsSource
	logger   *slog.Logger
	upgrader websocket.Upgrader

	metrics    http.Handler
	middleware []mux.MiddlewareFunc
}

// NewServer builds the status server.
func NewServer(hub *Hub, stats StatsSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		hub:    hub,
		stats:  stats,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// WithMetrics serves h at /metrics and wraps every route in mw.
func (s *Server) WithMetrics(h http.Handler, mw ...mux.MiddlewareFunc) *Server {
	s.metrics = h
	s.middleware = append(s.middleware, mw...)
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.middleware...)
	router.HandleFunc("/events", s.handleEvents)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	return router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown failed", "err", err)
		}
	}()
	s.logger.Info("status server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			// Best-effort close.
			_ = cerr
		}
	}()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	// Reader goroutine notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(writeWait))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{}
	if s.stats != nil {
		resp.Active = s.stats.Active()
		resp.Stats = s.stats.Snapshot()
		resp.TimeInRangePercent = resp.Stats.TimeInRangePercent()
		resp.GoalPercent = resp.Stats.GoalAchievementPercent()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("stats encode failed", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
