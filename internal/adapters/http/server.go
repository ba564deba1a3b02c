// Package http serves presentation surfaces over websocket and SSE, plus a
// small JSON API, health probes and metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aretw0/plotbridge"
	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/pkg/broadcast"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/plots"
	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RoleMain marks the websocket surface that receives posted commands.
const RoleMain = "main"

const writeWait = 5 * time.Second

// Bridge is the part of plotbridge.Bridge the surface server drives.
type Bridge interface {
	Register(surface ports.Surface, primary bool) *broadcast.Handle
	HandleAction(ctx context.Context, a domain.Action) error
	View() plots.View
	Status() plotbridge.Status
}

// PlotsResponse is the body of GET /plots.
type PlotsResponse struct {
	Plots        domain.PlotList `json:"plots"`
	CurrentIndex int             `json:"currentIndex"`
}

// Server routes surface traffic to a Bridge.
type Server struct {
	bridge   Bridge
	logger   *slog.Logger
	health   healthcheck.Handler
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	buffer   int
	seq      atomic.Uint64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer exposes a registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithSurfaceBuffer sets the per-surface queue length.
func WithSurfaceBuffer(n int) Option {
	return func(s *Server) {
		s.buffer = n
	}
}

// NewServer builds a Server. Readiness reports whether the backend is connected.
func NewServer(bridge Bridge, opts ...Option) *Server {
	s := &Server{
		bridge: bridge,
		logger: logging.NewNop(),
		health: healthcheck.NewHandler(),
		buffer: broadcast.DefaultBuffer,
		upgrader: websocket.Upgrader{
			// Surfaces are served from webview origins that never match the host.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.health.AddReadinessCheck("backend", func() error {
		if st := bridge.Status().State; !st.Connected() {
			return fmt.Errorf("backend %s", st.StatusLabel())
		}
		return nil
	})
	return s
}

// Health exposes the healthcheck handler so callers can add checks.
func (s *Server) Health() healthcheck.Handler {
	return s.health
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.index)
	r.Get("/ws", s.serveWebSocket)
	r.Get("/events", s.serveEvents)
	r.Get("/plots", s.listPlots)
	r.Post("/actions", s.postAction)
	r.Get("/info", s.info)
	r.Get("/health", s.healthz)
	r.Get("/live", s.health.LiveEndpoint)
	r.Get("/ready", s.health.ReadyEndpoint)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

// ListenAndServe serves Handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("surface server listening", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) nextID(kind string) string {
	return fmt.Sprintf("%s-%d", kind, s.seq.Add(1))
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	primary := r.URL.Query().Get("role") == RoleMain
	surface := broadcast.NewChannelSurface(s.nextID("ws"), s.buffer)
	handle := s.bridge.Register(surface, primary)
	s.logger.Info("websocket surface attached", "surface", surface.ID(), "primary", primary)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range surface.Messages() {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("websocket write failed", "surface", surface.ID(), "err", err)
				handle.Dispose()
				_ = conn.Close()
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var a domain.Action
		if err := json.Unmarshal(data, &a); err != nil {
			s.logger.Debug("malformed surface action", "surface", surface.ID(), "err", err)
			continue
		}
		if err := s.bridge.HandleAction(ctx, a); err != nil {
			s.logger.Debug("surface action failed", "surface", surface.ID(), "command", a.Command, "err", err)
		}
	}

	handle.Dispose()
	surface.Close()
	<-done
	s.logger.Info("websocket surface detached", "surface", surface.ID())
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	surface := broadcast.NewChannelSurface(s.nextID("sse"), s.buffer)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	handle := s.bridge.Register(surface, false)
	defer func() {
		handle.Dispose()
		surface.Close()
	}()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE surface disconnected", "surface", surface.ID())
			return
		case msg, ok := <-surface.Messages():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Command, data)
			flusher.Flush()
		}
	}
}

func (s *Server) listPlots(w http.ResponseWriter, r *http.Request) {
	view := s.bridge.View()
	list := view.Plots
	if list == nil {
		list = domain.PlotList{}
	}
	writeJSON(w, http.StatusOK, PlotsResponse{Plots: list, CurrentIndex: view.Current})
}

func (s *Server) postAction(w http.ResponseWriter, r *http.Request) {
	var a domain.Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.bridge.HandleAction(r.Context(), a); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "command": a.Command})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownPlot):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app":     "plotbridge",
		"version": strings.TrimSpace(plotbridge.Version),
		"status":  s.bridge.Status(),
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
