// Package statusapi exposes the engine's latest cycle snapshot over HTTP so
// operators can watch a running instance without attaching to its logs.
package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/internal/version"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// Server serves the latest CycleStatus as JSON. It never exposes mutating
// endpoints; control stays with the process operator.
type Server struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
	logger     *logger.Logger

	latest    types.CycleStatus
	hasStatus bool
}

// NewServer creates a status server. Call Start to bind it.
func NewServer(log *logger.Logger) *Server {
	return &Server{
		httpServer: nil,
		listener:   nil,
		logger:     log,
		latest:     types.CycleStatus{},
		hasStatus:  false,
	}
}

// Update publishes a new cycle snapshot.
func (s *Server) Update(status types.CycleStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = status
	s.hasStatus = true
}

// Start binds the server and serves in the background. Pass ":0" for an
// ephemeral port.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeEngineInitFailed, err, "failed to bind status API on %s", address)
	}

	s.listener = listener

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			s.logger.Error("Status API server error", zap.Error(err))
		}
	}()

	s.logger.Info("Status API listening", zap.String("address", s.Address()))

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// Address returns the bound address, empty before Start.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	latest, ok := s.latest, s.hasStatus
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no cycle completed yet"})

		return
	}

	_ = json.NewEncoder(w).Encode(latest)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": version.GetVersion(),
	})
}
