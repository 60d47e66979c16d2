package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/voicepeer/internal/pkg/metrics"
	"github.com/autopeer-io/voicepeer/pkg/log"
	"github.com/autopeer-io/voicepeer/pkg/options"
)

// ErrNotRunning is returned by a Device that has no live agent.
var ErrNotRunning = errors.New("agent not running")

// Status is the snapshot served on /status.
type Status struct {
	DeviceID    string   `json:"device_id"`
	State       string   `json:"state"`
	Ready       bool     `json:"ready"`
	SessionOpen bool     `json:"session_open"`
	Network     bool     `json:"network"`
	Ticks       int64    `json:"ticks"`
	Things      []string `json:"things"`
}

// Device is what the status server observes and controls.
type Device interface {
	Status() (Status, error)
	ToggleChat() error
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	device  Device
}

func NewServer(opts *options.HttpOptions, device Device) *Server {
	s := &Server{options: opts, device: device}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	router.HandleFunc("/chat/toggle", s.toggleChat).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:    opts.Addr,
		Handler: router,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done. An empty address disables the server.
func (s *Server) Start(ctx context.Context) error {
	if s.server.Addr == "" {
		log.Info("Status server disabled")
		<-ctx.Done()
		return nil
	}

	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	st, err := s.device.Status()
	if err != nil || !st.Ready {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	st, err := s.device.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) toggleChat(w http.ResponseWriter, _ *http.Request) {
	if err := s.device.ToggleChat(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "scheduled"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to write response")
	}
}
