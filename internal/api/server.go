// Package api exposes editor sessions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Triglit/flowgraph/internal/logging"
	"github.com/Triglit/flowgraph/internal/session"
	"github.com/Triglit/flowgraph/internal/storage/sqlstore"
	"github.com/Triglit/flowgraph/internal/version"
)

const shutdownTimeout = 10 * time.Second

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// EventLog is the persisted event history served by /events?source=log.
type EventLog interface {
	QueryEvents(ctx context.Context, workflowID string, limit int) ([]sqlstore.EventRow, error)
}

// Server routes HTTP requests to workflow sessions.
type Server struct {
	sessions *session.Registry
	service  string
	eventLog EventLog
	router   *mux.Router
	log      *logrus.Entry
}

// Option configures a Server.
type Option func(*Server)

// WithEventLog enables reading persisted events.
func WithEventLog(l EventLog) Option {
	return func(s *Server) { s.eventLog = l }
}

// WithLogger sets the logger entry.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Server) { s.log = l }
}

// NewServer builds the router for the given session registry.
func NewServer(sessions *session.Registry, service string, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		service:  service,
		router:   mux.NewRouter(),
		log:      logging.Component("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", readyHandler).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.metricsHandler).Methods(http.MethodGet)
	r.HandleFunc("/events", RequireAnyRole(s.eventsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", RequireAnyRole(s.wsEventsHandler))
	r.HandleFunc("/validate", RequireAnyRole(s.validateHandler)).Methods(http.MethodPost)

	w := r.PathPrefix("/workflows/{workflowID}").Subrouter()
	w.HandleFunc("", RequireAdmin(s.discardHandler)).Methods(http.MethodDelete)
	w.HandleFunc("/load", RequireAnyRole(s.loadHandler)).Methods(http.MethodPost)
	w.HandleFunc("/graph", RequireAnyRole(s.graphHandler)).Methods(http.MethodGet)
	w.HandleFunc("/nodes", RequireAnyRole(s.addNodeHandler)).Methods(http.MethodPost)
	w.HandleFunc("/nodes/{nodeID}", RequireAnyRole(s.removeNodeHandler)).Methods(http.MethodDelete)
	w.HandleFunc("/nodes/{nodeID}/config", RequireAnyRole(s.updateConfigHandler)).Methods(http.MethodPatch)
	w.HandleFunc("/nodes/{nodeID}/handles", RequireAnyRole(s.handlesHandler)).Methods(http.MethodGet)
	w.HandleFunc("/nodes/{nodeID}/fields", RequireAnyRole(s.fieldsHandler)).Methods(http.MethodGet)
	w.HandleFunc("/edges", RequireAnyRole(s.connectHandler)).Methods(http.MethodPost)
	w.HandleFunc("/edges/{edgeID}", RequireAnyRole(s.disconnectHandler)).Methods(http.MethodDelete)
	w.HandleFunc("/save", RequireAnyRole(s.saveHandler)).Methods(http.MethodPost)
	w.HandleFunc("/publish", RequireAdmin(s.publishHandler)).Methods(http.MethodPost)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.service,
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully. TLS is used when FLOWGRAPH_TLS_CERT and FLOWGRAPH_TLS_KEY are set.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errc := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{"addr": srv.Addr, "tls": tlsCfg != nil}).Info("API listening")
		if tlsCfg != nil {
			errc <- srv.ListenAndServeTLS("", "")
			return
		}
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}
