// Package server exposes the transform-invocation contract over HTTP.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/lixenwraith/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/firehose"
)

// DefaultMaxBodyBytes caps the accepted request body when no limit is
// configured.
const DefaultMaxBodyBytes = 16 << 20

// Server handles transform invocations over HTTP.
type Server struct {
	handler      *firehose.Handler
	logger       *log.Logger
	mux          *http.ServeMux
	tracer       trace.Tracer
	maxBodyBytes int64
	version      string
}

// NewServer creates a new invocation server around a batch handler.
func NewServer(h *firehose.Handler, logger *log.Logger, version string, maxBodyBytes int64) *Server {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		handler:      h,
		logger:       logger,
		mux:          http.NewServeMux(),
		tracer:       otel.Tracer("tabflow/server"),
		maxBodyBytes: maxBodyBytes,
		version:      version,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/transform", s.handleTransform)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/version", s.handleVersion)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleTransform accepts one invocation event and returns the assembled
// response: one status-tagged record per input record, in input order.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var event firehose.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		jsonError(w, "Invalid event document", http.StatusBadRequest)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "firehose.handle",
		trace.WithAttributes(attribute.Int("batch.records", len(event.Records))))
	defer span.End()

	resp, err := s.handler.Handle(ctx, event)
	if err != nil {
		span.RecordError(err)
		if s.logger != nil {
			s.logger.Error("msg", "Batch invocation failed",
				"component", "server",
				"code", string(errors.GetCode(err)),
				"error", err)
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	failed := 0
	for _, rec := range resp.Records {
		if rec.Result == firehose.ResultProcessingFailed {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", failed))

	jsonResponse(w, resp)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"})
}

// handleVersion reports the build version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"version": s.version})
}

func jsonResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
