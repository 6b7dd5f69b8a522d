// Package api exposes the HTTP control surface for the liveness gate:
// starting, stopping, and restarting scan sessions and observing their state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/liveness-gate/internal/app/scanning"
	"github.com/ahrav/liveness-gate/internal/domain/liveness"
	"github.com/ahrav/liveness-gate/pkg/common/logger"
)

// Orchestrator is the subset of the scan orchestrator the API drives.
type Orchestrator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Snapshot() liveness.SessionSnapshot
}

// Server handles scan control requests.
type Server struct {
	orchestrator Orchestrator
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewServer creates an API server around the given orchestrator.
func NewServer(orch Orchestrator, log *logger.Logger, tracer trace.Tracer) *Server {
	return &Server{
		orchestrator: orch,
		logger:       log.With("component", "api"),
		tracer:       tracer,
	}
}

// Routes registers the scan control endpoints on the given mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/scan/start", s.handleStart)
	mux.HandleFunc("POST /v1/scan/stop", s.handleStop)
	mux.HandleFunc("POST /v1/scan/restart", s.handleRestart)
	mux.HandleFunc("GET /v1/scan", s.handleStatus)
}

// statusResponse is the wire representation of a session snapshot.
type statusResponse struct {
	SessionID         string `json:"session_id"`
	Status            string `json:"status"`
	FailureReason     string `json:"failure_reason,omitempty"`
	ActiveStage       string `json:"active_stage,omitempty"`
	ActiveStageStatus string `json:"active_stage_status,omitempty"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	StagesRemaining   int    `json:"stages_remaining"`
	Transitioning     bool   `json:"transitioning"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.scan_start")
	defer span.End()

	if err := s.orchestrator.Start(ctx); err != nil {
		if errors.Is(err, scanning.ErrScanInProgress) {
			s.respond(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error(ctx, "failed to start scan", "error", err)
		s.respond(w, http.StatusInternalServerError, errorResponse{Error: "failed to start scan"})
		return
	}

	s.respond(w, http.StatusAccepted, s.snapshotResponse())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.scan_stop")
	defer span.End()

	if err := s.orchestrator.Stop(ctx); err != nil {
		s.logger.Error(ctx, "failed to stop scan", "error", err)
		s.respond(w, http.StatusInternalServerError, errorResponse{Error: "failed to stop scan"})
		return
	}

	s.respond(w, http.StatusOK, s.snapshotResponse())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.scan_restart")
	defer span.End()

	if err := s.orchestrator.Restart(ctx); err != nil {
		s.logger.Error(ctx, "failed to restart scan", "error", err)
		s.respond(w, http.StatusInternalServerError, errorResponse{Error: "failed to restart scan"})
		return
	}

	s.respond(w, http.StatusAccepted, s.snapshotResponse())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.snapshotResponse())
}

func (s *Server) snapshotResponse() statusResponse {
	snap := s.orchestrator.Snapshot()

	resp := statusResponse{
		Status:            snap.Status.String(),
		AttemptsRemaining: snap.AttemptsRemaining,
		StagesRemaining:   snap.StagesRemaining,
		Transitioning:     snap.Transitioning,
	}
	if snap.SessionID != uuid.Nil {
		resp.SessionID = snap.SessionID.String()
	}
	if snap.FailureReason != nil {
		resp.FailureReason = snap.FailureReason.String()
	}
	if snap.ActiveStageID != "" {
		resp.ActiveStage = snap.ActiveStageID.String()
		resp.ActiveStageStatus = snap.ActiveStageStatus.String()
	}
	if !snap.LastUpdate.IsZero() {
		resp.UpdatedAt = snap.LastUpdate.Format(time.RFC3339Nano)
	}
	return resp
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(context.Background(), "failed to encode response", "error", err)
	}
}
