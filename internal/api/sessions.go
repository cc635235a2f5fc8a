package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/parley-sh/parley/internal/convergence"
	"github.com/parley-sh/parley/internal/events"
)

// statusClientClosedRequest mirrors nginx's non-standard code for requests
// the client abandoned.
const statusClientClosedRequest = 499

// ConvergeRequest is the payload for POST /api/v1/converge.
type ConvergeRequest struct {
	TaskID string             `json:"task_id"`
	OrgID  string             `json:"org_id"`
	Query  string             `json:"query"`
	Config convergence.Config `json:"config"`
}

// ConvergeResponse wraps the finished session. Persisted is false when the
// session ran but could not be stored; the result is still returned.
type ConvergeResponse struct {
	TaskID    string               `json:"task_id"`
	Persisted bool                 `json:"persisted"`
	Session   *convergence.Session `json:"session"`
}

func (s *Server) converge(w http.ResponseWriter, r *http.Request) {
	var req ConvergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.TaskID == "" {
		req.TaskID = uuid.New().String()
	}
	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid org_id")
		return
	}

	session, err := s.runner.Run(r.Context(), req.Query, req.Config)
	if err != nil {
		s.writeRunError(w, req.TaskID, err)
		return
	}

	persisted := true
	if _, err := s.store.SaveSession(r.Context(), req.TaskID, orgID, session); err != nil {
		s.logger.Error("failed to persist session", "task_id", req.TaskID, "error", err)
		persisted = false
	}
	if err := s.store.RecordUsage(r.Context(), orgID, session.CumulativeTokens, session.EstimatedCost); err != nil {
		s.logger.Error("failed to record usage", "org_id", orgID, "error", err)
	}
	if s.publisher != nil {
		evt := events.SessionCompleted{
			TaskID:           req.TaskID,
			OrgID:            orgID.String(),
			Converged:        session.Converged,
			ConvergenceScore: session.ConvergenceScore,
			Iterations:       session.Iterations,
			TotalTokens:      session.CumulativeTokens.TotalTokens,
			EstimatedCost:    session.EstimatedCost,
		}
		if err := s.publisher.Publish(events.SubjectSessionCompleted, evt); err != nil {
			s.logger.Warn("failed to publish session event", "task_id", req.TaskID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ConvergeResponse{
		TaskID:    req.TaskID,
		Persisted: persisted,
		Session:   session,
	})
}

func (s *Server) writeRunError(w http.ResponseWriter, taskID string, err error) {
	var configErr *convergence.ConfigError
	if errors.As(err, &configErr) {
		writeError(w, http.StatusBadRequest, configErr.Error())
		return
	}
	var cancelled *convergence.Cancelled
	if errors.As(err, &cancelled) {
		writeError(w, statusClientClosedRequest, "session aborted: "+cancelled.Error())
		return
	}
	var turnFailure *convergence.TurnFailure
	if errors.As(err, &turnFailure) {
		s.logger.Error("session failed",
			"task_id", taskID,
			"party", string(turnFailure.Party),
			"iteration", turnFailure.Iteration,
			"tokens_spent", turnFailure.TokensSpent.TotalTokens,
			"error", err,
		)
		writeError(w, http.StatusBadGateway, "turn failed: "+turnFailure.Error())
		return
	}
	s.logger.Error("session failed", "task_id", taskID, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	rec, err := s.store.GetSession(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
