package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/drover/action"
	"github.com/hazyhaar/drover/cloak"
	"github.com/hazyhaar/drover/export"
	"github.com/hazyhaar/drover/workflow"
)

func workflowID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// StepRequest is one step in a workflow create/replace body.
type StepRequest struct {
	Order  int               `json:"order"`
	Action action.Descriptor `json:"action"`
}

// CreateWorkflowRequest is the body for POST /api/v1/workflows.
type CreateWorkflowRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Steps       []StepRequest `json:"steps"`
}

func (s *Service) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	id, err := s.store.CreateWorkflow(r.Context(), req.Name, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, st := range req.Steps {
		if _, err := s.store.AddStep(r.Context(), id, st.Order, st.Action); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.logger.Info("api: workflow created", "workflow_id", id, "name", req.Name, "steps", len(req.Steps))
	s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Service) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	ws, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ws)
}

func (s *Service) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(r)
	if !ok {
		http.Error(w, "invalid workflow id", http.StatusBadRequest)
		return
	}
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	steps, err := s.store.LoadSteps(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"workflow": wf,
		"steps":    steps,
	})
}

func (s *Service) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(r)
	if !ok {
		http.Error(w, "invalid workflow id", http.StatusBadRequest)
		return
	}
	if err := s.store.DeleteWorkflow(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleReplaceSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(r)
	if !ok {
		http.Error(w, "invalid workflow id", http.StatusBadRequest)
		return
	}
	if _, err := s.store.GetWorkflow(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	var req []StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	steps := make([]workflow.Step, len(req))
	for i, st := range req {
		steps[i] = workflow.Step{Order: st.Order, Action: st.Action}
	}
	if err := s.store.ReplaceSteps(r.Context(), id, steps); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunResponse is the body returned by POST /api/v1/workflows/{id}/run.
type RunResponse struct {
	RunID   string          `json:"run_id"`
	Results []action.Result `json:"results"`
}

func (s *Service) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(r)
	if !ok {
		http.Error(w, "invalid workflow id", http.StatusBadRequest)
		return
	}
	if _, err := s.store.GetWorkflow(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	started := time.Now()
	results, err := s.engine.Run(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	runID, err := s.store.SaveRun(r.Context(), id, started, results)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.exporter != nil {
		run, err := s.store.GetRun(r.Context(), runID)
		if err == nil {
			_, err = s.exporter.Export(run)
		}
		if err != nil && !errors.Is(err, export.ErrEmptyRun) {
			s.logger.Warn("api: export failed", "run_id", runID, "error", err)
		}
	}

	s.writeJSON(w, http.StatusOK, RunResponse{RunID: runID, Results: results})
}

func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowID(r)
	if !ok {
		http.Error(w, "invalid workflow id", http.StatusBadRequest)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// CloakState is the body returned by GET /api/v1/cloak.
type CloakState struct {
	UserAgents []string          `json:"user_agents"`
	Proxies    []cloak.Proxy     `json:"proxies"`
	Delay      cloak.DelayPolicy `json:"delay"`
}

func (s *Service) handleGetCloak(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, CloakState{
		UserAgents: s.policy.UserAgents(),
		Proxies:    s.policy.Proxies(),
		Delay:      s.policy.Delay(),
	})
}

// UserAgentRequest is the body for user-agent pool mutations.
type UserAgentRequest struct {
	UserAgent string `json:"user_agent"`
}

func (s *Service) handleAddUserAgent(w http.ResponseWriter, r *http.Request) {
	var req UserAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserAgent == "" {
		http.Error(w, "user_agent required", http.StatusBadRequest)
		return
	}
	if err := s.policy.AddUserAgent(r.Context(), req.UserAgent); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRemoveUserAgent(w http.ResponseWriter, r *http.Request) {
	var req UserAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserAgent == "" {
		http.Error(w, "user_agent required", http.StatusBadRequest)
		return
	}
	if err := s.policy.RemoveUserAgent(r.Context(), req.UserAgent); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleAddProxy(w http.ResponseWriter, r *http.Request) {
	var req cloak.Proxy
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Server == "" {
		http.Error(w, "server required", http.StatusBadRequest)
		return
	}
	if err := s.policy.AddProxy(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRemoveProxy(w http.ResponseWriter, r *http.Request) {
	var req cloak.Proxy
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Server == "" {
		http.Error(w, "server required", http.StatusBadRequest)
		return
	}
	if err := s.policy.RemoveProxy(r.Context(), req); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleSetDelay(w http.ResponseWriter, r *http.Request) {
	var req cloak.DelayPolicy
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.policy.SetDelayPolicy(r.Context(), req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
