package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/guards"
	"github.com/haasonsaas/relay/internal/safety"
	"github.com/haasonsaas/relay/internal/workflow"
	"github.com/haasonsaas/relay/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, models.HTTPStatus(err), map[string]any{
		"success": false,
		"error":   models.UserInfo(err),
	})
}

// decode reads a JSON body into v, mapping malformed input to BadRequest.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.WrapError(models.ErrBadRequest, "invalid JSON body", err)
	}
	return nil
}

// dispatchJSON runs a tool through the dispatcher and decodes its JSON
// payload, the shape every tool-backed endpoint shares.
func (s *Server) dispatchJSON(r *http.Request, name string, args any) (map[string]any, error) {
	if s.deps.Dispatcher == nil {
		return nil, models.NewError(models.ErrDependencyFailed, "dispatcher not configured")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, models.WrapError(models.ErrBadRequest, "invalid arguments", err)
	}
	result, err := s.deps.Dispatcher.Dispatch(r.Context(), models.ToolCall{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: raw,
	})
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, models.NewError(models.ErrDependencyFailed, result.Content)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		return nil, models.WrapError(models.ErrInternal, fmt.Sprintf("tool %s returned a non-JSON payload", name), err)
	}
	return out, nil
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.config.HealthRateLimit > 0 && s.deps.Limiter != nil {
		key := "http:/health:" + clientKey(r)
		if _, seen := s.healthKeys.LoadOrStore(key, true); !seen {
			s.deps.Limiter.SetLimit(key, s.config.HealthRateLimit)
		}
		if !s.deps.Limiter.Allow(key) {
			retry := s.deps.Limiter.RetryAfter(key)
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"type":        "rate-limit",
				"retry_after": retry.Seconds(),
			})
			return
		}
	}

	start := time.Now()
	status := "healthy"
	mlModels := map[string]any{}
	if s.deps.Models != nil {
		mlModels = s.deps.Models.ModelInfo()
		if !s.deps.Models.IsModelAvailable() {
			status = "degraded"
		}
	} else {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"status":       status,
		"latency_ms":   float64(time.Since(start).Microseconds()) / 1000.0,
		"ml_models":    mlModels,
		"integrations": s.deps.Integrations,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":     true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp := s.deps.Orchestrator.HandleChat(r.Context(), req)

	status := http.StatusOK
	if !resp.Success && resp.Error != nil {
		status = models.HTTPStatus(models.NewError(models.ErrorKind(resp.Error.Type), ""))
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleChatStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.deps.Orchestrator.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	snapshot["backend_url"] = s.deps.BackendURL
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		writeError(w, models.NewError(models.ErrBadRequest, "command is required"))
		return
	}

	args := map[string]any{"command": command}
	raw, _ := json.Marshal(args)

	// The operator invoked the endpoint directly; that is the confirmation.
	// Forbidden patterns and the approval gate still apply.
	check := s.deps.Safety.CheckSafety(r.Context(), "execute_command", raw, command, safety.CheckContext{
		"confirmed": true,
	})
	if !check.Allowed || check.RequiresApproval {
		kind := models.ErrForbidden
		for _, v := range check.Violations {
			if v.Type == models.ViolationRateLimit {
				kind = models.ErrRateLimited
			}
		}
		writeJSON(w, models.HTTPStatus(models.NewError(kind, "")), map[string]any{
			"command": command,
			"success": false,
			"error":   models.UserInfo(models.NewError(kind, check.Message).WithHint(check.Message)),
		})
		return
	}

	result, err := s.dispatchJSON(r, "execute_command", args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":  result,
		"command": command,
		"success": true,
	})
}

func (s *Server) handleEmotion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, models.NewError(models.ErrBadRequest, "text is required"))
		return
	}

	out, err := s.dispatchJSON(r, "analyze_emotion", map[string]any{"text": req.Text})
	if err != nil {
		writeError(w, err)
		return
	}
	out["source"] = "relay"
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query      string           `json:"query"`
		Candidates []map[string]any `json:"candidates"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := s.dispatchJSON(r, "semantic_rank", map[string]any{
		"query":      req.Query,
		"candidates": req.Candidates,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out["source"] = "relay"
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, models.NewError(models.ErrBadRequest, "text is required"))
		return
	}
	if s.deps.Embedder == nil {
		writeError(w, models.NewError(models.ErrDependencyFailed, "embedding backend not configured"))
		return
	}

	vec, err := s.deps.Embedder.Embed(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"embedding":  vec,
		"model":      s.deps.Embedder.Model(),
		"dimensions": len(vec),
		"source":     "relay",
	})
}

func (s *Server) handleGithubRepos(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, models.NewError(models.ErrBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	out, err := s.dispatchJSON(r, "list_repos", map[string]any{"limit": limit})
	if err != nil {
		writeError(w, err)
		return
	}
	out["source"] = "relay"
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGuardsCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string         `json:"text"`
		Guards  []string       `json:"guards"`
		Context map[string]any `json:"context"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	opts := guards.Options{}
	if strict, ok := req.Context["strict"].(bool); ok {
		opts.Strict = strict
	}
	if name, ok := req.Context["schema"].(string); ok {
		opts.SchemaName = name
		opts.SchemaRequired = true
	}

	result := s.deps.Guards.Run(r.Context(), req.Text, opts)
	writeJSON(w, http.StatusOK, map[string]any{
		"passed":      result.Passed,
		"guards":      result.Results,
		"text_length": len(req.Text),
	})
}

func (s *Server) handleRolesActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Roles.Active())
}

func (s *Server) handleRolesEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role    string         `json:"role"`
		Action  string         `json:"action"`
		Context map[string]any `json:"context"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := s.deps.Roles.Evaluate(r.Context(), req.Role, req.Action, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApprovalsList(w http.ResponseWriter, _ *http.Request) {
	pending := s.deps.Approvals.ListPending()
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"count":   len(pending),
	})
}

func (s *Server) handleApprovalsEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Tool == "" {
		writeError(w, models.NewError(models.ErrBadRequest, "tool is required"))
		return
	}

	id := s.deps.Approvals.Enqueue(r.Context(), req.Tool, req.Arguments)
	writeJSON(w, http.StatusOK, map[string]any{"action_id": id, "tool": req.Tool})
}

func (s *Server) handleApprovalApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	action, ok := s.deps.Approvals.Get(id)
	if !ok {
		writeError(w, models.NewError(models.ErrBadRequest, fmt.Sprintf("unknown action %q", id)).
			WithHint("the action may have expired"))
		return
	}

	approved := s.deps.Approvals.Approve(r.Context(), action.Tool, id)
	writeJSON(w, http.StatusOK, map[string]any{
		"action_id": id,
		"tool":      action.Tool,
		"approved":  approved,
	})
}

func (s *Server) handleWorkflowMermaid(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	wf, ok := s.deps.Workflows.Get(id)
	if !ok {
		writeError(w, models.NewError(models.ErrBadRequest, fmt.Sprintf("unknown workflow %q", id)))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(workflow.ToMermaid(wf)))
}
