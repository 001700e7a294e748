package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/relay/internal/safety"
	"github.com/haasonsaas/relay/pkg/models"
)

// Role caps what safety level an operator persona may trigger.
type Role struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	MaxLevel    models.SafetyLevel `json:"max_level"`
}

// RoleSet is the static role table behind /roles. Roles are loaded once at
// startup; the version string identifies the table for dashboards.
type RoleSet struct {
	roles    map[string]Role
	order    []string
	version  string
	loadedAt time.Time
	safety   *safety.Engine
}

// DefaultRoles builds the stock observer/assistant/operator/admin table.
func DefaultRoles(engine *safety.Engine) *RoleSet {
	rs := &RoleSet{
		roles:    make(map[string]Role),
		version:  "1",
		loadedAt: time.Now(),
		safety:   engine,
	}
	for _, r := range []Role{
		{Name: "observer", Description: "Read-only status and metrics", MaxLevel: models.SafetySafe},
		{Name: "assistant", Description: "Day-to-day queries and home control", MaxLevel: models.SafetyCaution},
		{Name: "operator", Description: "Commands and downloads with confirmation", MaxLevel: models.SafetyRestricted},
		{Name: "admin", Description: "Privileged actions behind the approval queue", MaxLevel: models.SafetyDangerous},
	} {
		rs.roles[r.Name] = r
		rs.order = append(rs.order, r.Name)
	}
	return rs
}

// Active describes the loaded role table.
func (rs *RoleSet) Active() map[string]any {
	roles := make([]Role, 0, len(rs.order))
	for _, name := range rs.order {
		roles = append(roles, rs.roles[name])
	}
	return map[string]any{
		"roles":     roles,
		"count":     len(roles),
		"version":   rs.version,
		"loaded_at": rs.loadedAt.UTC().Format(time.RFC3339),
	}
}

// riskScore maps a safety level onto [0,1] for the evaluate endpoint.
func riskScore(level models.SafetyLevel, violations int) float64 {
	base := map[models.SafetyLevel]float64{
		models.SafetySafe:       0.1,
		models.SafetyCaution:    0.3,
		models.SafetyRestricted: 0.6,
		models.SafetyDangerous:  0.85,
		models.SafetyForbidden:  1.0,
	}[level]
	score := base + 0.05*float64(violations)
	if score > 1 {
		score = 1
	}
	return score
}

// Evaluate decides whether a role may perform an action. The action name is
// a tool name; the safety engine supplies its level and pattern findings.
func (rs *RoleSet) Evaluate(ctx context.Context, role, action string, evalCtx map[string]any) (map[string]any, error) {
	r, ok := rs.roles[role]
	if !ok {
		return nil, models.NewError(models.ErrBadRequest, fmt.Sprintf("unknown role %q", role)).
			WithHint("valid roles: observer, assistant, operator, admin")
	}
	if action == "" {
		return nil, models.NewError(models.ErrBadRequest, "action is required")
	}

	args, err := json.Marshal(evalCtx)
	if err != nil {
		args = json.RawMessage(`{}`)
	}
	// Confirmation and approval gates are out of scope here; the evaluation
	// is advisory and only the level and pattern findings matter.
	check := rs.safety.CheckSafety(ctx, action, args, "", safety.CheckContext{
		"confirmed": true,
		"approved":  true,
	})

	allowed := check.Allowed && check.Level <= r.MaxLevel
	reason := "within role limits"
	switch {
	case !check.Allowed:
		reason = check.Message
	case check.Level > r.MaxLevel:
		reason = fmt.Sprintf("action level %s exceeds role ceiling %s", check.Level, r.MaxLevel)
	}

	return map[string]any{
		"role":       role,
		"action":     action,
		"allowed":    allowed,
		"reason":     reason,
		"risk_score": riskScore(check.Level, len(check.Violations)),
		"level":      check.Level.String(),
		"violations": len(check.Violations),
	}, nil
}
