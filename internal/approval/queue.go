// Package approval implements the pending-action ledger for operations that
// need a confirmation turn or an operator grant before execution. Grants are
// idempotent by action id and are consumed exactly once.
package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/audit"
	"github.com/haasonsaas/relay/internal/observability"
)

// DefaultTTL is how long a pending action remains valid.
const DefaultTTL = 10 * time.Minute

// PendingAction is one ledger entry.
type PendingAction struct {
	ActionID    string          `json:"action_id"`
	Tool        string          `json:"tool"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Approved    bool            `json:"approved"`
}

// walRecord is one line of the write-ahead log.
type walRecord struct {
	Op     string         `json:"op"` // enqueue | approve | consume | expire
	Action *PendingAction `json:"action,omitempty"`
	ID     string         `json:"id,omitempty"`
	TS     time.Time      `json:"ts"`
}

// Config configures the queue.
type Config struct {
	// TTL is the lifetime of a pending action (default 10m).
	TTL time.Duration `yaml:"ttl"`

	// Persist enables the JSONL write-ahead log.
	Persist bool `yaml:"persist"`

	// Path is the WAL file, e.g. <data_dir>/approvals.jsonl.
	Path string `yaml:"path"`
}

// DefaultConfig returns an in-memory-only queue configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		TTL:  DefaultTTL,
		Path: filepath.Join(dataDir, "approvals.jsonl"),
	}
}

// Queue is the in-memory pending-action store with optional persistence.
type Queue struct {
	mu       sync.Mutex
	actions  map[string]*PendingAction
	config   Config
	wal      *os.File
	auditLog *audit.Logger
	metrics  *observability.Metrics
	nowFunc  func() time.Time
}

// NewQueue creates a queue, replaying the WAL when persistence is enabled
// so pending actions survive a restart.
func NewQueue(config Config, auditLog *audit.Logger, metrics *observability.Metrics) (*Queue, error) {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	q := &Queue{
		actions:  make(map[string]*PendingAction),
		config:   config,
		auditLog: auditLog,
		metrics:  metrics,
		nowFunc:  time.Now,
	}
	if config.Persist && config.Path != "" {
		if err := q.replay(config.Path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(config.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		q.wal = f
	}
	return q, nil
}

// Close closes the WAL if open.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.wal != nil {
		return q.wal.Close()
	}
	return nil
}

// Enqueue records a pending action and returns its id.
func (q *Queue) Enqueue(ctx context.Context, tool string, arguments json.RawMessage) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFunc()
	action := &PendingAction{
		ActionID:    uuid.NewString(),
		Tool:        tool,
		Arguments:   arguments,
		RequestedAt: now,
		ExpiresAt:   now.Add(q.config.TTL),
	}
	q.actions[action.ActionID] = action
	q.appendWAL(walRecord{Op: "enqueue", Action: action, TS: now})
	if q.metrics != nil {
		q.metrics.ApprovalCounter.WithLabelValues("enqueued").Inc()
	}
	if q.auditLog != nil {
		q.auditLog.LogApproval(ctx, tool, action.ActionID, "enqueued")
	}
	return action.ActionID
}

// Approve grants a pending action. Granting is idempotent: approving an
// already-approved action succeeds without effect. Returns false when the
// action is unknown, expired, or registered for a different tool.
func (q *Queue) Approve(ctx context.Context, tool, actionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	action, ok := q.actions[actionID]
	if !ok || action.Tool != tool || q.nowFunc().After(action.ExpiresAt) {
		return false
	}
	if !action.Approved {
		action.Approved = true
		q.appendWAL(walRecord{Op: "approve", ID: actionID, TS: q.nowFunc()})
		if q.metrics != nil {
			q.metrics.ApprovalCounter.WithLabelValues("approved").Inc()
		}
		if q.auditLog != nil {
			q.auditLog.LogApproval(ctx, tool, actionID, "approved")
		}
	}
	return true
}

// IsApproved reports whether the action holds a valid grant, consuming it.
// A second call for the same action returns false.
func (q *Queue) IsApproved(ctx context.Context, tool, actionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	action, ok := q.actions[actionID]
	if !ok || action.Tool != tool || !action.Approved || q.nowFunc().After(action.ExpiresAt) {
		return false
	}
	delete(q.actions, actionID)
	q.appendWAL(walRecord{Op: "consume", ID: actionID, TS: q.nowFunc()})
	if q.metrics != nil {
		q.metrics.ApprovalCounter.WithLabelValues("consumed").Inc()
	}
	if q.auditLog != nil {
		q.auditLog.LogApproval(ctx, tool, actionID, "consumed")
	}
	return true
}

// Get returns a snapshot of a pending action without consuming it.
func (q *Queue) Get(actionID string) (*PendingAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	action, ok := q.actions[actionID]
	if !ok {
		return nil, false
	}
	cp := *action
	return &cp, true
}

// ListPending returns all unexpired actions, newest first.
func (q *Queue) ListPending() []*PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFunc()
	out := make([]*PendingAction, 0, len(q.actions))
	for _, a := range q.actions {
		if now.After(a.ExpiresAt) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].RequestedAt.After(out[i].RequestedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// ExpireSweep removes expired actions. Wired to a cron schedule at startup.
func (q *Queue) ExpireSweep(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFunc()
	removed := 0
	for id, a := range q.actions {
		if now.After(a.ExpiresAt) {
			delete(q.actions, id)
			q.appendWAL(walRecord{Op: "expire", ID: id, TS: now})
			removed++
			if q.metrics != nil {
				q.metrics.ApprovalCounter.WithLabelValues("expired").Inc()
			}
			if q.auditLog != nil {
				q.auditLog.LogApproval(ctx, a.Tool, id, "expired")
			}
		}
	}
	return removed
}

// appendWAL writes one record; callers hold q.mu.
func (q *Queue) appendWAL(rec walRecord) {
	if q.wal == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = q.wal.Write(append(data, '\n'))
}

// replay reconstructs state from the WAL.
func (q *Queue) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec walRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		switch rec.Op {
		case "enqueue":
			if rec.Action != nil {
				q.actions[rec.Action.ActionID] = rec.Action
			}
		case "approve":
			if a, ok := q.actions[rec.ID]; ok {
				a.Approved = true
			}
		case "consume", "expire":
			delete(q.actions, rec.ID)
		}
	}
	// Drop anything already expired at startup.
	now := q.nowFunc()
	for id, a := range q.actions {
		if now.After(a.ExpiresAt) {
			delete(q.actions, id)
		}
	}
	return scanner.Err()
}
