package orchestrator

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

const (
	shardCount = 16

	// DefaultConversationTTL is how long an idle conversation lives.
	DefaultConversationTTL = 30 * time.Minute
)

// PendingKind distinguishes what a stashed confirmation resumes.
type PendingKind string

const (
	PendingTool     PendingKind = "tool"
	PendingWorkflow PendingKind = "workflow"
)

// PendingDispatch is an action stashed behind a confirmation turn. The next
// user message either carries a confirmation token and resumes it, or drops
// it.
type PendingDispatch struct {
	Kind     PendingKind     `json:"kind"`
	Call     models.ToolCall `json:"call,omitempty"`
	Template string          `json:"template,omitempty"`
	Params   map[string]any  `json:"params,omitempty"`

	// ActionID references the approval-queue entry for dangerous actions.
	ActionID         string `json:"action_id,omitempty"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
}

// Conversation is one user session. The embedded mutex serialises request
// processing per conversation; callers hold it for the whole request.
type Conversation struct {
	ID        string
	Messages  []models.Message
	Pending   *PendingDispatch
	UpdatedAt time.Time

	mu sync.Mutex
}

// Lock acquires the per-conversation processing lock (FIFO by mutex queue).
func (c *Conversation) Lock() { c.mu.Lock() }

// Unlock releases the processing lock.
func (c *Conversation) Unlock() { c.mu.Unlock() }

// StoreConfig configures the conversation store.
type StoreConfig struct {
	// TTL is the idle lifetime (default 30m).
	TTL time.Duration

	// Persist enables the per-conversation JSONL sidecar log.
	Persist bool

	// Dir is where sidecar logs live, e.g. <data_dir>/conversations.
	Dir string
}

type shard struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
}

// Store is the sharded conversation map. Sharding by conversation-id hash
// keeps unrelated conversations off each other's locks.
type Store struct {
	shards  [shardCount]*shard
	config  StoreConfig
	metrics *observability.Metrics
	nowFunc func() time.Time
}

// NewStore creates a conversation store.
func NewStore(config StoreConfig, metrics *observability.Metrics) *Store {
	if config.TTL <= 0 {
		config.TTL = DefaultConversationTTL
	}
	s := &Store{config: config, metrics: metrics, nowFunc: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{conversations: make(map[string]*Conversation)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// GetOrCreate returns the conversation for id, creating it (and minting an
// id) when absent.
func (s *Store) GetOrCreate(id string) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	conv, ok := sh.conversations[id]
	if !ok {
		conv = &Conversation{ID: id, UpdatedAt: s.nowFunc()}
		if s.config.Persist {
			s.replaySidecar(conv)
		}
		sh.conversations[id] = conv
		s.observeCount()
	}
	return conv
}

// Get returns an existing conversation.
func (s *Store) Get(id string) (*Conversation, bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	conv, ok := sh.conversations[id]
	return conv, ok
}

// Append adds a message to the conversation, touching its TTL clock and
// writing the sidecar record if persistence is enabled. Callers hold the
// conversation lock.
func (s *Store) Append(conv *Conversation, msg models.Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.nowFunc()
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = s.nowFunc()

	if s.config.Persist {
		s.appendSidecar(conv.ID, msg)
	}
}

// Count returns the number of live conversations.
func (s *Store) Count() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.conversations)
		sh.mu.Unlock()
	}
	return total
}

// EvictExpired drops conversations idle past the TTL. Wired to a cron
// schedule at startup.
func (s *Store) EvictExpired() int {
	cutoff := s.nowFunc().Add(-s.config.TTL)
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, conv := range sh.conversations {
			if conv.UpdatedAt.Before(cutoff) {
				delete(sh.conversations, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.observeCount()
	}
	return removed
}

func (s *Store) observeCount() {
	if s.metrics != nil {
		s.metrics.ActiveConversations.Set(float64(s.Count()))
	}
}

func (s *Store) sidecarPath(id string) string {
	return filepath.Join(s.config.Dir, fmt.Sprintf("%s.jsonl", id))
}

// appendSidecar writes one message to the conversation's write-ahead log.
// Failures are swallowed; persistence is best-effort by design.
func (s *Store) appendSidecar(id string, msg models.Message) {
	if s.config.Dir == "" {
		return
	}
	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(s.sidecarPath(id), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_, _ = f.Write(append(data, '\n'))
}

// replaySidecar restores messages for a conversation from its sidecar log.
func (s *Store) replaySidecar(conv *Conversation) {
	if s.config.Dir == "" {
		return
	}
	data, err := os.ReadFile(s.sidecarPath(conv.ID))
	if err != nil {
		return
	}
	for _, line := range splitLines(data) {
		var msg models.Message
		if json.Unmarshal(line, &msg) == nil {
			conv.Messages = append(conv.Messages, msg)
		}
	}
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
