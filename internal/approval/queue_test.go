package approval

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(Config{TTL: time.Minute}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestApproveUnknownAction(t *testing.T) {
	q := newTestQueue(t)
	if q.Approve(context.Background(), "execute_command", "no-such-id") {
		t.Error("approving an unknown action should fail")
	}
}

func TestApproveWrongTool(t *testing.T) {
	q := newTestQueue(t)
	id := q.Enqueue(context.Background(), "execute_command", nil)
	if q.Approve(context.Background(), "download_media", id) {
		t.Error("grant must be bound to the enqueued tool")
	}
}

func TestGrantConsumedExactlyOnce(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id := q.Enqueue(ctx, "execute_command", json.RawMessage(`{"command":"reboot"}`))
	if q.IsApproved(ctx, "execute_command", id) {
		t.Fatal("unapproved action reported approved")
	}

	if !q.Approve(ctx, "execute_command", id) {
		t.Fatal("approve failed")
	}
	// Approving again is idempotent.
	if !q.Approve(ctx, "execute_command", id) {
		t.Fatal("repeat approve should succeed without effect")
	}

	if !q.IsApproved(ctx, "execute_command", id) {
		t.Fatal("grant not honored")
	}
	if q.IsApproved(ctx, "execute_command", id) {
		t.Error("grant consumed twice")
	}
}

func TestExpiry(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	base := time.Now()
	q.nowFunc = func() time.Time { return base }

	id := q.Enqueue(ctx, "execute_command", nil)
	if !q.Approve(ctx, "execute_command", id) {
		t.Fatal("approve failed")
	}

	q.nowFunc = func() time.Time { return base.Add(2 * time.Minute) }

	if q.IsApproved(ctx, "execute_command", id) {
		t.Error("expired grant honored")
	}
	if len(q.ListPending()) != 0 {
		t.Error("expired action still listed")
	}
	if removed := q.ExpireSweep(ctx); removed != 1 {
		t.Errorf("sweep removed %d, want 1", removed)
	}
}

func TestListPendingNewestFirst(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	base := time.Now()
	q.nowFunc = func() time.Time { return base }
	first := q.Enqueue(ctx, "execute_command", nil)

	q.nowFunc = func() time.Time { return base.Add(time.Second) }
	second := q.Enqueue(ctx, "download_media", nil)

	pending := q.ListPending()
	if len(pending) != 2 {
		t.Fatalf("pending = %d", len(pending))
	}
	if pending[0].ActionID != second || pending[1].ActionID != first {
		t.Errorf("order = %s, %s", pending[0].ActionID, pending[1].ActionID)
	}
}

func TestGetDoesNotConsume(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id := q.Enqueue(ctx, "execute_command", nil)
	if _, ok := q.Get(id); !ok {
		t.Fatal("get failed")
	}
	if _, ok := q.Get(id); !ok {
		t.Error("get should not consume the action")
	}
}

func TestWALReplayAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "approvals.jsonl")
	cfg := Config{TTL: time.Hour, Persist: true, Path: path}

	q1, err := NewQueue(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	pendingID := q1.Enqueue(ctx, "execute_command", json.RawMessage(`{"command":"df -h"}`))
	approvedID := q1.Enqueue(ctx, "download_media", nil)
	consumedID := q1.Enqueue(ctx, "execute_command", nil)
	q1.Approve(ctx, "download_media", approvedID)
	q1.Approve(ctx, "execute_command", consumedID)
	if !q1.IsApproved(ctx, "execute_command", consumedID) {
		t.Fatal("consume failed")
	}
	q1.Close()

	q2, err := NewQueue(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer q2.Close()

	if _, ok := q2.Get(pendingID); !ok {
		t.Error("pending action lost across restart")
	}
	if !q2.IsApproved(ctx, "download_media", approvedID) {
		t.Error("approved grant lost across restart")
	}
	if _, ok := q2.Get(consumedID); ok {
		t.Error("consumed action resurrected by replay")
	}
}
