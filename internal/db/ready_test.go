package db

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flakyPinger struct {
	failures int32
	calls    atomic.Int32
}

func (p *flakyPinger) Ping(_ context.Context) error {
	if p.calls.Add(1) <= p.failures {
		return errors.New("not yet")
	}
	return nil
}

func TestWaitForReady_Immediate(t *testing.T) {
	p := &flakyPinger{}
	if err := WaitForReady(context.Background(), p, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", p.calls.Load())
	}
}

func TestWaitForReady_EventuallyReady(t *testing.T) {
	p := &flakyPinger{failures: 2}
	if err := WaitForReady(context.Background(), p, 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	p := &flakyPinger{failures: 1 << 30}
	err := WaitForReady(context.Background(), p, 150*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestError_Unwrap(t *testing.T) {
	err := &Error{Op: OpCAS, Err: ErrVersionConflict}
	if !errors.Is(err, ErrVersionConflict) {
		t.Error("errors.Is must see through db.Error")
	}
	if err.Error() != "CAS: db: version conflict" {
		t.Errorf("Error() = %q", err.Error())
	}
}
