package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockStorePinger struct {
	err error
}

func (m *mockStorePinger) Ping(_ context.Context) error { return m.err }

type mockSyncReporter struct {
	at  time.Time
	err error
}

func (m *mockSyncReporter) SyncStatus() (time.Time, error) { return m.at, m.err }

var synced = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockStorePinger{}, &mockSyncReporter{at: synced})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["store"] != CheckOK {
		t.Errorf("expected store %q, got %q", CheckOK, r.Checks["store"])
	}
	if r.Checks["remote_sync"] != CheckOK {
		t.Errorf("expected remote_sync %q, got %q", CheckOK, r.Checks["remote_sync"])
	}
}

func TestCheck_StoreDown(t *testing.T) {
	svc := New(&mockStorePinger{err: errors.New("closed")}, &mockSyncReporter{at: synced})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["store"] != CheckError {
		t.Errorf("expected store %q, got %q", CheckError, r.Checks["store"])
	}
}

func TestCheck_SyncFailedIsDegraded(t *testing.T) {
	svc := New(&mockStorePinger{}, &mockSyncReporter{at: synced, err: errors.New("timeout")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["remote_sync"] != CheckError {
		t.Errorf("expected remote_sync %q, got %q", CheckError, r.Checks["remote_sync"])
	}
}

func TestCheck_NoSyncYet(t *testing.T) {
	svc := New(&mockStorePinger{}, &mockSyncReporter{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["remote_sync"] != CheckOK {
		t.Errorf("expected remote_sync %q, got %q", CheckOK, r.Checks["remote_sync"])
	}
}

func TestCheck_NilSyncReporter(t *testing.T) {
	svc := New(&mockStorePinger{}, nil)
	r := svc.Check(context.Background())

	if _, exists := r.Checks["remote_sync"]; exists {
		t.Error("remote_sync check should not exist when sync is nil")
	}
	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
}
