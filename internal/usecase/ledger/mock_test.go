package ledger

import (
	"context"
	"sync"

	"github.com/kailas-cloud/creditgate/internal/db"
	"github.com/kailas-cloud/creditgate/internal/domain/quota"
	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// --- In-memory versioned ledger store ---

type memStore struct {
	mu        sync.Mutex
	search    quota.SearchState
	searchVer uint64
	verif     quota.VerificationState
	verifVer  uint64

	// conflicts makes the next N saves lose a race (the version moves on).
	conflicts int
	loadErr   error
	saves     int
}

func (m *memStore) LoadSearch(_ context.Context) (quota.SearchState, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return quota.SearchState{}, 0, m.loadErr
	}
	return m.search, m.searchVer, nil
}

func (m *memStore) SaveSearch(_ context.Context, st quota.SearchState, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		m.searchVer++
		return db.ErrVersionConflict
	}
	if version != m.searchVer {
		return db.ErrVersionConflict
	}
	m.search = st
	m.searchVer++
	m.saves++
	return nil
}

func (m *memStore) LoadVerification(_ context.Context) (quota.VerificationState, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return quota.VerificationState{}, 0, m.loadErr
	}
	return m.verif, m.verifVer, nil
}

func (m *memStore) SaveVerification(_ context.Context, st quota.VerificationState, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		m.verifVer++
		return db.ErrVersionConflict
	}
	if version != m.verifVer {
		return db.ErrVersionConflict
	}
	m.verif = st
	m.verifVer++
	m.saves++
	return nil
}

func (m *memStore) setLoadErr(err error) {
	m.mu.Lock()
	m.loadErr = err
	m.mu.Unlock()
}

// --- Fixed entitlement ---

type fixedEntitlement struct {
	mu  sync.Mutex
	ent tier.Entitlement
}

func (f *fixedEntitlement) Entitlement() tier.Entitlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ent
}

func (f *fixedEntitlement) set(id string) {
	f.mu.Lock()
	f.ent = tier.DefaultPolicy().LimitsFor(id)
	f.mu.Unlock()
}

func entitlementFor(id string) *fixedEntitlement {
	f := &fixedEntitlement{}
	f.set(id)
	return f
}
