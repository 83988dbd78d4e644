package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/creditgate/internal/db"
	"github.com/kailas-cloud/creditgate/internal/domain/quota"
)

// store is the consumer interface for ledger persistence (ISP).
type store interface {
	GetVersioned(ctx context.Context, key string) ([]byte, uint64, error)
	CompareAndSwap(ctx context.Context, key string, version uint64, value []byte) error
}

// Store persists both ledger records of one profile.
// Keys: {prefix}{profile}:search and {prefix}{profile}:verification.
type Store struct {
	store           store
	searchKey       string
	verificationKey string
}

// New creates a ledger store for profile under prefix.
func New(s store, prefix, profile string) *Store {
	base := prefix + profile
	return &Store{
		store:           s,
		searchKey:       base + ":search",
		verificationKey: base + ":verification",
	}
}

// SearchKey returns the search record key.
func (s *Store) SearchKey() string { return s.searchKey }

// VerificationKey returns the verification record key.
func (s *Store) VerificationKey() string { return s.verificationKey }

// LoadSearch returns the search record and its version.
// A missing record is the zero state at version 0.
func (s *Store) LoadSearch(ctx context.Context) (quota.SearchState, uint64, error) {
	var st quota.SearchState
	ver, err := s.load(ctx, s.searchKey, &st)
	return st, ver, err
}

// SaveSearch writes st iff the record is still at version.
func (s *Store) SaveSearch(ctx context.Context, st quota.SearchState, version uint64) error {
	return s.save(ctx, s.searchKey, st, version)
}

// LoadVerification returns the verification record and its version.
func (s *Store) LoadVerification(ctx context.Context) (quota.VerificationState, uint64, error) {
	var st quota.VerificationState
	ver, err := s.load(ctx, s.verificationKey, &st)
	return st, ver, err
}

// SaveVerification writes st iff the record is still at version.
func (s *Store) SaveVerification(ctx context.Context, st quota.VerificationState, version uint64) error {
	return s.save(ctx, s.verificationKey, st, version)
}

func (s *Store) load(ctx context.Context, key string, dst any) (uint64, error) {
	data, ver, err := s.store.GetVersioned(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger load %s: %w", key, err)
	}
	if len(data) == 0 {
		return ver, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return 0, fmt.Errorf("ledger load %s decode: %w", key, err)
	}
	return ver, nil
}

func (s *Store) save(ctx context.Context, key string, v any, version uint64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger save %s encode: %w", key, err)
	}
	if err := s.store.CompareAndSwap(ctx, key, version, data); err != nil {
		return fmt.Errorf("ledger save %s: %w", key, err)
	}
	return nil
}
