// Package quota holds ledger state and the pure rules that move it.
package quota

import (
	"time"

	"github.com/kailas-cloud/creditgate/internal/domain/tier"
)

// SearchState is the device-local daily search counter.
type SearchState struct {
	Day  Day `json:"day"`
	Used int `json:"used"`
}

// Remaining returns max(0, limit-used), or Unlimited.
func (s SearchState) Remaining(limit tier.Limit) tier.Limit {
	return limit.Sub(s.Used)
}

// OpKind distinguishes pending operations.
type OpKind string

// Pending operation kinds.
const (
	OpSpend  OpKind = "spend"
	OpCredit OpKind = "credit"
)

// PendingOp is a local optimistic mutation awaiting confirmation by a sync.
type PendingOp struct {
	ID   string    `json:"id"`
	Kind OpKind    `json:"kind"`
	N    int       `json:"n"`
	At   time.Time `json:"at"`
}

// VerificationState is the local cache of the remote verification balance.
type VerificationState struct {
	Balance      int         `json:"balance"`
	Unlimited    bool        `json:"is_unlimited"`
	LastSyncedAt time.Time   `json:"last_synced_at,omitzero"`
	SyncedAsOf   time.Time   `json:"synced_as_of,omitzero"` // AsOf of the newest applied snapshot
	Pending      []PendingOp `json:"pending,omitempty"`
}

// Remaining returns the spendable amount under limit. When either the tier
// limit or the cached flag is unlimited, the balance does not gate.
func (s VerificationState) Remaining(limit tier.Limit) tier.Limit {
	if s.Unlimited || limit.IsUnlimited() {
		return tier.Unlimited
	}
	return tier.Finite(s.Balance)
}

// Synced reports whether the state has ever been reconciled with the server.
func (s VerificationState) Synced() bool { return !s.LastSyncedAt.IsZero() }

// RemoteBalance is an authoritative snapshot. AsOf is when the fetch was issued.
type RemoteBalance struct {
	Credits   int
	Unlimited bool
	AsOf      time.Time
}

// StaleFor reports whether rb was fetched before a snapshot st already applied.
// Applying it would restore spends the newer snapshot accounted for.
func (rb RemoteBalance) StaleFor(st VerificationState) bool {
	return rb.AsOf.Before(st.SyncedAsOf)
}

// Reconcile applies a remote snapshot to local state. Spends recorded after
// AsOf are assumed unseen by the server and stay pending; everything else,
// and every optimistic credit, is superseded by the server value.
// A stale snapshot leaves st unchanged.
func Reconcile(st VerificationState, rb RemoteBalance, now time.Time) VerificationState {
	if rb.StaleFor(st) {
		return st
	}

	var kept []PendingOp
	unseen := 0
	for _, op := range st.Pending {
		if op.Kind != OpSpend || !op.At.After(rb.AsOf) {
			continue
		}
		kept = append(kept, op)
		unseen += op.N
	}

	credits := rb.Credits
	if credits < 0 {
		credits = 0
	}
	balance := credits - unseen
	if balance < 0 {
		balance = 0
	}

	return VerificationState{
		Balance:      balance,
		Unlimited:    rb.Unlimited,
		LastSyncedAt: now,
		SyncedAsOf:   rb.AsOf,
		Pending:      kept,
	}
}

// MarkUnlimited sets the cached unlimited flag for a locally applied tier.
// The server was not consulted, so LastSyncedAt keeps its value; SyncedAsOf
// advances to at so a fetch issued earlier cannot clear the flag.
func MarkUnlimited(st VerificationState, at time.Time) VerificationState {
	st.Unlimited = true
	if at.After(st.SyncedAsOf) {
		st.SyncedAsOf = at
	}
	return st
}
