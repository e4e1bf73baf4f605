package access

import (
	"context"
	"time"

	"leasecheck/pkg/models"
)

// AppendResult is the outcome of GrantStore.AppendWithCeiling.
type AppendResult int

const (
	// Appended means the id was added, or was already counted.
	Appended AppendResult = iota
	// Exhausted means the grant is active but already holds ceiling ids.
	Exhausted
	// Inactive means there is no grant or it has expired.
	Inactive
)

func (r AppendResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Exhausted:
		return "exhausted"
	default:
		return "inactive"
	}
}

// GrantStore persists paid grants.
type GrantStore interface {
	// Get returns the grant for userID, or nil when there is none.
	Get(ctx context.Context, userID string) (*models.AccessGrant, error)

	// Upsert creates or refreshes a grant. An existing grant keeps its
	// analysis ids; everything else is replaced. The stored grant is returned.
	Upsert(ctx context.Context, grant models.AccessGrant) (models.AccessGrant, error)

	// AppendWithCeiling atomically adds analysisID when the grant is active
	// at now and holds fewer than ceiling ids.
	AppendWithCeiling(ctx context.Context, userID, analysisID string, ceiling int, now time.Time) (AppendResult, error)

	// Append adds analysisID without any check. It is a no-op without a grant.
	Append(ctx context.Context, userID, analysisID string) error

	// Remove drops analysisID from the grant.
	Remove(ctx context.Context, userID, analysisID string) error
}

// FreeTierStore records the one-shot free analysis.
type FreeTierStore interface {
	// Claim marks the free analysis as used and reports whether this call was
	// the one that claimed it.
	Claim(ctx context.Context, userID string) (bool, error)

	// Used reports whether the free analysis has been claimed.
	Used(ctx context.Context, userID string) (bool, error)
}

// WindowKey is one rate-window axis with its ceiling.
type WindowKey struct {
	Key   string
	Limit int
}

// WindowResult reports a rate-window admission. Counts are the in-window
// entries per key after pruning and before the new entry; they line up with
// the keys passed to Admit.
type WindowResult struct {
	Admitted bool
	Counts   []int
}

// WindowStore keeps sliding windows of timestamps.
type WindowStore interface {
	// Admit prunes entries at or before now-window for every key and, when all
	// keys are under their limit, records now on every key. The check and the
	// append are atomic.
	Admit(ctx context.Context, now time.Time, window time.Duration, keys ...WindowKey) (WindowResult, error)
}
