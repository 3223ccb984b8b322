// Package store provides per-session job state storage for the analysis
// pipeline: pending uploads, the set of currently running jobs, and
// completed results, all with bounded lifetimes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// Common errors for store operations.
var (
	ErrNotFound = errors.New("session not found")
)

// Eviction windows. Eviction is advisory: it happens on the periodic
// sweep, never synchronously with a read.
const (
	PendingTTL   = 30 * time.Minute
	CompletedTTL = 60 * time.Minute
)

// Store is the session state store behind the job orchestrator.
//
// Get methods return (nil, nil) when the entry is absent; absence is
// not an error. TryActivate and MarkRefunded are atomic check-and-set
// operations: concurrent callers for the same session see exactly one
// true result. Settle atomically writes the completed record, clears
// the active marker and deletes any pending input, so no observer can
// ever see a session that is both active and completed.
type Store interface {
	PutPending(ctx context.Context, sessionID string, in *models.PendingInput) error
	GetPending(ctx context.Context, sessionID string) (*models.PendingInput, error)
	DeletePending(ctx context.Context, sessionID string) error

	// TryActivate marks the session as currently analyzing. Returns
	// false when the session is already active or already settled.
	TryActivate(ctx context.Context, sessionID string) (bool, error)
	Deactivate(ctx context.Context, sessionID string) error
	IsActive(ctx context.Context, sessionID string) (bool, error)
	ActiveCount(ctx context.Context) (int, error)

	GetCompleted(ctx context.Context, sessionID string) (*models.CompletedRecord, error)
	DeleteCompleted(ctx context.Context, sessionID string) error

	// Settle records the terminal outcome for the session.
	Settle(ctx context.Context, sessionID string, rec *models.CompletedRecord) error

	// MarkRefunded records that a refund was issued for the session.
	// Returns false when a refund was already recorded.
	MarkRefunded(ctx context.Context, sessionID string) (bool, error)

	// Sweep evicts pending inputs older than PendingTTL and completed
	// records older than CompletedTTL. Returns the number of evictions.
	Sweep(ctx context.Context, now time.Time) (int, error)

	Close() error
}
