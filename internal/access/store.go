package access

import (
	"context"
	"time"
)

// Store describes persistence required by the validation core. The Validator
// is stateless between calls; every shared fact (rate counts, lock flag,
// access bookkeeping) lives behind this interface.
type Store interface {
	// Conversations.
	CreateConversation(ctx context.Context, c *Conversation) error
	FindConversation(ctx context.Context, id string) (*Conversation, error)
	FindByToken(ctx context.Context, token string) (*Conversation, error)
	RecordAccess(ctx context.Context, id, ip, userAgent string, at time.Time) error
	RotateToken(ctx context.Context, id, token string, expiresAt time.Time) error
	// SetLock flips the lock flag and reason. It reports whether a row was
	// actually changed, which backs the unlock contract.
	SetLock(ctx context.Context, id string, locked bool, reason string) (bool, error)

	// Access ledger: append-only writes plus window counts. Counts must
	// reflect all previously committed inserts within the process.
	InsertAttempt(ctx context.Context, a *Attempt) error
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error)
	CountByTokenIPSince(ctx context.Context, token, ip string, since time.Time) (int, error)

	// Reporting read for the security dashboard.
	SecuritySummary(ctx context.Context, since time.Time) ([]AdminSummary, error)
}
