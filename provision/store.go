package provision

import (
	"context"
	"time"

	"github.com/campusconnect/events-backend/model"
)

// Tx is the account lookup and mutation surface available inside one
// reconciliation transaction. Lookup methods return (nil, nil) when no
// matching account exists.
type Tx interface {
	// AccountByExternalID finds the account owning an IdP subject id.
	AccountByExternalID(ctx context.Context, externalID string) (*model.Account, error)

	// InFlightByKey finds an account in CREATING or PENDING whose
	// idempotency key matches.
	InFlightByKey(ctx context.Context, key string) (*model.Account, error)

	// AccountByEmail finds the account owning a normalized email.
	AccountByEmail(ctx context.Context, email string) (*model.Account, error)

	// InsertAccount persists a new account document.
	InsertAccount(ctx context.Context, acct *model.Account) error

	// UpdateAccount persists the mutable fields of an existing account
	// (state, transitions, identity linkage, last error).
	UpdateAccount(ctx context.Context, acct *model.Account) error

	// DeleteAccount removes an account document, releasing its unique
	// index slots within the same transaction.
	DeleteAccount(ctx context.Context, acct *model.Account) error
}

// Store is the persistence boundary for the provisioning core. The
// production implementation lives on ArangoDB; tests substitute an
// in-memory one.
type Store interface {
	// Reconcile runs fn inside one atomic, serializable, durably-committed
	// transaction over the accounts collection. fn returning an error
	// aborts the transaction.
	Reconcile(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// NextSequence atomically increments and returns the named counter.
	// Two concurrent calls never observe the same value.
	NextSequence(ctx context.Context, counter string) (int64, error)

	// PromoteToActive advances a PENDING account to ACTIVE outside any
	// transaction. It is a no-op when the account is no longer PENDING.
	PromoteToActive(ctx context.Context, id string) error

	// MarkError force-moves the in-flight account holding key into ERROR
	// with lastError populated. It is a no-op when no such account exists.
	MarkError(ctx context.Context, key, lastError string) error

	// DeleteStale removes up to limit accounts sitting in state since
	// before cutoff and returns how many were removed.
	DeleteStale(ctx context.Context, state model.AccountState, cutoff time.Time, limit int) (int, error)

	// StaleInState returns up to limit accounts sitting in state since
	// before cutoff.
	StaleInState(ctx context.Context, state model.AccountState, cutoff time.Time, limit int) ([]*model.Account, error)

	// CountsByState aggregates account totals per lifecycle state.
	CountsByState(ctx context.Context) (map[model.AccountState]int, error)

	// AccountByID fetches one account by its opaque id.
	AccountByID(ctx context.Context, id string) (*model.Account, error)
}
