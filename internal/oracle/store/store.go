package store

import (
	"context"
	"errors"
	"iter"

	"idoracle/internal/oracle/models"
	"idoracle/pkg/domain"
	"idoracle/pkg/platform/sentinel"
)

// ErrNotFound is returned when no request or binding exists for an account.
var ErrNotFound = sentinel.ErrNotFound

// PendingReader is the read-only view handed to the verification worker.
type PendingReader interface {
	// IteratePending lazily yields the pending requests that existed when it
	// was called. Mutations made while iterating may or may not be observed.
	IteratePending(ctx context.Context) iter.Seq2[models.VerificationRequest, error]
}

// Requests is the request registry: one pending claim per requester.
type Requests interface {
	PendingReader
	// Submit inserts or replaces the requester's pending claim.
	Submit(ctx context.Context, req models.VerificationRequest) error
	Contains(ctx context.Context, requester domain.AccountID) (bool, error)
	// Get returns ErrNotFound when requester has nothing pending.
	Get(ctx context.Context, requester domain.AccountID) (*models.VerificationRequest, error)
	// Remove is idempotent.
	Remove(ctx context.Context, requester domain.AccountID) error
}

// Bindings maps accounts to their verified external identity.
type Bindings interface {
	// Bind inserts or replaces the requester's binding.
	Bind(ctx context.Context, binding models.IdentityBinding) error
	// Lookup returns ErrNotFound when requester has no binding.
	Lookup(ctx context.Context, requester domain.AccountID) (*models.IdentityBinding, error)
}

// Store owns both registries. Writes are reserved for block execution.
type Store interface {
	Requests
	Bindings
	// RunInTx runs fn atomically: either every write fn makes through tx
	// becomes visible, or none does. Readers never observe a partial state.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
