package audit

import (
	"context"

	"idoracle/pkg/domain"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListByAccount returns the account's events, oldest first.
	ListByAccount(ctx context.Context, account domain.AccountID) ([]Event, error)
	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
