package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5/pgconn"

	"idoracle/internal/oracle/models"
	"idoracle/pkg/domain"
	"idoracle/pkg/platform/sentinel"
	txcontext "idoracle/pkg/platform/tx"
)

// serializationFailure is the SQLSTATE Postgres returns when a serializable
// transaction loses a race.
const serializationFailure = "40001"

// PostgresStore persists both registries in PostgreSQL.
// This store is pure I/O; the apply precondition lives in the runtime.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) exec(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

func (s *PostgresStore) Submit(ctx context.Context, req models.VerificationRequest) error {
	query := `
		INSERT INTO verification_requests (account_id, resource_id, submitted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET
			resource_id = EXCLUDED.resource_id,
			submitted_at = EXCLUDED.submitted_at
	`
	_, err := s.exec(ctx).ExecContext(ctx, query, req.Requester[:], req.ResourceID[:], int64(req.SubmittedAt))
	if err != nil {
		return fmt.Errorf("submit verification request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Contains(ctx context.Context, requester domain.AccountID) (bool, error) {
	var exists bool
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verification_requests WHERE account_id = $1)`,
		requester[:],
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check verification request: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, requester domain.AccountID) (*models.VerificationRequest, error) {
	query := `
		SELECT account_id, resource_id, submitted_at
		FROM verification_requests
		WHERE account_id = $1
	`
	req, err := scanRequest(s.exec(ctx).QueryRowContext(ctx, query, requester[:]))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get verification request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Remove(ctx context.Context, requester domain.AccountID) error {
	_, err := s.exec(ctx).ExecContext(ctx, `DELETE FROM verification_requests WHERE account_id = $1`, requester[:])
	if err != nil {
		return fmt.Errorf("remove verification request: %w", err)
	}
	return nil
}

// IteratePending streams rows from a single SELECT, which Postgres evaluates
// against one snapshot.
func (s *PostgresStore) IteratePending(ctx context.Context) iter.Seq2[models.VerificationRequest, error] {
	return func(yield func(models.VerificationRequest, error) bool) {
		rows, err := s.exec(ctx).QueryContext(ctx, `
			SELECT account_id, resource_id, submitted_at
			FROM verification_requests
			ORDER BY submitted_at, account_id
		`)
		if err != nil {
			yield(models.VerificationRequest{}, fmt.Errorf("list verification requests: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			req, err := scanRequest(rows)
			if err != nil {
				yield(models.VerificationRequest{}, fmt.Errorf("scan verification request: %w", err))
				return
			}
			if !yield(*req, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.VerificationRequest{}, fmt.Errorf("iterate verification requests: %w", err))
		}
	}
}

func (s *PostgresStore) Bind(ctx context.Context, binding models.IdentityBinding) error {
	query := `
		INSERT INTO identity_bindings (account_id, username, bound_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET
			username = EXCLUDED.username,
			bound_at = EXCLUDED.bound_at
	`
	_, err := s.exec(ctx).ExecContext(ctx, query, binding.Requester[:], string(binding.Username), int64(binding.BoundAt))
	if err != nil {
		return fmt.Errorf("bind identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, requester domain.AccountID) (*models.IdentityBinding, error) {
	var (
		rawAccount []byte
		username   string
		boundAt    int64
	)
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT account_id, username, bound_at FROM identity_bindings WHERE account_id = $1`,
		requester[:],
	).Scan(&rawAccount, &username, &boundAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup identity binding: %w", err)
	}
	account, err := domain.AccountIDFromBytes(rawAccount)
	if err != nil {
		return nil, fmt.Errorf("decode identity binding: %w", err)
	}
	return &models.IdentityBinding{
		Requester: account,
		Username:  domain.Username(username),
		BoundAt:   uint64(boundAt),
	}, nil
}

// RunInTx runs fn in a serializable transaction carried through ctx, so other
// stores sharing the same *sql.DB (the audit outbox) join it.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	err := txcontext.Run(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context) error {
		return fn(ctx, s)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
		return fmt.Errorf("registry transaction: %w", sentinel.ErrConflict)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.VerificationRequest, error) {
	var (
		rawAccount  []byte
		rawResource []byte
		submittedAt int64
	)
	if err := row.Scan(&rawAccount, &rawResource, &submittedAt); err != nil {
		return nil, err
	}
	account, err := domain.AccountIDFromBytes(rawAccount)
	if err != nil {
		return nil, err
	}
	resource, err := domain.ResourceIDFromBytes(rawResource)
	if err != nil {
		return nil, err
	}
	return &models.VerificationRequest{
		Requester:   account,
		ResourceID:  resource,
		SubmittedAt: uint64(submittedAt),
	}, nil
}
