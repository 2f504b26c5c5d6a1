package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"idoracle/internal/oracle/metrics"
	"idoracle/internal/oracle/models"
	"idoracle/internal/oracle/store"
	"idoracle/pkg/domain"
)

// Runtime executes extrinsics against the oracle store. It is called only from
// block execution, which serializes all calls.
type Runtime struct {
	store   store.Store
	gate    *Gate
	encoder domain.AccountEncoder
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Runtime)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

func WithEncoder(encoder domain.AccountEncoder) Option {
	return func(r *Runtime) {
		r.encoder = encoder
	}
}

// WithClock sets the time stamped on emitted events.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		r.now = now
	}
}

func New(st store.Store, opts ...Option) *Runtime {
	r := &Runtime{
		store:   st,
		encoder: domain.HexEncoder{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.gate = NewGate(st, r.encoder, r.logger, r.metrics)
	return r
}

// Gate returns the admission gate bound to this runtime's store.
func (r *Runtime) Gate() *Gate {
	return r.gate
}

// Dispatch executes a signed call at height. Unsigned calls are rejected with
// ErrBadOrigin: they only run through ApplyAdmitted.
func (r *Runtime) Dispatch(ctx context.Context, height uint64, origin models.Origin, call models.Call) (*models.Event, error) {
	if _, signed := origin.Signer(); !signed {
		r.metrics.RecordDispatch(callName(call), Outcome(ErrBadOrigin))
		return nil, fmt.Errorf("%w: %s requires a signed origin", ErrBadOrigin, callName(call))
	}
	return r.dispatch(ctx, height, origin, call)
}

// ApplyAdmitted executes a gate-admitted response at height.
func (r *Runtime) ApplyAdmitted(ctx context.Context, height uint64, tx Admitted) (*models.Event, error) {
	if !tx.minted {
		r.metrics.RecordDispatch("respond_verification", Outcome(ErrCallShape))
		return nil, fmt.Errorf("%w: response was not admitted", ErrCallShape)
	}
	return r.dispatch(ctx, height, models.None(), tx.call)
}

func (r *Runtime) dispatch(ctx context.Context, height uint64, origin models.Origin, call models.Call) (*models.Event, error) {
	var (
		event *models.Event
		err   error
	)
	switch c := call.(type) {
	case models.RequestVerification:
		if err = validateRequest(origin, c); err == nil {
			signer, _ := origin.Signer()
			event, err = r.requestVerification(ctx, height, signer, c)
		}
	case models.RespondVerification:
		if err = validateResponse(origin, c); err == nil {
			event, err = r.applyResponse(ctx, height, c)
		}
	default:
		err = fmt.Errorf("%w: unknown call %T", ErrCallShape, call)
	}

	r.metrics.RecordDispatch(callName(call), Outcome(err))
	if err != nil {
		r.logger.DebugContext(ctx, "extrinsic failed",
			"call", callName(call),
			"height", height,
			"error", err,
		)
		return nil, err
	}
	return event, nil
}

func validateRequest(origin models.Origin, call models.RequestVerification) error {
	if _, signed := origin.Signer(); !signed {
		return fmt.Errorf("%w: request_verification requires a signed origin", ErrBadOrigin)
	}
	if call.ResourceID.IsZero() {
		return fmt.Errorf("%w: empty resource id", ErrCallShape)
	}
	return nil
}

func validateResponse(origin models.Origin, call models.RespondVerification) error {
	if _, signed := origin.Signer(); signed {
		return fmt.Errorf("%w: respond_verification must be unsigned", ErrBadOrigin)
	}
	if call.Account.IsZero() {
		return fmt.Errorf("%w: empty account", ErrCallShape)
	}
	if call.Username == "" {
		return fmt.Errorf("%w: empty username", ErrCallShape)
	}
	return nil
}

func (r *Runtime) requestVerification(ctx context.Context, height uint64, signer domain.AccountID, call models.RequestVerification) (*models.Event, error) {
	err := r.store.Submit(ctx, models.VerificationRequest{
		Requester:   signer,
		ResourceID:  call.ResourceID,
		SubmittedAt: height,
	})
	if err != nil {
		return nil, fmt.Errorf("submit verification request: %w", err)
	}
	return &models.Event{
		Kind:       models.EventVerificationRequested,
		Height:     height,
		Account:    signer,
		ResourceID: call.ResourceID,
		At:         r.now(),
	}, nil
}

// applyResponse removes the pending request and records the binding as one
// step. A response whose request is already gone has no effect.
func (r *Runtime) applyResponse(ctx context.Context, height uint64, call models.RespondVerification) (*models.Event, error) {
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		pending, err := tx.Contains(ctx, call.Account)
		if err != nil {
			return fmt.Errorf("check pending request: %w", err)
		}
		if !pending {
			return ErrNoMatchingRequest
		}
		if err := tx.Remove(ctx, call.Account); err != nil {
			return fmt.Errorf("remove request: %w", err)
		}
		if err := tx.Bind(ctx, models.IdentityBinding{
			Requester: call.Account,
			Username:  call.Username,
			BoundAt:   height,
		}); err != nil {
			return fmt.Errorf("bind identity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.IncrementBindings()
	r.logger.InfoContext(ctx, "identity bound",
		"account", call.Account,
		"username", call.Username,
		"height", height,
	)
	return &models.Event{
		Kind:     models.EventIdentityBound,
		Height:   height,
		Account:  call.Account,
		Username: call.Username,
		At:       r.now(),
	}, nil
}

func callName(call models.Call) string {
	if call == nil {
		return "unknown"
	}
	return call.CallName()
}
