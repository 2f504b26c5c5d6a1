package pool

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"idoracle/internal/oracle/models"
	"idoracle/internal/oracle/runtime"
)

const defaultCapacity = 1024

// Admitter is the admission gate every unsigned candidate passes before it is
// queued.
type Admitter interface {
	Admit(ctx context.Context, call models.Call) (runtime.Admitted, error)
}

// Propagator forwards locally submitted transactions to other nodes.
type Propagator interface {
	Propagate(ctx context.Context, call models.RespondVerification) error
}

type entry struct {
	tx        runtime.Admitted
	seq       uint64
	expiresAt uint64
}

// Pool holds admitted unsigned transactions until block production includes
// them or their longevity runs out. It keeps at most one transaction per tag.
type Pool struct {
	gate       Admitter
	capacity   int
	propagator Propagator
	logger     *slog.Logger
	metrics    *Metrics

	mu      sync.Mutex
	head    uint64
	seq     uint64
	entries map[runtime.Tag]entry
}

type Option func(*Pool)

func WithCapacity(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.capacity = n
		}
	}
}

func WithPropagator(propagator Propagator) Option {
	return func(p *Pool) {
		p.propagator = propagator
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

func New(gate Admitter, opts ...Option) *Pool {
	p := &Pool{
		gate:     gate,
		capacity: defaultCapacity,
		logger:   slog.Default(),
		entries:  make(map[runtime.Tag]entry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SubmitUnsigned admits a locally produced candidate and, when the gate marks
// it for propagation, forwards it to peers.
func (p *Pool) SubmitUnsigned(ctx context.Context, call models.Call) error {
	admitted, err := p.submit(ctx, "local", call)
	if err != nil {
		return err
	}
	if p.propagator != nil && admitted.Validity().Propagate {
		if err := p.propagator.Propagate(ctx, admitted.Call()); err != nil {
			p.logger.WarnContext(ctx, "failed to propagate transaction",
				"account", admitted.Call().Account,
				"error", err,
			)
		}
	}
	return nil
}

// ImportGossiped admits a candidate received from a peer. It is never
// propagated again.
func (p *Pool) ImportGossiped(ctx context.Context, call models.Call) error {
	_, err := p.submit(ctx, "gossip", call)
	return err
}

func (p *Pool) submit(ctx context.Context, source string, call models.Call) (runtime.Admitted, error) {
	admitted, err := p.gate.Admit(ctx, call)
	if err != nil {
		p.metrics.recordSubmission(source, runtime.Outcome(err))
		return runtime.Admitted{}, err
	}
	validity := admitted.Validity()

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.entries[validity.Provides]; ok {
		if validity.Priority <= existing.tx.Validity().Priority {
			p.metrics.recordSubmission(source, "already_present")
			return runtime.Admitted{}, ErrAlreadyPresent
		}
	} else if len(p.entries) >= p.capacity {
		p.metrics.recordSubmission(source, "pool_full")
		return runtime.Admitted{}, ErrPoolFull
	}

	p.seq++
	p.entries[validity.Provides] = entry{
		tx:        admitted,
		seq:       p.seq,
		expiresAt: p.head + validity.Longevity,
	}
	p.metrics.recordSubmission(source, "ok")
	p.metrics.setSize(len(p.entries))
	return admitted, nil
}

// Ready returns the queued transactions in inclusion order: priority
// descending, then arrival.
func (p *Pool) Ready() []runtime.Admitted {
	p.mu.Lock()
	entries := make([]entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.Unlock()

	slices.SortFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(b.tx.Validity().Priority, a.tx.Validity().Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]runtime.Admitted, len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out
}

// Remove drops the transactions providing tags. Unknown tags are ignored.
func (p *Pool) Remove(tags ...runtime.Tag) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tag := range tags {
		delete(p.entries, tag)
	}
	p.metrics.setSize(len(p.entries))
}

// Prune advances the pool to the new chain head and drops every transaction
// that can no longer be included in the next block. It returns the number of
// expired transactions.
func (p *Pool) Prune(head uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.head = head
	expired := 0
	for tag, e := range p.entries {
		if e.expiresAt <= head {
			delete(p.entries, tag)
			expired++
		}
	}
	p.metrics.addExpired(expired)
	p.metrics.setSize(len(p.entries))
	return expired
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// IsRejection reports whether err is a pool or gate verdict on the candidate
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrPoolFull) ||
		errors.Is(err, ErrAlreadyPresent) ||
		errors.Is(err, runtime.ErrStale) ||
		errors.Is(err, runtime.ErrCallShape)
}
