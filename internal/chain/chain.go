package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"idoracle/internal/oracle/models"
	"idoracle/internal/oracle/runtime"
	"idoracle/internal/pool"
	"idoracle/pkg/domain"
	"idoracle/pkg/requestcontext"
)

// ErrEmptySigner rejects a signed submission without a signer.
var ErrEmptySigner = errors.New("signed extrinsic requires a signer")

// Listener is notified after each block is produced. Listeners run on the
// producing goroutine and must not block.
type Listener interface {
	OnBlock(ctx context.Context, block Block)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, block Block)

func (f ListenerFunc) OnBlock(ctx context.Context, block Block) {
	f(ctx, block)
}

type signedExtrinsic struct {
	signer    domain.AccountID
	call      models.Call
	requestID string
}

// Chain is a single-node development ledger. It executes signed extrinsics in
// arrival order, then the pool's ready unsigned transactions, one block at a
// time.
type Chain struct {
	runtime *runtime.Runtime
	pool    *pool.Pool
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	produceMu sync.Mutex

	queueMu sync.Mutex
	queue   []signedExtrinsic

	headMu    sync.RWMutex
	head      Block
	listeners []Listener
}

type Option func(*Chain)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Chain) {
		c.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		c.now = now
	}
}

func New(rt *runtime.Runtime, p *pool.Pool, opts ...Option) *Chain {
	c := &Chain{
		runtime: rt,
		pool:    p,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.head = Block{ProducedAt: c.now()}
	c.head.seal()
	return c
}

// Subscribe registers l for every subsequent block.
func (c *Chain) Subscribe(l Listener) {
	c.headMu.Lock()
	defer c.headMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// SubmitSigned queues call for the next block, authored by signer.
func (c *Chain) SubmitSigned(ctx context.Context, signer domain.AccountID, call models.Call) error {
	if signer.IsZero() {
		return ErrEmptySigner
	}
	if call == nil {
		return fmt.Errorf("%w: nil call", runtime.ErrCallShape)
	}
	c.queueMu.Lock()
	c.queue = append(c.queue, signedExtrinsic{
		signer:    signer,
		call:      call,
		requestID: requestcontext.RequestID(ctx),
	})
	c.queueMu.Unlock()
	return nil
}

// Head returns the latest produced block.
func (c *Chain) Head() Block {
	c.headMu.RLock()
	defer c.headMu.RUnlock()
	return c.head
}

// ProduceBlock executes the next block. A failing extrinsic is recorded in the
// block's results and does not affect the others.
func (c *Chain) ProduceBlock(ctx context.Context) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	c.produceMu.Lock()
	start := time.Now()

	parent := c.Head()
	block := Block{
		Height:     parent.Height + 1,
		ParentHash: parent.Hash,
		ProducedAt: c.now(),
	}

	c.queueMu.Lock()
	signed := c.queue
	c.queue = nil
	c.queueMu.Unlock()

	for _, x := range signed {
		event, err := c.runtime.Dispatch(ctx, block.Height, models.Signed(x.signer), x.call)
		block.Extrinsics = append(block.Extrinsics, c.result(len(block.Extrinsics), x.call, true, x.signer, x.requestID, event, err))
	}

	for _, tx := range c.pool.Ready() {
		c.pool.Remove(tx.Validity().Provides)
		event, err := c.runtime.ApplyAdmitted(ctx, block.Height, tx)
		block.Extrinsics = append(block.Extrinsics, c.result(len(block.Extrinsics), tx.Call(), false, tx.Call().Account, "", event, err))
	}

	block.seal()
	expired := c.pool.Prune(block.Height)

	c.headMu.Lock()
	c.head = block
	listeners := append([]Listener(nil), c.listeners...)
	c.headMu.Unlock()
	c.produceMu.Unlock()

	c.metrics.observeBlock(block, time.Since(start).Seconds())
	c.logger.InfoContext(ctx, "block produced",
		"height", block.Height,
		"hash", block.Hash,
		"extrinsics", len(block.Extrinsics),
		"expired", expired,
	)

	for _, l := range listeners {
		l.OnBlock(ctx, block)
	}
	return block, nil
}

func (c *Chain) result(index int, call models.Call, signed bool, account domain.AccountID, requestID string, event *models.Event, err error) ExtrinsicResult {
	r := ExtrinsicResult{
		Index:     index,
		Call:      call.CallName(),
		Signed:    signed,
		Account:   account,
		Success:   err == nil,
		RequestID: requestID,
		Event:     event,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Run produces a block every interval until ctx is cancelled.
func (c *Chain) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.ProduceBlock(ctx); err != nil {
				c.logger.ErrorContext(ctx, "block production failed", "error", err)
			}
		}
	}
}
