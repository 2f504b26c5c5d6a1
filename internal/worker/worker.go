package worker

//go:generate mockgen -source=worker.go -destination=mocks/mocks.go -package=mocks Fetcher,Parser,Submitter

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"idoracle/internal/evidence/gist"
	"idoracle/internal/oracle/models"
	"idoracle/pkg/domain"
)

const defaultConcurrency = 4

// PendingReader is the read-only registry view a round snapshots.
type PendingReader interface {
	IteratePending(ctx context.Context) iter.Seq2[models.VerificationRequest, error]
}

type Fetcher interface {
	Fetch(ctx context.Context, id domain.ResourceID) ([]byte, error)
}

type Parser interface {
	Parse(raw []byte) (gist.Gist, error)
}

// Invalidator drops fetched content that turned out not to prove ownership.
type Invalidator interface {
	Invalidate(ctx context.Context, id domain.ResourceID) error
}

// Submitter is the pool boundary. It is the worker's only way to affect
// consensus state.
type Submitter interface {
	SubmitUnsigned(ctx context.Context, call models.Call) error
}

// Worker verifies pending claims off-chain and submits unsigned responses
// for the ones whose proof checks out. Rounds are best effort: every failure
// is contained to its request and surfaced in the Report.
type Worker struct {
	pending     PendingReader
	fetcher     Fetcher
	parser      Parser
	submitter   Submitter
	invalidator Invalidator
	encoder     domain.AccountEncoder
	concurrency int
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer

	busy   atomic.Bool
	rounds sync.WaitGroup
}

type Option func(*Worker)

func WithEncoder(encoder domain.AccountEncoder) Option {
	return func(w *Worker) {
		w.encoder = encoder
	}
}

// WithConcurrency bounds how many requests a round processes at once.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithInvalidator evicts cached content after a parse failure or proof
// mismatch, so a fixed gist is picked up on the next round.
func WithInvalidator(inv Invalidator) Option {
	return func(w *Worker) {
		w.invalidator = inv
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *Worker) {
		w.tracer = tracer
	}
}

func New(pending PendingReader, fetcher Fetcher, parser Parser, submitter Submitter, opts ...Option) (*Worker, error) {
	if pending == nil {
		return nil, errors.New("pending reader is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if parser == nil {
		return nil, errors.New("parser is required")
	}
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	w := &Worker{
		pending:     pending,
		fetcher:     fetcher,
		parser:      parser,
		submitter:   submitter,
		encoder:     domain.HexEncoder{},
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		tracer:      otel.Tracer("idoracle/worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnBlock starts a round for the block at height in the background. If the
// previous round is still running, the block is skipped and OnBlock returns
// false.
func (w *Worker) OnBlock(ctx context.Context, height uint64) bool {
	if !w.busy.CompareAndSwap(false, true) {
		w.metrics.recordSkipped()
		w.logger.DebugContext(ctx, "worker round skipped, previous round still running", "height", height)
		return false
	}
	w.rounds.Add(1)
	go func() {
		defer w.rounds.Done()
		defer w.busy.Store(false)
		w.RunRound(ctx, height)
	}()
	return true
}

// Wait blocks until the background round, if any, has finished.
func (w *Worker) Wait() {
	w.rounds.Wait()
}

// RunRound processes a snapshot of the pending requests.
func (w *Worker) RunRound(ctx context.Context, height uint64) Report {
	start := time.Now()
	report := newReport(height)

	ctx, span := w.tracer.Start(ctx, "worker.round", trace.WithAttributes(
		attribute.Int64("block.height", int64(height)),
		attribute.String("round.id", report.Round.String()),
	))
	defer span.End()

	snapshot, err := w.snapshot(ctx)
	if err != nil {
		report.SnapshotErr = err
		span.RecordError(err)
		w.logger.WarnContext(ctx, "pending snapshot incomplete", "height", height, "read", len(snapshot), "error", err)
	}
	report.Pending = len(snapshot)

	outcomes := make([]Outcome, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, req := range snapshot {
		g.Go(func() error {
			outcomes[i] = w.verify(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		report.add(o)
	}
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("round.pending", report.Pending),
		attribute.Int("round.submitted", report.Submitted),
		attribute.Int("round.failed", report.Failed()),
	)
	w.metrics.observeRound(report)
	w.logger.InfoContext(ctx, "worker round finished",
		"round", report.Round,
		"height", height,
		"pending", report.Pending,
		"submitted", report.Submitted,
		"fetch_failures", report.Failures[FailureFetch],
		"parse_failures", report.Failures[FailureParse],
		"proof_mismatches", report.Failures[FailureProofMismatch],
		"submission_failures", report.Failures[FailureSubmission],
		"duration", report.Duration,
	)
	return report
}

func (w *Worker) snapshot(ctx context.Context) ([]models.VerificationRequest, error) {
	var out []models.VerificationRequest
	for req, err := range w.pending.IteratePending(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, req)
	}
	return out, nil
}

func (w *Worker) verify(ctx context.Context, req models.VerificationRequest) (o Outcome) {
	o = Outcome{Requester: req.Requester, ResourceID: req.ResourceID}

	ctx, span := w.tracer.Start(ctx, "worker.verify", trace.WithAttributes(
		attribute.String("account", req.Requester.String()),
		attribute.String("resource_id", req.ResourceID.String()),
	))
	defer func() {
		if o.Err != nil {
			span.RecordError(o.Err)
			span.SetStatus(codes.Error, string(o.Failure))
			w.logger.DebugContext(ctx, "verification failed",
				"account", req.Requester,
				"resource_id", req.ResourceID,
				"failure", o.Failure,
				"error", o.Err,
			)
		}
		span.End()
	}()

	raw, err := w.fetcher.Fetch(ctx, req.ResourceID)
	if err != nil {
		o.Failure, o.Err = FailureFetch, err
		return o
	}

	g, err := w.parser.Parse(raw)
	if err != nil {
		o.Failure, o.Err = FailureParse, err
		w.invalidate(ctx, req.ResourceID)
		return o
	}

	expected := string(w.encoder.Encode(req.Requester))
	if g.Filename != expected {
		o.Failure, o.Err = FailureProofMismatch, fmt.Errorf("%w: got %q", ErrProofMismatch, g.Filename)
		w.invalidate(ctx, req.ResourceID)
		return o
	}

	o.Username = g.Owner
	if err := w.submitter.SubmitUnsigned(ctx, models.RespondVerification{Account: req.Requester, Username: g.Owner}); err != nil {
		o.Failure, o.Err = FailureSubmission, err
		return o
	}
	o.Submitted = true
	return o
}

func (w *Worker) invalidate(ctx context.Context, id domain.ResourceID) {
	if w.invalidator == nil {
		return
	}
	if err := w.invalidator.Invalidate(ctx, id); err != nil {
		w.logger.WarnContext(ctx, "failed to invalidate fetched gist", "resource_id", id, "error", err)
	}
}
