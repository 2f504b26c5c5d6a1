package gist

import (
	"context"
	"log/slog"

	"idoracle/pkg/domain"
	"idoracle/pkg/platform/circuit"
)

// BreakerFetcher stops calling the gist API after repeated upstream failures
// and fails fast with a network FetchError until a probe succeeds.
type BreakerFetcher struct {
	next    Fetcher
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

func NewBreakerFetcher(next Fetcher, breaker *circuit.Breaker, logger *slog.Logger, m *Metrics) *BreakerFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerFetcher{next: next, breaker: breaker, logger: logger, metrics: m}
}

func (b *BreakerFetcher) Fetch(ctx context.Context, id domain.ResourceID) ([]byte, error) {
	if !b.breaker.Allow() {
		return nil, &FetchError{Kind: FetchNetwork, ResourceID: id.String(), Err: ErrCircuitOpen}
	}

	raw, err := b.next.Fetch(ctx, id)
	if IsUpstreamFailure(err) {
		if _, change := b.breaker.RecordFailure(); change.Opened {
			b.metrics.setBreakerOpen(true)
			b.logger.WarnContext(ctx, "gist api circuit opened", "breaker", b.breaker.Name(), "error", err)
		}
		return nil, err
	}
	if _, change := b.breaker.RecordSuccess(); change.Closed {
		b.metrics.setBreakerOpen(false)
		b.logger.InfoContext(ctx, "gist api circuit closed", "breaker", b.breaker.Name())
	}
	return raw, err
}
