package progress

import (
	"context"

	"github.com/rtparts/catalogd/internal/catalog"
)

// InstrumentedFetcher wraps a Fetcher and counts fetch outcomes.
type InstrumentedFetcher struct {
	next    catalog.Fetcher
	metrics *Metrics
}

// InstrumentFetcher decorates next with the fetch outcome counter. A nil
// metrics set returns next unchanged.
func InstrumentFetcher(metrics *Metrics, next catalog.Fetcher) catalog.Fetcher {
	if metrics == nil {
		return next
	}
	return &InstrumentedFetcher{next: next, metrics: metrics}
}

// Fetch delegates to the wrapped fetcher and records the outcome as ok,
// challenge or error.
func (f *InstrumentedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := f.next.Fetch(ctx, url)
	switch {
	case err == nil:
		f.metrics.Fetches.WithLabelValues("ok").Inc()
	case catalog.IsChallenge(err):
		f.metrics.Fetches.WithLabelValues("challenge").Inc()
	default:
		f.metrics.Fetches.WithLabelValues("error").Inc()
	}
	return body, err
}
