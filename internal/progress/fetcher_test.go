package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rtparts/catalogd/internal/catalog"
)

type stubFetcher struct {
	body []byte
	err  error
}

func (s *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return s.body, s.err
}

func TestInstrumentFetcherCountsOutcomes(t *testing.T) {
	t.Parallel()

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ctx := context.Background()

	ok := InstrumentFetcher(metrics, &stubFetcher{body: []byte("<html></html>")})
	body, err := ok.Fetch(ctx, "https://site.test/")
	require.NoError(t, err)
	require.NotEmpty(t, body)

	challenged := InstrumentFetcher(metrics, &stubFetcher{err: &catalog.ChallengeError{URL: "https://site.test/p"}})
	_, err = challenged.Fetch(ctx, "https://site.test/p")
	require.True(t, catalog.IsChallenge(err))

	failing := InstrumentFetcher(metrics, &stubFetcher{err: errors.New("boom")})
	_, err = failing.Fetch(ctx, "https://site.test/q")
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Fetches.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Fetches.WithLabelValues("challenge")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Fetches.WithLabelValues("error")))
}

func TestInstrumentFetcherNilMetricsPassthrough(t *testing.T) {
	t.Parallel()

	next := &stubFetcher{body: []byte("x")}
	require.Equal(t, catalog.Fetcher(next), InstrumentFetcher(nil, next))
}
