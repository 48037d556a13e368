package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rtparts/catalogd/internal/catalog"
)

const challengeMarker = "<title>Browser check, please wait ...</title>"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	policy := NewExponentialRetryPolicyWith(3, time.Millisecond, 5*time.Millisecond)
	detector := NewChallengeDetector(challengeMarker)
	return New(Config{UserAgent: "catalogd-test", Timeout: 5 * time.Second}, policy, detector, zaptest.NewLogger(t))
}

func TestClientFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>catalog</body></html>"))
	}))
	defer srv.Close()

	body, err := newTestClient(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, string(body), "catalog")
}

func TestClientFetchChallengeNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html>" + challengeMarker + "</html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.True(t, catalog.IsChallenge(err))

	var challenge *catalog.ChallengeError
	require.ErrorAs(t, err, &challenge)
	require.Equal(t, srv.URL, challenge.URL)
	require.Equal(t, int32(1), hits.Load())
}

func TestClientRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok at last"))
	}))
	defer srv.Close()

	body, err := newTestClient(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ok at last", string(body))
	require.Equal(t, int32(3), hits.Load())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Equal(t, int32(3), hits.Load())
}

func TestClientCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t).Fetch(ctx, srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
