package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rtparts/catalogd/internal/catalog"
)

type fakeCrawler struct {
	paused   bool
	resumed  bool
	progress catalog.Progress
	product  catalog.Product
	parseErr error
	urls     []string
}

func (f *fakeCrawler) Pause(context.Context) error  { f.paused = true; return nil }
func (f *fakeCrawler) Resume(context.Context) error { f.resumed = true; return nil }
func (f *fakeCrawler) Progress() catalog.Progress   { return f.progress }

func (f *fakeCrawler) ParseURL(context.Context, string) (catalog.Product, error) {
	return f.product, f.parseErr
}

func (f *fakeCrawler) ParseListPage(context.Context, string) ([]string, error) {
	return f.urls, f.parseErr
}

type fakeRepo struct {
	products []catalog.Product
	err      error
}

func (f *fakeRepo) Save(context.Context, catalog.Product) error { return f.err }

func (f *fakeRepo) GetOne(_ context.Context, article string) (*catalog.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.products {
		if f.products[i].Article == article {
			return &f.products[i], nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeRepo) List(context.Context) ([]catalog.Product, error) {
	return f.products, f.err
}

func (f *fakeRepo) ListByModel(_ context.Context, model string) ([]catalog.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []catalog.Product
	for _, p := range f.products {
		if p.Model == model {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, crawler *fakeCrawler, repo *fakeRepo) *httptest.Server {
	t.Helper()
	srv := NewServer(crawler, repo, prometheus.NewRegistry(), zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeCrawler{}, &fakeRepo{})
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadyzUnavailable(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeCrawler{}, &fakeRepo{err: errors.New("connection refused")})
	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{}
	ts := newTestServer(t, crawler, &fakeRepo{})

	resp, err := http.Post(ts.URL+"/v1/crawl/pause", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.True(t, crawler.paused)

	resp, err = http.Post(ts.URL+"/v1/crawl/resume", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.True(t, crawler.resumed)
}

func TestProgress(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{progress: catalog.Progress{Ready: 7, Total: 50, Stage: catalog.StageProducts}}
	ts := newTestServer(t, crawler, &fakeRepo{})

	resp, err := http.Get(ts.URL + "/v1/crawl/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got catalog.Progress
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, crawler.progress, got)
}

func TestParseProduct(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{product: catalog.Product{Article: "AB-123", Title: "Fuel pump"}}
	ts := newTestServer(t, crawler, &fakeRepo{})

	resp, err := http.Post(ts.URL+"/v1/parse", "application/json",
		strings.NewReader(`{"url":"https://site.test/p/1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got catalog.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "AB-123", got.Article)
}

func TestParseProductMissingURL(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeCrawler{}, &fakeRepo{})
	resp, err := http.Post(ts.URL+"/v1/parse", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseProductErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"challenge", &catalog.ChallengeError{URL: "https://site.test/p/1"}, http.StatusBadGateway},
		{"no article", catalog.ErrNoArticle, http.StatusUnprocessableEntity},
		{"no title", catalog.ErrNoTitle, http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t, &fakeCrawler{parseErr: tc.err}, &fakeRepo{})
			resp, err := http.Post(ts.URL+"/v1/parse", "application/json",
				strings.NewReader(`{"url":"https://site.test/p/1"}`))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, tc.code, resp.StatusCode)
		})
	}
}

func TestParsePage(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{urls: []string{"https://site.test/p/1", "https://site.test/p/2"}}
	ts := newTestServer(t, crawler, &fakeRepo{})

	resp, err := http.Post(ts.URL+"/v1/parse/page", "application/json",
		strings.NewReader(`{"url":"https://site.test/list"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, crawler.urls, got["urls"])
}

func TestListProducts(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{products: []catalog.Product{
		{Article: "A-1", Model: "kamaz-5320"},
		{Article: "B-2", Model: "maz-5336"},
	}}
	ts := newTestServer(t, &fakeCrawler{}, repo)

	resp, err := http.Get(ts.URL + "/v1/products")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []catalog.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
}

func TestListProductsByModel(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{products: []catalog.Product{
		{Article: "A-1", Model: "kamaz-5320"},
		{Article: "B-2", Model: "maz-5336"},
	}}
	ts := newTestServer(t, &fakeCrawler{}, repo)

	resp, err := http.Get(ts.URL + "/v1/products?model=kamaz-5320")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []catalog.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	require.Equal(t, "A-1", got[0].Article)
}

func TestCountProducts(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{products: []catalog.Product{{Article: "A-1"}, {Article: "B-2"}, {Article: "C-3"}}}
	ts := newTestServer(t, &fakeCrawler{}, repo)

	resp, err := http.Get(ts.URL + "/v1/products/count")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, 3, got["count"])
}

func TestGetProduct(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{products: []catalog.Product{{Article: "A-1", Title: "Brake drum"}}}
	ts := newTestServer(t, &fakeCrawler{}, repo)

	resp, err := http.Get(ts.URL + "/v1/products/A-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got catalog.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "Brake drum", got.Title)
}

func TestGetProductNotFound(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeCrawler{}, &fakeRepo{})
	resp, err := http.Get(ts.URL + "/v1/products/NOPE")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeCrawler{}, &fakeRepo{})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
