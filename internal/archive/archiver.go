// Package archive persists raw fetched pages so crawls can be replayed and
// selector regressions debugged against the exact HTML that was seen.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rtparts/catalogd/internal/catalog"
	"github.com/rtparts/catalogd/internal/hash/sha256"
)

// Archiver writes page snapshots to a BlobStore. Failures are logged, never
// propagated; archival must not slow down or abort a crawl.
type Archiver struct {
	store  catalog.BlobStore
	prefix string
	hasher *sha256.Hasher
	log    *zap.Logger
}

// New builds an Archiver. A nil store disables archival.
func New(store catalog.BlobStore, prefix string, log *zap.Logger) *Archiver {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = "pages"
	}
	return &Archiver{
		store:  store,
		prefix: prefix,
		hasher: sha256.New(),
		log:    log,
	}
}

// ArchivePage stores body under a date-partitioned, content-addressed path.
func (a *Archiver) ArchivePage(ctx context.Context, pageURL string, body []byte, at time.Time) {
	if a == nil || a.store == nil {
		return
	}

	path := fmt.Sprintf("%s/%s/%s-%s.html",
		a.prefix,
		at.UTC().Format("2006/01/02"),
		slugFromURL(pageURL),
		a.hasher.Short(body, 12),
	)

	uri, err := a.store.PutObject(ctx, path, "text/html; charset=utf-8", body)
	if err != nil {
		a.log.Warn("archive page", zap.String("url", pageURL), zap.Error(err))
		return
	}
	a.log.Debug("page archived", zap.String("url", pageURL), zap.String("uri", uri))
}

func slugFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "page"
	}
	slug := strings.Trim(u.Path, "/")
	if slug == "" {
		slug = u.Host
	}
	slug = strings.NewReplacer("/", "-", ".", "-", "_", "-").Replace(slug)
	if slug == "" {
		return "page"
	}
	return slug
}
