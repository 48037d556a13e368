package parse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rtparts/catalogd/internal/catalog"
)

// Paginate fetches the listing at firstURL and walks next-page links until
// the last page, returning every page body in order. A challenge on any page
// aborts the walk; other next-page failures end it with the pages collected
// so far.
func Paginate(ctx context.Context, f catalog.Fetcher, baseURL, firstURL, nextSelector string, log *zap.Logger) ([][]byte, error) {
	if log == nil {
		log = zap.NewNop()
	}

	first, err := AbsURL(baseURL, firstURL)
	if err != nil {
		return nil, err
	}
	body, err := f.Fetch(ctx, first)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", first, err)
	}

	pages := [][]byte{body}
	visited := map[string]bool{first: true}

	for {
		next, err := NextPageLink(body, nextSelector)
		if err != nil || next == "" {
			return pages, nil
		}
		nextURL, err := AbsURL(baseURL, next)
		if err != nil {
			log.Warn("bad next-page link", zap.String("href", next), zap.Error(err))
			return pages, nil
		}
		if visited[nextURL] {
			log.Warn("pagination loop detected", zap.String("url", nextURL))
			return pages, nil
		}
		visited[nextURL] = true

		body, err = f.Fetch(ctx, nextURL)
		if err != nil {
			if catalog.IsChallenge(err) || ctx.Err() != nil {
				return pages, err
			}
			log.Error("next page fetch failed", zap.String("url", nextURL), zap.Error(err))
			return pages, nil
		}
		pages = append(pages, body)
	}
}
