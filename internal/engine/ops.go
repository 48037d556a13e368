package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rtparts/catalogd/internal/catalog"
	"github.com/rtparts/catalogd/internal/parse"
)

// ParseURL fetches a single product page on demand, saves the result and
// returns it. Brand and model are left empty; an ad-hoc parse has no
// taxonomy context.
func (e *Engine) ParseURL(ctx context.Context, link string) (catalog.Product, error) {
	body, err := e.fetcher.Fetch(ctx, link)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("fetch %s: %w", link, err)
	}
	e.archiver.ArchivePage(ctx, link, body, e.clock.Now())

	product, err := parse.ExtractProduct(body, e.rules, "", "", link, e.clock.Now())
	if err != nil {
		return catalog.Product{}, err
	}
	if err := e.repo.Save(ctx, product); err != nil {
		return catalog.Product{}, fmt.Errorf("save product %s: %w", product.Article, err)
	}
	if e.metrics != nil {
		e.metrics.ProductsSaved.Inc()
	}
	e.notifier.ProductSaved(ctx, product)
	return product, nil
}

// ParseListPage fetches a single listing page and returns the absolute
// product URLs it references, without pagination or staleness filtering.
func (e *Engine) ParseListPage(ctx context.Context, link string) ([]string, error) {
	body, err := e.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", link, err)
	}

	hrefs, errs := parse.ProductLinks(body, e.rules.ProductItem, link)
	for _, perr := range errs {
		e.log.Warn("skipping unparsable product item", zap.Error(perr))
	}

	urls := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		abs, err := parse.AbsURL(e.cfg.SourceURL, href)
		if err != nil {
			e.log.Warn("skipping product with bad url", zap.Error(err))
			continue
		}
		urls = append(urls, abs)
	}
	return urls, nil
}
