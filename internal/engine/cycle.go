package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rtparts/catalogd/internal/catalog"
	"github.com/rtparts/catalogd/internal/parse"
)

// cycle runs one full crawl: brands, models, product lists for both the
// model tree and the category tree, then product details. A brands failure
// aborts the cycle; models and product-list failures retry in place.
func (e *Engine) cycle(ctx context.Context) error {
	e.tracker.BeginStage(catalog.StageBrands, 1)
	brands, err := e.fetchNodes(ctx, e.cfg.SourceURL, e.rules.Brands, "")
	if err != nil {
		return fmt.Errorf("parse brands: %w", err)
	}
	e.tracker.Add(1)
	e.log.Info("brands parsed", zap.Int("count", len(brands)))

	models, err := e.modelsStage(ctx, brands)
	if err != nil {
		return err
	}
	e.log.Info("models parsed", zap.Int("count", len(models)))

	links, err := e.productListStage(ctx, models)
	if err != nil {
		return err
	}
	links = e.unionStaleProducts(ctx, links)
	e.log.Info("product links collected", zap.Int("count", len(links)))

	// The category tree is a secondary discovery path; its failures never
	// abort the cycle.
	e.categoriesBranch(ctx)

	return e.runProducts(ctx, links)
}

// fetchNodes fetches one page and extracts taxonomy anchors resolved to
// absolute URLs. Item-level extraction failures are logged and skipped.
func (e *Engine) fetchNodes(ctx context.Context, pageURL, selector, parentLabel string) ([]catalog.CrawlNode, error) {
	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if catalog.IsChallenge(err) && e.metrics != nil {
			e.metrics.ChallengesSeen.Inc()
		}
		return nil, err
	}
	e.archiver.ArchivePage(ctx, pageURL, body, e.clock.Now())

	nodes, errs := parse.Nodes(body, selector, pageURL, parentLabel)
	for _, perr := range errs {
		e.log.Warn("skipping unparsable item", zap.Error(perr))
	}
	for i := range nodes {
		abs, err := parse.AbsURL(e.cfg.SourceURL, nodes[i].URL)
		if err != nil {
			e.log.Warn("skipping node with bad url", zap.String("href", nodes[i].URL), zap.Error(err))
			continue
		}
		nodes[i].URL = abs
	}
	return nodes, nil
}

// modelsStage returns the model list, using the checkpoint when it is fresh.
// Cached models whose brand no longer exists are dropped. A parse failure
// retries the whole stage.
func (e *Engine) modelsStage(ctx context.Context, brands []catalog.CrawlNode) ([]catalog.PendingLink, error) {
	cached, err := e.cp.LoadModels()
	if err != nil {
		e.log.Error("read models checkpoint", zap.Error(err))
		cached = nil
	}
	if len(cached) > 0 {
		known := make(map[string]bool, len(brands))
		for _, b := range brands {
			known[b.Label] = true
		}
		models := cached[:0]
		for _, m := range cached {
			if !known[m.Brand] {
				e.log.Warn("dropping cached model with unknown brand",
					zap.String("model", m.Model), zap.String("brand", m.Brand))
				continue
			}
			models = append(models, m)
		}
		e.log.Info("using cached models", zap.Int("count", len(models)))
		e.tracker.BeginStage(catalog.StageModels, uint64(len(models)))
		e.tracker.Add(uint64(len(models)))
		return models, nil
	}

	for {
		e.tracker.BeginStage(catalog.StageModels, uint64(len(brands)))
		models, err := e.expandNodes(ctx, brands, e.rules.Models)
		if err == nil {
			if err := e.cp.SaveModels(models); err != nil {
				e.log.Warn("write models checkpoint", zap.Error(err))
			} else if e.metrics != nil {
				e.metrics.CheckpointSaves.WithLabelValues("models").Inc()
			}
			return models, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Error("models stage failed, retrying", zap.Error(err))
		if err := e.pausePoint(ctx); err != nil {
			return nil, err
		}
	}
}

// expandNodes fetches every parent node concurrently and extracts its child
// anchors as pending links carrying the parent label as brand. A parent page
// with no child anchors stands in for itself so its listing still gets
// walked.
func (e *Engine) expandNodes(ctx context.Context, parents []catalog.CrawlNode, selector string) ([]catalog.PendingLink, error) {
	var (
		mu  sync.Mutex
		out []catalog.PendingLink
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, parent := range parents {
		parent := parent
		g.Go(func() error {
			children, err := e.fetchNodes(gctx, parent.URL, selector, parent.Label)
			if err != nil {
				return fmt.Errorf("expand %s: %w", parent.URL, err)
			}
			e.tracker.Add(1)
			mu.Lock()
			defer mu.Unlock()
			if len(children) == 0 {
				out = append(out, catalog.PendingLink{URL: parent.URL, Model: parent.Label, Brand: parent.Label})
				return nil
			}
			for _, c := range children {
				out = append(out, catalog.PendingLink{URL: c.URL, Model: c.Label, Brand: parent.Label})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// productListStage walks each model's paginated listing and returns the
// product links whose stored products are stale or unknown. A failure
// retries the whole stage.
func (e *Engine) productListStage(ctx context.Context, models []catalog.PendingLink) ([]catalog.PendingLink, error) {
	for {
		e.tracker.BeginStage(catalog.StageProductList, uint64(len(models)))
		links, err := e.collectProductLinks(ctx, models)
		if err == nil {
			return links, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Error("product list stage failed, retrying", zap.Error(err))
		if err := e.pausePoint(ctx); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) collectProductLinks(ctx context.Context, models []catalog.PendingLink) ([]catalog.PendingLink, error) {
	var (
		mu  sync.Mutex
		out []catalog.PendingLink
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, model := range models {
		model := model
		g.Go(func() error {
			links, err := e.modelProductLinks(gctx, model)
			if err != nil {
				return err
			}
			e.tracker.Add(1)
			mu.Lock()
			out = append(out, links...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// modelProductLinks paginates one model's listing and filters out links whose
// products were visited within the freshness window.
func (e *Engine) modelProductLinks(ctx context.Context, model catalog.PendingLink) ([]catalog.PendingLink, error) {
	pages, err := parse.Paginate(ctx, e.fetcher, e.cfg.SourceURL, model.URL, e.rules.NextPage, e.log)
	if err != nil {
		if catalog.IsChallenge(err) && e.metrics != nil {
			e.metrics.ChallengesSeen.Inc()
		}
		return nil, fmt.Errorf("paginate %s: %w", model.URL, err)
	}

	var links []catalog.PendingLink
	for _, page := range pages {
		hrefs, errs := parse.ProductLinks(page, e.rules.ProductItem, model.URL)
		for _, perr := range errs {
			e.log.Warn("skipping unparsable product item", zap.Error(perr))
		}
		for _, href := range hrefs {
			abs, err := parse.AbsURL(e.cfg.SourceURL, href)
			if err != nil {
				e.log.Warn("skipping product with bad url", zap.String("href", href), zap.Error(err))
				continue
			}
			links = append(links, catalog.PendingLink{URL: abs, Model: model.Model, Brand: model.Brand})
		}
	}

	stored, err := e.repo.ListByModel(ctx, model.Model)
	if err != nil {
		return nil, fmt.Errorf("list stored products for %s: %w", model.Model, err)
	}
	// Several records can share a URL; the most recently visited one decides
	// freshness.
	byURL := make(map[string]catalog.Product, len(stored))
	for _, p := range stored {
		if cur, ok := byURL[p.URL]; !ok || p.LastVisited.After(cur.LastVisited) {
			byURL[p.URL] = p
		}
	}

	now := e.clock.Now()
	fresh := links[:0]
	for _, l := range links {
		if p, ok := byURL[l.URL]; ok && !p.Stale(now) {
			e.log.Debug("skipping up to date product", zap.String("article", p.Article))
			continue
		}
		fresh = append(fresh, l)
	}
	return fresh, nil
}

// unionStaleProducts adds stored products that are past the freshness window
// but were not rediscovered by the listing walk, so delisted pages still get
// re-checked.
func (e *Engine) unionStaleProducts(ctx context.Context, links []catalog.PendingLink) []catalog.PendingLink {
	stored, err := e.repo.List(ctx)
	if err != nil {
		e.log.Error("list stored products", zap.Error(err))
		return links
	}

	seen := make(map[string]bool, len(links))
	for _, l := range links {
		seen[l.URL] = true
	}

	freshest := make(map[string]catalog.Product, len(stored))
	for _, p := range stored {
		if strings.TrimSpace(p.URL) == "" {
			continue
		}
		if cur, ok := freshest[p.URL]; !ok || p.LastVisited.After(cur.LastVisited) {
			freshest[p.URL] = p
		}
	}

	now := e.clock.Now()
	for url, p := range freshest {
		if !p.Stale(now) || seen[url] {
			continue
		}
		seen[url] = true
		links = append(links, catalog.PendingLink{URL: url, Model: p.Model, Brand: p.Brand})
	}
	return links
}

// categoriesBranch crawls the category tree and parses the products it
// discovers. Every failure here is logged and swallowed.
func (e *Engine) categoriesBranch(ctx context.Context) {
	e.tracker.BeginStage(catalog.StageCategories, 1)
	categories, err := e.fetchNodes(ctx, e.cfg.SourceURL, e.rules.Categories, "")
	if err != nil {
		e.log.Error("parse categories", zap.Error(err))
		return
	}
	e.tracker.Add(1)

	subcategories, err := e.subcategories(ctx, categories)
	if err != nil {
		e.log.Error("parse subcategories", zap.Error(err))
		return
	}

	e.tracker.BeginStage(catalog.StageProductList, uint64(len(subcategories)))
	links, err := e.collectProductLinks(ctx, subcategories)
	if err != nil {
		e.log.Error("parse category product lists", zap.Error(err))
		return
	}
	if err := e.runProducts(ctx, links); err != nil {
		e.log.Error("parse category products", zap.Error(err))
	}
}

// subcategories expands each category; a category page with no subcategory
// anchors stands in for itself so its listing still gets walked.
func (e *Engine) subcategories(ctx context.Context, categories []catalog.CrawlNode) ([]catalog.PendingLink, error) {
	var (
		mu  sync.Mutex
		out []catalog.PendingLink
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, cat := range categories {
		cat := cat
		g.Go(func() error {
			children, err := e.fetchNodes(gctx, cat.URL, e.rules.Subcategories, cat.Label)
			if err != nil {
				return fmt.Errorf("expand category %s: %w", cat.URL, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if len(children) == 0 {
				out = append(out, catalog.PendingLink{URL: cat.URL, Model: cat.Label, Brand: cat.Label})
				return nil
			}
			for _, c := range children {
				out = append(out, catalog.PendingLink{URL: c.URL, Model: c.Label, Brand: cat.Label})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
