package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rtparts/catalogd/internal/catalog"
	"github.com/rtparts/catalogd/internal/parse"
)

// runProducts fetches and stores product details in chunks. Chunks run
// sequentially; links inside a chunk run concurrently. Interruption persists
// exactly the links whose chunks have not resolved, and the pending
// checkpoint is cleared only after every chunk completes.
func (e *Engine) runProducts(ctx context.Context, links []catalog.PendingLink) error {
	e.tracker.BeginStage(catalog.StageProducts, uint64(len(links)))
	if e.metrics != nil {
		e.metrics.PendingLinks.Set(float64(len(links)))
	}
	if len(links) == 0 {
		return e.clearPending()
	}

	chunkSize := e.cfg.ChunkSize
	totalChunks := (len(links) + chunkSize - 1) / chunkSize

	for start := 0; start < len(links); start += chunkSize {
		err := e.pausePointWith(ctx, func() {
			e.persistRemainder(links[start:])
		})
		if err != nil {
			e.persistRemainder(links[start:])
			return err
		}
		if ctx.Err() != nil {
			e.persistRemainder(links[start:])
			return ctx.Err()
		}

		end := min(start+chunkSize, len(links))
		if err := e.parseChunk(ctx, links[start:end]); err != nil {
			if ctx.Err() != nil {
				// The in-flight chunk did not finish; it stays pending.
				e.persistRemainder(links[start:])
				return ctx.Err()
			}
			e.log.Error("products chunk failed",
				zap.Int("chunk", start/chunkSize),
				zap.Int("total_chunks", totalChunks),
				zap.Error(err),
			)
		} else {
			e.log.Info("products chunk done",
				zap.Int("chunk", start/chunkSize),
				zap.Int("total_chunks", totalChunks),
			)
		}
		if e.metrics != nil {
			e.metrics.PendingLinks.Set(float64(len(links) - end))
		}
	}

	return e.clearPending()
}

// parseChunk processes one chunk concurrently. Item failures are logged and
// counted; only context cancellation aborts the chunk.
func (e *Engine) parseChunk(ctx context.Context, chunk []catalog.PendingLink) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, link := range chunk {
		link := link
		g.Go(func() error {
			if err := e.parseOne(gctx, link); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.countProductError(err)
				e.log.Error("product parsing failed", zap.String("url", link.URL), zap.Error(err))
			}
			e.tracker.Add(1)
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) parseOne(ctx context.Context, link catalog.PendingLink) error {
	body, err := e.fetcher.Fetch(ctx, link.URL)
	if err != nil {
		return err
	}
	e.archiver.ArchivePage(ctx, link.URL, body, e.clock.Now())

	product, err := parse.ExtractProduct(body, e.rules, link.Brand, link.Model, link.URL, e.clock.Now())
	if err != nil {
		return err
	}
	if err := e.repo.Save(ctx, product); err != nil {
		return fmt.Errorf("save product %s: %w", product.Article, err)
	}
	if e.metrics != nil {
		e.metrics.ProductsSaved.Inc()
	}
	e.notifier.ProductSaved(ctx, product)
	e.log.Debug("product saved", zap.String("article", product.Article))
	return nil
}

func (e *Engine) countProductError(err error) {
	if e.metrics == nil {
		return
	}
	reason := "other"
	switch {
	case catalog.IsChallenge(err):
		reason = "challenge"
		e.metrics.ChallengesSeen.Inc()
	case errors.Is(err, catalog.ErrNoArticle):
		reason = "no_article"
	case errors.Is(err, catalog.ErrNoTitle):
		reason = "no_title"
	}
	e.metrics.ProductErrors.WithLabelValues(reason).Inc()
}

func (e *Engine) persistRemainder(remainder []catalog.PendingLink) {
	if err := e.cp.SavePending(remainder); err != nil {
		e.log.Error("persist pending links", zap.Error(err))
		return
	}
	if e.metrics != nil {
		e.metrics.CheckpointSaves.WithLabelValues("links").Inc()
	}
	e.log.Info("pending links persisted", zap.Int("count", len(remainder)))
}

func (e *Engine) clearPending() error {
	if err := e.cp.ClearPending(); err != nil {
		e.log.Error("clear pending links checkpoint", zap.Error(err))
		return err
	}
	return nil
}
