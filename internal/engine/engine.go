// Package engine drives the staged catalog crawl: brands, models,
// categories, product lists, products. It owns resume checkpoints and
// responds to pause/resume/progress commands between units of work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rtparts/catalogd/internal/archive"
	"github.com/rtparts/catalogd/internal/catalog"
	"github.com/rtparts/catalogd/internal/checkpoint"
	"github.com/rtparts/catalogd/internal/clock/system"
	"github.com/rtparts/catalogd/internal/id/uuid"
	"github.com/rtparts/catalogd/internal/notify"
	"github.com/rtparts/catalogd/internal/parse"
	"github.com/rtparts/catalogd/internal/progress"
)

// Config controls crawl behavior.
type Config struct {
	SourceURL   string
	Concurrency int
	ChunkSize   int
	StartPaused bool
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
)

type command struct {
	kind cmdKind
	done chan struct{}
}

// ack signals the sender that the command has taken full effect.
func (c command) ack() {
	if c.done != nil {
		close(c.done)
	}
}

// Engine runs the crawl loop. Construct with New and drive with Run; Pause,
// Resume and Progress are safe from other goroutines.
type Engine struct {
	cfg      Config
	fetcher  catalog.Fetcher
	repo     catalog.ProductRepository
	cp       *checkpoint.Store
	tracker  *progress.Tracker
	metrics  *progress.Metrics
	archiver *archive.Archiver
	notifier *notify.Notifier
	rules    parse.Rules
	clock    catalog.Clock
	ids      *uuid.Generator
	log      *zap.Logger

	commands chan command
	// paused is touched only from the Run goroutine.
	paused bool
}

// Options carries optional collaborators for New.
type Options struct {
	Metrics  *progress.Metrics
	Archiver *archive.Archiver
	Notifier *notify.Notifier
	Rules    *parse.Rules
	Clock    catalog.Clock
}

// New builds an Engine.
func New(
	cfg Config,
	fetcher catalog.Fetcher,
	repo catalog.ProductRepository,
	cp *checkpoint.Store,
	tracker *progress.Tracker,
	log *zap.Logger,
	opts Options,
) (*Engine, error) {
	if cfg.SourceURL == "" {
		return nil, fmt.Errorf("source url is required")
	}
	if fetcher == nil || repo == nil || cp == nil || tracker == nil {
		return nil, fmt.Errorf("fetcher, repository, checkpoints and tracker are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1024
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	rules := parse.DefaultRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	clock := opts.Clock
	if clock == nil {
		clock = system.New()
	}
	return &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		repo:     repo,
		cp:       cp,
		tracker:  tracker,
		metrics:  opts.Metrics,
		archiver: opts.Archiver,
		notifier: opts.Notifier,
		rules:    rules,
		clock:    clock,
		ids:      uuid.NewUUIDGenerator(),
		log:      log,
		commands: make(chan command, 8),
		paused:   cfg.StartPaused,
	}, nil
}

// Run executes crawl cycles until ctx is canceled. A non-empty pending-links
// checkpoint is drained first so an interrupted Products stage resumes
// without redoing discovery.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.pausePoint(ctx); err != nil {
		return err
	}

	pending, err := e.cp.LoadPending()
	if err != nil {
		e.log.Error("read pending links checkpoint", zap.Error(err))
	} else if len(pending) > 0 {
		e.log.Info("resuming interrupted crawl", zap.Int("pending", len(pending)))
		if err := e.runProducts(ctx, pending); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Error("resume products parsing failed", zap.Error(err))
		}
	}

	for {
		if err := e.pausePoint(ctx); err != nil {
			return err
		}
		cycleID, err := e.ids.NewID()
		if err != nil {
			cycleID = "unknown"
		}
		e.log.Info("starting crawl cycle", zap.String("cycle", cycleID))
		if err := e.cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Error("crawl cycle failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if e.metrics != nil {
			e.metrics.CrawlCycles.Inc()
		}
		e.log.Info("crawl cycle finished", zap.String("cycle", cycleID))
	}
}

// Pause blocks until the engine stops at the next safe point (stage
// transition or chunk boundary), having persisted any unprocessed product
// links, or until ctx expires.
func (e *Engine) Pause(ctx context.Context) error {
	return e.send(ctx, cmdPause)
}

// Resume continues a paused crawl, blocking until the engine acknowledges.
func (e *Engine) Resume(ctx context.Context) error {
	return e.send(ctx, cmdResume)
}

// Progress returns the current stage and counters without blocking the crawl.
func (e *Engine) Progress() catalog.Progress {
	return e.tracker.Snapshot()
}

func (e *Engine) send(ctx context.Context, kind cmdKind) error {
	cmd := command{kind: kind, done: make(chan struct{})}
	select {
	case e.commands <- cmd:
	case <-ctx.Done():
		return fmt.Errorf("engine command not accepted: %w", ctx.Err())
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine command not applied: %w", ctx.Err())
	}
}

// pausePoint drains pending commands and, when paused, blocks until resumed.
// It is called between stages and between product chunks.
func (e *Engine) pausePoint(ctx context.Context) error {
	return e.pausePointWith(ctx, nil)
}

// pausePointWith runs onPause once before blocking, so the Products stage can
// persist its remainder ahead of a pause.
func (e *Engine) pausePointWith(ctx context.Context, onPause func()) error {
	for {
		var cmd command
		select {
		case cmd = <-e.commands:
			e.apply(cmd)
		default:
		}
		if !e.paused {
			cmd.ack()
			return nil
		}
		if onPause != nil {
			onPause()
			onPause = nil
		}
		prev := e.tracker.Snapshot()
		e.tracker.BeginStage(catalog.StagePaused, 0)
		e.log.Info("crawl paused")
		cmd.ack()
		for e.paused {
			select {
			case c := <-e.commands:
				e.apply(c)
				if e.paused {
					// Redundant pause while already paused.
					c.ack()
					continue
				}
				cmd = c
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		e.tracker.Restore(prev)
		e.log.Info("crawl resumed")
		cmd.ack()
	}
}

func (e *Engine) apply(cmd command) {
	switch cmd.kind {
	case cmdPause:
		e.paused = true
	case cmdResume:
		e.paused = false
	}
}
