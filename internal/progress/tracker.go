// Package progress tracks crawl counters per stage and mirrors them into
// Prometheus collectors.
package progress

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rtparts/catalogd/internal/catalog"
)

// Tracker is a point-in-time counter of stage work. Each stage transition
// resets the ready/total pair; Snapshot is safe to call from any goroutine.
type Tracker struct {
	mu    sync.RWMutex
	ready uint64
	total uint64
	stage catalog.Stage

	metrics *Metrics
	log     *zap.Logger
}

// NewTracker builds a Tracker. metrics may be nil.
func NewTracker(metrics *Metrics, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		stage:   catalog.StagePaused,
		metrics: metrics,
		log:     log,
	}
}

// BeginStage switches to stage and resets the counters to 0/total.
func (t *Tracker) BeginStage(stage catalog.Stage, total uint64) {
	t.mu.Lock()
	t.stage = stage
	t.ready = 0
	t.total = total
	t.mu.Unlock()

	t.log.Info("stage started", zap.String("stage", string(stage)), zap.Uint64("total", total))
	if t.metrics != nil {
		t.metrics.stageTransitions.WithLabelValues(string(stage)).Inc()
		t.metrics.setStage(stage)
	}
}

// Restore reinstates a snapshot taken before a pause, so a stage that
// continues afterwards reports its original stage and counters.
func (t *Tracker) Restore(p catalog.Progress) {
	t.mu.Lock()
	t.stage = p.Stage
	t.ready = p.Ready
	t.total = p.Total
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.setStage(p.Stage)
	}
}

// AddTotal grows the expected item count mid-stage. Pagination discovers
// work incrementally, so totals are not always known up front.
func (t *Tracker) AddTotal(n uint64) {
	t.mu.Lock()
	t.total += n
	t.mu.Unlock()
}

// Add marks n items of the current stage done.
func (t *Tracker) Add(n uint64) {
	t.mu.Lock()
	t.ready += n
	stage := t.stage
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.itemsProcessed.WithLabelValues(string(stage)).Add(float64(n))
	}
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() catalog.Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return catalog.Progress{Ready: t.ready, Total: t.total, Stage: t.stage}
}
