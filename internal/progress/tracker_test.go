package progress

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rtparts/catalogd/internal/catalog"
)

func TestTrackerStageLifecycle(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, zaptest.NewLogger(t))

	snap := tr.Snapshot()
	require.Equal(t, catalog.StagePaused, snap.Stage)
	require.Zero(t, snap.Total)

	tr.BeginStage(catalog.StageBrands, 12)
	tr.Add(5)
	tr.Add(3)

	snap = tr.Snapshot()
	require.Equal(t, catalog.StageBrands, snap.Stage)
	require.Equal(t, uint64(8), snap.Ready)
	require.Equal(t, uint64(12), snap.Total)

	// New stage resets the counters.
	tr.BeginStage(catalog.StageModels, 4)
	snap = tr.Snapshot()
	require.Zero(t, snap.Ready)
	require.Equal(t, uint64(4), snap.Total)
}

func TestTrackerRestoreAfterPause(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, zaptest.NewLogger(t))
	tr.BeginStage(catalog.StageProducts, 10)
	tr.Add(4)

	prev := tr.Snapshot()
	tr.BeginStage(catalog.StagePaused, 0)
	require.Equal(t, catalog.StagePaused, tr.Snapshot().Stage)

	tr.Restore(prev)
	snap := tr.Snapshot()
	require.Equal(t, catalog.StageProducts, snap.Stage)
	require.Equal(t, uint64(4), snap.Ready)
	require.Equal(t, uint64(10), snap.Total)
}

func TestTrackerAddTotalMidStage(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, zaptest.NewLogger(t))
	tr.BeginStage(catalog.StageProductList, 1)
	tr.AddTotal(3)

	require.Equal(t, uint64(4), tr.Snapshot().Total)
}

func TestTrackerConcurrentAdds(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, zaptest.NewLogger(t))
	tr.BeginStage(catalog.StageProducts, 100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Add(1)
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(100), tr.Snapshot().Ready)
}

func TestTrackerMirrorsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	tr := NewTracker(m, zaptest.NewLogger(t))
	tr.BeginStage(catalog.StageProducts, 10)
	tr.Add(7)

	require.Equal(t, 7.0, testutil.ToFloat64(m.itemsProcessed.WithLabelValues("products")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.stageTransitions.WithLabelValues("products")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.currentStage.WithLabelValues("products")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.currentStage.WithLabelValues("brands")))
}

func TestMetricsDoubleRegisterFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	require.Error(t, err)
}
