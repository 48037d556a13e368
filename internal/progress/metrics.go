package progress

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rtparts/catalogd/internal/catalog"
)

// Metrics owns the Prometheus collectors for the crawl pipeline.
type Metrics struct {
	stageTransitions *prometheus.CounterVec
	itemsProcessed   *prometheus.CounterVec
	currentStage     *prometheus.GaugeVec

	CrawlCycles     prometheus.Counter
	Fetches         *prometheus.CounterVec
	ProductsSaved   prometheus.Counter
	ProductErrors   *prometheus.CounterVec
	ChallengesSeen  prometheus.Counter
	PendingLinks    prometheus.Gauge
	CheckpointSaves *prometheus.CounterVec
}

// NewMetrics registers the collectors against the provided registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_stage_transitions_total",
			Help: "Stage entries partitioned by stage.",
		}, []string{"stage"}),
		itemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_items_processed_total",
			Help: "Items completed partitioned by stage.",
		}, []string{"stage"}),
		currentStage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_current_stage",
			Help: "1 for the stage the engine is in, 0 otherwise.",
		}, []string{"stage"}),
		CrawlCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_crawl_cycles_total",
			Help: "Completed full crawl cycles.",
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetches_total",
			Help: "Page fetches partitioned by outcome.",
		}, []string{"status"}),
		ProductsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_products_saved_total",
			Help: "Products upserted into the repository.",
		}),
		ProductErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_product_errors_total",
			Help: "Per-item extraction failures partitioned by reason.",
		}, []string{"reason"}),
		ChallengesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_challenges_total",
			Help: "Anti-bot challenge pages encountered.",
		}),
		PendingLinks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_pending_links",
			Help: "Product links awaiting fetch in the current run.",
		}),
		CheckpointSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_checkpoint_saves_total",
			Help: "Checkpoint writes partitioned by file.",
		}, []string{"file"}),
	}

	for _, collector := range []prometheus.Collector{
		m.stageTransitions,
		m.itemsProcessed,
		m.currentStage,
		m.CrawlCycles,
		m.Fetches,
		m.ProductsSaved,
		m.ProductErrors,
		m.ChallengesSeen,
		m.PendingLinks,
		m.CheckpointSaves,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register crawl collector: %w", err)
		}
	}
	return m, nil
}

var allStages = []catalog.Stage{
	catalog.StagePaused,
	catalog.StageBrands,
	catalog.StageModels,
	catalog.StageCategories,
	catalog.StageProductList,
	catalog.StageProducts,
}

func (m *Metrics) setStage(stage catalog.Stage) {
	for _, s := range allStages {
		v := 0.0
		if s == stage {
			v = 1.0
		}
		m.currentStage.WithLabelValues(string(s)).Set(v)
	}
}
