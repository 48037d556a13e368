// Package catalog defines core types shared across the crawl subsystems.
package catalog

import "time"

// Stage represents the phase the crawl engine is currently in.
type Stage string

// Stage values reported by the engine.
const (
	StagePaused      Stage = "paused"
	StageBrands      Stage = "brands"
	StageModels      Stage = "models"
	StageCategories  Stage = "categories"
	StageProductList Stage = "product_list"
	StageProducts    Stage = "products"
)

// Availability describes whether a product can currently be ordered.
type Availability string

// Availability values persisted with each product.
const (
	Available    Availability = "available"
	NotAvailable Availability = "not_available"
	OnOrder      Availability = "on_order"
)

// CrawlNode is a pending taxonomy node (brand, category, model or
// subcategory) produced by one stage and expanded by the next.
type CrawlNode struct {
	URL         string
	Label       string
	ParentLabel string
}

// PendingLink is a discovered product-detail URL awaiting fetch. It is the
// unit persisted to the pending-links checkpoint on interruption.
type PendingLink struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
	Brand string `yaml:"brand"`
}

// Product is the normalized scrape result handed to the repository. It is
// never mutated after extraction.
type Product struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Article     string       `json:"article"`
	Brand       string       `json:"brand"`
	Model       string       `json:"model"`
	Category    string       `json:"category,omitempty"`
	Price       *int64       `json:"price,omitempty"`
	Available   Availability `json:"available"`
	Images      []string     `json:"images"`
	URL         string       `json:"url"`
	LastVisited time.Time    `json:"last_visited"`
}

// FreshnessWindow is how long a stored product stays current before it is
// eligible for re-crawl.
const FreshnessWindow = 24 * time.Hour

// Stale reports whether the product's last visit is outside the freshness
// window relative to now.
func (p Product) Stale(now time.Time) bool {
	return now.Sub(p.LastVisited) > FreshnessWindow
}

// Progress is a point-in-time snapshot of the engine's counters.
type Progress struct {
	Ready uint64 `json:"ready"`
	Total uint64 `json:"total"`
	Stage Stage  `json:"stage"`
}
