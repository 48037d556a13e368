// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Selectors   SelectorConfig    `mapstructure:"selectors"`
	Checkpoints CheckpointConfig  `mapstructure:"checkpoints"`
	DB          DBConfig          `mapstructure:"db"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls the control API listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	SourceURL        string  `mapstructure:"source_url"`
	UserAgent        string  `mapstructure:"user_agent"`
	Concurrency      int     `mapstructure:"concurrency"`
	ChunkSize        int     `mapstructure:"chunk_size"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	HostQPS          float64 `mapstructure:"host_qps"`
	ChallengeMarker  string  `mapstructure:"challenge_marker"`
	OnOrderMarker    string  `mapstructure:"on_order_marker"`
	StartPaused      bool    `mapstructure:"start_paused"`
}

// SelectorConfig holds the CSS extraction ruleset for the target site.
type SelectorConfig struct {
	Brands         string `mapstructure:"brands"`
	Categories     string `mapstructure:"categories"`
	Models         string `mapstructure:"models"`
	Subcategories  string `mapstructure:"subcategories"`
	ProductItem    string `mapstructure:"product_item"`
	NextPage       string `mapstructure:"next_page"`
	Title          string `mapstructure:"title"`
	Article        string `mapstructure:"article"`
	Description    string `mapstructure:"description"`
	Category       string `mapstructure:"category"`
	Price          string `mapstructure:"price"`
	Available      string `mapstructure:"available"`
	OnOrder        string `mapstructure:"on_order"`
	GalleryImages  string `mapstructure:"gallery_images"`
	Logo           string `mapstructure:"logo"`
}

// CheckpointConfig sets paths for the resumable crawl caches.
type CheckpointConfig struct {
	Dir        string `mapstructure:"dir"`
	ModelsFile string `mapstructure:"models_file"`
	LinksFile  string `mapstructure:"links_file"`
}

// DBConfig controls the Postgres product repository.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig wires optional raw-page archival.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // gcs | local | noop
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig wires optional product-saved notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"` // pubsub | memory | noop
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("crawler.user_agent", "catalogd/1.0")
	v.SetDefault("crawler.concurrency", 1024)
	v.SetDefault("crawler.chunk_size", 50)
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.backoff_initial_ms", 250)
	v.SetDefault("crawler.backoff_max_ms", 5000)
	v.SetDefault("crawler.host_qps", 0)
	v.SetDefault("crawler.challenge_marker", "<title>Browser check, please wait ...</title>")
	v.SetDefault("crawler.on_order_marker", "доступно под заказ")
	v.SetDefault("crawler.start_paused", false)

	v.SetDefault("selectors.brands", "ul.brands-wrap:first-of-type > li > a")
	v.SetDefault("selectors.categories", ".lp-cat-ul > li > a")
	v.SetDefault("selectors.models", ".cat-item-wrap > .cat-item-title > a")
	v.SetDefault("selectors.subcategories", ".cat-item-wrap a")
	v.SetDefault("selectors.product_item", ".cat-item-list-wrap > .cat-item-list-title > a")
	v.SetDefault("selectors.next_page", `a[aria-label="Next"]`)
	v.SetDefault("selectors.title", ".item-title")
	v.SetDefault("selectors.article", ".item-title-article")
	v.SetDefault("selectors.description", ".item-description-full")
	v.SetDefault("selectors.category", `.cat-breadcrumbs-text span[typeof="v:Breadcrumb"]:nth-child(odd) a`)
	v.SetDefault("selectors.price", ".product__price-block_text1")
	v.SetDefault("selectors.available", ".available-wrap")
	v.SetDefault("selectors.on_order", ".item-info-block > .cat-item-list-prices-avail")
	v.SetDefault("selectors.gallery_images", ".item-images-wrap > a > img.item-gallery-image")
	v.SetDefault("selectors.logo", ".item-logo > a > img")

	v.SetDefault("checkpoints.dir", ".")
	v.SetDefault("checkpoints.models_file", "models.yml")
	v.SetDefault("checkpoints.links_file", "links.yml")

	v.SetDefault("db.table", "products")
	v.SetDefault("db.max_conns", 4)

	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "pages")

	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.topic", "catalog.product.saved")

	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.SourceURL == "" {
		return fmt.Errorf("crawler.source_url is required")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.ChunkSize <= 0 {
		return fmt.Errorf("crawler.chunk_size must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if c.Archive.Provider == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir must be set when archive.provider is local")
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set when notify.provider is pubsub")
	}
	return nil
}

// FetchTimeout converts the configured timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the configured initial retry delay into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Crawler.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the configured retry delay ceiling into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Crawler.BackoffMaxMs) * time.Millisecond
}
