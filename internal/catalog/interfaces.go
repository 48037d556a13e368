package catalog

import (
	"context"
	"time"
)

// ProductRepository persists extracted products. Save must behave as an
// idempotent upsert keyed by article; the crawler guarantees at-least-once
// delivery, nothing stronger.
type ProductRepository interface {
	Save(ctx context.Context, p Product) error
	GetOne(ctx context.Context, article string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	ListByModel(ctx context.Context, model string) ([]Product, error)
}

// Fetcher retrieves a page body. Implementations handle retry and challenge
// detection; a returned body is always real content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes product events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (swappable for testing).
type Clock interface {
	Now() time.Time
}
