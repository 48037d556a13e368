// Package notify emits product lifecycle events to a message topic so
// downstream consumers (pricing, search indexing) see saves as they happen.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rtparts/catalogd/internal/catalog"
	"github.com/rtparts/catalogd/internal/id/uuid"
)

// ProductSavedEvent is the payload published after every repository upsert.
type ProductSavedEvent struct {
	EventID string    `json:"event_id"`
	Article string    `json:"article"`
	Brand   string    `json:"brand"`
	Model   string    `json:"model"`
	URL     string    `json:"url"`
	SavedAt time.Time `json:"saved_at"`
}

// Notifier publishes product events. Delivery is best-effort: a failed
// publish is logged and the crawl continues.
type Notifier struct {
	pub   catalog.Publisher
	topic string
	ids   *uuid.Generator
	log   *zap.Logger
}

// New builds a Notifier. A nil publisher disables notifications.
func New(pub catalog.Publisher, topic string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		pub:   pub,
		topic: topic,
		ids:   uuid.NewUUIDGenerator(),
		log:   log,
	}
}

// ProductSaved publishes a save event for p.
func (n *Notifier) ProductSaved(ctx context.Context, p catalog.Product) {
	if n == nil || n.pub == nil {
		return
	}
	eventID, err := n.ids.NewID()
	if err != nil {
		n.log.Warn("generate event id", zap.Error(err))
		return
	}
	evt := ProductSavedEvent{
		EventID: eventID,
		Article: p.Article,
		Brand:   p.Brand,
		Model:   p.Model,
		URL:     p.URL,
		SavedAt: p.LastVisited,
	}
	if _, err := n.pub.Publish(ctx, n.topic, evt); err != nil {
		n.log.Warn("publish product event", zap.String("article", p.Article), zap.Error(err))
	}
}
