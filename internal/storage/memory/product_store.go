// Package memory provides an in-memory product repository for local runs
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rtparts/catalogd/internal/catalog"
)

// ProductStore keeps products in a map keyed by article.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
}

// NewProductStore returns an empty store.
func NewProductStore() *ProductStore {
	return &ProductStore{products: make(map[string]catalog.Product)}
}

// Save upserts the product by article.
func (s *ProductStore) Save(_ context.Context, p catalog.Product) error {
	if p.Article == "" {
		return catalog.ErrNoArticle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.Article] = p
	return nil
}

// GetOne returns the product with the given article.
func (s *ProductStore) GetOne(_ context.Context, article string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[article]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

// List returns all stored products ordered by article.
func (s *ProductStore) List(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Article < out[j].Article })
	return out, nil
}

// ListByModel returns products for one model ordered by article.
func (s *ProductStore) ListByModel(_ context.Context, model string) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Product
	for _, p := range s.products {
		if p.Model == model {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Article < out[j].Article })
	return out, nil
}
