package inventory

import (
	"context"
	"sync"
)

// MemStore holds the collection in memory. Load and Save deep-copy so
// callers never alias the stored slice.
type MemStore struct {
	mu       sync.RWMutex
	products []Product
}

func NewMemStore(products []Product) *MemStore {
	return &MemStore{products: cloneProducts(products)}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Load(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.products), nil
}

func (s *MemStore) Save(ctx context.Context, products []Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = cloneProducts(products)
	return nil
}

func cloneProducts(in []Product) []Product {
	out := make([]Product, len(in))
	copy(out, in)
	for i := range out {
		if in[i].Reviews != nil {
			out[i].Reviews = append([]Review(nil), in[i].Reviews...)
		}
	}
	return out
}
