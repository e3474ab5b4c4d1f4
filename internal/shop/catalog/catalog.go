// Package catalog holds the product registry. Reads and writes are individually
// synchronised, but nothing here makes a stock check and the later decrement atomic.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/logicshop-core/server/internal/shop/model"
	"gopkg.in/yaml.v3"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrDuplicateID     = errors.New("duplicate product id")
)

// DefaultProducts is the stock three-item catalog.
func DefaultProducts() []model.Product {
	return []model.Product{
		{ID: 1, Name: "Basic Item", BasePrice: 50, Discount: 0, MinimumTier: model.TierStandard, Stock: 100},
		{ID: 2, Name: "Premium Item", BasePrice: 200, Discount: 5, MinimumTier: model.TierPremium, Stock: 30},
		{ID: 3, Name: "Hidden Item", BasePrice: 150, Discount: 0, MinimumTier: model.TierStandard, Stock: 50},
	}
}

type Store struct {
	mu       sync.RWMutex
	products []model.Product
	index    map[int]int
}

func New(products []model.Product) (*Store, error) {
	s := &Store{
		products: make([]model.Product, 0, len(products)),
		index:    make(map[int]int, len(products)),
	}
	for _, p := range products {
		if _, dup := s.index[p.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, p.ID)
		}
		if p.MinimumTier == "" {
			p.MinimumTier = model.TierStandard
		}
		s.index[p.ID] = len(s.products)
		s.products = append(s.products, p)
	}
	return s, nil
}

// LoadSeed reads a YAML list of products.
func LoadSeed(path string) ([]model.Product, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc struct {
		Products []model.Product `yaml:"products"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for _, p := range doc.Products {
		if p.MinimumTier != "" && !p.MinimumTier.Valid() {
			return nil, fmt.Errorf("product %d: unknown tier %q", p.ID, p.MinimumTier)
		}
	}
	return doc.Products, nil
}

func (s *Store) Find(id int) (model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	return s.products[i], nil
}

// List returns full product records in definition order.
func (s *Store) List() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, len(s.products))
	copy(out, s.products)
	return out
}

// DecrementStock trusts the caller's earlier stock check; stock can go negative,
// and a negative quantity restocks.
func (s *Store) DecrementStock(id int, quantity int) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return model.Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	s.products[i].Stock -= quantity
	return s.products[i], nil
}

var _ model.Catalog = (*Store)(nil)
