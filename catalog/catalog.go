// Package catalog provides a minimal file-backed stand-in for the external
// product catalog that core.ProductReader and core.RuleReader read
// through. The real catalog (product data, pricing rules) is owned by an
// external collaborator out of scope here; this package exists only so the
// CLI has something concrete to construct a core.Service against.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"pricewatch/models"
)

// Snapshot is the on-disk shape: a flat list of products and rules, keyed
// by id at load time.
type Snapshot struct {
	Products []models.Product     `json:"products"`
	Rules    []models.PricingRule `json:"rules"`
}

// Store holds an in-memory snapshot loaded from a JSON file.
type Store struct {
	products map[uuid.UUID]models.Product
	rules    []models.PricingRule
}

// LoadFile reads a catalog snapshot from path.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return newStore(snap), nil
}

func newStore(snap Snapshot) *Store {
	products := make(map[uuid.UUID]models.Product, len(snap.Products))
	for _, p := range snap.Products {
		products[p.ID] = p
	}
	return &Store{products: products, rules: snap.Rules}
}

// Get implements core.ProductReader.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, fmt.Errorf("catalog: product %s not found", id)
	}
	return p, nil
}

// ListForProduct implements core.RuleReader: every loaded rule is a
// candidate, since PricingRule.Matches does the product/category filtering.
func (s *Store) ListForProduct(ctx context.Context, productID uuid.UUID) ([]models.PricingRule, error) {
	return s.rules, nil
}
