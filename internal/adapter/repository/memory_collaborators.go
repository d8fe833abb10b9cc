package repository

import (
	"context"
	"sync"

	"tradetalk/internal/domain/entity"
	"tradetalk/pkg/errors"
)

// MemoryProfileProvider is a ProfileProvider backed by a map, for tests and
// local development.
type MemoryProfileProvider struct {
	mu       sync.RWMutex
	profiles map[string]entity.ParticipantProfile
}

func NewMemoryProfileProvider() *MemoryProfileProvider {
	return &MemoryProfileProvider{profiles: make(map[string]entity.ParticipantProfile)}
}

func (p *MemoryProfileProvider) AddProfile(profile entity.ParticipantProfile) {
	p.mu.Lock()
	p.profiles[profile.ID] = profile
	p.mu.Unlock()
}

func (p *MemoryProfileProvider) GetProfile(ctx context.Context, participantID string) (*entity.ParticipantProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	profile, ok := p.profiles[participantID]
	if !ok {
		return nil, errors.NotFound("Participant", nil)
	}
	return &profile, nil
}

// MemoryProductCatalog is a ProductCatalog backed by a map.
type MemoryProductCatalog struct {
	mu       sync.RWMutex
	products map[string]entity.ProductSnapshot
}

func NewMemoryProductCatalog() *MemoryProductCatalog {
	return &MemoryProductCatalog{products: make(map[string]entity.ProductSnapshot)}
}

func (c *MemoryProductCatalog) AddProduct(product entity.ProductSnapshot) {
	c.mu.Lock()
	c.products[product.ID] = product
	c.mu.Unlock()
}

func (c *MemoryProductCatalog) GetProduct(ctx context.Context, productID string) (*entity.ProductSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	product, ok := c.products[productID]
	if !ok {
		return nil, errors.NotFound("Product", nil)
	}
	return &product, nil
}
