package repository

import (
	"context"

	"tradetalk/internal/domain/entity"
)

// ProfileProvider supplies participant display data. The engine consumes it once
// per discussion creation to populate profile snapshots.
type ProfileProvider interface {
	GetProfile(ctx context.Context, participantID string) (*entity.ParticipantProfile, error)
}

// ProductCatalog supplies product data for marketplace discussions, consumed
// once at creation time.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*entity.ProductSnapshot, error)
}
