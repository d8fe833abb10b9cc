package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradetalk/internal/domain/entity"
	"tradetalk/internal/domain/repository"
	"tradetalk/pkg/errors"
)

// firestoreProfileProvider reads participant display data from the users
// collection owned by the profile service.
type firestoreProfileProvider struct {
	client *firestore.Client
}

func NewFirestoreProfileProvider(client *firestore.Client) repository.ProfileProvider {
	return &firestoreProfileProvider{
		client: client,
	}
}

func (p *firestoreProfileProvider) GetProfile(ctx context.Context, participantID string) (*entity.ParticipantProfile, error) {
	doc, err := p.client.Collection("users").Doc(participantID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Participant", nil)
		}
		return nil, mapStoreError("get profile", err)
	}

	var profile struct {
		Username  string `firestore:"username"`
		AvatarURL string `firestore:"avatarUrl"`
	}
	if err := doc.DataTo(&profile); err != nil {
		return nil, errors.Internal("Failed to parse profile data", err)
	}

	return &entity.ParticipantProfile{
		ID:        participantID,
		Username:  profile.Username,
		AvatarURL: profile.AvatarURL,
	}, nil
}

// firestoreProductCatalog reads product data from the catalog service's
// products collection.
type firestoreProductCatalog struct {
	client *firestore.Client
}

func NewFirestoreProductCatalog(client *firestore.Client) repository.ProductCatalog {
	return &firestoreProductCatalog{
		client: client,
	}
}

func (c *firestoreProductCatalog) GetProduct(ctx context.Context, productID string) (*entity.ProductSnapshot, error) {
	doc, err := c.client.Collection("products").Doc(productID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Product", nil)
		}
		return nil, mapStoreError("get product", err)
	}

	var product struct {
		Title    string  `firestore:"title"`
		ImageURL string  `firestore:"imageUrl"`
		Price    float64 `firestore:"price"`
		SellerID string  `firestore:"sellerId"`
	}
	if err := doc.DataTo(&product); err != nil {
		return nil, errors.Internal("Failed to parse product data", err)
	}

	return &entity.ProductSnapshot{
		ID:       productID,
		Title:    product.Title,
		ImageURL: product.ImageURL,
		Price:    product.Price,
		SellerID: product.SellerID,
	}, nil
}
