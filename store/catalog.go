// Package store persists catalog reads and try-on sessions in MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/raushankrgupta/fitview-tryon/errs"
	"github.com/raushankrgupta/fitview-tryon/models"
)

// Catalog reads fashion models and products. Soft-deleted entries are
// filtered in the query, so absent and deleted look identical to callers.
type Catalog struct {
	modelsCol   *mongo.Collection
	productsCol *mongo.Collection
}

// NewCatalog creates a Catalog over the given database.
func NewCatalog(db *mongo.Database) *Catalog {
	return &Catalog{
		modelsCol:   db.Collection("models"),
		productsCol: db.Collection("products"),
	}
}

// GetModel returns the model with the given id, or errs.ErrNotFound if it
// does not exist or has been soft-deleted.
func (c *Catalog) GetModel(ctx context.Context, id string) (*models.Model, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("model id %q: %w", id, errs.ErrInvalidInput)
	}

	var m models.Model
	err = c.modelsCol.FindOne(ctx, bson.M{"_id": objID, "is_deleted": bson.M{"$ne": true}}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("model %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("find model %s: %w", id, err)
	}
	return &m, nil
}

// GetProduct returns the product with the given id, or errs.ErrNotFound if
// it does not exist or has been soft-deleted.
func (c *Catalog) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("product id %q: %w", id, errs.ErrInvalidInput)
	}

	var p models.Product
	err = c.productsCol.FindOne(ctx, bson.M{"_id": objID, "is_deleted": bson.M{"$ne": true}}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("product %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("find product %s: %w", id, err)
	}
	return &p, nil
}

// IncrementUsage bumps the model's usage counter. Best-effort bookkeeping;
// callers log failures but never fail a request over them.
func (c *Catalog) IncrementUsage(ctx context.Context, modelID string) error {
	objID, err := primitive.ObjectIDFromHex(modelID)
	if err != nil {
		return fmt.Errorf("model id %q: %w", modelID, errs.ErrInvalidInput)
	}

	_, err = c.modelsCol.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$inc": bson.M{"usage_count": 1}})
	if err != nil {
		return fmt.Errorf("increment usage for model %s: %w", modelID, err)
	}
	return nil
}
