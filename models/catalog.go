package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Model represents a fashion model whose photo garments are composited onto.
type Model struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name       string             `bson:"name" json:"name"`
	ImageURL   string             `bson:"image_url" json:"image_url"`
	Gender     string             `bson:"gender,omitempty" json:"gender,omitempty"`
	UsageCount int64              `bson:"usage_count" json:"usage_count"`
	IsDeleted  bool               `bson:"is_deleted" json:"-"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// Product represents a garment from the catalog.
type Product struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Category  string             `bson:"category,omitempty" json:"category,omitempty"`
	Images    []string           `bson:"images" json:"image_paths"`
	IsDeleted bool               `bson:"is_deleted" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
