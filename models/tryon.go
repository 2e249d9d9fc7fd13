package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Try-on session status values.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ProviderFallback is recorded when the deterministic compositor produced
// the result instead of an AI provider.
const ProviderFallback = "fallback"

// SessionRetention is how long a session stays eligible for display before
// it may be purged. Expiry is advisory metadata; nothing enforces it here.
const SessionRetention = 90 * 24 * time.Hour

// TryOnSession represents a persisted virtual try-on result.
type TryOnSession struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           string             `bson:"user_id" json:"user_id"`
	ModelID          string             `bson:"model_id" json:"model_id"`
	ProductID        string             `bson:"product_id" json:"product_id"`
	ResultURL        string             `bson:"result_url" json:"result_url"`
	ModelName        string             `bson:"model_name" json:"model_name"`
	ProductName      string             `bson:"product_name" json:"product_name"`
	ModelImageURL    string             `bson:"model_image_url" json:"model_image_url"`
	ProductImageURL  string             `bson:"product_image_url" json:"product_image_url"`
	Status           string             `bson:"status" json:"status"`
	ProcessingTimeMs int64              `bson:"processing_time_ms" json:"processing_time_ms"`
	IsFavorite       bool               `bson:"is_favorite" json:"is_favorite"`
	AIProvider       string             `bson:"ai_provider" json:"ai_provider"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt        time.Time          `bson:"expires_at" json:"expires_at"`
}

// TryOnRequest is the request body for a single-garment try-on.
type TryOnRequest struct {
	ModelID   string `json:"model_id"`
	ProductID string `json:"product_id"`
}

// BatchTryOnRequest is the request body for a multi-garment try-on (1-5 garments).
type BatchTryOnRequest struct {
	ModelID    string   `json:"model_id"`
	ProductIDs []string `json:"product_ids"`
}

// MaxBatchGarments caps how many garments one batch request may carry.
const MaxBatchGarments = 5

// BatchTryOnResponse carries per-garment results plus the combined outfit.
type BatchTryOnResponse struct {
	BatchID               string          `json:"batch_id"`
	IndividualResults     []*TryOnSession `json:"individual_results"`
	CombinedResult        *TryOnSession   `json:"combined_result,omitempty"`
	TotalProcessingTimeMs int64           `json:"total_processing_time_ms"`
	ProductCount          int             `json:"product_count"`
}

// TryOnHistoryResponse is a page of the user's past sessions.
type TryOnHistoryResponse struct {
	Sessions []*TryOnSession `json:"sessions"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
}

// FavoriteRequest toggles the favorite flag on a session.
type FavoriteRequest struct {
	IsFavorite bool `json:"is_favorite"`
}

// RestyleRequest asks for a style variation of an existing session result.
type RestyleRequest struct {
	Style string `json:"style"`
}
