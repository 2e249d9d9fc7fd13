package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raushankrgupta/fitview-tryon/errs"
	"github.com/raushankrgupta/fitview-tryon/models"
)

// Sessions is the append-only try-on session log. Documents are mutated
// only through SetFavorite.
type Sessions struct {
	col *mongo.Collection
}

// NewSessions creates a Sessions store over the given database.
func NewSessions(db *mongo.Database) *Sessions {
	return &Sessions{col: db.Collection("tryon_sessions")}
}

// Insert persists a new session and fills in its generated id.
func (s *Sessions) Insert(ctx context.Context, sess *models.TryOnSession) error {
	if sess.ID.IsZero() {
		sess.ID = primitive.NewObjectID()
	}
	if _, err := s.col.InsertOne(ctx, sess); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByID returns one session owned by userID.
func (s *Sessions) FindByID(ctx context.Context, id, userID string) (*models.TryOnSession, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("session id %q: %w", id, errs.ErrInvalidInput)
	}

	var sess models.TryOnSession
	err = s.col.FindOne(ctx, bson.M{"_id": objID, "user_id": userID}).Decode(&sess)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("find session %s: %w", id, err)
	}
	return &sess, nil
}

// FindByUser returns one page of the user's sessions, newest first, plus the
// total count.
func (s *Sessions) FindByUser(ctx context.Context, userID string, page, limit int) ([]*models.TryOnSession, int64, error) {
	filter := bson.M{"user_id": userID}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*models.TryOnSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, 0, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, total, nil
}

// SetFavorite atomically updates the favorite flag on one session owned by
// userID and returns the updated document.
func (s *Sessions) SetFavorite(ctx context.Context, id, userID string, favorite bool) (*models.TryOnSession, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("session id %q: %w", id, errs.ErrInvalidInput)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var sess models.TryOnSession
	err = s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": objID, "user_id": userID},
		bson.M{"$set": bson.M{"is_favorite": favorite}},
		opts,
	).Decode(&sess)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("session %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("update favorite on session %s: %w", id, err)
	}
	return &sess, nil
}
