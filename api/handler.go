// Package api exposes the try-on pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/raushankrgupta/fitview-tryon/errs"
	"github.com/raushankrgupta/fitview-tryon/models"
	"github.com/raushankrgupta/fitview-tryon/tryon"
	"github.com/raushankrgupta/fitview-tryon/utils"
)

// TryOnService is the pipeline surface the handlers call.
type TryOnService interface {
	Generate(ctx context.Context, userID, modelID, productID string) (*models.TryOnSession, error)
	GenerateBatch(ctx context.Context, userID, modelID string, productIDs []string) (*models.BatchTryOnResponse, error)
	GenerateWithPhoto(ctx context.Context, userID string, photo []byte, productID string) (*models.TryOnSession, error)
	Restyle(ctx context.Context, userID, sessionID, style string) (*models.TryOnSession, error)
	History(ctx context.Context, userID string, page, limit int) (*models.TryOnHistoryResponse, error)
	GetSession(ctx context.Context, sessionID, userID string) (*models.TryOnSession, error)
	ToggleFavorite(ctx context.Context, sessionID, userID string, favorite bool) (*models.TryOnSession, error)
}

// Handler wires the try-on endpoints.
type Handler struct {
	service   TryOnService
	emailer   *utils.Emailer
	jwtSecret string
	log       *zap.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(service TryOnService, emailer *utils.Emailer, jwtSecret string, log *zap.Logger) *Handler {
	return &Handler{service: service, emailer: emailer, jwtSecret: jwtSecret, log: log}
}

// Register mounts all try-on routes on the mux. Every route requires a
// Bearer token.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /tryon", h.auth(h.TryOn))
	mux.HandleFunc("POST /tryon/batch", h.auth(h.BatchTryOn))
	mux.HandleFunc("POST /tryon/with-photo", h.auth(h.TryOnWithPhoto))
	mux.HandleFunc("POST /tryon/{id}/restyle", h.auth(h.Restyle))
	mux.HandleFunc("GET /tryon/history", h.auth(h.History))
	mux.HandleFunc("GET /tryon/{id}", h.auth(h.GetSession))
	mux.HandleFunc("PATCH /tryon/{id}/favorite", h.auth(h.ToggleFavorite))
}

// respondServiceError maps pipeline errors onto HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		utils.RespondError(w, h.log, err.Error(), http.StatusNotFound)
	case errors.Is(err, errs.ErrInvalidInput):
		utils.RespondError(w, h.log, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tryon.ErrProviderUnavailable):
		utils.RespondError(w, h.log, err.Error(), http.StatusServiceUnavailable)
	default:
		h.log.Error("try-on request failed", zap.Error(err))
		utils.RespondError(w, h.log, "internal server error", http.StatusInternalServerError)
	}
}
