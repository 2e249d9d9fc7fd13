package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"

	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	"github.com/raushankrgupta/fitview-tryon/models"
	"github.com/raushankrgupta/fitview-tryon/utils"
)

const (
	maxPhotoBytes = 10 << 20
	minPhotoDim   = 512

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// TryOn generates a single-garment composite for a catalog model.
func (h *Handler) TryOn(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req models.TryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, h.log, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ModelID == "" || req.ProductID == "" {
		utils.RespondError(w, h.log, "model_id and product_id are required", http.StatusBadRequest)
		return
	}

	sess, err := h.service.Generate(r.Context(), claims.UserID, req.ModelID, req.ProductID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

// BatchTryOn generates per-garment composites plus a combined outfit.
func (h *Handler) BatchTryOn(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req models.BatchTryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, h.log, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ModelID == "" || len(req.ProductIDs) == 0 {
		utils.RespondError(w, h.log, "model_id and product_ids are required", http.StatusBadRequest)
		return
	}
	if len(req.ProductIDs) > models.MaxBatchGarments {
		utils.RespondError(w, h.log,
			fmt.Sprintf("at most %d products per batch", models.MaxBatchGarments), http.StatusBadRequest)
		return
	}

	resp, err := h.service.GenerateBatch(r.Context(), claims.UserID, req.ModelID, req.ProductIDs)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if claims.Email != "" {
		go func() {
			text := fmt.Sprintf("Your batch try-on of %d garments is ready.", resp.ProductCount)
			if err := h.emailer.Send("", claims.Email, "Your try-on results are ready", text, ""); err != nil {
				h.log.Warn("batch notification email failed", zap.Error(err))
			}
		}()
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// TryOnWithPhoto generates a composite using an uploaded subject photo.
// Accepts multipart form data with a "photo" file and a "product_id" field.
func (h *Handler) TryOnWithPhoto(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes+1<<20)
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		utils.RespondError(w, h.log, "invalid multipart form", http.StatusBadRequest)
		return
	}

	productID := r.FormValue("product_id")
	if productID == "" {
		utils.RespondError(w, h.log, "product_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		utils.RespondError(w, h.log, "photo file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > maxPhotoBytes {
		utils.RespondError(w, h.log, "photo exceeds the 10MB limit", http.StatusBadRequest)
		return
	}

	photo, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, h.log, "failed to read photo", http.StatusBadRequest)
		return
	}
	if err := validatePhoto(photo); err != nil {
		utils.RespondError(w, h.log, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.service.GenerateWithPhoto(r.Context(), claims.UserID, photo, productID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

// Restyle re-renders an existing session's result in a new setting.
func (h *Handler) Restyle(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	sessionID := r.PathValue("id")

	var req models.RestyleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, h.log, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Style == "" {
		utils.RespondError(w, h.log, "style is required", http.StatusBadRequest)
		return
	}

	sess, err := h.service.Restyle(r.Context(), claims.UserID, sessionID, req.Style)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

// History returns one page of the caller's try-on sessions.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	resp, err := h.service.History(r.Context(), claims.UserID, page, limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// GetSession returns one of the caller's sessions.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	sess, err := h.service.GetSession(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

// ToggleFavorite flips the favorite flag on one of the caller's sessions.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req models.FavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, h.log, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.service.ToggleFavorite(r.Context(), r.PathValue("id"), claims.UserID, req.IsFavorite)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

// validatePhoto checks that the upload is a decodable JPEG or PNG of at
// least 512x512 pixels.
func validatePhoto(photo []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(photo))
	if err != nil {
		return fmt.Errorf("photo must be a valid JPEG or PNG image")
	}
	if format != "jpeg" && format != "png" {
		return fmt.Errorf("photo must be JPEG or PNG, got %s", format)
	}
	if cfg.Width < minPhotoDim || cfg.Height < minPhotoDim {
		return fmt.Errorf("photo must be at least %dx%d pixels", minPhotoDim, minPhotoDim)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
