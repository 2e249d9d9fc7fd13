package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/raushankrgupta/fitview-tryon/utils"
)

type contextKey string

const claimsKey contextKey = "claims"

// auth validates the Bearer token and stashes its claims in the request
// context.
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			utils.RespondError(w, h.log, "missing or malformed Authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := utils.ValidateToken(h.jwtSecret, token)
		if err != nil {
			utils.RespondError(w, h.log, "invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// claimsFrom returns the authenticated claims stored by the auth middleware.
func claimsFrom(r *http.Request) *utils.TokenClaims {
	claims, _ := r.Context().Value(claimsKey).(*utils.TokenClaims)
	return claims
}

// CORSMiddleware allows cross-origin calls from the web client.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
