// Package utils holds small HTTP, token, and email helpers shared by the
// API layer.
package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RespondJSON sends a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("encode json response failed", zap.Error(err))
	}
}

// RespondError sends a JSON error body and logs the message.
func RespondError(w http.ResponseWriter, log *zap.Logger, message string, status int) {
	if log != nil {
		log.Warn("request failed", zap.Int("status", status), zap.String("error", message))
	}
	RespondJSON(w, status, map[string]string{"error": message})
}

// LatencyMiddleware logs the method, path, status-agnostic duration of each
// request.
func LatencyMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
