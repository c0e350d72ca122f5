package middleware

import (
	"context"
	"net/http"
	"strings"

	"shardz/internal/logger"
	"shardz/internal/service"
	"shardz/internal/util" // JWT helper
)

// Injected key type to avoid context collisions
type contextKey string

const UserContextKey = contextKey("user")

// UserID extracts the authenticated user ID from the request context.
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(UserContextKey).(string)
	return id
}

// AuthMiddleware authenticates requests by JWT session token or, when the
// token has an sk_ prefix, by API key.
func AuthMiddleware(jwtSecret string, apiKeys service.APIKeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logger.New()
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Error().Msg("Authorization header missing")
				http.Error(w, "Authorization header missing", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Error().Msg("Invalid authorization header")
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}
			token := parts[1]

			var userID string
			if strings.HasPrefix(token, "sk_") {
				id, err := apiKeys.Authenticate(r.Context(), token)
				if err != nil {
					logger.Error().Err(err).Msg("Invalid API key")
					http.Error(w, "Invalid API key", http.StatusUnauthorized)
					return
				}
				userID = id
			} else {
				claims, err := util.ValidateJWT(token, jwtSecret)
				if err != nil {
					logger.Error().Msgf("Invalid token: %+v", err)
					http.Error(w, "Invalid token: "+err.Error(), http.StatusUnauthorized)
					return
				}
				userID = claims.UserID
				if userID == "" {
					userID = claims.Subject
				}
			}

			recordRequestUser(r, userID)
			ctx := context.WithValue(r.Context(), UserContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
