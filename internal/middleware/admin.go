package middleware

import "net/http"

// AdminMiddleware restricts a route to the configured admin accounts. It runs
// after AuthMiddleware, so the user ID is already in the context.
func AdminMiddleware(adminUserIDs []string) func(http.Handler) http.Handler {
	admins := make(map[string]bool, len(adminUserIDs))
	for _, id := range adminUserIDs {
		admins[id] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !admins[UserID(r)] {
				http.Error(w, "admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
