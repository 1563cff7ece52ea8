package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/doclane/doclane/internal/ctxkeys"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/service"
)

// Auth resolves the Bearer token into a user and puts it on the
// request context. Requests without a valid token continue anonymously;
// RequireAuth/RequireAdmin decide whether that is acceptable per route.
func Auth(authService *service.AuthService, userRepository repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := authService.VerifyToken(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			user, err := userRepository.ByID(claims.UserID)
			if err != nil || !user.IsActive {
				next.ServeHTTP(w, r)
				return
			}

			// Never expose the hash downstream.
			user.PasswordHash = ""

			next.ServeHTTP(w, r.WithContext(ctxkeys.WithUser(r.Context(), user)))
		})
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) == nil {
			unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// RequireAdmin rejects requests without an admin user.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := ctxkeys.User(r.Context())
		if user == nil {
			unauthorized(w, "authentication required")
			return
		}
		if !user.IsAdmin() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
