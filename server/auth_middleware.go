package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-app-lock/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyUser stores the *users.User owning the parent session
const ContextKeyUser ContextKey = "user"

const msgSessionEnded = "Your session has ended. Sign in again."

// RequireParentSession resolves the Authorization bearer to the parent
// session's user. The token is looked up, never parsed.
func (s *Server) RequireParentSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := bearerToken(r)
			if !ok {
				writeJSONMessage(w, msgSessionEnded, http.StatusUnauthorized)
				return
			}

			session, err := s.repos.ParentSessions.Get(bearer)
			if err != nil {
				writeJSONMessage(w, msgSessionEnded, http.StatusUnauthorized)
				return
			}

			user, err := s.repos.Users.GetByID(session.UserID)
			if err != nil || user == nil {
				writeJSONMessage(w, msgSessionEnded, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next(w, r.WithContext(ctx))
		}
	}
}

func userFromContext(ctx context.Context) (*users.User, bool) {
	user, ok := ctx.Value(ContextKeyUser).(*users.User)
	return user, ok && user != nil
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
