package auth

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"turtle-internet/internal/response"
)

// RequireAdmin rejects requests without a valid admin bearer token.
func (s *Service) RequireAdmin(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		admin, err := s.ValidateToken(parts[1])
		if err != nil {
			response.Error(w, http.StatusUnauthorized, err.Error())
			return
		}

		next(w, r.WithContext(WithAdmin(r.Context(), admin)), ps)
	}
}
