package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ernie/isle-tracker/internal/auth"
)

type claimsKey struct{}

// requireAuth only lets requests carrying a valid player token through. The
// token's claims ride on the request context for the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return r.withPlayer(false, next)
}

// requireAdmin additionally requires an admin token (or an ID in admin_ids)
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return r.withPlayer(true, next)
}

func (r *Router) withPlayer(admin bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		claims, ok := r.bearerClaims(req)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if admin && !claims.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, req.WithContext(context.WithValue(req.Context(), claimsKey{}, claims)))
	}
}

// bearerClaims validates the player token in the Authorization header
func (r *Router) bearerClaims(req *http.Request) (*auth.Claims, bool) {
	token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil, false
	}
	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// playerClaims returns the claims stored by requireAuth/requireAdmin
func playerClaims(req *http.Request) *auth.Claims {
	claims, _ := req.Context().Value(claimsKey{}).(*auth.Claims)
	return claims
}
