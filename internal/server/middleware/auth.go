package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/faucetdb/keygate/internal/model"
	"github.com/faucetdb/keygate/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// Auth carries what the authorization middleware needs. When the key
// service has no master key configured, every request is let through.
type Auth struct {
	Keys   *service.KeyService
	Header string // header carrying the raw key, in addition to Bearer
}

// RequireAction returns an HTTP middleware that only lets a request through
// if its key grants action. The key is read from the configured header or
// from an "Authorization: Bearer" header. On success the principal is
// attached to the request context.
func (a Auth) RequireAction(action model.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Keys.MasterKeyConfigured() {
				ctx := context.WithValue(r.Context(), AuthPrincipalKey, &service.Principal{Master: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			raw := a.rawKey(r)
			if raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing_authorization_header",
					"The Authorization header is missing. It must use the bearer authorization method.")
				return
			}

			principal, err := a.Keys.Authorize(r.Context(), raw, action, "")
			switch {
			case err == nil:
			case errors.Is(err, service.ErrInvalidKey), errors.Is(err, service.ErrKeyExpired):
				writeAuthError(w, http.StatusUnauthorized, "invalid_api_key", "The provided API key is invalid.")
				return
			case errors.Is(err, service.ErrForbidden):
				writeAuthError(w, http.StatusForbidden, "forbidden",
					"The provided API key does not grant the "+string(action)+" action.")
				return
			default:
				writeAuthError(w, http.StatusInternalServerError, "internal", "Authorization failed.")
				return
			}

			if principal.Master {
				setLogCaller(r.Context(), "master")
			} else {
				setLogCaller(r.Context(), keyPrefix(principal.KeyID))
			}
			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a Auth) rawKey(r *http.Request) string {
	header := a.Header
	if header == "" {
		header = "X-API-Key"
	}
	if key := r.Header.Get(header); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    status,
			Type:    errType,
			Message: message,
		},
	})
}
