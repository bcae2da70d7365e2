package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authsession/claims"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity Guard attached to ctx.
func IdentityFromContext(ctx context.Context) (claims.Identity, bool) {
	ident, ok := ctx.Value(identityContextKey{}).(claims.Identity)
	return ident, ok
}

// WithIdentity returns a copy of ctx carrying ident.
func WithIdentity(ctx context.Context, ident claims.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// Guard rejects requests without a usable bearer token with 401. decode
// checks the token; claims.Decode is used when it is nil. A token whose exp
// has passed is rejected even if decode does not check it.
func Guard(decode claims.DecodeFunc) func(http.Handler) http.Handler {
	if decode == nil {
		decode = claims.Decode
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			ident, err := decode(token)
			if err != nil {
				unauthorized(w)
				return
			}
			if ident.HasExpiry() && !time.Now().Before(ident.ExpiresAt) {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

// RequireRole is Guard followed by a role check. A request from any other
// role gets 403.
func RequireRole(decode claims.DecodeFunc, roles ...string) func(http.Handler) http.Handler {
	guard := Guard(decode)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, _ := IdentityFromContext(r.Context())
			for _, role := range roles {
				if ident.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}
