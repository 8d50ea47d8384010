package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"assessor/pkg/domain"
	"assessor/pkg/requestcontext"
)

// tenancyClaims are the claims the gateway puts on every forwarded request.
// The gateway owns authentication; this middleware only extracts the already
// verified tenancy scope and acting principal.
type tenancyClaims struct {
	OrgDomain string `json:"org"`
	jwt.RegisteredClaims
}

// RequireTenancy validates the bearer token signature and injects the
// organization domain and actor into the request context. Requests without a
// resolvable organization domain never reach a handler.
func RequireTenancy(signingKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				unauthorized(w, r, "missing bearer token")
				return
			}

			claims := &tenancyClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return signingKey, nil
			})
			if err != nil || !parsed.Valid {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rejected bearer token")
				unauthorized(w, r, "invalid or expired token")
				return
			}
			if claims.OrgDomain == "" {
				unauthorized(w, r, "token carries no organization domain")
				return
			}

			ctx := requestcontext.WithOrgDomain(r.Context(), domain.OrgDomain(claims.OrgDomain))
			ctx = requestcontext.WithActorID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, err := fmt.Fprintf(w, `{"error":"unauthorized","error_description":%q}`, description)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to write unauthorized response")
	}
}
