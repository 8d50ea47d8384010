package testutil

import (
	"net/http"
	"time"

	"assessor/pkg/domain"
	"assessor/pkg/requestcontext"
)

// WithTenancy scopes a request the way the tenancy middleware would after
// validating the bearer token. Handler tests bypass the middleware and use
// this instead.
func WithTenancy(req *http.Request, org domain.OrgDomain, actorID string) *http.Request {
	ctx := requestcontext.WithOrgDomain(req.Context(), org)
	if actorID != "" {
		ctx = requestcontext.WithActorID(ctx, actorID)
	}
	return req.WithContext(ctx)
}

// WithFrozenTime pins the request clock so created-at assertions are exact.
func WithFrozenTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
