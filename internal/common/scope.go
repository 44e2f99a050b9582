package common

import "context"

// siteScopeKey is the context key for the site scope value.
type siteScopeKey struct{}

// WithSiteScope returns a context carrying the site scope for one import run.
// Background goroutines do not inherit request-scoped values implicitly, so
// every job goroutine must re-enter its scope with this before calling into
// pipeline phases.
func WithSiteScope(ctx context.Context, site string) context.Context {
	return context.WithValue(ctx, siteScopeKey{}, site)
}

// SiteScopeFrom extracts the site scope from a context. Returns "default"
// when no scope was set so single-site deployments need no configuration.
func SiteScopeFrom(ctx context.Context) string {
	if site, ok := ctx.Value(siteScopeKey{}).(string); ok && site != "" {
		return site
	}
	return "default"
}
