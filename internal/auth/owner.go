package auth

import "context"

type ownerKey struct{}

// WithOwner stores the authenticated owner id in ctx
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the authenticated owner id. ok is false for anonymous requests.
func OwnerFromContext(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(ownerKey{}).(string)
	return id, id != ""
}
