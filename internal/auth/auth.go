package auth

import (
	"context"
)

type contextKey string

const adminKey contextKey = "admin"

// GetAdmin retrieves the authenticated admin from the context
func GetAdmin(ctx context.Context) *Admin {
	admin, _ := ctx.Value(adminKey).(*Admin)
	return admin
}

// WithAdmin stores the authenticated admin in the context
func WithAdmin(ctx context.Context, admin *Admin) context.Context {
	return context.WithValue(ctx, adminKey, admin)
}
