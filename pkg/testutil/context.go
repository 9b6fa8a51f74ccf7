package testutil

import (
	"context"
	"net/http"

	"commonsource/internal/platform/middleware"
)

// WithRequestID adds a request ID to the request context, simulating the
// RequestID middleware.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyRequestID, requestID)
	return req.WithContext(ctx)
}

// WithOperator adds an authenticated operator to the request context,
// simulating what RequireAuth does after validating an admin token.
func WithOperator(req *http.Request, operator string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyOperator, operator)
	return req.WithContext(ctx)
}
