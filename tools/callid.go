package tools

import (
	"context"

	"github.com/google/uuid"
)

type callIDKey struct{}

// WithCallID returns a copy of ctx carrying the id of a tool call.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallID returns the id of the tool call in progress, or empty string.
func CallID(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

func ensureCallID(ctx context.Context) context.Context {
	if CallID(ctx) != "" {
		return ctx
	}
	return WithCallID(ctx, uuid.NewString())
}
