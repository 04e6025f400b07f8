// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// OperatorContext identifies who performs a mutation: an admin at the central
// warehouse or a stall operator. It feeds recorded_by / distributed_by fields.
type OperatorContext struct {
	OperatorID string
	Role       string // admin, stall
	StallID    string // set for stall operators
}

type operatorContextKey struct{}

// WithOperator adds OperatorContext to context.
func WithOperator(ctx context.Context, op *OperatorContext) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

// GetOperator returns OperatorContext from context.
func GetOperator(ctx context.Context) *OperatorContext {
	if v, ok := ctx.Value(operatorContextKey{}).(*OperatorContext); ok {
		return v
	}
	return nil
}

// GetOperatorID returns operator ID from context or empty string.
func GetOperatorID(ctx context.Context) string {
	if op := GetOperator(ctx); op != nil {
		return op.OperatorID
	}
	return ""
}

// IsAdmin reports whether the operator in context acts for the central warehouse.
func IsAdmin(ctx context.Context) bool {
	op := GetOperator(ctx)
	return op != nil && op.Role == "admin"
}
