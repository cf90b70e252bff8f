package service

import "context"

type contextKey string

const operatorKey contextKey = "operator"

// OperatorInfo is the authenticated caller of a request.
type OperatorInfo struct {
	UserID string
	Name   string
	Role   string
}

func WithOperator(ctx context.Context, op *OperatorInfo) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// GetOperatorInfo returns nil on unauthenticated requests.
func GetOperatorInfo(ctx context.Context) *OperatorInfo {
	val, ok := ctx.Value(operatorKey).(*OperatorInfo)
	if !ok {
		return nil
	}
	return val
}
