package storeagent

import (
	"context"
	"fmt"
)

type operationDetailsKey struct{}

// Operation names recorded in OperationDetails and passed to AgentHooks.
const (
	OperationGet     = "Get"
	OperationPut     = "Put"
	OperationDelete  = "Delete"
	OperationPersist = "Persist"
	OperationClear   = "Clear"
)

type OperationDetails struct {
	Name string
	Key  string
}

// OperationDetailsFromContext extracts the details of the agent operation being handled in the given
// context. If it is not known, it returns nil.
func OperationDetailsFromContext(ctx context.Context) *OperationDetails {
	details, _ := ctx.Value(operationDetailsKey{}).(*OperationDetails)
	return details
}

func setOperationDetails[K any](ctx context.Context, name string, key K) context.Context {
	return context.WithValue(ctx, operationDetailsKey{}, &OperationDetails{
		Name: name,
		Key:  fmt.Sprint(key),
	})
}

// maintenance operations are not scoped to a key
func setMaintenanceDetails(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationDetailsKey{}, &OperationDetails{
		Name: name,
	})
}
