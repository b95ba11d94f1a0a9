package storeagent

import "context"

// AgentHooks is a container for callbacks that can instrument the agent
//
// Hooks run outside of the store's exclusion domain, for Persist and Clear the key is the zero value.
type AgentHooks[K any, V any] struct {
	// OperationStarted will be invoked before any handler or store call is made
	OperationStarted   func(ctx context.Context, op string, key K) context.Context
	OperationCompleted func(ctx context.Context, op string, key K, err error)
}

func defaultAgentHooks[K any, V any]() *AgentHooks[K, V] {
	return &AgentHooks[K, V]{
		OperationStarted: func(ctx context.Context, op string, key K) context.Context {
			return ctx
		},
		OperationCompleted: func(ctx context.Context, op string, key K, err error) {},
	}
}
