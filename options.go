package storeagent

import (
	"github.com/rs/zerolog"
)

// AgentOption sets a specific agent option
type AgentOption[K any, V any] interface {
	Apply(opts *AgentOptions[K, V])
}

// AgentOptions holds all available agent configuration options
type AgentOptions[K any, V any] struct {
	inbound    Handler[V]
	outbound   Handler[V]
	logger     zerolog.Logger
	agentHooks *AgentHooks[K, V]
}

// AgentOptionFunc wraps a function and implements the AgentOption interface
type AgentOptionFunc[K any, V any] func(*AgentOptions[K, V])

// Apply calls the wrapped function.
func (fn AgentOptionFunc[K, V]) Apply(opts *AgentOptions[K, V]) {
	fn(opts)
}

// ApplyAgentOptions applies the provided option values to the AgentOptions struct
func ApplyAgentOptions[K any, V any](v *AgentOptions[K, V], opts ...AgentOption[K, V]) {
	for i := range opts {
		opts[i].Apply(v)
	}
}

// WithInboundHandler assigns the handler called on values passed to Put before they reach the store
func WithInboundHandler[K any, V any](handler Handler[V]) AgentOption[K, V] {
	return AgentOptionFunc[K, V](func(opts *AgentOptions[K, V]) {
		if handler != nil {
			opts.inbound = handler
		}
	})
}

// WithOutboundHandler assigns the handler called on values read by Get before they are returned
func WithOutboundHandler[K any, V any](handler Handler[V]) AgentOption[K, V] {
	return AgentOptionFunc[K, V](func(opts *AgentOptions[K, V]) {
		if handler != nil {
			opts.outbound = handler
		}
	})
}

// WithLogger assigns the logger used to report handler and store failures, the default discards everything
func WithLogger[K any, V any](logger zerolog.Logger) AgentOption[K, V] {
	return AgentOptionFunc[K, V](func(opts *AgentOptions[K, V]) {
		opts.logger = logger
	})
}

func WithAgentHooks[K any, V any](agentHooks *AgentHooks[K, V]) AgentOption[K, V] {
	return AgentOptionFunc[K, V](func(opts *AgentOptions[K, V]) {
		if agentHooks == nil {
			return
		}

		// fill in missing callbacks so the agent can always invoke both
		defaults := defaultAgentHooks[K, V]()
		hooks := *agentHooks
		if hooks.OperationStarted == nil {
			hooks.OperationStarted = defaults.OperationStarted
		}
		if hooks.OperationCompleted == nil {
			hooks.OperationCompleted = defaults.OperationCompleted
		}

		opts.agentHooks = &hooks
	})
}
