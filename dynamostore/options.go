package dynamostore

import (
	"time"
)

// StoreOption sets a specific store option
type StoreOption interface {
	Apply(opts *StoreOptions)
}

// StoreOptions holds all available store configuration options
type StoreOptions struct {
	fields         fieldsDef
	storeHooks     *StoreHooks
	ttl            time.Duration
	consistentRead bool
	retryDelay     time.Duration
	extraFields    map[string]any
}

// StoreOptionFunc wraps a function and implements the StoreOption interface
type StoreOptionFunc func(*StoreOptions)

// Apply calls the wrapped function.
func (fn StoreOptionFunc) Apply(opts *StoreOptions) {
	fn(opts)
}

// ApplyStoreOptions applies the provided option values to the StoreOptions struct
func ApplyStoreOptions(v *StoreOptions, opts ...StoreOption) {
	for i := range opts {
		opts[i].Apply(v)
	}
}

func WithStoreHooks(storeHooks *StoreHooks) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		if storeHooks == nil {
			return
		}

		hooks := *storeHooks
		if hooks.RequestBuilt == nil {
			hooks.RequestBuilt = opts.storeHooks.RequestBuilt
		}
		if hooks.ResponseReceived == nil {
			hooks.ResponseReceived = opts.storeHooks.ResponseReceived
		}

		opts.storeHooks = &hooks
	})
}

// WithTTL assigns a time to live (TTL) to every record when it is put
func WithTTL(ttl time.Duration) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.ttl = ttl
	})
}

// WithConsistentRead enable the consistent read flag when performing get operations
func WithConsistentRead(consistentRead bool) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.consistentRead = consistentRead
	})
}

// WithRetryDelay sets the base delay between attempts to delete items dynamodb left unprocessed during clear
func WithRetryDelay(retryDelay time.Duration) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.retryDelay = retryDelay
	})
}

// WithPartitionKeyAttribute overrides the name of the partition key attribute
func WithPartitionKeyAttribute(name string) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.fields.partitionKeyName = name
	})
}

// WithSortKeyAttribute overrides the name of the sort key attribute
func WithSortKeyAttribute(name string) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.fields.sortKeyName = name
	})
}

// WithExpiresAttribute overrides the name of the attribute configured as the table's TTL attribute
func WithExpiresAttribute(name string) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.fields.expiresName = name
	})
}

// WithExtraFields assign extra fields written to the top level of every record when it is put
func WithExtraFields(extraFields map[string]any) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.extraFields = extraFields
	})
}

// WithVersionAttribute overrides the name of the attribute incremented on every put
func WithVersionAttribute(name string) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.fields.versionName = name
	})
}

// WithPayloadAttribute overrides the name of the attribute holding the encoded value
func WithPayloadAttribute(name string) StoreOption {
	return StoreOptionFunc(func(opts *StoreOptions) {
		opts.fields.payloadName = name
	})
}
