package dynamostore

import "context"

// StoreHooks is a container for callbacks that can instrument the datastore
//
// Clear issues its requests without invoking hooks.
type StoreHooks struct {
	// RequestBuilt will be invoked prior to dispatching the request to the AWS SDK
	RequestBuilt     func(ctx context.Context, key string, params any) context.Context
	ResponseReceived func(ctx context.Context, key string, params any) context.Context
}
