// Package dynamostore provides a store which keeps the values of one partition of a DynamoDB table, each key
// is written as the sort key of the partition.
package dynamostore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dexp "github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

const (
	// DefaultPartitionKeyAttribute this is the default partition key attribute name
	DefaultPartitionKeyAttribute = "id"

	// DefaultSortKeyAttribute this is the default sort key attribute name
	DefaultSortKeyAttribute = "name"

	// DefaultExpiresAttribute this is the default name for the dynamodb expiration attribute
	DefaultExpiresAttribute = "expires"

	// DefaultVersionAttribute this is the default name for the dynamodb version attribute incremented on every put
	DefaultVersionAttribute = "version"

	// DefaultPayloadAttribute this is the default attribute name containing the encoded payload of the record
	DefaultPayloadAttribute = "payload"

	// maxBatchWriteItems is the limit dynamodb places on the number of requests in one BatchWriteItem
	maxBatchWriteItems = 25

	maxUnprocessedRetries = 5
)

var (
	// ErrDuplicateAttribute two of the configured attribute names are the same
	ErrDuplicateAttribute = errors.New("dynamostore: attribute names must be distinct")

	// ErrEmptyAttribute one of the configured attribute names is empty
	ErrEmptyAttribute = errors.New("dynamostore: attribute names must not be empty")

	// ErrReservedField extra fields provided have an entry which conflicts with the attributes managed by the store
	ErrReservedField = errors.New("dynamostore: extra fields contained name which conflicts with table keys attributes")

	// ErrPartitionRequired the store was created without a partition
	ErrPartitionRequired = errors.New("dynamostore: partition is required")

	// ErrUnprocessedItems clear gave up on deletes dynamodb repeatedly returned as unprocessed
	ErrUnprocessedItems = errors.New("dynamostore: clear failed as dynamodb didn't process all the deletes")
)

// Key ensures the key used is a valid sort key type for DynamoDB.
//
// Each key attribute must be a scalar (meaning that it can hold only a single value).
type Key interface {
	string | constraints.Integer | []byte
}

// API is the subset of the dynamodb client used by the store
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Store store using aws sdk v2
//
// Store implements sync.Locker, agents wrapping the same Store share its exclusion domain.
type Store[K Key, V any] struct {
	domain       sync.Mutex
	client       API
	tableName    string
	partition    string
	fields       fieldsDef
	storeOptions *StoreOptions
}

// New creates and configures a new store using aws sdk v2
func New[K Key, V any](client API, tableName, partition string, options ...StoreOption) (*Store[K, V], error) {
	if partition == "" {
		return nil, ErrPartitionRequired
	}

	opts := &StoreOptions{
		retryDelay: 50 * time.Millisecond,
		fields: fieldsDef{
			partitionKeyName: DefaultPartitionKeyAttribute,
			sortKeyName:      DefaultSortKeyAttribute,
			expiresName:      DefaultExpiresAttribute,
			versionName:      DefaultVersionAttribute,
			payloadName:      DefaultPayloadAttribute,
		},
		storeHooks: &StoreHooks{
			RequestBuilt: func(ctx context.Context, key string, params any) context.Context {
				return ctx
			},
			ResponseReceived: func(ctx context.Context, key string, params any) context.Context {
				return ctx
			},
		},
	}

	ApplyStoreOptions(opts, options...)

	if err := opts.fields.validate(); err != nil {
		return nil, err
	}

	return &Store[K, V]{
		client:       client,
		tableName:    tableName,
		partition:    partition,
		fields:       opts.fields,
		storeOptions: opts,
	}, nil
}

// fieldsDef names of the core fields used to manage data in this table
type fieldsDef struct {
	partitionKeyName string
	sortKeyName      string
	expiresName      string
	versionName      string
	payloadName      string
}

func (f fieldsDef) names() []string {
	return []string{
		f.partitionKeyName,
		f.sortKeyName,
		f.expiresName,
		f.versionName,
		f.payloadName,
	}
}

func (f fieldsDef) validate() error {
	seen := make([]string, 0, 5)
	for _, name := range f.names() {
		if name == "" {
			return ErrEmptyAttribute
		}
		if slices.Contains(seen, name) {
			return ErrDuplicateAttribute
		}
		seen = append(seen, name)
	}

	return nil
}

// Lock acquires the store's exclusion domain.
func (t *Store[K, V]) Lock() {
	t.domain.Lock()
}

// Unlock releases the store's exclusion domain.
func (t *Store[K, V]) Unlock() {
	t.domain.Unlock()
}

// Get a record from the partition, ok is false when the record doesn't exist or has expired.
func (t *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var val V

	itemKey, err := t.buildKey(key)
	if err != nil {
		return val, false, err
	}

	getItem := &dynamodb.GetItemInput{
		TableName:              aws.String(t.tableName),
		Key:                    itemKey,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		ConsistentRead:         aws.Bool(t.storeOptions.consistentRead),
	}

	ks := fmt.Sprint(key)

	ctx = t.storeOptions.storeHooks.RequestBuilt(ctx, ks, getItem)

	readResp, err := t.client.GetItem(ctx, getItem)
	if err != nil {
		return val, false, errors.Wrap(err, "dynamostore: failed to get record")
	}

	t.storeOptions.storeHooks.ResponseReceived(ctx, ks, readResp.ConsumedCapacity)

	attr, ok := readResp.Item[t.fields.payloadName]
	if !ok {
		return val, false, nil
	}

	// dynamodb removes expired records lazily so they can still be returned for some time
	expired, err := t.isExpired(readResp.Item)
	if err != nil {
		return val, false, err
	}
	if expired {
		return val, false, nil
	}

	err = attributevalue.Unmarshal(attr, &val)
	if err != nil {
		return val, false, errors.Wrap(err, "dynamostore: failed to unmarshal payload attribute")
	}

	return val, true, nil
}

// Put a record into the partition, creating or replacing the payload and incrementing the version.
func (t *Store[K, V]) Put(ctx context.Context, key K, value V) (bool, error) {
	update, err := t.buildUpdate(value)
	if err != nil {
		return false, errors.Wrap(err, "dynamostore: failed to build update")
	}

	expr, err := dexp.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return false, errors.Wrap(err, "dynamostore: failed to build update expression")
	}

	itemKey, err := t.buildKey(key)
	if err != nil {
		return false, err
	}

	updateItem := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.tableName),
		Key:                       itemKey,
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		UpdateExpression:          expr.Update(),
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	}

	ks := fmt.Sprint(key)

	ctx = t.storeOptions.storeHooks.RequestBuilt(ctx, ks, updateItem)

	updateResp, err := t.client.UpdateItem(ctx, updateItem)
	if err != nil {
		return false, errors.Wrap(err, "dynamostore: failed to update item")
	}

	t.storeOptions.storeHooks.ResponseReceived(ctx, ks, updateResp.ConsumedCapacity)

	return true, nil
}

// Delete a record from the partition, returns false if it didn't exist.
func (t *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	itemKey, err := t.buildKey(key)
	if err != nil {
		return false, err
	}

	deleteItem := &dynamodb.DeleteItemInput{
		TableName:              aws.String(t.tableName),
		Key:                    itemKey,
		ReturnValues:           types.ReturnValueAllOld,
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	}

	ks := fmt.Sprint(key)

	ctx = t.storeOptions.storeHooks.RequestBuilt(ctx, ks, deleteItem)

	deleteResp, err := t.client.DeleteItem(ctx, deleteItem)
	if err != nil {
		return false, errors.Wrap(err, "dynamostore: failed to delete record")
	}

	t.storeOptions.storeHooks.ResponseReceived(ctx, ks, deleteResp.ConsumedCapacity)

	return len(deleteResp.Attributes) > 0, nil
}

// Persist is a no-op, dynamodb has durably stored every write once it is acknowledged.
func (t *Store[K, V]) Persist(ctx context.Context) error {
	return nil
}

// Clear deletes every record in the partition.
func (t *Store[K, V]) Clear(ctx context.Context) error {
	keyCond := dexp.Key(t.fields.partitionKeyName).Equal(dexp.Value(t.partition))
	proj := dexp.NamesList(dexp.Name(t.fields.partitionKeyName), dexp.Name(t.fields.sortKeyName))

	expr, err := dexp.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return errors.Wrap(err, "dynamostore: failed to build query expression")
	}

	query := &dynamodb.QueryInput{
		TableName:                 aws.String(t.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}

	removed := 0

	paginator := dynamodb.NewQueryPaginator(t.client, query)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return errors.Wrap(err, "dynamostore: failed to query partition")
		}

		for start := 0; start < len(page.Items); start += maxBatchWriteItems {
			end := start + maxBatchWriteItems
			if end > len(page.Items) {
				end = len(page.Items)
			}

			if err := t.batchDelete(ctx, page.Items[start:end]); err != nil {
				return err
			}
		}

		removed += len(page.Items)
	}

	zerolog.Ctx(ctx).Debug().Str("table", t.tableName).Str("partition", t.partition).Int("removed", removed).Msg("dynamostore: cleared partition")

	return nil
}

func (t *Store[K, V]) batchDelete(ctx context.Context, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}

	pending := map[string][]types.WriteRequest{t.tableName: requests}

	for attempt := 0; len(pending[t.tableName]) > 0; attempt++ {
		if attempt > 0 {
			if attempt > maxUnprocessedRetries {
				return ErrUnprocessedItems
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.storeOptions.retryDelay * time.Duration(attempt)):
			}
		}

		batchResp, err := t.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems:           pending,
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err != nil {
			return errors.Wrap(err, "dynamostore: failed to delete batch")
		}

		pending = batchResp.UnprocessedItems
	}

	return nil
}

func (t *Store[K, V]) buildKey(key K) (map[string]types.AttributeValue, error) {
	pk, err := attributevalue.Marshal(t.partition)
	if err != nil {
		return nil, errors.Wrap(err, "dynamostore: failed to build partition key")
	}
	sk, err := attributevalue.Marshal(key)
	if err != nil {
		return nil, errors.Wrap(err, "dynamostore: failed to build sort key")
	}

	return map[string]types.AttributeValue{
		t.fields.partitionKeyName: pk,
		t.fields.sortKeyName:      sk,
	}, nil
}

func (t *Store[K, V]) buildUpdate(value V) (dexp.UpdateBuilder, error) {
	// increment the version attribute by one
	update := dexp.Add(dexp.Name(t.fields.versionName), dexp.Value(1))

	val, err := attributevalue.Marshal(value)
	if err != nil {
		return update, errors.Wrap(err, "dynamostore: failed to marshal value")
	}

	update = update.Set(dexp.Name(t.fields.payloadName), dexp.Value(val))

	// if we have some additional fields merge those into the top level record as long as they don't match the
	// reserved fields used by the store
	for k, v := range t.storeOptions.extraFields {
		if t.isReservedField(k) {
			return update, ErrReservedField
		}

		val, err := attributevalue.Marshal(v)
		if err != nil {
			return update, errors.Wrap(err, "dynamostore: failed to marshal extra field")
		}

		update = update.Set(dexp.Name(k), dexp.Value(val))
	}

	// if a TTL assigned set it, otherwise remove any earlier expiry so the record never expires
	if t.storeOptions.ttl > 0 {
		ttlVal := time.Now().Add(t.storeOptions.ttl).Unix()

		update = update.Set(dexp.Name(t.fields.expiresName), dexp.Value(ttlVal))
	} else {
		update = update.Remove(dexp.Name(t.fields.expiresName))
	}

	return update, nil
}

func (t *Store[K, V]) isReservedField(k string) bool {
	return slices.Contains(t.fields.names(), k)
}

func (t *Store[K, V]) isExpired(item map[string]types.AttributeValue) (bool, error) {
	attr, ok := item[t.fields.expiresName]
	if !ok {
		return false, nil
	}

	var expires int64

	err := attributevalue.Unmarshal(attr, &expires)
	if err != nil {
		return false, errors.Wrap(err, "dynamostore: failed to unmarshal expires attribute")
	}

	return expires > 0 && time.Now().Unix() >= expires, nil
}
