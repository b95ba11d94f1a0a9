//go:build integration

package dynamostore_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/storeagent"
	"github.com/wolfeidau/storeagent/dynamostore"
)

const (
	defaultRegion = "us-east-1"
	partKeyLen    = 16
)

var (
	client   *dynamodb.Client
	endpoint string
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		// integration tests skip themselves without a client
		fmt.Fprintf(os.Stderr, "docker unavailable: %v\n", err)
		os.Exit(m.Run())
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "amazon/dynamodb-local",
		Tag:        "latest",
		Cmd:        []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start dynamodb-local: %v\n", err)
		os.Exit(1)
	}

	_ = resource.Expire(120)

	endpoint = fmt.Sprintf("http://localhost:%s", resource.GetPort("8000/tcp"))

	err = pool.Retry(func() error {
		var err error
		client, err = newClient(context.Background())
		if err != nil {
			return err
		}

		_, err = client.ListTables(context.Background(), &dynamodb.ListTablesInput{})
		return err
	})
	if err != nil {
		_ = pool.Purge(resource)
		fmt.Fprintf(os.Stderr, "dynamodb-local never became ready: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = pool.Purge(resource)

	os.Exit(code)
}

func TestIntegrationPutGetDelete(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()

	store := newIntegrationStore[string, *Customer](t)

	ok, err := store.Put(ctx, "c1", &Customer{ID: "c1", Name: "test"})
	assert.NoError(err)
	assert.True(ok)

	val, ok, err := store.Get(ctx, "c1")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(&Customer{ID: "c1", Name: "test"}, val)

	ok, err = store.Delete(ctx, "c1")
	assert.NoError(err)
	assert.True(ok)

	ok, err = store.Delete(ctx, "c1")
	assert.NoError(err)
	assert.False(ok)

	_, ok, err = store.Get(ctx, "c1")
	assert.NoError(err)
	assert.False(ok)
}

func TestIntegrationClear(t *testing.T) {
	assert := require.New(t)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
	ctx := logger.WithContext(context.Background())

	store := newIntegrationStore[int, []byte](t)

	for i := 0; i < 60; i++ {
		_, err := store.Put(ctx, i, []byte("data"))
		assert.NoError(err)
	}

	assert.NoError(store.Clear(ctx))

	for i := 0; i < 60; i++ {
		_, ok, err := store.Get(ctx, i)
		assert.NoError(err)
		assert.False(ok)
	}
}

func TestIntegrationAgent(t *testing.T) {
	assert := require.New(t)
	ctx := context.Background()

	store := newIntegrationStore[string, *Customer](t)

	upper := storeagent.HandlerFunc[*Customer](func(ctx context.Context, c *Customer) error {
		c.Name = strings.ToUpper(c.Name)
		return nil
	})

	agent, err := storeagent.New[string, *Customer](store, storeagent.WithInboundHandler[string, *Customer](upper))
	assert.NoError(err)

	_, err = agent.Put(ctx, "a", &Customer{ID: "a", Name: "x"})
	assert.NoError(err)

	val, ok, err := agent.Get(ctx, "a")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("X", val.Name)

	ok, err = agent.Delete(ctx, "a")
	assert.NoError(err)
	assert.True(ok)

	_, ok, err = agent.Get(ctx, "a")
	assert.NoError(err)
	assert.False(ok)
}

func newClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(defaultRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")),
		config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: endpoint, SigningRegion: defaultRegion}, nil
			}),
		),
	)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

func newIntegrationStore[K dynamostore.Key, V any](t *testing.T) *dynamostore.Store[K, V] {
	t.Helper()

	if client == nil {
		t.Skip("dynamodb-local is not running")
	}

	tableName := "store-" + mustRandKey(partKeyLen)

	ensureTable(t, tableName, sortKeyType[K]())

	store, err := dynamostore.New[K, V](client, tableName, mustRandKey(partKeyLen), dynamostore.WithConsistentRead(true))
	require.NoError(t, err)

	return store
}

func ensureTable(t *testing.T, tableName string, sortType types.ScalarAttributeType) {
	t.Helper()

	ctx := context.Background()

	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(dynamostore.DefaultPartitionKeyAttribute), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(dynamostore.DefaultSortKeyAttribute), AttributeType: sortType},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(dynamostore.DefaultPartitionKeyAttribute), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(dynamostore.DefaultSortKeyAttribute), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	require.NoError(t, err)

	waiter := dynamodb.NewTableExistsWaiter(client)
	require.NoError(t, waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 30*time.Second))
}

func sortKeyType[K dynamostore.Key]() types.ScalarAttributeType {
	var k K
	switch any(k).(type) {
	case string:
		return types.ScalarAttributeTypeS
	case []byte:
		return types.ScalarAttributeTypeB
	default:
		return types.ScalarAttributeTypeN
	}
}

func mustRandKey(n int) string {
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
