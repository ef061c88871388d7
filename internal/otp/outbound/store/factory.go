package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

var ErrUnknownDriver = errors.New("store: unknown driver")

// Backends holds the clients a driver may need. Only the one matching the
// selected driver must be set.
type Backends struct {
	Redis       redis.UniversalClient
	RedisPrefix string
	Postgres    PGXPool
	Dynamo      DynamoAPI
	DynamoTable string
}

// NewFromDriver builds the store named by driver. An empty driver selects memory.
func NewFromDriver(driver string, b Backends, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemory(opts), nil
	case DriverRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("store: %s driver requires a redis client", DriverRedis)
		}
		return NewRedis(b.Redis, b.RedisPrefix, opts), nil
	case DriverPostgres:
		if b.Postgres == nil {
			return nil, fmt.Errorf("store: %s driver requires a postgres pool", DriverPostgres)
		}
		return NewPostgres(b.Postgres, opts), nil
	case DriverDynamoDB:
		if b.Dynamo == nil {
			return nil, fmt.Errorf("store: %s driver requires a dynamodb client", DriverDynamoDB)
		}
		return NewDynamo(b.Dynamo, b.DynamoTable, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
