package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type Backend string

const (
	BackendDynamoDB Backend = "dynamodb"
	BackendRedis    Backend = "redis"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

// ParseBackend maps a configured name to a Backend. An empty name means
// DynamoDB.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return BackendDynamoDB, nil
	case BackendDynamoDB, BackendRedis, BackendSQLite, BackendPostgres, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("repository: unknown store backend %q", name)
	}
}

// OpenSettings carries what each backend needs. Only the fields of the
// selected backend are read.
type OpenSettings struct {
	Backend     Backend
	AWS         *aws.Config
	StateTable  string
	RedisURL    string
	DatabaseURL string
}

// Open builds the KV for s.Backend. The returned close func is never nil.
func Open(ctx context.Context, s OpenSettings) (KV, func() error, error) {
	noop := func() error { return nil }
	switch s.Backend {
	case BackendDynamoDB, "":
		if s.AWS == nil {
			return nil, noop, errors.New("repository: dynamodb backend needs an AWS config")
		}
		kv, err := NewDynamoKV(awsdynamodb.NewFromConfig(*s.AWS), s.StateTable)
		if err != nil {
			return nil, noop, err
		}
		return kv, noop, nil
	case BackendRedis:
		if strings.TrimSpace(s.RedisURL) == "" {
			return nil, noop, errors.New("repository: redis backend needs a URL")
		}
		kv, client, err := NewRedisKVFromURL(s.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return kv, client.Close, nil
	case BackendSQLite, BackendPostgres:
		if strings.TrimSpace(s.DatabaseURL) == "" {
			return nil, noop, fmt.Errorf("repository: %s backend needs a DSN", s.Backend)
		}
		if got := DetectDialect(s.DatabaseURL); string(got) != sqlDialectFor(s.Backend) {
			return nil, noop, fmt.Errorf("repository: DSN does not look like %s", s.Backend)
		}
		kv, err := OpenSQLKV(ctx, s.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return kv, kv.Close, nil
	case BackendMemory:
		return NewMemoryKV(), noop, nil
	default:
		return nil, noop, fmt.Errorf("repository: unknown store backend %q", s.Backend)
	}
}

func sqlDialectFor(b Backend) string {
	if b == BackendPostgres {
		return string(DialectPostgres)
	}
	return string(DialectSQLite)
}
