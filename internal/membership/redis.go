package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore implements Store on Redis sets.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisStore wraps an existing client. The store does not own the client
// and Close is the caller's responsibility.
func NewRedisStore(client redis.UniversalClient, cfg Config, logger *zap.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &RedisStore{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// NewClient builds a redis.UniversalClient from configuration. One address
// yields a single-node client, several a cluster client, and a master name a
// sentinel failover client.
func NewClient(cfg config.RedisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      cfg.Addrs,
		Username:   cfg.Username,
		Password:   cfg.Password.Value(),
		DB:         cfg.DB,
		MasterName: cfg.MasterName,
	})
}

// SetNames replaces the set inside MULTI/EXEC: DEL followed by SADD.
func (s *RedisStore) SetNames(ctx context.Context, namespace string, names []string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}

	key := Key(namespace)
	members := make([]interface{}, 0, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: metric name at index %d must not be empty", ErrInvalidArgument, i)
		}
		members = append(members, name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace names for namespace %q: %w", Normalize(namespace), err)
	}

	s.logger.Debug("replaced namespace names",
		zap.String("namespace", Normalize(namespace)),
		zap.Int("count", len(members)),
	)
	return nil
}

// GetNames returns every member of the namespace's set.
func (s *RedisStore) GetNames(ctx context.Context, namespace string) (map[string]struct{}, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	members, err := s.client.SMembers(ctx, Key(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get names for namespace %q: %w", Normalize(namespace), err)
	}

	names := make(map[string]struct{}, len(members))
	for _, m := range members {
		names[m] = struct{}{}
	}
	return names, nil
}

// AddName adds a single name with SADD.
func (s *RedisStore) AddName(ctx context.Context, namespace, name string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: metric name must not be empty", ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.SAdd(ctx, Key(namespace), name).Err(); err != nil {
		return fmt.Errorf("failed to add name to namespace %q: %w", Normalize(namespace), err)
	}
	return nil
}

// IsMember checks a single name with SISMEMBER.
func (s *RedisStore) IsMember(ctx context.Context, namespace, name string) (bool, error) {
	if err := checkNamespace(namespace); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.client.SIsMember(ctx, Key(namespace), name).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check membership in namespace %q: %w", Normalize(namespace), err)
	}
	return ok, nil
}

// Ping checks backend connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

var _ Store = (*RedisStore)(nil)
