package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/plotbridge/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "plotbridge:annotations:"

// Store implements ports.AnnotationStore using Redis.
// Annotations are stored as one JSON document per key, and a sorted set
// indexes keys by expiry so List can prune entries whose TTL passed.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for stored annotations.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, so a Locker can share the connection pool.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the annotations to Redis.
func (s *Store) Save(ctx context.Context, key string, annotations domain.RetainedAnnotations) error {
	if annotations == nil {
		annotations = domain.RetainedAnnotations{}
	}
	data, err := json.Marshal(annotations)
	if err != nil {
		return fmt.Errorf("failed to marshal annotations: %w", err)
	}

	// Score = Now + TTL. Without a TTL the entry never leaves the index.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(key), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the annotations from Redis.
func (s *Store) Load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrAnnotationsNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var annotations domain.RetainedAnnotations
	if err := json.Unmarshal(val, &annotations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal annotations: %w", err)
	}
	if annotations == nil {
		annotations = domain.RetainedAnnotations{}
	}
	return annotations, nil
}

// Delete removes the annotations and their index entry.
func (s *Store) Delete(ctx context.Context, key string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(), key)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns live keys, pruning expired index entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired annotations: %w", err)
	}

	keys, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	return keys, nil
}

// Ping reports whether the server is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
