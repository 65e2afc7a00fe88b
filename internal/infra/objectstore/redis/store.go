// Package redis stores persisted mementos in redis, which lets an HA pair of
// management nodes share one persisted state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"brooklyn/internal/objectstore/core"
)

// Config holds redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Namespace prefixes every key; defaults to "brooklyn:".
	Namespace   string
	DialTimeout time.Duration
}

// Store implements core.Store on redis strings.
type Store struct {
	client    *goredis.Client
	namespace string
}

// New connects and pings the server.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	cfg.Addr = strings.TrimPrefix(strings.TrimPrefix(cfg.Addr, "redis://"), "rediss://")
	if cfg.Namespace == "" {
		cfg.Namespace = "brooklyn:"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  3,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Store{client: client, namespace: cfg.Namespace}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverRedis }

func (s *Store) redisKey(key string) string { return s.namespace + key }

func (s *Store) Put(ctx context.Context, key string, data []byte) (core.Info, error) {
	if err := core.ValidateKey(key); err != nil {
		return core.Info{}, err
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return core.Info{Key: key, Size: int64(len(data)), LastModified: time.Now().UTC()}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, core.NotFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return b, nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	rk := s.redisKey(key)
	n, err := s.client.Exists(ctx, rk).Result()
	if err != nil {
		return core.Info{}, fmt.Errorf("head %s: %w", key, err)
	}
	if n == 0 {
		return core.Info{}, core.NotFound(key)
	}
	size, err := s.client.StrLen(ctx, rk).Result()
	if err != nil {
		return core.Info{}, fmt.Errorf("head %s: %w", key, err)
	}
	return core.Info{Key: key, Size: size}, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

// escapeGlob quotes the characters redis MATCH patterns treat specially.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	pattern := escapeGlob(s.redisKey(prefix)) + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	sizes := make([]*goredis.IntCmd, len(keys))
	for i, k := range keys {
		sizes[i] = pipe.StrLen(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	infos := make([]core.Info, 0, len(keys))
	for i, k := range keys {
		infos = append(infos, core.Info{Key: strings.TrimPrefix(k, s.namespace), Size: sizes[i].Val()})
	}
	return infos, nil
}

func (s *Store) Close() error { return s.client.Close() }
