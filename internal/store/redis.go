package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// RedisStore keeps resources in Redis: one JSON value per id under a key
// prefix, plus a set per declared type so FindByType avoids a full scan.
// Intended for multi-pod deployments; the caller decides whether to fall
// back to the in-memory backend when Redis is unreachable.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies connectivity with a short
// ping. Keyspace names the store's key prefix so independent stores can
// share one database; empty means "hyprcat".
func NewRedisStore(addr, password string, db int, keyspace string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	if keyspace == "" {
		keyspace = "hyprcat"
	}
	return &RedisStore{rdb: rdb, prefix: keyspace + ":"}, nil
}

// Close shuts down the underlying client.
func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) resKey(id string) string   { return s.prefix + "res:" + id }
func (s *RedisStore) typeKey(typ string) string { return s.prefix + "type:" + typ }

func (s *RedisStore) Get(ctx context.Context, id string) (linkeddata.Node, error) {
	raw, err := s.rdb.Get(ctx, s.resKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var n linkeddata.Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return n, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, n linkeddata.Node) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	// Re-indexing needs the previous type set; a stale index entry only
	// costs FindByType an extra filtered read.
	old, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	pipe := s.rdb.TxPipeline()
	if old != nil {
		for _, typ := range old.Types() {
			pipe.SRem(ctx, s.typeKey(typ), id)
		}
	}
	pipe.Set(ctx, s.resKey(id), raw, 0)
	for _, typ := range n.Types() {
		pipe.SAdd(ctx, s.typeKey(typ), id)
	}
	pipe.SAdd(ctx, s.prefix+"ids", id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	old, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	pipe := s.rdb.TxPipeline()
	for _, typ := range old.Types() {
		pipe.SRem(ctx, s.typeKey(typ), id)
	}
	pipe.SRem(ctx, s.prefix+"ids", id)
	pipe.Del(ctx, s.resKey(id))
	_, err = pipe.Exec(ctx)
	return err == nil, err
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.prefix+"ids").Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) FindByType(ctx context.Context, typ string) ([]linkeddata.Node, error) {
	ids, err := s.rdb.SMembers(ctx, s.typeKey(typ)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	var out []linkeddata.Node
	for _, id := range ids {
		n, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if linkeddata.IsOfType(n, typ) {
			out = append(out, n)
		}
	}
	return out, nil
}
