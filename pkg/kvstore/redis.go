// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
)

// RedisStore is a networked Store implementation, useful when several
// workspace processes on the same host want to share a single durable
// index (spec §6 "any content-addressed blob store").
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Assoc implements Store.
func (r *RedisStore) Assoc(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return ygerrors.NewStorageFaultError("redis assoc failed for "+key, err)
	}
	return nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ygerrors.NewStorageFaultError("redis get failed for "+key, err)
	}
	return v, true, nil
}

// Dissoc implements Store.
func (r *RedisStore) Dissoc(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return ygerrors.NewStorageFaultError("redis dissoc failed for "+key, err)
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		return ygerrors.NewStorageFaultError("failed to close redis client", err)
	}
	return nil
}
