// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "kbai:memory:"

// RedisStore keeps each name as a plain Redis string key.
type RedisStore struct {
	rdb redis.UniversalClient
}

var _ Store = &RedisStore{}

// NewRedisStore connects to the Redis server described by uri and checks it responds.
func NewRedisStore(ctx context.Context, uri string) (*RedisStore, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, &StorageError{Op: "open", Name: opt.Addr, Err: err}
	}
	return NewRedisStoreFromClient(rdb), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(name string) string {
	return redisKeyPrefix + name
}

func (s *RedisStore) Read(ctx context.Context, name string) (string, error) {
	contents, err := s.rdb.Get(ctx, redisKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", notFound(name)
	}
	if err != nil {
		return "", &StorageError{Op: "read", Name: name, Err: err}
	}
	return contents, nil
}

func (s *RedisStore) Write(ctx context.Context, name, contents string) error {
	if err := s.rdb.Set(ctx, redisKey(name), contents, 0).Err(); err != nil {
		return &StorageError{Op: "write", Name: name, Err: err}
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
