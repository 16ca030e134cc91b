/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package session provides the session storage abstraction, backed either by
// an in-process map or by Redis.
// Package session 提供会话存储抽象，支持内存和 Redis 两种后端。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrKeyNotFound = errors.New("session: key not found")
	ErrExpired     = errors.New("session: key expired")
)

// SessionStore is the key/value store used for server-side session state.
// SessionStore 定义服务端会话状态的键值存储接口。
type SessionStore interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (any, error)

	// Set stores value under key. An expiration of 0 means no expiry.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
}

type memoryItem struct {
	value      any
	expiration int64 // unix nanoseconds, 0 means no expiry
}

func (item *memoryItem) isExpired() bool {
	if item.expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > item.expiration
}

// MemoryStore keeps sessions in a sync.Map. Used when Redis is disabled.
// MemoryStore 基于 sync.Map 的内存会话存储，Redis 禁用时使用。
type MemoryStore struct {
	data sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (any, error) {
	value, ok := m.data.Load(key)
	if !ok {
		return nil, ErrKeyNotFound
	}

	item, ok := value.(*memoryItem)
	if !ok {
		return nil, ErrKeyNotFound
	}

	if item.isExpired() {
		m.data.Delete(key)
		return nil, ErrExpired
	}

	return item.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	var exp int64
	if expiration > 0 {
		exp = time.Now().Add(expiration).UnixNano()
	}

	m.data.Store(key, &memoryItem{value: value, expiration: exp})
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	value, ok := m.data.Load(key)
	if !ok {
		return false, nil
	}

	item, ok := value.(*memoryItem)
	if !ok {
		return false, nil
	}

	if item.isExpired() {
		m.data.Delete(key)
		return false, nil
	}

	return true, nil
}

// RedisStore stores sessions in Redis under a key prefix so several
// applications can share one instance.
// RedisStore 基于 Redis 的会话存储，使用键前缀以便多应用共享实例。
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) buildKey(key string) string {
	return r.prefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string) (any, error) {
	result, err := r.client.Get(ctx, r.buildKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	var value any
	if err := json.Unmarshal([]byte(result), &value); err != nil {
		// Not JSON, return the raw string.
		return result, nil
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.buildKey(key), data, expiration).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.buildKey(key)).Err()
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	result, err := r.client.Exists(ctx, r.buildKey(key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
