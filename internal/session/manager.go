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

package session

import (
	"fmt"
	"log"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/redis"
	redisClient "github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/extra/redisotel/v9"

	"github.com/kissanima/craftd/internal/config"
)

// Store is the process-wide server-side session store.
var Store SessionStore

// GinStore backs the HTTP session cookie middleware.
var GinStore sessions.Store

// StoreType identifies the active session backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// Init selects the session backend from config: Redis when enabled,
// otherwise in-memory with cookie-backed HTTP sessions.
// Init 根据配置选择会话后端：启用 Redis 时使用 Redis，否则使用内存存储。
func Init() error {
	redisConfig := config.Config.Redis
	appConfig := config.Config.App

	if redisConfig.Enabled {
		log.Println("[Session] using Redis session store")
		return initRedisStore(redisConfig, appConfig)
	}

	log.Println("[Session] using in-memory session store")
	return initMemoryStore(appConfig)
}

func initRedisStore(redisConfig config.RedisConfig, appConfig config.AppConfig) error {
	addr := fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port)
	client := redisClient.NewClient(&redisClient.Options{
		Addr:     addr,
		Username: redisConfig.Username,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
		PoolSize: redisConfig.PoolSize,
	})
	if err := redisotel.InstrumentTracing(client); err != nil {
		return fmt.Errorf("failed to instrument redis client: %w", err)
	}

	Store = NewRedisStore(client, "craftd:session:")

	ginStore, err := redis.NewStoreWithDB(
		redisConfig.MinIdleConn,
		"tcp",
		addr,
		redisConfig.Username,
		redisConfig.Password,
		fmt.Sprintf("%d", redisConfig.DB),
		[]byte(appConfig.SessionSecret),
	)
	if err != nil {
		return fmt.Errorf("failed to init redis session store: %w", err)
	}

	ginStore.Options(sessions.Options{
		Path:     "/",
		Domain:   appConfig.SessionDomain,
		MaxAge:   appConfig.SessionAge,
		HttpOnly: appConfig.SessionHttpOnly,
		Secure:   appConfig.SessionSecure,
	})

	GinStore = ginStore
	return nil
}

func initMemoryStore(appConfig config.AppConfig) error {
	Store = NewMemoryStore()

	ginStore := cookie.NewStore([]byte(appConfig.SessionSecret))
	ginStore.Options(sessions.Options{
		Path:     "/",
		Domain:   appConfig.SessionDomain,
		MaxAge:   appConfig.SessionAge,
		HttpOnly: appConfig.SessionHttpOnly,
		Secure:   appConfig.SessionSecure,
	})

	GinStore = ginStore
	return nil
}

// GetStoreType reports which backend Init selected.
func GetStoreType() StoreType {
	if config.Config.Redis.Enabled {
		return StoreTypeRedis
	}
	return StoreTypeMemory
}
