// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package db owns the gorm database handle: SQLite by default, MySQL and
// PostgreSQL by configuration.
// Package db 管理 gorm 数据库连接，默认 SQLite，可配置 MySQL 和 PostgreSQL。
package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/kissanima/craftd/internal/config"
	"github.com/kissanima/craftd/internal/logger"
)

var globalDB *gorm.DB

// Init opens the configured database and installs the tracing plugin.
// Init 根据配置初始化数据库连接并安装链路追踪插件。
func Init() error {
	dbType := config.GetDatabaseType()

	dialector, err := buildDialector(dbType)
	if err != nil {
		return err
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   getGormLogger(config.GetDatabaseLogLevel()),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect %s database: %w", dbType, err)
	}

	if err := gormDB.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return fmt.Errorf("failed to enable database tracing: %w", err)
	}

	if dbType != "sqlite" {
		if err := configureConnectionPool(gormDB); err != nil {
			return err
		}
	}

	globalDB = gormDB
	logger.InfoF(context.Background(), "database initialized, type=%s", dbType)
	return nil
}

func buildDialector(dbType string) (gorm.Dialector, error) {
	switch dbType {
	case "sqlite":
		path := config.GetSQLitePath()
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory %s: %w", dir, err)
			}
		}
		return sqlite.Open(path), nil
	case "mysql":
		return mysql.Open(config.GetMySQLDSN()), nil
	case "postgres":
		return postgres.Open(config.GetPostgresDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

func configureConnectionPool(gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}

func getGormLogger(level string) gormlogger.Interface {
	var logLevel gormlogger.LogLevel
	switch level {
	case "silent":
		logLevel = gormlogger.Silent
	case "error":
		logLevel = gormlogger.Error
	case "info":
		logLevel = gormlogger.Info
	default:
		logLevel = gormlogger.Warn
	}
	return gormlogger.Default.LogMode(logLevel)
}

// GetDB returns a request-scoped handle carrying ctx for tracing.
// GetDB 返回携带 ctx 的请求级数据库句柄，用于链路追踪。
func GetDB(ctx context.Context) *gorm.DB {
	return globalDB.WithContext(ctx)
}

// DB is shorthand for GetDB.
func DB(ctx context.Context) *gorm.DB {
	return GetDB(ctx)
}

// AutoMigrate runs schema migration for the given models.
func AutoMigrate(models ...any) error {
	if globalDB == nil {
		return fmt.Errorf("database not initialized")
	}
	return globalDB.AutoMigrate(models...)
}

// Close releases the underlying connection pool.
func Close() error {
	if globalDB == nil {
		return nil
	}
	sqlDB, err := globalDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
