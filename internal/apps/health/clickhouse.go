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

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/kissanima/craftd/internal/config"
)

// ClickHouseSink exports health samples to a ClickHouse table for long-term
// analytics. The sqlite/mysql sample log stays authoritative; this sink is
// best-effort.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSink connects to ClickHouse and ensures the sample table
// exists. Returns nil when the sink is disabled in config.
func NewClickHouseSink(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseSink, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("health: connect clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("health: ping clickhouse: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "health_samples"
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		sampled_at       DateTime,
		state            LowCardinality(String),
		memory_bytes     Int64,
		memory_percent   Float64,
		cpu_percent      Float64,
		uptime_seconds   Int64,
		restart_attempts Int32,
		level            LowCardinality(String)
	) ENGINE = MergeTree() ORDER BY sampled_at`, table)
	if err := conn.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("health: create clickhouse table: %w", err)
	}

	return &ClickHouseSink{conn: conn, table: table}, nil
}

// WriteSample inserts one sample.
func (s *ClickHouseSink) WriteSample(ctx context.Context, sample *Sample) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", s.table))
	if err != nil {
		return fmt.Errorf("health: prepare batch: %w", err)
	}

	sampledAt := sample.CreatedAt
	if sampledAt.IsZero() {
		sampledAt = time.Now()
	}
	err = batch.Append(
		sampledAt,
		sample.State,
		sample.MemoryBytes,
		sample.MemoryPercent,
		sample.CPUPercent,
		sample.UptimeSeconds,
		int32(sample.RestartAttempts),
		string(sample.Level),
	)
	if err != nil {
		return fmt.Errorf("health: append sample: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("health: send batch: %w", err)
	}
	return nil
}

// Close releases the ClickHouse connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
