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
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"pgregory.net/rapid"

	"github.com/kissanima/craftd/internal/config"
	"github.com/kissanima/craftd/internal/supervisor"
)

type fakeSource struct {
	info supervisor.Info
}

func (f *fakeSource) Info() supervisor.Info { return f.info }

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tempDir, err := os.MkdirTemp("", "health_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	if err := db.AutoMigrate(&Sample{}); err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

func TestGradeSample(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   Level
	}{
		{"idle", Sample{State: "running", CPUPercent: 10, MemoryPercent: 20}, LevelOK},
		{"cpu warning", Sample{State: "running", CPUPercent: 80}, LevelWarning},
		{"cpu critical", Sample{State: "running", CPUPercent: 95}, LevelCritical},
		{"memory warning", Sample{State: "running", MemoryPercent: 88}, LevelWarning},
		{"memory critical", Sample{State: "running", MemoryPercent: 96}, LevelCritical},
		{"crashed is always critical", Sample{State: "crashed"}, LevelCritical},
		{"stopped is ok", Sample{State: "stopped"}, LevelOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gradeSample(&tt.sample))
		})
	}
}

func TestSampleOncePersists(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	source := &fakeSource{info: supervisor.Info{
		State:         supervisor.StateRunning,
		MemoryBytes:   512 * 1024 * 1024,
		CPUPercent:    12.5,
		UptimeSeconds: 60,
	}}
	repo := NewRepository(db)
	s := NewService(config.HealthConfig{HistorySize: 10}, source, repo, nil)

	sample := s.SampleOnce(context.Background())
	assert.Equal(t, "running", sample.State)
	assert.InDelta(t, 12.5, sample.CPUPercent, 0.001)

	persisted, total, err := repo.List(context.Background(), &SampleFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, sample.Level, persisted[0].Level)

	current := s.Current()
	require.NotNil(t, current)
	assert.Equal(t, sample, current)
}

func TestHistoryIsBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 20).Draw(t, "size")
		ticks := rapid.IntRange(0, 60).Draw(t, "ticks")

		source := &fakeSource{info: supervisor.Info{State: supervisor.StateRunning}}
		s := NewService(config.HealthConfig{HistorySize: size}, source, nil, nil)

		for i := 0; i < ticks; i++ {
			s.SampleOnce(context.Background())
		}

		history := s.History()
		if len(history) > size {
			t.Fatalf("history has %d samples, bound is %d", len(history), size)
		}
		expected := ticks
		if expected > size {
			expected = size
		}
		if len(history) != expected {
			t.Fatalf("history has %d samples, want %d", len(history), expected)
		}
	})
}

func TestListFiltersByLevel(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &Sample{State: "running", Level: LevelOK}))
	require.NoError(t, repo.Create(ctx, &Sample{State: "running", Level: LevelWarning}))
	require.NoError(t, repo.Create(ctx, &Sample{State: "crashed", Level: LevelCritical}))

	samples, total, err := repo.List(ctx, &SampleFilter{Level: LevelCritical})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, samples, 1)
	assert.Equal(t, "crashed", samples[0].State)
}
