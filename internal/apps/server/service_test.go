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

package server

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kissanima/craftd/internal/apps/audit"
	"github.com/kissanima/craftd/internal/supervisor"
)

const fakeServerScript = `#!/bin/sh
echo "[12:00:00] [Server thread/INFO]: Done (3.141s)! For help, type \"help\""
while read line; do
  if [ "$line" = "stop" ]; then
    echo "[12:00:01] [Server thread/INFO]: Stopping server"
    exit 0
  fi
  echo "ran $line"
done
`

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tempDir, err := os.MkdirTemp("", "server_test_*")
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

	if err := db.AutoMigrate(&audit.CommandLog{}, &audit.AuditLog{}); err != nil {
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

func newTestService(t *testing.T, db *gorm.DB) *Service {
	if runtime.GOOS == "windows" {
		t.Skip("fake server script requires a POSIX shell")
	}

	dir := t.TempDir()
	javaPath := filepath.Join(dir, "fake-java.sh")
	require.NoError(t, os.WriteFile(javaPath, []byte(fakeServerScript), 0o755))
	jarPath := filepath.Join(dir, "server.jar")
	require.NoError(t, os.WriteFile(jarPath, []byte("jar"), 0o644))

	sup := supervisor.New(supervisor.Config{
		JavaPath:        javaPath,
		JarPath:         jarPath,
		GracefulTimeout: 5 * time.Second,
		StopCommandWait: 2 * time.Second,
	})
	return NewServiceWithSupervisor(sup, audit.NewRepository(db))
}

func waitForState(t *testing.T, s *Service, state supervisor.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Info().State == state
	}, 5*time.Second, 20*time.Millisecond, "state never reached %s", state)
}

func TestSendCommandRecordsLog(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s := newTestService(t, db)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)
	waitForState(t, s, supervisor.StateRunning)

	require.NoError(t, s.SendCommand(ctx, 1, "admin", "say hello"))

	repo := audit.NewRepository(db)
	logs, total, err := repo.ListCommandLogs(ctx, &audit.CommandLogFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "say hello", logs[0].Command)
	assert.Equal(t, "admin", logs[0].Username)
	assert.Equal(t, audit.SourceAPI, logs[0].Source)
	assert.True(t, logs[0].Success)
}

func TestSendCommandWhileStoppedRecordsFailure(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s := newTestService(t, db)
	ctx := context.Background()

	err := s.SendCommand(ctx, 1, "admin", "say hello")
	assert.ErrorIs(t, err, supervisor.ErrNotRunning)

	repo := audit.NewRepository(db)
	logs, total, listErr := repo.ListCommandLogs(ctx, &audit.CommandLogFilter{})
	require.NoError(t, listErr)
	require.EqualValues(t, 1, total)
	assert.False(t, logs[0].Success)
	assert.NotEmpty(t, logs[0].Error)
}

func TestSendCommandEmpty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s := newTestService(t, db)
	err := s.SendCommand(context.Background(), 1, "admin", "   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestConsoleTailAfterStart(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s := newTestService(t, db)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)
	waitForState(t, s, supervisor.StateRunning)

	require.Eventually(t, func() bool {
		return len(s.ConsoleTail(10)) > 0
	}, 3*time.Second, 20*time.Millisecond)

	s.ClearConsole()
	assert.Empty(t, s.ConsoleTail(10))
}

func TestLifecycleRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s := newTestService(t, db)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	waitForState(t, s, supervisor.StateRunning)
	assert.True(t, s.IsRunning())

	require.NoError(t, s.Stop(ctx))
	waitForState(t, s, supervisor.StateStopped)
	assert.False(t, s.IsRunning())
}
