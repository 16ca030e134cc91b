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

package backup

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kissanima/craftd/internal/config"
)

type fakeServer struct {
	running  bool
	commands []string
}

func (f *fakeServer) IsRunning() bool { return f.running }

func (f *fakeServer) RunCommand(command string) error {
	f.commands = append(f.commands, command)
	return nil
}

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tempDir, err := os.MkdirTemp("", "backup_test_*")
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

	if err := db.AutoMigrate(&Backup{}); err != nil {
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

func newTestService(t *testing.T, db *gorm.DB, server *fakeServer, maxBackups int) (*Service, string) {
	serverDir := t.TempDir()
	backupDir := t.TempDir()

	// A minimal server directory: jar, world data, plus files the archive
	// must skip.
	require.NoError(t, os.WriteFile(filepath.Join(serverDir, "server.jar"), []byte("jar"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(serverDir, "world", "region"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(serverDir, "world", "level.dat"), []byte("level"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(serverDir, "world", "region", "r.0.0.mca"), []byte("region"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(serverDir, "world", "session.lock"), []byte("lock"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(serverDir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(serverDir, "logs", "latest.log"), []byte("log"), 0o644))

	cfg := config.BackupConfig{
		Dir:            backupDir,
		MaxBackupCount: maxBackups,
		FlushBeforeZip: true,
		FlushWaitSecs:  0,
	}
	return NewService(cfg, serverDir, NewRepository(db), server), serverDir
}

func archiveNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestCreateSkipsLogsAndLock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s, _ := newTestService(t, db, &fakeServer{}, 10)
	b, err := s.Create(context.Background(), TriggerManual, "first")
	require.NoError(t, err)
	assert.Greater(t, b.SizeBytes, int64(0))
	assert.Equal(t, TriggerManual, b.Trigger)

	names := archiveNames(t, filepath.Join(s.cfg.Dir, b.Filename))
	assert.Contains(t, names, "server.jar")
	assert.Contains(t, names, "world/level.dat")
	assert.Contains(t, names, "world/region/r.0.0.mca")
	assert.NotContains(t, names, "world/session.lock")
	assert.NotContains(t, names, "logs/latest.log")
}

func TestCreateFlushesRunningServer(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server := &fakeServer{running: true}
	s, _ := newTestService(t, db, server, 10)
	_, err := s.Create(context.Background(), TriggerManual, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"save-off", "save-all flush", "save-on"}, server.commands)
}

func TestCreateStoppedServerSkipsFlush(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server := &fakeServer{running: false}
	s, _ := newTestService(t, db, server, 10)
	_, err := s.Create(context.Background(), TriggerManual, "")
	require.NoError(t, err)
	assert.Empty(t, server.commands)
}

func TestRestoreRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s, serverDir := newTestService(t, db, &fakeServer{}, 10)
	ctx := context.Background()

	b, err := s.Create(ctx, TriggerManual, "")
	require.NoError(t, err)

	// Corrupt the world, then restore.
	levelPath := filepath.Join(serverDir, "world", "level.dat")
	require.NoError(t, os.WriteFile(levelPath, []byte("corrupted"), 0o644))

	require.NoError(t, s.Restore(ctx, b.ID))

	data, err := os.ReadFile(levelPath)
	require.NoError(t, err)
	assert.Equal(t, "level", string(data))
}

func TestRestoreRefusedWhileRunning(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server := &fakeServer{}
	s, _ := newTestService(t, db, server, 10)
	ctx := context.Background()

	b, err := s.Create(ctx, TriggerManual, "")
	require.NoError(t, err)

	server.running = true
	assert.ErrorIs(t, s.Restore(ctx, b.ID), ErrServerRunning)
}

func TestRestoreUnknownBackup(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s, _ := newTestService(t, db, &fakeServer{}, 10)
	assert.ErrorIs(t, s.Restore(context.Background(), "no-such-id"), ErrBackupNotFound)
}

func TestDeleteRemovesArchiveAndRecord(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s, _ := newTestService(t, db, &fakeServer{}, 10)
	ctx := context.Background()

	b, err := s.Create(ctx, TriggerManual, "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, b.ID))
	_, err = s.repo.GetByID(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBackupNotFound)
	_, err = os.Stat(filepath.Join(s.cfg.Dir, b.Filename))
	assert.True(t, os.IsNotExist(err))
}

func TestProperty_PruneKeepsNewest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(42)

	properties := gopter.NewProperties(parameters)

	properties.Property("retention never exceeds the configured maximum", prop.ForAll(
		func(total int, max int) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			s, _ := newTestService(t, db, &fakeServer{}, max)
			ctx := context.Background()

			for i := 0; i < total; i++ {
				if _, err := s.Create(ctx, TriggerScheduled, ""); err != nil {
					return false
				}
			}

			backups, count, err := s.repo.List(ctx, &Filter{PageSize: 100})
			if err != nil {
				return false
			}

			expected := total
			if expected > max {
				expected = max
			}
			if int(count) != expected {
				return false
			}

			// Every surviving archive must exist on disk.
			for _, b := range backups {
				if _, err := os.Stat(filepath.Join(s.cfg.Dir, b.Filename)); err != nil {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 6),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s, _ := newTestService(t, db, &fakeServer{}, 10)
	ctx := context.Background()

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Count)
	assert.Nil(t, stats.LatestBackupAt)

	b, err := s.Create(ctx, TriggerManual, "")
	require.NoError(t, err)

	stats, err = s.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Count)
	assert.Equal(t, b.SizeBytes, stats.TotalSizeBytes)
	require.NotNil(t, stats.LatestBackupAt)
}
