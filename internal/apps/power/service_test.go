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

package power

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kissanima/craftd/internal/config"
)

type fakeServer struct {
	running  bool
	commands []string
	stops    int
}

func (f *fakeServer) IsRunning() bool { return f.running }

func (f *fakeServer) RunCommand(command string) error {
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeServer) Stop(_ context.Context) error {
	f.stops++
	f.running = false
	return nil
}

type fakeTunnel struct {
	stops int
}

func (f *fakeTunnel) Stop(_ context.Context) error {
	f.stops++
	return nil
}

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tempDir, err := os.MkdirTemp("", "power_test_*")
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

	if err := db.AutoMigrate(&Settings{}); err != nil {
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

func newTestService(t *testing.T, server *fakeServer, enabled bool) *Service {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	repo := NewRepository(db, config.PowerConfig{
		AutoShutdownEnabled: enabled,
		ShutdownHour:        2,
		ShutdownMinute:      0,
		WarningMinutes:      10,
	})
	return NewService(repo, server, nil)
}

func atClock(hour, minute int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 24, hour, minute, 0, 0, time.Local)
	}
}

func TestWarningInsideWindow(t *testing.T) {
	server := &fakeServer{running: true}
	s := newTestService(t, server, true)
	s.nowFunc = atClock(1, 55)

	s.CheckOnce(context.Background())

	require.Len(t, server.commands, 1)
	assert.Equal(t, "say Server shutting down in 6 minutes", server.commands[0])
	assert.Zero(t, server.stops)
}

func TestWarningFiresOncePerDay(t *testing.T) {
	server := &fakeServer{running: true}
	s := newTestService(t, server, true)
	s.nowFunc = atClock(1, 52)

	s.CheckOnce(context.Background())
	s.CheckOnce(context.Background())
	assert.Len(t, server.commands, 1)
}

func TestShutdownAtDeadline(t *testing.T) {
	server := &fakeServer{running: true}
	s := newTestService(t, server, true)
	s.nowFunc = atClock(2, 0)

	s.CheckOnce(context.Background())
	assert.Equal(t, 1, server.stops)

	// The server coming back online the same day must not be stopped again.
	server.running = true
	s.nowFunc = atClock(2, 1)
	s.CheckOnce(context.Background())
	assert.Equal(t, 1, server.stops)
}

func TestShutdownStopsTunnel(t *testing.T) {
	server := &fakeServer{running: true}
	tunnel := &fakeTunnel{}
	s := newTestService(t, server, true)
	s.tunnel = tunnel
	s.nowFunc = atClock(2, 0)

	s.CheckOnce(context.Background())
	assert.Equal(t, 1, server.stops)
	assert.Equal(t, 1, tunnel.stops)
}

func TestStopAllStoppedServerStillClosesTunnel(t *testing.T) {
	server := &fakeServer{running: false}
	tunnel := &fakeTunnel{}

	StopAll(context.Background(), server, tunnel)
	assert.Zero(t, server.stops)
	assert.Equal(t, 1, tunnel.stops)

	// Without a tunnel only the server is considered.
	server.running = true
	StopAll(context.Background(), server, nil)
	assert.Equal(t, 1, server.stops)
}

func TestNoShutdownLongAfterDeadline(t *testing.T) {
	server := &fakeServer{running: true}
	s := newTestService(t, server, true)
	s.nowFunc = atClock(14, 30)

	s.CheckOnce(context.Background())
	assert.Zero(t, server.stops)
	assert.Empty(t, server.commands)
}

func TestDisabledScheduleDoesNothing(t *testing.T) {
	server := &fakeServer{running: true}
	s := newTestService(t, server, false)
	s.nowFunc = atClock(2, 0)

	s.CheckOnce(context.Background())
	assert.Zero(t, server.stops)
	assert.Empty(t, server.commands)
}

func TestStoppedServerSkipsChecks(t *testing.T) {
	server := &fakeServer{running: false}
	s := newTestService(t, server, true)
	s.nowFunc = atClock(2, 0)

	s.CheckOnce(context.Background())
	assert.Zero(t, server.stops)
}

func TestSettingsValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, config.PowerConfig{})

	err := repo.Update(context.Background(), &Settings{Hour: 24})
	assert.ErrorIs(t, err, ErrScheduleInvalid)
	err = repo.Update(context.Background(), &Settings{Minute: -1})
	assert.ErrorIs(t, err, ErrScheduleInvalid)
	err = repo.Update(context.Background(), &Settings{Hour: 23, Minute: 59, WarningMinutes: 15})
	assert.NoError(t, err)
}

func TestRepositorySeedsDefaults(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepository(db, config.PowerConfig{
		AutoShutdownEnabled: true,
		ShutdownHour:        3,
		ShutdownMinute:      30,
		WarningMinutes:      5,
	})

	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.Equal(t, 3, settings.Hour)
	assert.Equal(t, 30, settings.Minute)
	assert.Equal(t, 5, settings.WarningMinutes)
}
