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

package mods

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakeServerState struct {
	running bool
}

func (f *fakeServerState) IsRunning() bool { return f.running }

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tempDir, err := os.MkdirTemp("", "mods_test_*")
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

	if err := db.AutoMigrate(&Mod{}); err != nil {
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

func newTestService(t *testing.T, server *fakeServerState) (*Service, string) {
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	dir := t.TempDir()
	return NewService(dir, NewRepository(db), server), dir
}

// writeJar creates a real zip archive with the given entries.
func writeJar(t *testing.T, dir, name string, entries map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for entryName, content := range entries {
		w, err := zw.Create(entryName)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

const sodiumFabricJSON = `{
	"id": "sodium",
	"name": "Sodium",
	"version": "0.5.8",
	"description": "A rendering optimization mod.",
	"authors": ["jellysquid3"],
	"depends": {"fabricloader": ">=0.12", "minecraft": "1.20.x", "indium": "*"}
}`

func TestScanReadsFabricMetadata(t *testing.T) {
	s, dir := newTestService(t, &fakeServerState{})
	writeJar(t, dir, "sodium-fabric-0.5.8.jar", map[string]string{
		"fabric.mod.json": sodiumFabricJSON,
	})

	mods, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, mods, 1)

	mod := mods[0]
	assert.Equal(t, "sodium", mod.ID)
	assert.Equal(t, "Sodium", mod.Name)
	assert.Equal(t, "0.5.8", mod.Version)
	assert.Equal(t, LoaderFabric, mod.Loader)
	assert.Equal(t, "jellysquid3", mod.Author)
	assert.True(t, mod.Enabled)
	assert.NotEmpty(t, mod.SHA256)
	assert.Contains(t, mod.Dependencies, "indium")
}

func TestScanReadsForgeMetadata(t *testing.T) {
	s, dir := newTestService(t, &fakeServerState{})
	writeJar(t, dir, "jei-1.20.jar", map[string]string{
		"META-INF/mods.toml": `modLoader="javafml"
[[mods]]
modId="jei"
version="15.2.0"
displayName="Just Enough Items"
authors="mezz"
`,
	})

	mods, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "jei", mods[0].ID)
	assert.Equal(t, LoaderForge, mods[0].Loader)
	assert.Equal(t, "15.2.0", mods[0].Version)
	assert.Equal(t, "mezz", mods[0].Author)
}

func TestScanForgetsDeletedJars(t *testing.T) {
	s, dir := newTestService(t, &fakeServerState{})
	writeJar(t, dir, "first-1.0.jar", nil)
	writeJar(t, dir, "second-2.0.jar", nil)

	_, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "second-2.0.jar")))
	_, err = s.Scan(context.Background())
	require.NoError(t, err)

	mods, err := s.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "first", mods[0].ID)
}

func TestFallbackFilenameParsing(t *testing.T) {
	cases := []struct {
		fileName    string
		wantID      string
		wantVersion string
		wantEnabled bool
	}{
		{"sodium-0.5.8.jar", "sodium", "0.5.8", true},
		{"iris-shaders-1.6.17.jar", "iris-shaders", "1.6.17", true},
		{"plainmod.jar", "plainmod", "", true},
		{"old-mod-2.1.jar.disabled", "old-mod", "2.1", false},
	}
	for _, tc := range cases {
		mod := fallbackMod(tc.fileName)
		assert.Equal(t, tc.wantID, mod.ID, tc.fileName)
		assert.Equal(t, tc.wantVersion, mod.Version, tc.fileName)
		assert.Equal(t, tc.wantEnabled, mod.Enabled, tc.fileName)
	}
}

func TestEnableDisableRenamesFile(t *testing.T) {
	s, dir := newTestService(t, &fakeServerState{})
	writeJar(t, dir, "sodium-0.5.8.jar", map[string]string{
		"fabric.mod.json": sodiumFabricJSON,
	})
	_, err := s.Scan(context.Background())
	require.NoError(t, err)

	mod, err := s.Disable(context.Background(), "sodium")
	require.NoError(t, err)
	assert.False(t, mod.Enabled)
	assert.FileExists(t, filepath.Join(dir, "sodium-0.5.8.jar"+DisabledSuffix))
	assert.NoFileExists(t, filepath.Join(dir, "sodium-0.5.8.jar"))

	// Disabling twice is a no-op.
	_, err = s.Disable(context.Background(), "sodium")
	require.NoError(t, err)

	mod, err = s.Enable(context.Background(), "sodium")
	require.NoError(t, err)
	assert.True(t, mod.Enabled)
	assert.FileExists(t, filepath.Join(dir, "sodium-0.5.8.jar"))
}

func TestInstallAndRemove(t *testing.T) {
	server := &fakeServerState{}
	s, dir := newTestService(t, server)

	staging := t.TempDir()
	writeJar(t, staging, "lithium-0.12.1.jar", map[string]string{
		"fabric.mod.json": `{"id": "lithium", "name": "Lithium", "version": "0.12.1"}`,
	})
	upload, err := os.Open(filepath.Join(staging, "lithium-0.12.1.jar"))
	require.NoError(t, err)
	defer upload.Close()

	mod, err := s.Install(context.Background(), "lithium-0.12.1.jar", upload)
	require.NoError(t, err)
	assert.Equal(t, "lithium", mod.ID)
	assert.FileExists(t, filepath.Join(dir, "lithium-0.12.1.jar"))

	// Re-installing the same file is refused.
	dup, err := os.Open(filepath.Join(staging, "lithium-0.12.1.jar"))
	require.NoError(t, err)
	defer dup.Close()
	_, err = s.Install(context.Background(), "lithium-0.12.1.jar", dup)
	assert.ErrorIs(t, err, ErrModExists)

	require.NoError(t, s.Remove(context.Background(), "lithium"))
	assert.NoFileExists(t, filepath.Join(dir, "lithium-0.12.1.jar"))
	_, err = s.Get(context.Background(), "lithium")
	assert.ErrorIs(t, err, ErrModNotFound)
}

func TestRemoveRefusedWhileRunning(t *testing.T) {
	server := &fakeServerState{}
	s, dir := newTestService(t, server)
	writeJar(t, dir, "sodium-0.5.8.jar", nil)
	_, err := s.Scan(context.Background())
	require.NoError(t, err)

	server.running = true
	assert.ErrorIs(t, s.Remove(context.Background(), "sodium"), ErrServerRunning)
	assert.FileExists(t, filepath.Join(dir, "sodium-0.5.8.jar"))
}

func TestMissingDependencies(t *testing.T) {
	s, dir := newTestService(t, &fakeServerState{})
	writeJar(t, dir, "sodium-0.5.8.jar", map[string]string{
		"fabric.mod.json": sodiumFabricJSON,
	})
	_, err := s.Scan(context.Background())
	require.NoError(t, err)

	// fabricloader and minecraft are loader-provided; indium is a real mod
	// that is not installed.
	missing, err := s.MissingDependencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"sodium": {"indium"}}, missing)
}

func TestGetStats(t *testing.T) {
	s, dir := newTestService(t, &fakeServerState{})
	writeJar(t, dir, "sodium-0.5.8.jar", map[string]string{
		"fabric.mod.json": sodiumFabricJSON,
	})
	writeJar(t, dir, "legacy-1.0.jar.disabled", nil)
	_, err := s.Scan(context.Background())
	require.NoError(t, err)

	stats, err := s.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.EnabledCount)
	assert.Positive(t, stats.TotalSizeBytes)
	assert.Equal(t, int64(1), stats.ByLoader[LoaderFabric])
	assert.Equal(t, int64(1), stats.ByLoader[LoaderUnknown])
}
