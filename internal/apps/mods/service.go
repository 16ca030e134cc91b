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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kissanima/craftd/internal/logger"
)

// ServerState is the slice of the server service the mod library needs.
type ServerState interface {
	IsRunning() bool
}

// Service manages the mods directory and its metadata cache.
type Service struct {
	dir    string
	repo   *Repository
	server ServerState

	mu sync.Mutex
}

// NewService creates a mod service over dir.
func NewService(dir string, repo *Repository, server ServerState) *Service {
	return &Service{dir: dir, repo: repo, server: server}
}

// Scan walks the mods directory, refreshes the cache and forgets jars that
// disappeared from disk.
func (s *Service) Scan(ctx context.Context) ([]*Mod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scanned, err := ScanDir(s.dir)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(scanned))
	for _, mod := range scanned {
		if err := s.repo.Upsert(ctx, mod); err != nil {
			return nil, err
		}
		ids = append(ids, mod.ID)
	}
	if err := s.repo.DeleteMissing(ctx, ids); err != nil {
		return nil, err
	}

	logger.InfoF(ctx, "[Mods] scanned %d mods in %s", len(scanned), s.dir)
	return scanned, nil
}

// List returns the cached library narrowed by filter.
func (s *Service) List(ctx context.Context, filter *Filter) ([]*Mod, error) {
	return s.repo.List(ctx, filter)
}

// Get returns one cached mod.
func (s *Service) Get(ctx context.Context, id string) (*Mod, error) {
	return s.repo.GetByID(ctx, id)
}

// Enable renames <file>.disabled back to <file> so the loader picks the mod
// up on the next start. Enabling an enabled mod is a no-op.
func (s *Service) Enable(ctx context.Context, id string) (*Mod, error) {
	return s.setEnabled(ctx, id, true)
}

// Disable renames <file> to <file>.disabled. The running server keeps the
// mod loaded until restart.
func (s *Service) Disable(ctx context.Context, id string) (*Mod, error) {
	return s.setEnabled(ctx, id, false)
}

func (s *Service) setEnabled(ctx context.Context, id string, enabled bool) (*Mod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mod, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mod.Enabled == enabled {
		return mod, nil
	}

	oldPath := filepath.Join(s.dir, mod.FileName)
	newName := mod.FileName + DisabledSuffix
	if enabled {
		newName = strings.TrimSuffix(mod.FileName, DisabledSuffix)
	}
	if err := os.Rename(oldPath, filepath.Join(s.dir, newName)); err != nil {
		return nil, fmt.Errorf("failed to rename mod file: %w", err)
	}

	mod.FileName = newName
	mod.Enabled = enabled
	mod.ScannedAt = time.Now()
	if err := s.repo.Upsert(ctx, mod); err != nil {
		return nil, err
	}

	logger.InfoF(ctx, "[Mods] mod %s enabled=%v, effective on next restart", id, enabled)
	return mod, nil
}

// Install copies an uploaded jar into the mods directory and registers it.
// Refused while the server is running: the loader scans the directory at
// startup and a half-written jar could be picked up.
func (s *Service) Install(ctx context.Context, fileName string, r io.Reader) (*Mod, error) {
	if s.server != nil && s.server.IsRunning() {
		return nil, ErrServerRunning
	}
	if fileName != filepath.Base(fileName) || !strings.HasSuffix(fileName, ".jar") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidModFile, fileName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dest := filepath.Join(s.dir, fileName)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrModExists, fileName)
	}
	if _, err := os.Stat(dest + DisabledSuffix); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrModExists, fileName)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mods directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*.jar")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write mod file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to place mod file: %w", err)
	}

	mod, err := InspectJar(dest)
	if err != nil {
		os.Remove(dest)
		return nil, err
	}
	if err := s.repo.Upsert(ctx, mod); err != nil {
		return nil, err
	}

	logger.InfoF(ctx, "[Mods] installed %s (%s %s)", mod.ID, mod.Loader, mod.Version)
	return mod, nil
}

// Remove deletes a mod jar and its cache row. Refused while the server is
// running because the file may be held open by the JVM.
func (s *Service) Remove(ctx context.Context, id string) error {
	if s.server != nil && s.server.IsRunning() {
		return ErrServerRunning
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mod, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, mod.FileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete mod file: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	logger.InfoF(ctx, "[Mods] removed %s", id)
	return nil
}

// GetStats aggregates library totals.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	return s.repo.GetStats(ctx)
}

// MissingDependencies lists declared dependency ids with no enabled mod in
// the library. Loader-provided modules (the game itself, the loader, java)
// are not real jars and are skipped.
func (s *Service) MissingDependencies(ctx context.Context) (map[string][]string, error) {
	mods, err := s.repo.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	enabled := make(map[string]bool, len(mods))
	for _, mod := range mods {
		if mod.Enabled {
			enabled[mod.ID] = true
		}
	}

	builtin := map[string]bool{
		"minecraft": true, "java": true,
		"fabricloader": true, "fabric": true, "fabric-api": true,
		"forge": true, "quilt_loader": true,
	}

	missing := make(map[string][]string)
	for _, mod := range mods {
		if !mod.Enabled {
			continue
		}
		for _, dep := range mod.Dependencies {
			if builtin[dep] || enabled[dep] {
				continue
			}
			missing[mod.ID] = append(missing[mod.ID], dep)
		}
	}
	return missing, nil
}
