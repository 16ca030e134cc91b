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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kissanima/craftd/internal/config"
	"github.com/kissanima/craftd/internal/logger"
)

// Directories and files excluded from archives. Logs and caches are
// regenerated by the server; session.lock is only meaningful to a live
// process.
var skipDirs = map[string]bool{
	"logs":          true,
	"cache":         true,
	"crash-reports": true,
}

const skipFile = "session.lock"

// ServerController is the slice of the server service backups need: a flush
// hook and a liveness check.
type ServerController interface {
	IsRunning() bool
	RunCommand(command string) error
}

// Service creates and restores server directory archives.
type Service struct {
	cfg       config.BackupConfig
	serverDir string
	repo      *Repository
	server    ServerController

	mu sync.Mutex
}

// NewService builds a backup service. serverDir is the directory holding the
// server jar and world data.
func NewService(cfg config.BackupConfig, serverDir string, repo *Repository, server ServerController) *Service {
	return &Service{
		cfg:       cfg,
		serverDir: serverDir,
		repo:      repo,
		server:    server,
	}
}

// Create archives the server directory and records the backup. Only one
// backup runs at a time.
func (s *Service) Create(ctx context.Context, trigger Trigger, note string) (*Backup, error) {
	if !s.mu.TryLock() {
		return nil, ErrBackupInProgress
	}
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create backup dir: %w", err)
	}

	flushed := s.flushWorld(ctx)
	if flushed {
		defer s.resumeSaves(ctx)
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("backup-%s-%s.zip", time.Now().Format("20060102-150405"), id[:8])
	archivePath := filepath.Join(s.cfg.Dir, filename)

	size, err := s.writeArchive(archivePath)
	if err != nil {
		os.Remove(archivePath)
		return nil, err
	}

	b := &Backup{
		ID:        id,
		Filename:  filename,
		SizeBytes: size,
		Trigger:   trigger,
		Note:      note,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		os.Remove(archivePath)
		return nil, err
	}

	logger.InfoF(ctx, "[Backup] created %s (%d bytes, trigger=%s)", filename, size, trigger)

	if err := s.prune(ctx); err != nil {
		logger.WarnF(ctx, "[Backup] prune failed: %v", err)
	}
	return b, nil
}

// flushWorld asks a running server to write pending chunks to disk and pause
// saving while the archive is written. Reports whether saves were paused.
func (s *Service) flushWorld(ctx context.Context) bool {
	if !s.cfg.FlushBeforeZip || !s.server.IsRunning() {
		return false
	}

	if err := s.server.RunCommand("save-off"); err != nil {
		logger.WarnF(ctx, "[Backup] save-off failed: %v", err)
		return false
	}
	if err := s.server.RunCommand("save-all flush"); err != nil {
		logger.WarnF(ctx, "[Backup] save-all failed: %v", err)
	}

	wait := time.Duration(s.cfg.FlushWaitSecs) * time.Second
	if wait <= 0 {
		wait = 3 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return true
}

func (s *Service) resumeSaves(ctx context.Context) {
	if !s.server.IsRunning() {
		return
	}
	if err := s.server.RunCommand("save-on"); err != nil {
		logger.WarnF(ctx, "[Backup] save-on failed: %v", err)
	}
}

// writeArchive zips the server directory into archivePath and returns the
// archive size.
func (s *Service) writeArchive(archivePath string) (int64, error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return 0, fmt.Errorf("backup: create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	absBackupDir, _ := filepath.Abs(s.cfg.Dir)

	err = filepath.WalkDir(s.serverDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(s.serverDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			// Never archive the backup directory into itself.
			if abs, err := filepath.Abs(path); err == nil && abs == absBackupDir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == skipFile {
			return nil
		}

		return s.addFileToArchive(zw, path, rel)
	})
	if err != nil {
		zw.Close()
		return 0, fmt.Errorf("backup: archive server dir: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("backup: close archive: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *Service) addFileToArchive(zw *zip.Writer, path, rel string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(w, src)
	return err
}

// Restore extracts a backup archive over the server directory. The server
// must be stopped first.
func (s *Service) Restore(ctx context.Context, id string) error {
	if s.server.IsRunning() {
		return ErrServerRunning
	}
	if !s.mu.TryLock() {
		return ErrBackupInProgress
	}
	defer s.mu.Unlock()

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(s.cfg.Dir, b.Filename)
	if _, err := os.Stat(archivePath); err != nil {
		return ErrArchiveMissing
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("backup: open archive: %w", err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if err := s.extractFile(file); err != nil {
			return fmt.Errorf("backup: extract %s: %w", file.Name, err)
		}
	}

	logger.InfoF(ctx, "[Backup] restored %s into %s", b.Filename, s.serverDir)
	return nil
}

func (s *Service) extractFile(file *zip.File) error {
	// Reject entries that would escape the server directory.
	dest := filepath.Join(s.serverDir, filepath.FromSlash(file.Name))
	if !strings.HasPrefix(dest, filepath.Clean(s.serverDir)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal path %q", file.Name)
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

// Delete removes a backup archive and its record.
func (s *Service) Delete(ctx context.Context, id string) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(s.cfg.Dir, b.Filename)
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backup: remove archive: %w", err)
	}
	return s.repo.Delete(ctx, id)
}

// List returns backups matching filter.
func (s *Service) List(ctx context.Context, filter *Filter) ([]*Backup, int64, error) {
	return s.repo.List(ctx, filter)
}

// GetStats summarizes the backup store.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	return s.repo.GetStats(ctx)
}

// prune deletes the oldest backups beyond the configured retention count.
func (s *Service) prune(ctx context.Context) error {
	max := s.cfg.MaxBackupCount
	if max <= 0 {
		return nil
	}

	backups, err := s.repo.ListOldest(ctx)
	if err != nil {
		return err
	}

	for len(backups) > max {
		oldest := backups[0]
		archivePath := filepath.Join(s.cfg.Dir, oldest.Filename)
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := s.repo.Delete(ctx, oldest.ID); err != nil {
			return err
		}
		logger.InfoF(ctx, "[Backup] pruned %s", oldest.Filename)
		backups = backups[1:]
	}
	return nil
}
