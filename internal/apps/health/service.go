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
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kissanima/craftd/internal/config"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/supervisor"
)

// InfoSource is where the sampler reads process snapshots from.
type InfoSource interface {
	Info() supervisor.Info
}

// SampleSink receives every sample, for export to external stores.
type SampleSink interface {
	WriteSample(ctx context.Context, sample *Sample) error
}

// Service samples the server at a fixed interval and grades each sample.
type Service struct {
	cfg    config.HealthConfig
	source InfoSource
	repo   *Repository
	sink   SampleSink

	mu        sync.RWMutex
	history   []*Sample
	lastLevel Level

	totalMemory int64
}

// NewService builds a health service. repo and sink may be nil.
func NewService(cfg config.HealthConfig, source InfoSource, repo *Repository, sink SampleSink) *Service {
	return &Service{
		cfg:         cfg,
		source:      source,
		repo:        repo,
		sink:        sink,
		lastLevel:   LevelOK,
		totalMemory: totalSystemMemory(),
	}
}

// Run samples until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	interval := s.cfg.Interval()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SampleOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SampleOnce takes one snapshot, grades it, records it and raises alerts on
// level escalation.
func (s *Service) SampleOnce(ctx context.Context) *Sample {
	info := s.source.Info()

	sample := &Sample{
		State:           string(info.State),
		MemoryBytes:     info.MemoryBytes,
		CPUPercent:      info.CPUPercent,
		UptimeSeconds:   info.UptimeSeconds,
		RestartAttempts: info.RestartAttempts,
	}
	if s.totalMemory > 0 && info.MemoryBytes > 0 {
		sample.MemoryPercent = float64(info.MemoryBytes) / float64(s.totalMemory) * 100
	}
	sample.Level = gradeSample(sample)

	s.record(ctx, sample)
	return sample
}

func (s *Service) record(ctx context.Context, sample *Sample) {
	s.mu.Lock()
	s.history = append(s.history, sample)
	max := s.cfg.HistorySize
	if max <= 0 {
		max = 100
	}
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	previous := s.lastLevel
	s.lastLevel = sample.Level
	s.mu.Unlock()

	if sample.Level != previous && sample.Level != LevelOK {
		logger.WarnF(ctx, "[Health] level changed %s -> %s (cpu=%.1f%%, mem=%.1f%%)",
			previous, sample.Level, sample.CPUPercent, sample.MemoryPercent)
	}

	if s.repo != nil {
		if err := s.repo.Create(ctx, sample); err != nil {
			logger.WarnF(ctx, "[Health] failed to persist sample: %v", err)
		}
	}
	if s.sink != nil {
		if err := s.sink.WriteSample(ctx, sample); err != nil {
			logger.WarnF(ctx, "[Health] failed to export sample: %v", err)
		}
	}
}

// Current returns the most recent sample, or nil before the first tick.
func (s *Service) Current() *Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

// History returns the in-memory sample window, oldest first.
func (s *Service) History() []*Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Sample, len(s.history))
	copy(out, s.history)
	return out
}

// gradeSample maps resource usage to an alert level. A crashed server is
// always critical.
func gradeSample(sample *Sample) Level {
	if sample.State == string(supervisor.StateCrashed) {
		return LevelCritical
	}
	if sample.CPUPercent >= CPUCriticalPercent || sample.MemoryPercent >= MemoryCriticalPercent {
		return LevelCritical
	}
	if sample.CPUPercent >= CPUWarningPercent || sample.MemoryPercent >= MemoryWarningPercent {
		return LevelWarning
	}
	return LevelOK
}

// totalSystemMemory reads MemTotal from /proc/meminfo. Returns 0 when
// unavailable; memory percent is then reported as 0.
func totalSystemMemory() int64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
