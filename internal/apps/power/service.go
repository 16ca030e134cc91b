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
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kissanima/craftd/internal/logger"
)

// TypeShutdownCheck is the asynq task type for schedule evaluation.
const TypeShutdownCheck = "power:shutdown_check"

// checkInterval is how often the schedule is evaluated.
const checkInterval = 30 * time.Second

// ServerController is the slice of the server service the scheduler needs.
type ServerController interface {
	IsRunning() bool
	RunCommand(command string) error
	Stop(ctx context.Context) error
}

// TunnelStopper stops the tunnel process alongside the server. Optional.
type TunnelStopper interface {
	Stop(ctx context.Context) error
}

// Service evaluates the shutdown schedule and stops the server when it
// fires.
type Service struct {
	repo   *Repository
	server ServerController
	tunnel TunnelStopper

	mu          sync.Mutex
	warnedDay   string
	shutdownDay string
	nowFunc     func() time.Time
}

// NewService builds a power service. tunnel may be nil when no tunnel
// process is managed.
func NewService(repo *Repository, server ServerController, tunnel TunnelStopper) *Service {
	return &Service{
		repo:    repo,
		server:  server,
		tunnel:  tunnel,
		nowFunc: time.Now,
	}
}

// Run evaluates the schedule until ctx is cancelled, used as the ticker
// fallback when the task queue is disabled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CheckOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// NewShutdownCheckTask builds the periodic schedule evaluation task.
func NewShutdownCheckTask() *asynq.Task {
	return asynq.NewTask(TypeShutdownCheck, nil)
}

// NewShutdownCheckHandler returns the asynq handler wrapping CheckOnce.
func NewShutdownCheckHandler(service *Service) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		service.CheckOnce(ctx)
		return nil
	}
}

// CheckOnce evaluates the schedule once: broadcasts the warning inside the
// warning window and stops the server once the deadline passes. Each fires
// at most once per day.
func (s *Service) CheckOnce(ctx context.Context) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		logger.WarnF(ctx, "[Power] failed to load schedule: %v", err)
		return
	}
	if !settings.Enabled || !s.server.IsRunning() {
		return
	}

	now := s.nowFunc()
	day := now.Format("2006-01-02")
	deadline := time.Date(now.Year(), now.Month(), now.Day(),
		settings.Hour, settings.Minute, 0, 0, now.Location())
	warnAt := deadline.Add(-time.Duration(settings.WarningMinutes) * time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.WarningMinutes > 0 && s.warnedDay != day &&
		!now.Before(warnAt) && now.Before(deadline) {
		s.warnedDay = day
		minutes := int(deadline.Sub(now).Minutes()) + 1
		msg := fmt.Sprintf("say Server shutting down in %d minutes", minutes)
		if err := s.server.RunCommand(msg); err != nil {
			logger.WarnF(ctx, "[Power] failed to broadcast warning: %v", err)
		} else {
			logger.InfoF(ctx, "[Power] shutdown warning broadcast, %d minutes remain", minutes)
		}
	}

	// Only fire shortly after the deadline so a server started later in the
	// day is not stopped immediately.
	if s.shutdownDay != day && !now.Before(deadline) && now.Before(deadline.Add(5*time.Minute)) {
		s.shutdownDay = day
		logger.InfoF(ctx, "[Power] scheduled shutdown at %02d:%02d firing",
			settings.Hour, settings.Minute)
		StopAll(ctx, s.server, s.tunnel)
	}
}

// StopAll brings both managed children down, the server first because it
// takes the longest and players should disconnect before the tunnel
// closes. Used by the scheduled shutdown and the daemon's own shutdown
// path. tunnel may be nil.
func StopAll(ctx context.Context, server ServerController, tunnel TunnelStopper) {
	if server.IsRunning() {
		if err := server.Stop(ctx); err != nil {
			logger.ErrorF(ctx, "[Power] failed to stop server: %v", err)
		}
	}
	if tunnel != nil {
		if err := tunnel.Stop(ctx); err != nil {
			logger.WarnF(ctx, "[Power] failed to stop tunnel: %v", err)
		}
	}
}
