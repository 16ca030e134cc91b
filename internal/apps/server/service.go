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

// Package server exposes the Minecraft server process lifecycle over HTTP:
// start, stop, restart, console access and command dispatch.
package server

import (
	"context"
	"errors"
	"strings"

	"github.com/kissanima/craftd/internal/apps/audit"
	"github.com/kissanima/craftd/internal/config"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/supervisor"
)

// ErrEmptyCommand is returned when a console command is blank.
var ErrEmptyCommand = errors.New("server: command cannot be empty")

// Service owns the single server supervisor for the daemon.
type Service struct {
	sup       *supervisor.Supervisor
	auditRepo *audit.Repository
}

// NewService builds a service around cfg. auditRepo may be nil; command
// logging is then skipped.
func NewService(cfg config.ServerConfig, auditRepo *audit.Repository) *Service {
	sup := supervisor.New(supervisor.Config{
		JavaPath:           cfg.JavaPath,
		JarPath:            cfg.JarPath,
		MinMemory:          cfg.MinMemory,
		MaxMemory:          cfg.MaxMemory,
		JVMArgs:            cfg.JVMArgs,
		GracefulTimeout:    cfg.GracefulTimeout(),
		StopCommandWait:    cfg.StopCommandWait(),
		ConsoleBufferLines: cfg.ConsoleBufferLines,
		AutoRestart:        cfg.AutoRestart,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
		RestartDelay:       cfg.RestartDelay(),
	})

	s := &Service{sup: sup, auditRepo: auditRepo}
	sup.SetEventHandler(s.onEvent)
	return s
}

// NewServiceWithSupervisor wires an existing supervisor, used by tests.
func NewServiceWithSupervisor(sup *supervisor.Supervisor, auditRepo *audit.Repository) *Service {
	s := &Service{sup: sup, auditRepo: auditRepo}
	sup.SetEventHandler(s.onEvent)
	return s
}

func (s *Service) onEvent(event supervisor.Event, info supervisor.Info) {
	ctx := context.Background()
	switch event {
	case supervisor.EventStarted:
		logger.InfoF(ctx, "[Server] process started, pid=%d", info.PID)
	case supervisor.EventReady:
		logger.InfoF(ctx, "[Server] server is ready, pid=%d", info.PID)
	case supervisor.EventStopped:
		logger.InfoF(ctx, "[Server] server stopped cleanly")
	case supervisor.EventCrashed:
		logger.ErrorF(ctx, "[Server] server crashed: %s (restart attempts: %d)",
			info.LastError, info.RestartAttempts)
	}
}

// Supervisor exposes the underlying supervisor for packages that need raw
// access, such as backups and health sampling.
func (s *Service) Supervisor() *supervisor.Supervisor {
	return s.sup
}

// Start launches the server process.
func (s *Service) Start(ctx context.Context) error {
	return s.sup.Start(ctx)
}

// Stop shuts the server down gracefully, escalating per the configured
// timeouts.
func (s *Service) Stop(ctx context.Context) error {
	return s.sup.Stop(ctx)
}

// Restart stops the server then starts it again.
func (s *Service) Restart(ctx context.Context) error {
	return s.sup.Restart(ctx)
}

// SendCommand forwards a console command to the running server, recording it
// in the command log.
func (s *Service) SendCommand(ctx context.Context, userID uint, username string, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return ErrEmptyCommand
	}

	err := s.sup.SendCommand(command)
	if logErr := audit.RecordCommand(ctx, s.auditRepo, userID, username,
		audit.SourceAPI, command, err); logErr != nil {
		logger.WarnF(ctx, "[Server] failed to record command log: %v", logErr)
	}
	return err
}

// RunCommand forwards a console command issued by an internal subsystem,
// recording it under the scheduler source.
func (s *Service) RunCommand(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return ErrEmptyCommand
	}

	ctx := context.Background()
	err := s.sup.SendCommand(command)
	if logErr := audit.RecordCommand(ctx, s.auditRepo, 0, "system",
		audit.SourceScheduler, command, err); logErr != nil {
		logger.WarnF(ctx, "[Server] failed to record command log: %v", logErr)
	}
	return err
}

// Info returns a snapshot of the server process state.
func (s *Service) Info() supervisor.Info {
	return s.sup.Info()
}

// IsRunning reports whether the server process is alive.
func (s *Service) IsRunning() bool {
	return s.sup.IsRunning()
}

// ConsoleTail returns the most recent n console lines, oldest first.
func (s *Service) ConsoleTail(n int) []supervisor.ConsoleLine {
	return s.sup.Console().Tail(n)
}

// SubscribeConsole registers a live console subscriber.
func (s *Service) SubscribeConsole() (int, <-chan supervisor.ConsoleLine) {
	return s.sup.Console().Subscribe()
}

// UnsubscribeConsole removes a console subscriber and closes its channel.
func (s *Service) UnsubscribeConsole(id int) {
	s.sup.Console().Unsubscribe(id)
}

// ClearConsole drops the buffered console history.
func (s *Service) ClearConsole() {
	s.sup.Console().Clear()
}
