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

// Package supervisor manages the Minecraft server child process: launch,
// console capture, stdin command forwarding, graceful stop with signal
// escalation, and crash detection with optional auto-restart.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("supervisor: server is already running")
	ErrNotRunning     = errors.New("supervisor: server is not running")
	ErrStartFailed    = errors.New("supervisor: server failed to start")
	ErrJarNotFound    = errors.New("supervisor: server jar not found")
)

// State is the lifecycle state of the managed server.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
	StateError    State = "error"
)

// Event is a lifecycle transition reported to the event handler.
type Event string

const (
	EventStarted Event = "started"
	EventReady   Event = "ready"
	EventStopped Event = "stopped"
	EventCrashed Event = "crashed"
)

// errorTailLines is how many trailing console lines are attached to the
// last error when the server crashes.
const errorTailLines = 5

// EventHandler receives lifecycle events. Handlers run on supervisor
// goroutines and must not block.
type EventHandler func(event Event, info Info)

// Info is a point-in-time snapshot of the managed server.
type Info struct {
	State           State     `json:"state"`
	PID             int       `json:"pid"`
	StartTime       time.Time `json:"start_time"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	MemoryBytes     int64     `json:"memory_bytes"`
	CPUPercent      float64   `json:"cpu_percent"`
	CrashCount      int       `json:"crash_count"`
	RestartAttempts int       `json:"restart_attempts"`
	LastError       string    `json:"last_error,omitempty"`
}

// Config holds everything the supervisor needs to launch and stop the
// server process.
type Config struct {
	JavaPath           string
	JarPath            string
	MinMemory          string
	MaxMemory          string
	JVMArgs            []string
	GracefulTimeout    time.Duration
	StopCommandWait    time.Duration
	ConsoleBufferLines int
	AutoRestart        bool
	MaxRestartAttempts int
	RestartDelay       time.Duration
}

// Supervisor owns a single Minecraft server process.
type Supervisor struct {
	cfg     Config
	console *Console

	mu              sync.RWMutex
	state           State
	cmd             *exec.Cmd
	stdin           io.WriteCloser
	pid             int
	startTime       time.Time
	stopRequested   bool
	lastError       string
	crashCount      int
	restartAttempts int
	exited          chan struct{}

	handlerMu sync.RWMutex
	handler   EventHandler
}

// New creates a supervisor in the stopped state.
func New(cfg Config) *Supervisor {
	if cfg.JavaPath == "" {
		cfg.JavaPath = "java"
	}
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = "2G"
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 30 * time.Second
	}
	if cfg.StopCommandWait <= 0 {
		cfg.StopCommandWait = 5 * time.Second
	}

	return &Supervisor{
		cfg:     cfg,
		console: NewConsole(cfg.ConsoleBufferLines),
		state:   StateStopped,
	}
}

// Console exposes the captured server output.
func (s *Supervisor) Console() *Console {
	return s.console
}

// SetEventHandler registers the lifecycle event callback.
func (s *Supervisor) SetEventHandler(handler EventHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = handler
}

func (s *Supervisor) notifyEvent(event Event) {
	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()

	if handler != nil {
		handler(event, s.Info())
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsRunning reports whether the server process is up, verifying the PID.
func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (s.state == StateRunning || s.state == StateStarting) &&
		s.pid > 0 && isProcessAlive(s.pid)
}

// Info returns a snapshot including live process metrics.
func (s *Supervisor) Info() Info {
	s.mu.RLock()
	info := Info{
		State:           s.state,
		PID:             s.pid,
		StartTime:       s.startTime,
		CrashCount:      s.crashCount,
		RestartAttempts: s.restartAttempts,
		LastError:       s.lastError,
	}
	s.mu.RUnlock()

	if (info.State == StateRunning || info.State == StateStarting || info.State == StateStopping) && info.PID > 0 {
		info.UptimeSeconds = int64(time.Since(info.StartTime).Seconds())
		info.MemoryBytes = processMemory(info.PID)
		info.CPUPercent = processCPU(info.PID)
	}
	return info
}

// Start launches the server process. The returned error covers launch
// failures only; readiness is reported asynchronously via EventReady once
// the server prints its done line.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()

	switch s.state {
	case StateStarting, StateRunning, StateStopping:
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	jarPath, err := filepath.Abs(s.cfg.JarPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrJarNotFound, err)
	}
	if _, err := os.Stat(jarPath); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJarNotFound, jarPath)
	}

	cmd := exec.Command(s.cfg.JavaPath, s.buildJavaArgs(jarPath)...)
	cmd.Dir = filepath.Dir(jarPath)
	setProcGroupAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: stdin pipe: %v", ErrStartFailed, err)
	}

	// Merge stdout and stderr into one stream so crash traces land in the
	// same console history as regular log lines.
	pr, pw, err := os.Pipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: output pipe: %v", ErrStartFailed, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		s.state = StateError
		s.lastError = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	s.cmd = cmd
	s.stdin = stdin
	s.pid = cmd.Process.Pid
	s.startTime = time.Now()
	s.state = StateStarting
	s.stopRequested = false
	s.lastError = ""
	s.exited = make(chan struct{})
	s.mu.Unlock()

	consoleDone := make(chan struct{})
	go s.readConsole(pr, consoleDone)
	go s.waitExit(cmd, consoleDone)

	s.notifyEvent(EventStarted)
	return nil
}

func (s *Supervisor) buildJavaArgs(jarPath string) []string {
	args := []string{"-Xmx" + s.cfg.MaxMemory}
	if s.cfg.MinMemory != "" {
		args = append(args, "-Xms"+s.cfg.MinMemory)
	}
	args = append(args, s.cfg.JVMArgs...)
	args = append(args, "-jar", jarPath, "nogui")
	return args
}

// readConsole scans merged output line by line until the child closes its
// end of the pipe, feeding the console buffer and watching for the
// readiness and shutdown markers the server prints.
func (s *Supervisor) readConsole(r io.ReadCloser, done chan<- struct{}) {
	defer close(done)
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		s.console.Append(line)
		s.classifyLine(line)
	}
}

func (s *Supervisor) classifyLine(line string) {
	lower := strings.ToLower(line)

	s.mu.Lock()
	switch {
	case s.state == StateStarting && strings.Contains(lower, "done") && strings.Contains(lower, "for help"):
		// e.g. [Server thread/INFO]: Done (12.3s)! For help, type "help"
		s.state = StateRunning
		s.restartAttempts = 0
		s.mu.Unlock()
		s.notifyEvent(EventReady)
		return
	case s.state == StateRunning && strings.Contains(lower, "stopping server"):
		s.state = StateStopping
	}
	s.mu.Unlock()
}

// waitExit reaps the child and decides between a clean stop and a crash.
func (s *Supervisor) waitExit(cmd *exec.Cmd, consoleDone <-chan struct{}) {
	err := cmd.Wait()
	// Let the console reader drain the final output first: the last lines
	// decide the stopping state and feed the crash report.
	<-consoleDone

	s.mu.Lock()
	// An exit is clean when the operator asked for it or the server itself
	// announced shutdown (an in-game /stop or a `stop` console command).
	requested := s.stopRequested || s.state == StateStopping
	exited := s.exited
	s.pid = 0
	s.stdin = nil
	s.cmd = nil

	var event Event
	if requested {
		s.state = StateStopped
		event = EventStopped
	} else {
		s.state = StateCrashed
		s.crashCount++
		if err != nil {
			s.lastError = err.Error()
		} else {
			s.lastError = "server exited without a stop request"
		}
		if tail := s.console.Tail(errorTailLines); len(tail) > 0 {
			lines := make([]string, 0, len(tail))
			for _, l := range tail {
				lines = append(lines, l.Text)
			}
			s.lastError += "; last output: " + strings.Join(lines, " | ")
		}
		event = EventCrashed
	}

	restart := event == EventCrashed && s.cfg.AutoRestart &&
		s.restartAttempts < s.cfg.MaxRestartAttempts
	if restart {
		s.restartAttempts++
	}
	s.mu.Unlock()

	close(exited)
	s.notifyEvent(event)

	if restart {
		go s.delayedRestart()
	}
}

func (s *Supervisor) delayedRestart() {
	if s.cfg.RestartDelay > 0 {
		time.Sleep(s.cfg.RestartDelay)
	}
	_ = s.Start(context.Background())
}

// Stop shuts the server down: the in-game stop command first, then SIGTERM
// to the process group, then SIGKILL after the graceful timeout.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()

	switch s.state {
	case StateRunning, StateStarting, StateStopping:
	default:
		s.mu.Unlock()
		return ErrNotRunning
	}

	s.stopRequested = true
	s.state = StateStopping
	stdin := s.stdin
	pid := s.pid
	exited := s.exited
	s.mu.Unlock()

	// Ask the server to save and exit on its own terms.
	if stdin != nil {
		_, _ = io.WriteString(stdin, "stop\n")
	}

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.StopCommandWait):
	}

	if pid > 0 {
		_ = signalGroup(pid, syscall.SIGTERM)
	}

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.GracefulTimeout):
	}

	if pid > 0 {
		_ = signalGroup(pid, syscall.SIGKILL)
	}

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart stops the server if needed, then starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return s.Start(ctx)
}

// SendCommand forwards a console command to the server's stdin. The
// trailing newline is added here.
func (s *Supervisor) SendCommand(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return errors.New("supervisor: empty command")
	}

	s.mu.RLock()
	stdin := s.stdin
	state := s.state
	s.mu.RUnlock()

	if state != StateRunning || stdin == nil {
		return ErrNotRunning
	}

	if _, err := io.WriteString(stdin, command+"\n"); err != nil {
		return fmt.Errorf("supervisor: write command: %w", err)
	}
	return nil
}
