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

// Package playit runs the playit.gg tunnel agent as an auxiliary child
// process so a server behind NAT can be reached without port forwarding.
package playit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("playit: tunnel is already running")
	ErrNotRunning     = errors.New("playit: tunnel is not running")
	ErrBinaryNotFound = errors.New("playit: binary not found")
)

// State is the tunnel process lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StateExited  State = "exited"
)

// claimURLPattern matches the one-time claim link the agent prints on first
// run so the user can attach it to their playit.gg account.
var claimURLPattern = regexp.MustCompile(`https://playit\.gg/claim/[A-Za-z0-9]+`)

// tunnelAddrPattern matches the public address line the agent prints once a
// tunnel is established, e.g. "=> your-name.playit.gg".
var tunnelAddrPattern = regexp.MustCompile(`[a-z0-9][a-z0-9-]*\.(?:joinmc\.link|playit\.gg):?[0-9]*`)

// Info is a snapshot of the tunnel process.
type Info struct {
	State         State     `json:"state"`
	PID           int       `json:"pid"`
	StartTime     time.Time `json:"start_time"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	ClaimURL      string    `json:"claim_url,omitempty"`
	TunnelAddress string    `json:"tunnel_address,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Manager owns the playit agent child process.
type Manager struct {
	binaryPath      string
	gracefulTimeout time.Duration

	mu         sync.RWMutex
	state      State
	cmd        *exec.Cmd
	pid        int
	startTime  time.Time
	claimURL   string
	tunnelAddr string
	lastError  string
	exited     chan struct{}
}

// NewManager creates a stopped tunnel manager for the given agent binary.
func NewManager(binaryPath string, gracefulTimeout time.Duration) *Manager {
	if gracefulTimeout <= 0 {
		gracefulTimeout = 10 * time.Second
	}
	return &Manager{
		binaryPath:      binaryPath,
		gracefulTimeout: gracefulTimeout,
		state:           StateStopped,
	}
}

// Start launches the tunnel agent and begins scraping its output for the
// claim URL and public address.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning {
		return ErrAlreadyRunning
	}

	if m.binaryPath == "" {
		return fmt.Errorf("%w: no binary path configured", ErrBinaryNotFound)
	}
	if _, err := os.Stat(m.binaryPath); err != nil {
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, m.binaryPath)
	}

	cmd := exec.Command(m.binaryPath)
	setProcGroupAttr(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("playit: output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		m.lastError = err.Error()
		return fmt.Errorf("playit: start: %w", err)
	}
	pw.Close()

	m.cmd = cmd
	m.pid = cmd.Process.Pid
	m.startTime = time.Now()
	m.state = StateRunning
	m.claimURL = ""
	m.tunnelAddr = ""
	m.lastError = ""
	m.exited = make(chan struct{})

	go m.scrapeOutput(pr)
	go m.waitExit(cmd)

	return nil
}

func (m *Manager) scrapeOutput(r io.ReadCloser) {
	defer r.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		m.mu.Lock()
		if m.claimURL == "" {
			if url := claimURLPattern.FindString(line); url != "" {
				m.claimURL = url
			}
		}
		if addr := tunnelAddrPattern.FindString(line); addr != "" {
			m.tunnelAddr = addr
		}
		m.mu.Unlock()
	}
}

func (m *Manager) waitExit(cmd *exec.Cmd) {
	err := cmd.Wait()

	m.mu.Lock()
	if m.state == StateRunning {
		m.state = StateExited
		if err != nil {
			m.lastError = err.Error()
		}
	}
	m.pid = 0
	m.cmd = nil
	exited := m.exited
	m.mu.Unlock()

	close(exited)
}

// Stop terminates the tunnel agent: SIGTERM first, SIGKILL after the
// graceful timeout. Stopping an already stopped tunnel is not an error.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopped
	pid := m.pid
	exited := m.exited
	m.mu.Unlock()

	if pid > 0 {
		_ = signalGroup(pid, syscall.SIGTERM)
	}

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.gracefulTimeout):
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

// Restart stops the agent if needed, then starts it again.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	return m.Start(ctx)
}

// IsRunning reports whether the tunnel agent is up.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateRunning && m.pid > 0
}

// Info returns a snapshot of the tunnel process.
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := Info{
		State:         m.state,
		PID:           m.pid,
		StartTime:     m.startTime,
		ClaimURL:      m.claimURL,
		TunnelAddress: m.tunnelAddr,
		LastError:     m.lastError,
	}
	if m.state == StateRunning {
		info.UptimeSeconds = int64(time.Since(m.startTime).Seconds())
	}
	return info
}
