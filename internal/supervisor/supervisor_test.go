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

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakeServerScript mimics the console behavior of a Minecraft server: it
// prints a done line, echoes commands from stdin, and exits on "stop".
const fakeServerScript = `#!/bin/sh
echo '[Server thread/INFO]: Starting minecraft server'
echo '[Server thread/INFO]: Done (1.2s)! For help, type "help"'
while read line; do
  if [ "$line" = "stop" ]; then
    echo '[Server thread/INFO]: Stopping server'
    exit 0
  fi
  echo "ran $line"
done
`

// crashServerScript reaches ready and then dies without a stop request.
const crashServerScript = `#!/bin/sh
echo '[Server thread/INFO]: Done (0.1s)! For help, type "help"'
exit 1
`

func newTestSupervisor(t *testing.T, script string) *Supervisor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based child process tests require a Unix shell")
	}

	dir := t.TempDir()

	scriptPath := filepath.Join(dir, "fake-java.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))

	jarPath := filepath.Join(dir, "server.jar")
	require.NoError(t, os.WriteFile(jarPath, []byte("jar"), 0o644))

	return New(Config{
		JavaPath:           scriptPath,
		JarPath:            jarPath,
		MaxMemory:          "1G",
		GracefulTimeout:    5 * time.Second,
		StopCommandWait:    2 * time.Second,
		ConsoleBufferLines: 200,
	})
}

func collectEvents(s *Supervisor) <-chan Event {
	events := make(chan Event, 16)
	s.SetEventHandler(func(event Event, _ Info) {
		events <- event
	})
	return events
}

func waitEvent(t *testing.T, events <-chan Event, want Event) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case got := <-events:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", want)
		}
	}
}

func TestSupervisorStartBecomesReady(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	events := collectEvents(s)

	require.NoError(t, s.Start(context.Background()))
	waitEvent(t, events, EventStarted)
	waitEvent(t, events, EventReady)

	assert.Equal(t, StateRunning, s.State())
	assert.True(t, s.IsRunning())

	info := s.Info()
	assert.Greater(t, info.PID, 0)
	assert.Empty(t, info.LastError)

	require.NoError(t, s.Stop(context.Background()))
}

func TestSupervisorStartWhileRunning(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	events := collectEvents(s)

	require.NoError(t, s.Start(context.Background()))
	waitEvent(t, events, EventReady)

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, s.Stop(context.Background()))
}

func TestSupervisorJarMissing(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	s.cfg.JarPath = filepath.Join(t.TempDir(), "missing.jar")

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrJarNotFound)
	assert.Equal(t, StateStopped, s.State())
}

func TestSupervisorSendCommandEchoed(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	events := collectEvents(s)

	require.NoError(t, s.Start(context.Background()))
	waitEvent(t, events, EventReady)

	id, lines := s.Console().Subscribe()
	defer s.Console().Unsubscribe(id)

	require.NoError(t, s.SendCommand("say hello"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case line := <-lines:
			if strings.Contains(line.Text, "ran say hello") {
				require.NoError(t, s.Stop(context.Background()))
				return
			}
		case <-deadline:
			t.Fatal("command echo never appeared on console")
		}
	}
}

func TestSupervisorSendCommandWhenStopped(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	assert.ErrorIs(t, s.SendCommand("list"), ErrNotRunning)
	assert.Error(t, s.SendCommand("   "))
}

func TestSupervisorGracefulStop(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	events := collectEvents(s)

	require.NoError(t, s.Start(context.Background()))
	waitEvent(t, events, EventReady)

	require.NoError(t, s.Stop(context.Background()))
	waitEvent(t, events, EventStopped)

	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 0, s.Info().PID)
}

func TestSupervisorConsoleStopIsClean(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	events := collectEvents(s)

	require.NoError(t, s.Start(context.Background()))
	waitEvent(t, events, EventReady)

	// A `stop` forwarded as a console command (or a player's in-game /stop)
	// announces shutdown on its own; the exit must not count as a crash.
	require.NoError(t, s.SendCommand("stop"))
	waitEvent(t, events, EventStopped)

	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, s.Info().CrashCount)
}

func TestSupervisorStopWhenStopped(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	assert.ErrorIs(t, s.Stop(context.Background()), ErrNotRunning)
}

func TestSupervisorCrashDetection(t *testing.T) {
	s := newTestSupervisor(t, crashServerScript)
	events := collectEvents(s)

	require.NoError(t, s.Start(context.Background()))
	waitEvent(t, events, EventCrashed)

	info := s.Info()
	assert.Equal(t, StateCrashed, s.State())
	assert.Equal(t, 1, info.CrashCount)
	// The crash report carries the last console output so the cause is
	// visible without digging through log files.
	assert.Contains(t, info.LastError, "Done (0.1s)!")
}

func TestSupervisorAutoRestartAfterCrash(t *testing.T) {
	s := newTestSupervisor(t, crashServerScript)
	s.cfg.AutoRestart = true
	s.cfg.MaxRestartAttempts = 1
	s.cfg.RestartDelay = 50 * time.Millisecond
	events := collectEvents(s)

	require.NoError(t, s.Start(context.Background()))

	// First life: started, crashed. Second life is the automatic one.
	waitEvent(t, events, EventCrashed)
	waitEvent(t, events, EventStarted)
	waitEvent(t, events, EventCrashed)

	// The attempt budget is spent, so the supervisor stays down.
	require.Eventually(t, func() bool {
		return s.State() == StateCrashed
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, s.Info().RestartAttempts)
}

func TestSupervisorRestart(t *testing.T) {
	s := newTestSupervisor(t, fakeServerScript)
	events := collectEvents(s)

	require.NoError(t, s.Start(context.Background()))
	waitEvent(t, events, EventReady)

	firstStart := s.Info().StartTime
	require.NoError(t, s.Restart(context.Background()))
	waitEvent(t, events, EventReady)

	assert.True(t, s.Info().StartTime.After(firstStart))
	require.NoError(t, s.Stop(context.Background()))
}

// The launch argument list must always put memory flags first and the jar
// invocation last, regardless of configuration.
func TestProperty_JavaArgsShape(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxMem := rapid.SampledFrom([]string{"1G", "2G", "4096M", "512M"}).Draw(t, "maxMem")
		minMem := rapid.SampledFrom([]string{"", "1G", "256M"}).Draw(t, "minMem")
		extra := rapid.SliceOfN(rapid.StringMatching(`-XX:[A-Za-z]{1,16}`), 0, 4).Draw(t, "extra")

		s := New(Config{
			JarPath:   "server.jar",
			MinMemory: minMem,
			MaxMemory: maxMem,
			JVMArgs:   extra,
		})

		args := s.buildJavaArgs("/srv/mc/server.jar")

		if args[0] != "-Xmx"+maxMem {
			t.Fatalf("first arg = %q, want -Xmx%s", args[0], maxMem)
		}

		hasXms := false
		for _, a := range args {
			if strings.HasPrefix(a, "-Xms") {
				hasXms = true
			}
		}
		if hasXms != (minMem != "") {
			t.Fatalf("Xms presence = %v, want %v", hasXms, minMem != "")
		}

		n := len(args)
		if args[n-3] != "-jar" || args[n-2] != "/srv/mc/server.jar" || args[n-1] != "nogui" {
			t.Fatalf("tail args = %v, want [-jar path nogui]", args[n-3:])
		}
	})
}
