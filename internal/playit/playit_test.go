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

package playit

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeAgentScript = `#!/bin/sh
echo 'visit https://playit.gg/claim/abc123xyz to setup'
echo 'tunnel ready: craft-test.joinmc.link:25565'
trap 'exit 0' TERM
while true; do sleep 0.1; done
`

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based child process tests require a Unix shell")
	}

	path := filepath.Join(t.TempDir(), "playit-agent")
	require.NoError(t, os.WriteFile(path, []byte(fakeAgentScript), 0o755))
	return NewManager(path, 3*time.Second)
}

func TestManagerStartScrapesOutput(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(context.Background())

	assert.True(t, m.IsRunning())

	require.Eventually(t, func() bool {
		info := m.Info()
		return info.ClaimURL != "" && info.TunnelAddress != ""
	}, 5*time.Second, 50*time.Millisecond)

	info := m.Info()
	assert.Equal(t, "https://playit.gg/claim/abc123xyz", info.ClaimURL)
	assert.Equal(t, "craft-test.joinmc.link:25565", info.TunnelAddress)
	assert.Greater(t, info.PID, 0)
}

func TestManagerDoubleStart(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(context.Background())

	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyRunning)
}

func TestManagerStopIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	require.NoError(t, m.Stop(context.Background()))

	assert.False(t, m.IsRunning())
	assert.Equal(t, StateStopped, m.Info().State)
}

func TestManagerMissingBinary(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"), time.Second)
	assert.ErrorIs(t, m.Start(context.Background()), ErrBinaryNotFound)
}

func TestManagerDetectsAgentExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based child process tests require a Unix shell")
	}

	path := filepath.Join(t.TempDir(), "playit-agent")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 3\n"), 0o755))

	m := NewManager(path, time.Second)
	require.NoError(t, m.Start(context.Background()))

	require.Eventually(t, func() bool {
		return m.Info().State == StateExited
	}, 5*time.Second, 50*time.Millisecond)
	assert.NotEmpty(t, m.Info().LastError)
}
