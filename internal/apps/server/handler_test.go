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

package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kissanima/craftd/internal/supervisor"
)

// A client connecting after startup must immediately receive the console
// history, not wait for the next live line.
func TestConsoleStreamReplaysTail(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	service := newTestService(t, db)

	require.NoError(t, service.Start(context.Background()))
	t.Cleanup(func() { _ = service.Stop(context.Background()) })
	waitForState(t, service, supervisor.StateRunning)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/server/console/stream", NewHandler(service).ConsoleStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/server/console/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var seen strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		seen.WriteString(line)
		if strings.Contains(seen.String(), "Done (3.141s)!") {
			return
		}
		if err != nil {
			t.Fatalf("ready line never replayed; stream so far: %q", seen.String())
		}
	}
}
