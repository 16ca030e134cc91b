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
	"time"

	"github.com/kissanima/craftd/internal/logger"
)

const (
	// wakeCheckInterval is the detector tick. A host sleep shows up as a
	// tick arriving much later than scheduled.
	wakeCheckInterval = 5 * time.Second

	// wakeGapThreshold is the tick gap treated as a sleep/wake event.
	wakeGapThreshold = 30 * time.Second

	// wakeEventsToConfirm guards against one-off clock adjustments: a wake
	// is only acted on after this many consecutive gap events.
	wakeEventsToConfirm = 2
)

// Restarter is the slice of a managed process the wake detector needs.
type Restarter interface {
	IsRunning() bool
	Restart(ctx context.Context) error
}

// WakeDetector notices the host waking from sleep by watching for large
// gaps between timer ticks. The JVM and the tunnel often come back from a
// suspend with dead sockets, so after a confirmed wake the processes that
// were running before the sleep are restarted.
type WakeDetector struct {
	server      Restarter
	tunnel      Restarter
	autoRestart bool

	lastTick    time.Time
	wakeEvents  int
	serverWasUp bool
	tunnelWasUp bool

	nowFunc func() time.Time
}

// NewWakeDetector builds a detector. tunnel may be nil. autoRestart
// controls whether a confirmed wake restarts the managed processes or is
// only logged.
func NewWakeDetector(server Restarter, tunnel Restarter, autoRestart bool) *WakeDetector {
	return &WakeDetector{
		server:      server,
		tunnel:      tunnel,
		autoRestart: autoRestart,
		nowFunc:     time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (d *WakeDetector) Run(ctx context.Context) {
	d.lastTick = d.nowFunc()
	d.serverWasUp = d.server.IsRunning()
	d.tunnelWasUp = d.tunnel != nil && d.tunnel.IsRunning()

	ticker := time.NewTicker(wakeCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.checkOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (d *WakeDetector) checkOnce(ctx context.Context) {
	now := d.nowFunc()
	gap := now.Sub(d.lastTick)
	d.lastTick = now

	if gap < wakeGapThreshold {
		d.wakeEvents = 0
		// Remember what was up while the host is awake: after the gap the
		// processes may already look dead.
		d.serverWasUp = d.server.IsRunning()
		d.tunnelWasUp = d.tunnel != nil && d.tunnel.IsRunning()
		return
	}

	d.wakeEvents++
	logger.WarnF(ctx, "[Power] tick gap of %s detected (event %d/%d)",
		gap.Round(time.Second), d.wakeEvents, wakeEventsToConfirm)
	if d.wakeEvents < wakeEventsToConfirm {
		return
	}
	d.wakeEvents = 0

	logger.InfoF(ctx, "[Power] host wake confirmed")
	if !d.autoRestart {
		return
	}

	if d.serverWasUp {
		logger.InfoF(ctx, "[Power] restarting server after wake")
		if err := d.server.Restart(ctx); err != nil {
			logger.ErrorF(ctx, "[Power] server restart after wake failed: %v", err)
		}
	}
	if d.tunnelWasUp && d.tunnel != nil {
		logger.InfoF(ctx, "[Power] restarting tunnel after wake")
		if err := d.tunnel.Restart(ctx); err != nil {
			logger.WarnF(ctx, "[Power] tunnel restart after wake failed: %v", err)
		}
	}
}
