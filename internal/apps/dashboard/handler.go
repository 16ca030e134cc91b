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

// Package dashboard aggregates the state of every subsystem into one
// overview response for the panel landing page.
package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/apps/audit"
	"github.com/kissanima/craftd/internal/apps/backup"
	"github.com/kissanima/craftd/internal/apps/health"
	"github.com/kissanima/craftd/internal/apps/server"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/playit"
	"github.com/kissanima/craftd/internal/supervisor"
)

// recentActivityCount is how many audit entries the overview carries.
const recentActivityCount = 5

// Handler serves the aggregated overview.
type Handler struct {
	server    *server.Service
	tunnel    *playit.Manager
	health    *health.Service
	backups   *backup.Service
	auditRepo *audit.Repository
}

// NewHandler creates a dashboard handler. tunnel, health, backups and
// auditRepo may be nil when the subsystem is disabled; the overview omits
// them.
func NewHandler(srv *server.Service, tunnel *playit.Manager, healthSvc *health.Service, backups *backup.Service, auditRepo *audit.Repository) *Handler {
	return &Handler{
		server:    srv,
		tunnel:    tunnel,
		health:    healthSvc,
		backups:   backups,
		auditRepo: auditRepo,
	}
}

// Overview is the dashboard payload.
type Overview struct {
	Server         supervisor.Info   `json:"server"`
	Tunnel         *playit.Info      `json:"tunnel,omitempty"`
	Health         *health.Sample    `json:"health,omitempty"`
	Backups        *backup.Stats     `json:"backups,omitempty"`
	RecentActivity []*audit.AuditLog `json:"recent_activity,omitempty"`
}

// GetOverview handles GET /dashboard/overview.
func (h *Handler) GetOverview(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Overview *Overview `json:"overview"`
		} `json:"data"`
	}

	overview := &Overview{
		Server: h.server.Info(),
	}
	if h.tunnel != nil {
		info := h.tunnel.Info()
		overview.Tunnel = &info
	}
	if h.health != nil {
		overview.Health = h.health.Current()
	}
	if h.backups != nil {
		stats, err := h.backups.GetStats(c.Request.Context())
		if err != nil {
			logger.WarnF(c.Request.Context(), "[Dashboard] failed to load backup stats: %v", err)
		} else {
			overview.Backups = stats
		}
	}
	if h.auditRepo != nil {
		logs, _, err := h.auditRepo.ListAuditLogs(c.Request.Context(), &audit.AuditLogFilter{
			Page:     1,
			PageSize: recentActivityCount,
		})
		if err != nil {
			logger.WarnF(c.Request.Context(), "[Dashboard] failed to load recent activity: %v", err)
		} else {
			overview.RecentActivity = logs
		}
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Overview *Overview `json:"overview"`
		}{Overview: overview},
	})
}
