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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/apps/audit"
	"github.com/kissanima/craftd/internal/apps/auth"
	"github.com/kissanima/craftd/internal/logger"
)

// Handler exposes the shutdown schedule endpoints.
type Handler struct {
	repo      *Repository
	auditRepo *audit.Repository
}

// NewHandler creates a power handler. auditRepo may be nil.
func NewHandler(repo *Repository, auditRepo *audit.Repository) *Handler {
	return &Handler{repo: repo, auditRepo: auditRepo}
}

// GetSchedule handles GET /power/schedule.
func (h *Handler) GetSchedule(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Schedule *Settings `json:"schedule"`
		} `json:"data"`
	}

	settings, err := h.repo.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Schedule *Settings `json:"schedule"`
		}{Schedule: settings},
	})
}

// UpdateScheduleRequest is the body for PUT /power/schedule.
type UpdateScheduleRequest struct {
	Enabled        bool `json:"enabled"`
	Hour           int  `json:"hour"`
	Minute         int  `json:"minute"`
	WarningMinutes int  `json:"warning_minutes"`
}

// UpdateSchedule handles PUT /power/schedule.
func (h *Handler) UpdateSchedule(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Schedule *Settings `json:"schedule"`
		} `json:"data"`
	}

	req := &UpdateScheduleRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	settings := &Settings{
		Enabled:        req.Enabled,
		Hour:           req.Hour,
		Minute:         req.Minute,
		WarningMinutes: req.WarningMinutes,
	}
	if err := h.repo.Update(ctx, settings); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrScheduleInvalid) {
			status = http.StatusBadRequest
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	if err := audit.RecordFromGin(c, h.auditRepo,
		auth.GetUserIDFromContext(c), auth.GetUsernameFromContext(c),
		"power.update_schedule", "power", "schedule", audit.AuditDetails{
			"enabled":         req.Enabled,
			"hour":            req.Hour,
			"minute":          req.Minute,
			"warning_minutes": req.WarningMinutes,
		}); err != nil {
		logger.WarnF(ctx, "[Power] failed to record audit log: %v", err)
	}

	updated, err := h.repo.Get(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Schedule *Settings `json:"schedule"`
		}{Schedule: updated},
	})
}
