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

package backup

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/apps/audit"
	"github.com/kissanima/craftd/internal/apps/auth"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/otel_trace"
)

// Handler exposes backup endpoints.
type Handler struct {
	service   *Service
	auditRepo *audit.Repository
}

// NewHandler creates a backup handler. auditRepo may be nil.
func NewHandler(service *Service, auditRepo *audit.Repository) *Handler {
	return &Handler{service: service, auditRepo: auditRepo}
}

// CreateRequest is the body for POST /backups.
type CreateRequest struct {
	Note string `json:"note"`
}

// Create handles POST /backups.
func (h *Handler) Create(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Backup *Backup `json:"backup"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "backup.Create")
	defer span.End()

	req := &CreateRequest{}
	_ = c.ShouldBindJSON(req)

	b, err := h.service.Create(ctx, TriggerManual, req.Note)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrBackupInProgress) {
			status = http.StatusConflict
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	h.recordAudit(c, "backup.create", b.ID, audit.AuditDetails{"filename": b.Filename})
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Backup *Backup `json:"backup"`
		}{Backup: b},
	})
}

// List handles GET /backups.
func (h *Handler) List(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Backups []*Backup `json:"backups"`
			Total   int64     `json:"total"`
		} `json:"data"`
	}

	filter := &Filter{Page: 1, PageSize: 20}
	if err := c.ShouldBindQuery(filter); err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "invalid query parameters"})
		return
	}

	backups, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Backups []*Backup `json:"backups"`
			Total   int64     `json:"total"`
		}{Backups: backups, Total: total},
	})
}

// Restore handles POST /backups/:id/restore.
func (h *Handler) Restore(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Restored bool `json:"restored"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "backup.Restore")
	defer span.End()

	id := c.Param("id")
	if err := h.service.Restore(ctx, id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrBackupNotFound):
			status = http.StatusNotFound
		case errors.Is(err, ErrServerRunning), errors.Is(err, ErrBackupInProgress):
			status = http.StatusConflict
		case errors.Is(err, ErrArchiveMissing):
			status = http.StatusGone
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	h.recordAudit(c, "backup.restore", id, nil)
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Restored bool `json:"restored"`
		}{Restored: true},
	})
}

// Delete handles DELETE /backups/:id.
func (h *Handler) Delete(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Deleted bool `json:"deleted"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "backup.Delete")
	defer span.End()

	id := c.Param("id")
	if err := h.service.Delete(ctx, id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrBackupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	h.recordAudit(c, "backup.delete", id, nil)
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Deleted bool `json:"deleted"`
		}{Deleted: true},
	})
}

// GetStats handles GET /backups/stats.
func (h *Handler) GetStats(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Stats *Stats `json:"stats"`
		} `json:"data"`
	}

	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Stats *Stats `json:"stats"`
		}{Stats: stats},
	})
}

func (h *Handler) recordAudit(c *gin.Context, action, resourceID string, details audit.AuditDetails) {
	err := audit.RecordFromGin(c, h.auditRepo,
		auth.GetUserIDFromContext(c), auth.GetUsernameFromContext(c),
		action, "backup", resourceID, details)
	if err != nil {
		logger.WarnF(c.Request.Context(), "[Backup] failed to record audit log: %v", err)
	}
}
