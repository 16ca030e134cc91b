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

package mods

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/apps/audit"
	"github.com/kissanima/craftd/internal/apps/auth"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/otel_trace"
)

// Handler exposes mod library endpoints.
type Handler struct {
	service   *Service
	auditRepo *audit.Repository
}

// NewHandler creates a mods handler. auditRepo may be nil.
func NewHandler(service *Service, auditRepo *audit.Repository) *Handler {
	return &Handler{service: service, auditRepo: auditRepo}
}

// List handles GET /mods.
func (h *Handler) List(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Mods []*Mod `json:"mods"`
		} `json:"data"`
	}

	filter := &Filter{}
	if err := c.ShouldBindQuery(filter); err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "invalid query parameters"})
		return
	}

	mods, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Mods []*Mod `json:"mods"`
		}{Mods: mods},
	})
}

// Scan handles POST /mods/scan.
func (h *Handler) Scan(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Mods []*Mod `json:"mods"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "mods.Scan")
	defer span.End()

	mods, err := h.service.Scan(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Mods []*Mod `json:"mods"`
		}{Mods: mods},
	})
}

// Install handles POST /mods: a multipart upload with the jar under "file".
func (h *Handler) Install(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Mod *Mod `json:"mod"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "mods.Install")
	defer span.End()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "mod jar upload is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: err.Error()})
		return
	}
	defer f.Close()

	mod, err := h.service.Install(ctx, fileHeader.Filename, f)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrServerRunning), errors.Is(err, ErrModExists):
			status = http.StatusConflict
		case errors.Is(err, ErrInvalidModFile):
			status = http.StatusBadRequest
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	h.recordAudit(c, "mods.install", mod.ID, audit.AuditDetails{"file_name": mod.FileName})
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Mod *Mod `json:"mod"`
		}{Mod: mod},
	})
}

// Enable handles POST /mods/:id/enable.
func (h *Handler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

// Disable handles POST /mods/:id/disable.
func (h *Handler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c *gin.Context, enabled bool) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Mod *Mod `json:"mod"`
		} `json:"data"`
	}

	action := "mods.disable"
	if enabled {
		action = "mods.enable"
	}
	ctx, span := otel_trace.Start(c.Request.Context(), action)
	defer span.End()

	id := c.Param("id")
	var (
		mod *Mod
		err error
	)
	if enabled {
		mod, err = h.service.Enable(ctx, id)
	} else {
		mod, err = h.service.Disable(ctx, id)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrModNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	h.recordAudit(c, action, id, audit.AuditDetails{"enabled": enabled})
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Mod *Mod `json:"mod"`
		}{Mod: mod},
	})
}

// Remove handles DELETE /mods/:id.
func (h *Handler) Remove(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Removed bool `json:"removed"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "mods.Remove")
	defer span.End()

	id := c.Param("id")
	if err := h.service.Remove(ctx, id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrModNotFound):
			status = http.StatusNotFound
		case errors.Is(err, ErrServerRunning):
			status = http.StatusConflict
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	h.recordAudit(c, "mods.remove", id, nil)
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Removed bool `json:"removed"`
		}{Removed: true},
	})
}

// GetStats handles GET /mods/stats.
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

// MissingDependencies handles GET /mods/dependencies/missing.
func (h *Handler) MissingDependencies(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Missing map[string][]string `json:"missing"`
		} `json:"data"`
	}

	missing, err := h.service.MissingDependencies(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Missing map[string][]string `json:"missing"`
		}{Missing: missing},
	})
}

func (h *Handler) recordAudit(c *gin.Context, action, resourceID string, details audit.AuditDetails) {
	err := audit.RecordFromGin(c, h.auditRepo,
		auth.GetUserIDFromContext(c), auth.GetUsernameFromContext(c),
		action, "mod", resourceID, details)
	if err != nil {
		logger.WarnF(c.Request.Context(), "[Mods] failed to record audit log: %v", err)
	}
}
