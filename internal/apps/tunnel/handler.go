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

// Package tunnel exposes the playit.gg tunnel agent over HTTP.
package tunnel

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/apps/auth"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/otel_trace"
	"github.com/kissanima/craftd/internal/playit"
)

// Handler exposes tunnel lifecycle endpoints.
type Handler struct {
	manager *playit.Manager
}

// NewHandler creates a tunnel handler around manager.
func NewHandler(manager *playit.Manager) *Handler {
	return &Handler{manager: manager}
}

// Start handles POST /tunnel/start.
func (h *Handler) Start(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Info playit.Info `json:"info"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "tunnel.Start")
	defer span.End()

	if err := h.manager.Start(ctx); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, playit.ErrAlreadyRunning):
			status = http.StatusConflict
		case errors.Is(err, playit.ErrBinaryNotFound):
			status = http.StatusBadRequest
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	logger.InfoF(ctx, "[Tunnel] start requested by %s", auth.GetUsernameFromContext(c))
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Info playit.Info `json:"info"`
		}{Info: h.manager.Info()},
	})
}

// Stop handles POST /tunnel/stop. Stopping a stopped tunnel is a no-op.
func (h *Handler) Stop(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Info playit.Info `json:"info"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "tunnel.Stop")
	defer span.End()

	if err := h.manager.Stop(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	logger.InfoF(ctx, "[Tunnel] stop requested by %s", auth.GetUsernameFromContext(c))
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Info playit.Info `json:"info"`
		}{Info: h.manager.Info()},
	})
}

// Restart handles POST /tunnel/restart.
func (h *Handler) Restart(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Info playit.Info `json:"info"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "tunnel.Restart")
	defer span.End()

	if err := h.manager.Restart(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, playit.ErrBinaryNotFound) {
			status = http.StatusBadRequest
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Info playit.Info `json:"info"`
		}{Info: h.manager.Info()},
	})
}

// Status handles GET /tunnel/status.
func (h *Handler) Status(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Info playit.Info `json:"info"`
		} `json:"data"`
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Info playit.Info `json:"info"`
		}{Info: h.manager.Info()},
	})
}
