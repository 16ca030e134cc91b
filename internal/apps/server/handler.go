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
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/apps/auth"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/otel_trace"
	"github.com/kissanima/craftd/internal/supervisor"
)

// defaultConsoleLines is how many lines Console returns and ConsoleStream
// replays when the client does not ask for a count.
const defaultConsoleLines = 100

// Handler exposes server lifecycle endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a server handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Start handles POST /server/start.
func (h *Handler) Start(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Info supervisor.Info `json:"info"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "server.Start")
	defer span.End()

	if err := h.service.Start(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	logger.InfoF(ctx, "[Server] start requested by %s", auth.GetUsernameFromContext(c))
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Info supervisor.Info `json:"info"`
		}{Info: h.service.Info()},
	})
}

// Stop handles POST /server/stop.
func (h *Handler) Stop(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Info supervisor.Info `json:"info"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "server.Stop")
	defer span.End()

	if err := h.service.Stop(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, supervisor.ErrNotRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	logger.InfoF(ctx, "[Server] stop requested by %s", auth.GetUsernameFromContext(c))
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Info supervisor.Info `json:"info"`
		}{Info: h.service.Info()},
	})
}

// Restart handles POST /server/restart.
func (h *Handler) Restart(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Info supervisor.Info `json:"info"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "server.Restart")
	defer span.End()

	if err := h.service.Restart(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	logger.InfoF(ctx, "[Server] restart requested by %s", auth.GetUsernameFromContext(c))
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Info supervisor.Info `json:"info"`
		}{Info: h.service.Info()},
	})
}

// Status handles GET /server/status.
func (h *Handler) Status(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Info supervisor.Info `json:"info"`
		} `json:"data"`
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Info supervisor.Info `json:"info"`
		}{Info: h.service.Info()},
	})
}

// SendCommandRequest is the body for POST /server/command.
type SendCommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// SendCommand handles POST /server/command.
func (h *Handler) SendCommand(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Command string `json:"command"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "server.SendCommand")
	defer span.End()

	req := &SendCommandRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "command is required"})
		return
	}

	userID := auth.GetUserIDFromContext(c)
	username := auth.GetUsernameFromContext(c)

	if err := h.service.SendCommand(ctx, userID, username, req.Command); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrEmptyCommand):
			status = http.StatusBadRequest
		case errors.Is(err, supervisor.ErrNotRunning):
			status = http.StatusConflict
		}
		c.JSON(status, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Command string `json:"command"`
		}{Command: req.Command},
	})
}

// ConsoleRequest is the query for GET /server/console.
type ConsoleRequest struct {
	Lines int `form:"lines"`
}

// Console handles GET /server/console, returning the tail of the console
// buffer.
func (h *Handler) Console(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Lines []supervisor.ConsoleLine `json:"lines"`
		} `json:"data"`
	}

	req := &ConsoleRequest{Lines: defaultConsoleLines}
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "invalid query parameters"})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Lines []supervisor.ConsoleLine `json:"lines"`
		}{Lines: h.service.ConsoleTail(req.Lines)},
	})
}

// ConsoleStream handles GET /server/console/stream. It pushes console lines
// to the client as server-sent events until the client disconnects.
func (h *Handler) ConsoleStream(c *gin.Context) {
	// Subscribe before replaying the tail so no line falls between the
	// snapshot and the live feed; a line published in that window shows up
	// twice rather than never.
	id, ch := h.service.SubscribeConsole()
	defer h.service.UnsubscribeConsole(id)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	for _, line := range h.service.ConsoleTail(defaultConsoleLines) {
		c.SSEvent("console", line)
	}
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case line, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("console", line)
			return true
		case <-clientGone:
			return false
		}
	})
}

// ClearConsole handles POST /server/console/clear.
func (h *Handler) ClearConsole(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Cleared bool `json:"cleared"`
		} `json:"data"`
	}

	h.service.ClearConsole()
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Cleared bool `json:"cleared"`
		}{Cleared: true},
	})
}
