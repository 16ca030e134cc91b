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

package properties

import (
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/apps/audit"
	"github.com/kissanima/craftd/internal/apps/auth"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/otel_trace"
)

// Handler edits the server.properties file in the server directory.
type Handler struct {
	path      string
	auditRepo *audit.Repository

	mu sync.Mutex
}

// NewHandler creates a properties handler for the given server directory.
func NewHandler(serverDir string, auditRepo *audit.Repository) *Handler {
	return &Handler{
		path:      filepath.Join(serverDir, "server.properties"),
		auditRepo: auditRepo,
	}
}

// Property is one key with its current value and optional definition.
type Property struct {
	Key        string      `json:"key"`
	Value      string      `json:"value"`
	Definition *Definition `json:"definition,omitempty"`
}

// Get handles GET /properties. Known keys come first in definition order,
// then unknown keys in file order.
func (h *Handler) Get(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Properties []Property `json:"properties"`
		} `json:"data"`
	}

	h.mu.Lock()
	file, err := ParseFile(h.path)
	h.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	props := make([]Property, 0, len(Definitions))
	seen := make(map[string]bool, len(Definitions))
	for i := range Definitions {
		def := Definitions[i]
		value, ok := file.Get(def.Key)
		if !ok {
			value = def.Default
		}
		props = append(props, Property{Key: def.Key, Value: value, Definition: &def})
		seen[def.Key] = true
	}
	for _, key := range file.Keys() {
		if seen[key] {
			continue
		}
		value, _ := file.Get(key)
		props = append(props, Property{Key: key, Value: value})
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Properties []Property `json:"properties"`
		}{Properties: props},
	})
}

// UpdateRequest is the body for PUT /properties.
type UpdateRequest struct {
	Properties map[string]string `json:"properties" binding:"required"`
}

// Update handles PUT /properties. All values are validated before any write;
// an invalid value rejects the whole request. Changes take effect on the next
// server restart.
func (h *Handler) Update(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Updated int `json:"updated"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "properties.Update")
	defer span.End()

	req := &UpdateRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "properties map is required"})
		return
	}
	if len(req.Properties) == 0 {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "no properties to update"})
		return
	}

	for key, value := range req.Properties {
		if err := Validate(key, value); err != nil {
			c.JSON(http.StatusBadRequest, response{ErrorMsg: err.Error()})
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	file, err := ParseFile(h.path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}
	for key, value := range req.Properties {
		file.Set(key, value)
	}
	if err := file.SaveFile(h.path); err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	details := make(audit.AuditDetails, len(req.Properties))
	for key, value := range req.Properties {
		details[key] = value
	}
	if err := audit.RecordFromGin(c, h.auditRepo,
		auth.GetUserIDFromContext(c), auth.GetUsernameFromContext(c),
		"properties.update", "properties", "server.properties", details); err != nil {
		logger.WarnF(ctx, "[Properties] failed to record audit log: %v", err)
	}

	logger.InfoF(ctx, "[Properties] updated %d properties", len(req.Properties))
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Updated int `json:"updated"`
		}{Updated: len(req.Properties)},
	})
}

// Reset handles POST /properties/reset. Every known key is set back to its
// default value; unknown keys and comments are preserved.
func (h *Handler) Reset(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Reset int `json:"reset"`
		} `json:"data"`
	}

	ctx, span := otel_trace.Start(c.Request.Context(), "properties.Reset")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	file, err := ParseFile(h.path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}
	for i := range Definitions {
		file.Set(Definitions[i].Key, Definitions[i].Default)
	}
	if err := file.SaveFile(h.path); err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	if err := audit.RecordFromGin(c, h.auditRepo,
		auth.GetUserIDFromContext(c), auth.GetUsernameFromContext(c),
		"properties.reset", "properties", "server.properties", nil); err != nil {
		logger.WarnF(ctx, "[Properties] failed to record audit log: %v", err)
	}

	logger.InfoF(ctx, "[Properties] reset %d properties to defaults", len(Definitions))
	c.JSON(http.StatusOK, response{
		Data: &struct {
			Reset int `json:"reset"`
		}{Reset: len(Definitions)},
	})
}
