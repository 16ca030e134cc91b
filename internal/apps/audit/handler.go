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

package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP handlers for command and audit log queries.
// Handler 提供命令日志和审计日志查询的 HTTP 处理器。
type Handler struct {
	repo *Repository
}

// NewHandler creates a new Handler instance.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListCommandLogsRequest is the query for GET /api/v1/commands.
type ListCommandLogsRequest struct {
	Current  int           `json:"current" form:"current" binding:"min=1"`
	Size     int           `json:"size" form:"size" binding:"min=1,max=100"`
	Username string        `json:"username" form:"username"`
	Source   CommandSource `json:"source" form:"source"`
	Success  *bool         `json:"success" form:"success"`
	StartTime string       `json:"start_time" form:"start_time"`
	EndTime   string       `json:"end_time" form:"end_time"`
}

// ListCommandLogsResponse is the response for GET /api/v1/commands.
type ListCommandLogsResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Total    int64         `json:"total"`
		Commands []*CommandLog `json:"commands"`
	} `json:"data"`
}

// ListAuditLogsRequest is the query for GET /api/v1/audit-logs.
type ListAuditLogsRequest struct {
	Current      int    `json:"current" form:"current" binding:"min=1"`
	Size         int    `json:"size" form:"size" binding:"min=1,max=100"`
	Username     string `json:"username" form:"username"`
	Action       string `json:"action" form:"action"`
	ResourceType string `json:"resource_type" form:"resource_type"`
	ResourceID   string `json:"resource_id" form:"resource_id"`
	StartTime    string `json:"start_time" form:"start_time"`
	EndTime      string `json:"end_time" form:"end_time"`
}

// ListAuditLogsResponse is the response for GET /api/v1/audit-logs.
type ListAuditLogsResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Total int64       `json:"total"`
		Logs  []*AuditLog `json:"logs"`
	} `json:"data"`
}

// GetAuditLogResponse is the response for GET /api/v1/audit-logs/:id.
type GetAuditLogResponse struct {
	ErrorMsg string    `json:"error_msg"`
	Data     *AuditLog `json:"data"`
}

func parseTimeRange(start, end string) (*time.Time, *time.Time, error) {
	var startTime, endTime *time.Time
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, nil, errors.New("invalid start_time format, use RFC3339")
		}
		startTime = &t
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return nil, nil, errors.New("invalid end_time format, use RFC3339")
		}
		endTime = &t
	}
	return startTime, endTime, nil
}

// ListCommandLogs handles GET /api/v1/commands.
func (h *Handler) ListCommandLogs(c *gin.Context) {
	req := &ListCommandLogsRequest{Current: 1, Size: 20}
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, ListCommandLogsResponse{ErrorMsg: err.Error()})
		return
	}

	startTime, endTime, err := parseTimeRange(req.StartTime, req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, ListCommandLogsResponse{ErrorMsg: err.Error()})
		return
	}

	logs, total, err := h.repo.ListCommandLogs(c.Request.Context(), &CommandLogFilter{
		Username:  req.Username,
		Source:    req.Source,
		Success:   req.Success,
		StartTime: startTime,
		EndTime:   endTime,
		Page:      req.Current,
		PageSize:  req.Size,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ListCommandLogsResponse{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ListCommandLogsResponse{
		Data: &struct {
			Total    int64         `json:"total"`
			Commands []*CommandLog `json:"commands"`
		}{
			Total:    total,
			Commands: logs,
		},
	})
}

// ListAuditLogs handles GET /api/v1/audit-logs.
func (h *Handler) ListAuditLogs(c *gin.Context) {
	req := &ListAuditLogsRequest{Current: 1, Size: 20}
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, ListAuditLogsResponse{ErrorMsg: err.Error()})
		return
	}

	startTime, endTime, err := parseTimeRange(req.StartTime, req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, ListAuditLogsResponse{ErrorMsg: err.Error()})
		return
	}

	logs, total, err := h.repo.ListAuditLogs(c.Request.Context(), &AuditLogFilter{
		Username:     req.Username,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		StartTime:    startTime,
		EndTime:      endTime,
		Page:         req.Current,
		PageSize:     req.Size,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ListAuditLogsResponse{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ListAuditLogsResponse{
		Data: &struct {
			Total int64       `json:"total"`
			Logs  []*AuditLog `json:"logs"`
		}{
			Total: total,
			Logs:  logs,
		},
	})
}

// GetAuditLog handles GET /api/v1/audit-logs/:id.
func (h *Handler) GetAuditLog(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, GetAuditLogResponse{ErrorMsg: "invalid audit log ID"})
		return
	}

	log, err := h.repo.GetAuditLogByID(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, ErrAuditLogNotFound) {
			c.JSON(http.StatusNotFound, GetAuditLogResponse{ErrorMsg: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, GetAuditLogResponse{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, GetAuditLogResponse{Data: log})
}
