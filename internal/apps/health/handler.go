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

package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler exposes health sampling endpoints.
type Handler struct {
	service *Service
	repo    *Repository
}

// NewHandler creates a health handler. repo may be nil when persistence is
// disabled; the samples endpoint then returns an error.
func NewHandler(service *Service, repo *Repository) *Handler {
	return &Handler{service: service, repo: repo}
}

// Current handles GET /health/current.
func (h *Handler) Current(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Sample *Sample `json:"sample"`
		} `json:"data"`
	}

	sample := h.service.Current()
	if sample == nil {
		// Grade an immediate snapshot rather than waiting for the first tick.
		sample = h.service.SampleOnce(c.Request.Context())
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Sample *Sample `json:"sample"`
		}{Sample: sample},
	})
}

// History handles GET /health/history, serving the in-memory window.
func (h *Handler) History(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Samples []*Sample `json:"samples"`
		} `json:"data"`
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Samples []*Sample `json:"samples"`
		}{Samples: h.service.History()},
	})
}

// SamplesRequest is the query for GET /health/samples.
type SamplesRequest struct {
	Level     Level  `form:"level"`
	StartTime string `form:"start_time"`
	EndTime   string `form:"end_time"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// Samples handles GET /health/samples, serving the persistent sample log.
func (h *Handler) Samples(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Samples []*Sample `json:"samples"`
			Total   int64     `json:"total"`
		} `json:"data"`
	}

	if h.repo == nil {
		c.JSON(http.StatusNotImplemented, response{ErrorMsg: "sample persistence is disabled"})
		return
	}

	req := &SamplesRequest{Page: 1, PageSize: 50}
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "invalid query parameters"})
		return
	}

	filter := &SampleFilter{
		Level:    req.Level,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.StartTime != "" {
		ts, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, response{ErrorMsg: "start_time must be RFC3339"})
			return
		}
		filter.StartTime = &ts
	}
	if req.EndTime != "" {
		ts, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, response{ErrorMsg: "end_time must be RFC3339"})
			return
		}
		filter.EndTime = &ts
	}

	samples, total, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Samples []*Sample `json:"samples"`
			Total   int64     `json:"total"`
		}{Samples: samples, Total: total},
	})
}
