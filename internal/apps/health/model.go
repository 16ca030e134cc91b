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

// Package health samples the server process periodically and keeps a bounded
// in-memory history plus a persistent sample log.
package health

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrSampleNotFound = errors.New("health: sample not found")

// Level grades a sample against the resource thresholds.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Resource thresholds in percent. Memory is measured against total system
// memory, CPU against one core.
const (
	CPUWarningPercent     = 75.0
	CPUCriticalPercent    = 90.0
	MemoryWarningPercent  = 85.0
	MemoryCriticalPercent = 95.0
)

// Sample is one health snapshot of the server process.
type Sample struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	State           string    `json:"state" gorm:"size:20;not null;index"`
	MemoryBytes     int64     `json:"memory_bytes"`
	MemoryPercent   float64   `json:"memory_percent"`
	CPUPercent      float64   `json:"cpu_percent"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	RestartAttempts int       `json:"restart_attempts"`
	Level           Level     `json:"level" gorm:"size:20;not null;index"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}

// TableName sets the table name for the Sample model.
func (Sample) TableName() string {
	return "health_samples"
}

// SampleFilter narrows persisted sample queries.
type SampleFilter struct {
	Level     Level      `json:"level" form:"level"`
	StartTime *time.Time `json:"start_time" form:"-"`
	EndTime   *time.Time `json:"end_time" form:"-"`
	Page      int        `json:"page" form:"page"`
	PageSize  int        `json:"page_size" form:"page_size"`
}

// Repository persists health samples.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a health sample repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create stores one sample.
func (r *Repository) Create(ctx context.Context, sample *Sample) error {
	return r.db.WithContext(ctx).Create(sample).Error
}

// List returns persisted samples newest first.
func (r *Repository) List(ctx context.Context, filter *SampleFilter) ([]*Sample, int64, error) {
	query := r.db.WithContext(ctx).Model(&Sample{})
	if filter != nil {
		if filter.Level != "" {
			query = query.Where("level = ?", filter.Level)
		}
		if filter.StartTime != nil {
			query = query.Where("created_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			query = query.Where("created_at <= ?", *filter.EndTime)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := 1, 50
	if filter != nil {
		if filter.Page > 0 {
			page = filter.Page
		}
		if filter.PageSize > 0 && filter.PageSize <= 500 {
			pageSize = filter.PageSize
		}
	}

	var samples []*Sample
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&samples).Error
	if err != nil {
		return nil, 0, err
	}
	return samples, total, nil
}

// DeleteBefore removes persisted samples older than cutoff, returning how
// many were deleted.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Sample{})
	return result.RowsAffected, result.Error
}
