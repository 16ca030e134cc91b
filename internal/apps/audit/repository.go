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
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository provides data access for CommandLog and AuditLog entities.
// Repository 提供命令日志和审计日志的数据访问。
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository instance.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateCommandLog records a console command.
func (r *Repository) CreateCommandLog(ctx context.Context, log *CommandLog) error {
	if log.Command == "" {
		return ErrCommandEmpty
	}
	if log.Source != SourceAPI && log.Source != SourceScheduler {
		return ErrSourceInvalid
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// GetCommandLogByID returns one command log, or ErrCommandLogNotFound.
func (r *Repository) GetCommandLogByID(ctx context.Context, id uint) (*CommandLog, error) {
	var log CommandLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommandLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

// ListCommandLogs returns command logs matching filter, newest first, plus
// the total count before pagination.
func (r *Repository) ListCommandLogs(ctx context.Context, filter *CommandLogFilter) ([]*CommandLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&CommandLog{})

	if filter != nil {
		if filter.UserID != nil {
			query = query.Where("user_id = ?", *filter.UserID)
		}
		if filter.Username != "" {
			query = query.Where("username = ?", filter.Username)
		}
		if filter.Source != "" {
			query = query.Where("source = ?", filter.Source)
		}
		if filter.Success != nil {
			query = query.Where("success = ?", *filter.Success)
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

	page, pageSize := normalizePage(filter)
	var logs []*CommandLog
	err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// CreateAuditLog records a daemon action.
func (r *Repository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	if log.Action == "" {
		return ErrActionEmpty
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// GetAuditLogByID returns one audit log, or ErrAuditLogNotFound.
func (r *Repository) GetAuditLogByID(ctx context.Context, id uint) (*AuditLog, error) {
	var log AuditLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuditLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

// ListAuditLogs returns audit logs matching filter, newest first, plus the
// total count before pagination.
func (r *Repository) ListAuditLogs(ctx context.Context, filter *AuditLogFilter) ([]*AuditLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&AuditLog{})

	if filter != nil {
		if filter.UserID != nil {
			query = query.Where("user_id = ?", *filter.UserID)
		}
		if filter.Username != "" {
			query = query.Where("username = ?", filter.Username)
		}
		if filter.Action != "" {
			query = query.Where("action = ?", filter.Action)
		}
		if filter.ResourceType != "" {
			query = query.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			query = query.Where("resource_id = ?", filter.ResourceID)
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

	var page, pageSize int = 1, 20
	if filter != nil {
		if filter.Page > 0 {
			page = filter.Page
		}
		if filter.PageSize > 0 && filter.PageSize <= 100 {
			pageSize = filter.PageSize
		}
	}

	var logs []*AuditLog
	err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func normalizePage(filter *CommandLogFilter) (page, pageSize int) {
	page, pageSize = 1, 20
	if filter != nil {
		if filter.Page > 0 {
			page = filter.Page
		}
		if filter.PageSize > 0 && filter.PageSize <= 100 {
			pageSize = filter.PageSize
		}
	}
	return page, pageSize
}
