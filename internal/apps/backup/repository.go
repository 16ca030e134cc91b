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
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository persists backup metadata.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a backup repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create stores a backup record.
func (r *Repository) Create(ctx context.Context, b *Backup) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// GetByID fetches one backup record.
func (r *Repository) GetByID(ctx context.Context, id string) (*Backup, error) {
	var b Backup
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}
	return &b, nil
}

// List returns backups newest first, with the total count before pagination.
func (r *Repository) List(ctx context.Context, filter *Filter) ([]*Backup, int64, error) {
	query := r.db.WithContext(ctx).Model(&Backup{})
	if filter != nil && filter.Trigger != "" {
		query = query.Where("trigger = ?", filter.Trigger)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := 1, 20
	if filter != nil {
		if filter.Page > 0 {
			page = filter.Page
		}
		if filter.PageSize > 0 && filter.PageSize <= 100 {
			pageSize = filter.PageSize
		}
	}

	var backups []*Backup
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&backups).Error
	if err != nil {
		return nil, 0, err
	}
	return backups, total, nil
}

// ListOldest returns all backups oldest first, used for pruning.
func (r *Repository) ListOldest(ctx context.Context) ([]*Backup, error) {
	var backups []*Backup
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&backups).Error
	if err != nil {
		return nil, err
	}
	return backups, nil
}

// Delete removes a backup record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Backup{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBackupNotFound
	}
	return nil
}

// GetStats aggregates count, total size and the latest backup time.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.WithContext(ctx).Model(&Backup{}).Count(&stats.Count).Error
	if err != nil {
		return nil, err
	}
	if stats.Count == 0 {
		return stats, nil
	}

	err = r.db.WithContext(ctx).Model(&Backup{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&stats.TotalSizeBytes).Error
	if err != nil {
		return nil, err
	}

	var latest Backup
	err = r.db.WithContext(ctx).Order("created_at DESC").First(&latest).Error
	if err != nil {
		return nil, err
	}
	stats.LatestBackupAt = &latest.CreatedAt
	return stats, nil
}
