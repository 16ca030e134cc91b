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
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Upsert stores a mod record, replacing an existing row with the same id.
func (r *Repository) Upsert(ctx context.Context, m *Mod) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(m).Error
}

// GetByID fetches one mod record.
func (r *Repository) GetByID(ctx context.Context, id string) (*Mod, error) {
	var m Mod
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrModNotFound
		}
		return nil, err
	}
	return &m, nil
}

// List returns mods ordered by name, narrowed by filter.
func (r *Repository) List(ctx context.Context, filter *Filter) ([]*Mod, error) {
	query := r.db.WithContext(ctx).Model(&Mod{})
	if filter != nil {
		if filter.Query != "" {
			like := "%" + filter.Query + "%"
			query = query.Where("name LIKE ? OR id LIKE ?", like, like)
		}
		if filter.Loader != "" {
			query = query.Where("loader = ?", filter.Loader)
		}
		if filter.Enabled != nil {
			query = query.Where("enabled = ?", *filter.Enabled)
		}
	}

	var mods []*Mod
	err := query.Order("name ASC").Find(&mods).Error
	return mods, err
}

// Delete removes a mod record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Mod{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrModNotFound
	}
	return nil
}

// DeleteMissing drops rows whose id is not in keep; a nil keep clears the
// table. Used after a scan to forget jars removed from disk.
func (r *Repository) DeleteMissing(ctx context.Context, keep []string) error {
	query := r.db.WithContext(ctx)
	if len(keep) == 0 {
		return query.Where("1 = 1").Delete(&Mod{}).Error
	}
	return query.Where("id NOT IN ?", keep).Delete(&Mod{}).Error
}

// GetStats aggregates library totals.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByLoader: make(map[Loader]int64)}
	db := r.db.WithContext(ctx).Model(&Mod{})

	if err := db.Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&Mod{}).
		Where("enabled = ?", true).Count(&stats.EnabledCount).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&Mod{}).
		Select("COALESCE(SUM(size_bytes), 0)").Scan(&stats.TotalSizeBytes).Error; err != nil {
		return nil, err
	}

	rows := []struct {
		Loader Loader
		Count  int64
	}{}
	if err := r.db.WithContext(ctx).Model(&Mod{}).
		Select("loader, COUNT(*) AS count").Group("loader").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByLoader[row.Loader] = row.Count
	}
	return stats, nil
}
