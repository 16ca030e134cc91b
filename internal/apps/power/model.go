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

// Package power shuts the server down on a daily schedule, with an in-game
// warning broadcast beforehand.
package power

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kissanima/craftd/internal/config"
)

var ErrScheduleInvalid = errors.New("power: invalid schedule")

// Settings is the persisted shutdown schedule. A single row holds the
// current configuration.
type Settings struct {
	ID             uint      `json:"-" gorm:"primaryKey"`
	Enabled        bool      `json:"enabled"`
	Hour           int       `json:"hour"`
	Minute         int       `json:"minute"`
	WarningMinutes int       `json:"warning_minutes"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName sets the table name for the Settings model.
func (Settings) TableName() string {
	return "power_settings"
}

// Validate checks the schedule fields.
func (s *Settings) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("%w: hour must be 0-23", ErrScheduleInvalid)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: minute must be 0-59", ErrScheduleInvalid)
	}
	if s.WarningMinutes < 0 || s.WarningMinutes > 120 {
		return fmt.Errorf("%w: warning_minutes must be 0-120", ErrScheduleInvalid)
	}
	return nil
}

// Repository persists the shutdown schedule.
type Repository struct {
	db       *gorm.DB
	defaults config.PowerConfig
}

// NewRepository creates a power settings repository. defaults seed the row
// on first access.
func NewRepository(db *gorm.DB, defaults config.PowerConfig) *Repository {
	return &Repository{db: db, defaults: defaults}
}

// Get loads the schedule, seeding it from config defaults when absent.
func (r *Repository) Get(ctx context.Context) (*Settings, error) {
	var settings Settings
	err := r.db.WithContext(ctx).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	settings = Settings{
		Enabled:        r.defaults.AutoShutdownEnabled,
		Hour:           r.defaults.ShutdownHour,
		Minute:         r.defaults.ShutdownMinute,
		WarningMinutes: r.defaults.WarningMinutes,
	}
	if err := r.db.WithContext(ctx).Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// Update validates and stores a new schedule.
func (r *Repository) Update(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	current, err := r.Get(ctx)
	if err != nil {
		return err
	}
	current.Enabled = settings.Enabled
	current.Hour = settings.Hour
	current.Minute = settings.Minute
	current.WarningMinutes = settings.WarningMinutes
	return r.db.WithContext(ctx).Save(current).Error
}
