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

// Package backup creates, restores and prunes zip archives of the server
// directory.
package backup

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBackupNotFound   = errors.New("backup: backup not found")
	ErrArchiveMissing   = errors.New("backup: archive file missing on disk")
	ErrServerRunning    = errors.New("backup: server must be stopped before restoring")
	ErrBackupInProgress = errors.New("backup: another backup is already in progress")
)

// Trigger identifies what initiated a backup.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Backup is one archived snapshot of the server directory.
type Backup struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Filename  string    `json:"filename" gorm:"size:255;not null"`
	SizeBytes int64     `json:"size_bytes" gorm:"not null"`
	Trigger   Trigger   `json:"trigger" gorm:"size:20;not null;index"`
	Note      string    `json:"note" gorm:"size:500"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName sets the table name for the Backup model.
func (Backup) TableName() string {
	return "backups"
}

// BeforeCreate assigns a UUID when none was provided.
func (b *Backup) BeforeCreate(_ *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Stats summarizes the backup store.
type Stats struct {
	Count          int64      `json:"count"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	LatestBackupAt *time.Time `json:"latest_backup_at"`
}

// Filter narrows backup listings.
type Filter struct {
	Trigger  Trigger `json:"trigger" form:"trigger"`
	Page     int     `json:"page" form:"page"`
	PageSize int     `json:"page_size" form:"page_size"`
}
