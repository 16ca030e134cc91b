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

// Package mods manages the server's mod library: jar scanning with
// loader-specific metadata extraction, enable/disable by file rename, and
// install/remove. Changes take effect on the next server restart.
package mods

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrModNotFound is returned when no mod matches the requested id.
	ErrModNotFound = errors.New("mod not found")
	// ErrModExists is returned when an installed file would overwrite a mod.
	ErrModExists = errors.New("mod already installed")
	// ErrServerRunning rejects destructive changes while the server is up.
	ErrServerRunning = errors.New("server is running")
	// ErrInvalidModFile is returned for uploads that are not mod jars.
	ErrInvalidModFile = errors.New("invalid mod file")
)

// Loader identifies the mod loader a jar targets.
type Loader string

const (
	LoaderFabric  Loader = "fabric"
	LoaderForge   Loader = "forge"
	LoaderQuilt   Loader = "quilt"
	LoaderUnknown Loader = "unknown"
)

// Dependencies is the list of mod ids a mod declares it depends on.
type Dependencies []string

// Value implements driver.Valuer for database storage.
func (d Dependencies) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for database retrieval.
func (d *Dependencies) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("mods: failed to scan Dependencies - expected []byte")
	}
	return json.Unmarshal(bytes, d)
}

// Mod is one jar in the mod library, cached from the last scan. ID is the
// loader-declared mod id when the jar carries metadata, otherwise it is
// derived from the file name.
type Mod struct {
	ID           string       `json:"id" gorm:"primaryKey;size:191"`
	Name         string       `json:"name" gorm:"size:255"`
	Version      string       `json:"version" gorm:"size:100"`
	Loader       Loader       `json:"loader" gorm:"size:16;index"`
	FileName     string       `json:"file_name" gorm:"size:255;not null"`
	SizeBytes    int64        `json:"size_bytes"`
	SHA256       string       `json:"sha256" gorm:"size:64"`
	Enabled      bool         `json:"enabled" gorm:"index"`
	Description  string       `json:"description" gorm:"type:text"`
	Author       string       `json:"author" gorm:"size:255"`
	Dependencies Dependencies `json:"dependencies" gorm:"type:text"`
	ScannedAt    time.Time    `json:"scanned_at"`
}

// TableName sets the mods table name.
func (Mod) TableName() string {
	return "mods"
}

// Filter narrows List results.
type Filter struct {
	Query   string `form:"query"`
	Loader  Loader `form:"loader"`
	Enabled *bool  `form:"enabled"`
}

// Stats summarizes the mod library.
type Stats struct {
	Total          int64            `json:"total"`
	EnabledCount   int64            `json:"enabled_count"`
	TotalSizeBytes int64            `json:"total_size_bytes"`
	ByLoader       map[Loader]int64 `json:"by_loader"`
}

// Repository persists the scanned mod library.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a mods repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}
