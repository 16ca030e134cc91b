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

// Package audit records console commands sent to the server and a general
// action trail for daemon operations.
// 审计包记录发送到服务器的控制台命令以及守护进程操作的审计追踪。
package audit

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// CommandSource identifies who issued a console command.
// CommandSource 标识控制台命令的来源。
type CommandSource string

const (
	// SourceAPI marks commands sent by a user through the HTTP API.
	SourceAPI CommandSource = "api"
	// SourceScheduler marks commands issued by internal schedulers, such as
	// the save-all flush before a backup or the auto-shutdown warning.
	SourceScheduler CommandSource = "scheduler"
)

// AuditDetails carries free-form JSON details on an audit entry.
// AuditDetails 表示审计条目的 JSON 详情。
type AuditDetails map[string]interface{}

// Value implements driver.Valuer for database storage.
// Value 实现 driver.Valuer 接口用于数据库存储。
func (d AuditDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for database retrieval.
// Scan 实现 sql.Scanner 接口用于数据库读取。
func (d *AuditDetails) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("audit: failed to scan AuditDetails - expected []byte")
	}
	return json.Unmarshal(bytes, d)
}

// CommandLog is one console command forwarded to the server process.
// CommandLog 表示转发给服务器进程的一条控制台命令。
type CommandLog struct {
	ID        uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    *uint         `json:"user_id" gorm:"index"`
	Username  string        `json:"username" gorm:"size:100"`
	Source    CommandSource `json:"source" gorm:"size:20;not null;index"`
	Command   string        `json:"command" gorm:"size:500;not null"`
	Success   bool          `json:"success"`
	Error     string        `json:"error" gorm:"type:text"`
	CreatedAt time.Time     `json:"created_at" gorm:"autoCreateTime;index"`
}

func (CommandLog) TableName() string {
	return "command_logs"
}

// AuditLog is one entry in the daemon action trail.
// AuditLog 表示审计追踪中的一条记录。
type AuditLog struct {
	ID           uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       *uint        `json:"user_id" gorm:"index"`
	Username     string       `json:"username" gorm:"size:100"`
	Action       string       `json:"action" gorm:"size:50;not null;index"`
	ResourceType string       `json:"resource_type" gorm:"size:50;index:idx_resource"`
	ResourceID   string       `json:"resource_id" gorm:"size:100;index:idx_resource"`
	Details      AuditDetails `json:"details" gorm:"type:json"`
	IPAddress    string       `json:"ip_address" gorm:"size:45"`
	UserAgent    string       `json:"user_agent" gorm:"size:500"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime;index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// CommandLogFilter narrows command log queries.
// CommandLogFilter 表示命令日志的查询过滤条件。
type CommandLogFilter struct {
	UserID    *uint         `json:"user_id"`
	Username  string        `json:"username"`
	Source    CommandSource `json:"source"`
	Success   *bool         `json:"success"`
	StartTime *time.Time    `json:"start_time"`
	EndTime   *time.Time    `json:"end_time"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
}

// AuditLogFilter narrows audit log queries.
// AuditLogFilter 表示审计日志的查询过滤条件。
type AuditLogFilter struct {
	UserID       *uint      `json:"user_id"`
	Username     string     `json:"username"`
	Action       string     `json:"action"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Page         int        `json:"page"`
	PageSize     int        `json:"page_size"`
}
