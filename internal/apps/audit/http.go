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

	"github.com/gin-gonic/gin"
)

// RecordFromGin writes an audit entry from an HTTP request, taking the
// client IP and User-Agent from the request. A nil repo is a no-op so
// callers never need to guard.
func RecordFromGin(c *gin.Context, repo *Repository, userID uint, username, action, resourceType, resourceID string, details AuditDetails) error {
	if repo == nil || action == "" {
		return nil
	}

	ua := c.GetHeader("User-Agent")
	if len(ua) > 500 {
		ua = ua[:500]
	}

	var uid *uint
	if userID > 0 {
		uid = &userID
	}

	return repo.CreateAuditLog(c.Request.Context(), &AuditLog{
		UserID:       uid,
		Username:     username,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    c.ClientIP(),
		UserAgent:    ua,
	})
}

// RecordCommand writes a command log entry. A nil repo is a no-op.
func RecordCommand(ctx context.Context, repo *Repository, userID uint, username string, source CommandSource, command string, cmdErr error) error {
	if repo == nil || command == "" {
		return nil
	}

	var uid *uint
	if userID > 0 {
		uid = &userID
	}

	log := &CommandLog{
		UserID:   uid,
		Username: username,
		Source:   source,
		Command:  command,
		Success:  cmdErr == nil,
	}
	if cmdErr != nil {
		log.Error = cmdErr.Error()
	}
	return repo.CreateCommandLog(ctx, log)
}
