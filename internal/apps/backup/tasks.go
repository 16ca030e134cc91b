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

	"github.com/hibiken/asynq"

	"github.com/kissanima/craftd/internal/logger"
)

// TypeScheduledBackup is the asynq task type for periodic backups.
const TypeScheduledBackup = "backup:scheduled"

// NewScheduledTask builds the periodic backup task. It carries no payload.
func NewScheduledTask() *asynq.Task {
	return asynq.NewTask(TypeScheduledBackup, nil)
}

// NewScheduledTaskHandler returns the asynq handler that runs a scheduled
// backup. An already-running backup is not an error; the next tick covers it.
func NewScheduledTaskHandler(service *Service) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		_, err := service.Create(ctx, TriggerScheduled, "")
		if errors.Is(err, ErrBackupInProgress) {
			logger.WarnF(ctx, "[Backup] scheduled backup skipped, one is already running")
			return nil
		}
		return err
	}
}

// RunScheduled runs one scheduled backup directly, used by the ticker
// fallback when Redis is disabled.
func RunScheduled(ctx context.Context, service *Service) {
	_, err := service.Create(ctx, TriggerScheduled, "")
	if err != nil && !errors.Is(err, ErrBackupInProgress) {
		logger.ErrorF(ctx, "[Backup] scheduled backup failed: %v", err)
	}
}
