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

// Package scheduler runs periodic jobs: scheduled backups and the shutdown
// schedule check. With Redis enabled the jobs go through asynq; otherwise
// they run on in-process tickers.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kissanima/craftd/internal/apps/backup"
	"github.com/kissanima/craftd/internal/apps/power"
	"github.com/kissanima/craftd/internal/config"
	"github.com/kissanima/craftd/internal/logger"
)

// Scheduler owns the background job machinery.
type Scheduler struct {
	backups *backup.Service
	power   *power.Service

	asynqServer    *asynq.Server
	asynqScheduler *asynq.Scheduler

	cancel context.CancelFunc
}

// New builds a scheduler over the backup and power services.
func New(backups *backup.Service, powerSvc *power.Service) *Scheduler {
	return &Scheduler{backups: backups, power: powerSvc}
}

// Start launches the background jobs. It returns once everything is running.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if config.IsRedisEnabled() {
		return s.startAsynq()
	}

	s.startTickers(runCtx)
	return nil
}

func (s *Scheduler) startAsynq() error {
	redisCfg := config.Config.Redis
	opt := asynq.RedisClientOpt{
		Addr:     config.GetRedisAddr(),
		Username: redisCfg.Username,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(backup.TypeScheduledBackup, backup.NewScheduledTaskHandler(s.backups))
	mux.HandleFunc(power.TypeShutdownCheck, power.NewShutdownCheckHandler(s.power))

	s.asynqServer = asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
	})
	if err := s.asynqServer.Start(mux); err != nil {
		return fmt.Errorf("scheduler: start asynq server: %w", err)
	}

	s.asynqScheduler = asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.Local,
	})

	backupCfg := config.GetBackupConfig()
	if backupCfg.AutoBackup {
		spec := fmt.Sprintf("@every %s", backupInterval(backupCfg))
		if _, err := s.asynqScheduler.Register(spec, backup.NewScheduledTask()); err != nil {
			return fmt.Errorf("scheduler: register backup task: %w", err)
		}
	}
	if _, err := s.asynqScheduler.Register("@every 30s", power.NewShutdownCheckTask()); err != nil {
		return fmt.Errorf("scheduler: register shutdown check: %w", err)
	}

	if err := s.asynqScheduler.Start(); err != nil {
		return fmt.Errorf("scheduler: start asynq scheduler: %w", err)
	}

	logger.InfoF(context.Background(), "[Scheduler] running on asynq, redis=%s", opt.Addr)
	return nil
}

func (s *Scheduler) startTickers(ctx context.Context) {
	backupCfg := config.GetBackupConfig()
	if backupCfg.AutoBackup {
		interval := backupInterval(backupCfg)
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					backup.RunScheduled(ctx, s.backups)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go s.power.Run(ctx)
	logger.InfoF(ctx, "[Scheduler] running on in-process tickers")
}

// Stop shuts the background jobs down.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.asynqScheduler != nil {
		s.asynqScheduler.Shutdown()
	}
	if s.asynqServer != nil {
		s.asynqServer.Shutdown()
	}
}

func backupInterval(cfg config.BackupConfig) time.Duration {
	interval := cfg.Interval()
	if interval < time.Minute {
		interval = 6 * time.Hour
	}
	return interval
}
