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

// Package config loads the craftd configuration from file and environment.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration, populated by Load.
var Config *configModel

// Load reads the configuration file (path argument, CONFIG_PATH env, or
// ./config.yaml in that order), overlays environment variables and applies
// defaults. A missing config file is not an error; defaults still apply.
func Load(path string) error {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	viper.SetConfigFile(path)
	viper.SetEnvPrefix("CRAFTD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("config: read %s failed: %w", path, err)
		}
		log.Printf("[Config] no config file at %s, using defaults\n", path)
	}

	var c configModel
	if err := viper.Unmarshal(&c); err != nil {
		return fmt.Errorf("config: parse failed: %w", err)
	}

	setDefaults(&c)
	Config = &c
	return nil
}

// MustLoad is Load for main() paths where a broken config is fatal.
func MustLoad(path string) {
	if err := Load(path); err != nil {
		log.Fatalf("[Config] %v\n", err)
	}
}

// setDefaults fills zero values with the defaults the daemon ships with.
func setDefaults(c *configModel) {
	if c.App.AppName == "" {
		c.App.AppName = "craftd"
	}
	if c.App.Addr == "" {
		c.App.Addr = ":8321"
	}
	if c.App.APIPrefix == "" {
		c.App.APIPrefix = "/api"
	}
	if c.App.SessionCookieName == "" {
		c.App.SessionCookieName = "craftd_session"
	}
	if c.App.SessionSecret == "" {
		c.App.SessionSecret = "craftd-insecure-dev-secret"
	}
	if c.App.SessionAge == 0 {
		c.App.SessionAge = 86400 * 7
	}

	if c.Auth.DefaultAdminUsername == "" {
		c.Auth.DefaultAdminUsername = "admin"
	}
	if c.Auth.DefaultAdminPassword == "" {
		c.Auth.DefaultAdminPassword = "admin123"
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "./data/craftd.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConn == 0 {
		c.Redis.MinIdleConn = 2
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.File = "./logs/craftd.log"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}

	if c.Server.JavaPath == "" {
		c.Server.JavaPath = "java"
	}
	if c.Server.MaxMemory == "" {
		c.Server.MaxMemory = "2G"
	}
	if c.Server.GracefulTimeoutSecs == 0 {
		c.Server.GracefulTimeoutSecs = 30
	}
	if c.Server.StopCommandWaitSecs == 0 {
		c.Server.StopCommandWaitSecs = 5
	}
	if c.Server.ConsoleBufferLines == 0 {
		c.Server.ConsoleBufferLines = 1000
	}
	if c.Server.MaxRestartAttempts == 0 {
		c.Server.MaxRestartAttempts = 3
	}
	if c.Server.RestartDelaySecs == 0 {
		c.Server.RestartDelaySecs = 10
	}

	if c.Tunnel.GracefulTimeoutSecs == 0 {
		c.Tunnel.GracefulTimeoutSecs = 10
	}

	if c.Backup.Dir == "" {
		c.Backup.Dir = "./backups"
	}
	if c.Backup.IntervalSecs == 0 {
		c.Backup.IntervalSecs = 3600
	}
	if c.Backup.MaxBackupCount == 0 {
		c.Backup.MaxBackupCount = 10
	}
	if c.Backup.FlushWaitSecs == 0 {
		c.Backup.FlushWaitSecs = 2
	}

	if c.Health.IntervalSecs == 0 {
		c.Health.IntervalSecs = 30
	}
	if c.Health.HistorySize == 0 {
		c.Health.HistorySize = 100
	}

	if c.Power.WarningMinutes == 0 {
		c.Power.WarningMinutes = 5
	}

	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "health_samples"
	}
}

// GetDatabaseType returns the configured database type.
func GetDatabaseType() string {
	return Config.Database.Type
}

// GetSQLitePath returns the SQLite file path.
func GetSQLitePath() string {
	return Config.Database.SQLitePath
}

// GetDatabaseLogLevel returns the gorm log level name.
func GetDatabaseLogLevel() string {
	return Config.Database.LogLevel
}

// GetMySQLDSN builds the MySQL connection string.
func GetMySQLDSN() string {
	d := Config.Database
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

// GetPostgresDSN builds the PostgreSQL connection string.
func GetPostgresDSN() string {
	d := Config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.Username, d.Password, d.Database)
}

// GetRedisAddr returns the host:port address of the Redis server.
func GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", Config.Redis.Host, Config.Redis.Port)
}

// IsRedisEnabled reports whether the Redis backend is enabled.
func IsRedisEnabled() bool {
	return Config.Redis.Enabled
}

// GetServerConfig returns the Minecraft server launch configuration.
func GetServerConfig() ServerConfig {
	return Config.Server
}

// GetTunnelConfig returns the tunnel process configuration.
func GetTunnelConfig() TunnelConfig {
	return Config.Tunnel
}

// GetBackupConfig returns the backup configuration.
func GetBackupConfig() BackupConfig {
	return Config.Backup
}

// GetHealthConfig returns the health monitoring configuration.
func GetHealthConfig() HealthConfig {
	return Config.Health
}

// GetPowerConfig returns the auto-shutdown configuration.
func GetPowerConfig() PowerConfig {
	return Config.Power
}

// GetModsConfig returns the mod library configuration.
func GetModsConfig() ModsConfig {
	return Config.Mods
}

// GetClickHouseConfig returns the health sample sink configuration.
func GetClickHouseConfig() ClickHouseConfig {
	return Config.ClickHouse
}

// GracefulTimeout returns the server graceful stop timeout as a duration.
func (s ServerConfig) GracefulTimeout() time.Duration {
	return time.Duration(s.GracefulTimeoutSecs) * time.Second
}

// StopCommandWait returns how long to wait after sending the in-game stop
// command before escalating to signals.
func (s ServerConfig) StopCommandWait() time.Duration {
	return time.Duration(s.StopCommandWaitSecs) * time.Second
}

// RestartDelay returns the delay between crash and auto-restart attempt.
func (s ServerConfig) RestartDelay() time.Duration {
	return time.Duration(s.RestartDelaySecs) * time.Second
}

// GracefulTimeout returns the tunnel graceful stop timeout as a duration.
func (t TunnelConfig) GracefulTimeout() time.Duration {
	return time.Duration(t.GracefulTimeoutSecs) * time.Second
}

// Interval returns the auto-backup interval as a duration.
func (b BackupConfig) Interval() time.Duration {
	return time.Duration(b.IntervalSecs) * time.Second
}

// Interval returns the health check interval as a duration.
func (h HealthConfig) Interval() time.Duration {
	return time.Duration(h.IntervalSecs) * time.Second
}
