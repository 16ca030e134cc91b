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

package config

type configModel struct {
	App        AppConfig        `mapstructure:"app"`
	Auth       authConfig       `mapstructure:"auth"`
	OAuth      oauthConfig      `mapstructure:"oauth"`
	Database   databaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        logConfig        `mapstructure:"log"`
	Telemetry  telemetryConfig  `mapstructure:"telemetry"`
	Server     ServerConfig     `mapstructure:"server"`
	Tunnel     TunnelConfig     `mapstructure:"tunnel"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Health     HealthConfig     `mapstructure:"health"`
	Power      PowerConfig      `mapstructure:"power"`
	Mods       ModsConfig       `mapstructure:"mods"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
}

// AppConfig holds base HTTP application settings.
type AppConfig struct {
	AppName           string `mapstructure:"app_name"`
	Env               string `mapstructure:"env"`
	Addr              string `mapstructure:"addr"`
	APIPrefix         string `mapstructure:"api_prefix"`
	SessionCookieName string `mapstructure:"session_cookie_name"`
	SessionSecret     string `mapstructure:"session_secret"`
	SessionDomain     string `mapstructure:"session_domain"`
	SessionAge        int    `mapstructure:"session_age"`
	SessionHttpOnly   bool   `mapstructure:"session_http_only"`
	SessionSecure     bool   `mapstructure:"session_secure"`
}

// authConfig holds local authentication settings.
type authConfig struct {
	DefaultAdminUsername string `mapstructure:"default_admin_username"`
	DefaultAdminPassword string `mapstructure:"default_admin_password"`
	BcryptCost           int    `mapstructure:"bcrypt_cost"`
}

// OAuthProviderConfig holds settings for a single OAuth provider.
type OAuthProviderConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type oauthConfig struct {
	GitHub OAuthProviderConfig `mapstructure:"github"`
	Google OAuthProviderConfig `mapstructure:"google"`
}

// databaseConfig selects and configures the backing database.
type databaseConfig struct {
	Type            string `mapstructure:"type"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// RedisConfig configures the optional Redis backend used for sessions and
// the asynq task queue. When disabled, sessions fall back to cookies and
// scheduled jobs run on in-process tickers.
type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	PoolSize    int    `mapstructure:"pool_size"`
	MinIdleConn int    `mapstructure:"min_idle_conn"`
}

// logConfig configures the zap logger and file rotation.
type logConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// telemetryConfig configures OpenTelemetry trace export.
type telemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// ServerConfig holds everything needed to launch the Minecraft server child.
type ServerConfig struct {
	JavaPath            string   `mapstructure:"java_path"`
	JarPath             string   `mapstructure:"jar_path"`
	MinMemory           string   `mapstructure:"min_memory"`
	MaxMemory           string   `mapstructure:"max_memory"`
	JVMArgs             []string `mapstructure:"jvm_args"`
	GracefulTimeoutSecs int      `mapstructure:"graceful_timeout_seconds"`
	StopCommandWaitSecs int      `mapstructure:"stop_command_wait_seconds"`
	ConsoleBufferLines  int      `mapstructure:"console_buffer_lines"`
	AutoRestart         bool     `mapstructure:"auto_restart"`
	MaxRestartAttempts  int      `mapstructure:"max_restart_attempts"`
	RestartDelaySecs    int      `mapstructure:"restart_delay_seconds"`
}

// TunnelConfig holds the optional playit.gg tunnel process settings.
type TunnelConfig struct {
	BinaryPath          string `mapstructure:"binary_path"`
	AutoStart           bool   `mapstructure:"auto_start"`
	GracefulTimeoutSecs int    `mapstructure:"graceful_timeout_seconds"`
}

// BackupConfig configures world backups.
type BackupConfig struct {
	Dir             string `mapstructure:"dir"`
	AutoBackup      bool   `mapstructure:"auto_backup"`
	IntervalSecs    int    `mapstructure:"interval_seconds"`
	MaxBackupCount  int    `mapstructure:"max_backup_count"`
	FlushBeforeZip  bool   `mapstructure:"flush_before_zip"`
	FlushWaitSecs   int    `mapstructure:"flush_wait_seconds"`
}

// HealthConfig configures server health monitoring.
type HealthConfig struct {
	IntervalSecs int `mapstructure:"interval_seconds"`
	HistorySize  int `mapstructure:"history_size"`
}

// PowerConfig configures the scheduled automatic shutdown and the
// sleep/wake recovery.
type PowerConfig struct {
	AutoShutdownEnabled  bool `mapstructure:"auto_shutdown_enabled"`
	ShutdownHour         int  `mapstructure:"shutdown_hour"`
	ShutdownMinute       int  `mapstructure:"shutdown_minute"`
	WarningMinutes       int  `mapstructure:"warning_minutes"`
	WakeDetectionEnabled bool `mapstructure:"wake_detection_enabled"`
	AutoRestartAfterWake bool `mapstructure:"auto_restart_after_wake"`
}

// ModsConfig configures the mod library directory. An empty dir falls back
// to the mods folder next to the server jar.
type ModsConfig struct {
	Dir string `mapstructure:"dir"`
}

// ClickHouseConfig configures the optional health sample sink.
type ClickHouseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}
