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

// Package logger provides the process-wide structured logger.
//
// Log lines go to stdout and to a rotated file. The logger is wrapped with
// otelzap so records emitted with a context carry the active trace span.
package logger

import (
	"context"
	"os"
	"sync"

	"github.com/kissanima/craftd/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	global   *otelzap.Logger
	initOnce sync.Once
)

// Init builds the global logger from config. Safe to call more than once;
// only the first call takes effect.
func Init() {
	initOnce.Do(func() {
		logCfg := config.Config.Log

		level := zapcore.InfoLevel
		if err := level.UnmarshalText([]byte(logCfg.Level)); err != nil {
			level = zapcore.InfoLevel
		}

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logCfg.File,
			MaxSize:    logCfg.MaxSizeMB,
			MaxBackups: logCfg.MaxBackups,
			MaxAge:     logCfg.MaxAgeDays,
			Compress:   logCfg.Compress,
		})

		core := zapcore.NewTee(
			zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileSink, level),
			zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), level),
		)

		base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
		global = otelzap.New(base, otelzap.WithMinLevel(level))
	})
}

// L returns the global logger, initializing it on first use.
func L() *otelzap.Logger {
	if global == nil {
		Init()
	}
	return global
}

// Sync flushes buffered log entries.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}

// DebugF logs a formatted debug message with trace context.
func DebugF(ctx context.Context, format string, args ...any) {
	L().Sugar().Ctx(ctx).Debugf(format, args...)
}

// InfoF logs a formatted info message with trace context.
func InfoF(ctx context.Context, format string, args ...any) {
	L().Sugar().Ctx(ctx).Infof(format, args...)
}

// WarnF logs a formatted warning with trace context.
func WarnF(ctx context.Context, format string, args ...any) {
	L().Sugar().Ctx(ctx).Warnf(format, args...)
}

// ErrorF logs a formatted error with trace context.
func ErrorF(ctx context.Context, format string, args ...any) {
	L().Sugar().Ctx(ctx).Errorf(format, args...)
}
