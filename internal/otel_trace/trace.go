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

// Package otel_trace wires OpenTelemetry tracing for the daemon.
// Package otel_trace 为守护进程提供 OpenTelemetry 链路追踪。
package otel_trace

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kissanima/craftd/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// Tracer is the tracer used across the daemon. A noop tracer when
	// telemetry is disabled or export setup fails.
	Tracer trace.Tracer

	shutdownFuncs []func(context.Context) error
	enabled       bool
	initOnce      sync.Once
)

// Init initializes OpenTelemetry tracing based on configuration.
// Must be called after config is loaded.
// Init 根据配置初始化链路追踪，必须在配置加载后调用。
func Init() {
	initOnce.Do(func() {
		if !config.Config.Telemetry.Enabled {
			Tracer = noop.NewTracerProvider().Tracer("noop")
			enabled = false
			return
		}

		otel.SetTextMapPropagator(newPropagator())

		tracerProvider, err := newTracerProvider()
		if err != nil {
			log.Printf("[Trace] failed to init trace provider, using noop tracer: %v", err)
			Tracer = noop.NewTracerProvider().Tracer("noop")
			enabled = false
			return
		}

		shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
		otel.SetTracerProvider(tracerProvider)

		Tracer = tracerProvider.Tracer("github.com/kissanima/craftd")
		enabled = true
		log.Println("[Trace] OpenTelemetry tracing initialized")
	})
}

// IsEnabled returns whether tracing is enabled.
func IsEnabled() bool {
	return enabled
}

// Shutdown flushes and stops the trace exporter.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFuncs {
		_ = fn(ctx)
	}
	shutdownFuncs = nil
}

// Start begins a span on the daemon tracer. Returns a noop span when the
// package has not been initialized.
// Start 在守护进程的 tracer 上开启一个 span，未初始化时返回 noop span。
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if Tracer == nil {
		return ctx, noop.Span{}
	}
	return Tracer.Start(ctx, name, opts...)
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newTracerProvider() (*sdktrace.TracerProvider, error) {
	telCfg := config.Config.Telemetry

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(telCfg.Endpoint)}
	if telCfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.Config.App.AppName),
	))
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
