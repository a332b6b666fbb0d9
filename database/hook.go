/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

const (
	ansiReset     = "\x1b[0m"
	ansiRed       = "\x1b[31m"
	ansiYellow    = "\x1b[33m"
	ansiGreen     = "\x1b[32m"
	ansiBlue      = "\x1b[34m"
	ansiMagenta   = "\x1b[35m"
	ansiCyan      = "\x1b[36m"
	ansiBGGreen   = "\x1b[42;97m"
	ansiBGYellow  = "\x1b[43;97m"
	ansiBGBlue    = "\x1b[44;97m"
	ansiBGMagenta = "\x1b[45;97m"
	ansiBGRed     = "\x1b[41;97m"
)

var bunSqlSilentMode atomic.Bool

// EnableBunSqlSilent mutes the query log hooks, e.g. while migrations run.
func EnableBunSqlSilent(b bool) {
	bunSqlSilentMode.Store(b)
}

func colorWrap(s, code string) string { return code + s + ansiReset }

// QueryHook prints every query colored by operation. The environment variable
// named by envName overrides the configuration: "0" or empty disables, "1"
// prints failures only, "2" prints everything.
type QueryHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

func NewQueryHook(envName string, verbose bool, writer io.Writer) *QueryHook {
	if writer == nil {
		writer = os.Stdout
	}
	return &QueryHook{envName: envName, enabled: true, verbose: verbose, writer: writer}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() {
		return
	}
	enabled, verbose := h.enabled, h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		colorWrap(fmt.Sprintf("%8s", "[BUN]"), ansiCyan),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		" ", formatOperationColor(event),
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s: %s ", typ, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

func formatOperationColor(event *bun.QueryEvent) string {
	switch event.Operation() {
	case "SELECT":
		return colorWrap(event.Query, ansiGreen)
	case "INSERT":
		return colorWrap(event.Query, ansiBlue)
	case "UPDATE":
		return colorWrap(event.Query, ansiYellow)
	case "DELETE":
		return colorWrap(event.Query, ansiMagenta)
	default:
		return colorWrap(event.Query, ansiRed)
	}
}

func formatOperationBackgroundColor(event *bun.QueryEvent) string {
	switch event.Operation() {
	case "SELECT":
		return colorWrap(event.Query, ansiBGGreen)
	case "INSERT":
		return colorWrap(event.Query, ansiBGBlue)
	case "UPDATE":
		return colorWrap(event.Query, ansiBGYellow)
	case "DELETE":
		return colorWrap(event.Query, ansiBGMagenta)
	default:
		return colorWrap(event.Query, ansiBGRed)
	}
}

// SlowQueryHook warns about successful queries slower than slowTime.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(slowTime time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{slowTime: slowTime, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() || event.Err != nil || h.logger == nil {
		return
	}
	if duration := time.Since(event.StartTime); duration > h.slowTime {
		h.logger.Warn("Database slow query detected",
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", formatOperationBackgroundColor(event),
		)
	}
}

// QueryMetricsHook exports query counts, failures and latency per operation.
type QueryMetricsHook struct {
	queries *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var _ bun.QueryHook = (*QueryMetricsHook)(nil)

// NewQueryMetricsHook registers the query collectors on reg, reusing
// collectors that are already registered there.
func NewQueryMetricsHook(reg prometheus.Registerer) (*QueryMetricsHook, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datajpa",
		Subsystem: "db",
		Name:      "queries_total",
		Help:      "Number of executed queries by operation.",
	}, []string{"operation"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datajpa",
		Subsystem: "db",
		Name:      "query_errors_total",
		Help:      "Number of failed queries by operation.",
	}, []string{"operation"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "datajpa",
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Help:      "Query latency by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	var err error
	if queries, err = registerOrReuse(reg, queries); err != nil {
		return nil, err
	}
	if failures, err = registerOrReuse(reg, failures); err != nil {
		return nil, err
	}
	if latency, err = registerOrReuse(reg, latency); err != nil {
		return nil, err
	}
	return &QueryMetricsHook{queries: queries, errors: failures, latency: latency}, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register query metrics: %w", err)
	}
	return c, nil
}

// Queries returns the counter of executed queries for an operation such as "SELECT".
func (h *QueryMetricsHook) Queries(operation string) prometheus.Counter {
	return h.queries.WithLabelValues(strings.ToUpper(operation))
}

func (h *QueryMetricsHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryMetricsHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	op := event.Operation()
	h.queries.WithLabelValues(op).Inc()
	h.latency.WithLabelValues(op).Observe(time.Since(event.StartTime).Seconds())
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.errors.WithLabelValues(op).Inc()
	}
}
