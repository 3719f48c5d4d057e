/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
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

/*
Package metrics provides Prometheus-compatible metrics for TerraStore.

METRIC CATEGORIES:
==================
- Terrain: points written/read, range queries, cache hits/misses/size
- Worker pool: workers, pending tasks, completed tasks

PROMETHEUS ENDPOINT:
====================
Metrics are exposed at /metrics in Prometheus text format.

EXAMPLE METRICS:
================

	terrastore_points_written_total 12345
	terrastore_cache_hits_total 9876
	terrastore_cache_resident_cells 500
	terrastore_pool_workers 8
	terrastore_pool_pending_tasks 12
*/
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"terrastore/internal/logging"
)

// Metrics holds all TerraStore counters. Gauges that mirror live
// component state (cache size, worker count) are sampled through
// registered probe functions at scrape time.
type Metrics struct {
	// Terrain metrics
	PointsWritten atomic.Uint64
	PointsRead    atomic.Uint64
	RangeQueries  atomic.Uint64

	// Lookup latency (in microseconds)
	LookupLatencySum   atomic.Uint64
	LookupLatencyCount atomic.Uint64

	// probes sampled at scrape time
	cacheProbe atomic.Pointer[CacheProbe]
	poolProbe  atomic.Pointer[PoolProbe]
}

// CacheProbe samples grid cache state.
type CacheProbe func() (hits, misses int64, resident, capacity int)

// PoolProbe samples worker pool state.
type PoolProbe func() (workers, pending int, completed int64)

// Global metrics instance
var globalMetrics = &Metrics{}

// Get returns the global metrics instance.
func Get() *Metrics {
	return globalMetrics
}

// RecordLookup records a point lookup.
func (m *Metrics) RecordLookup(latency time.Duration) {
	m.PointsRead.Add(1)
	m.LookupLatencySum.Add(uint64(latency.Microseconds()))
	m.LookupLatencyCount.Add(1)
}

// AverageLookupLatency returns the average lookup latency in microseconds.
func (m *Metrics) AverageLookupLatency() float64 {
	count := m.LookupLatencyCount.Load()
	if count == 0 {
		return 0
	}
	return float64(m.LookupLatencySum.Load()) / float64(count)
}

// SetCacheProbe registers the grid cache sampler.
func (m *Metrics) SetCacheProbe(probe CacheProbe) {
	m.cacheProbe.Store(&probe)
}

// SetPoolProbe registers the worker pool sampler.
func (m *Metrics) SetPoolProbe(probe PoolProbe) {
	m.poolProbe.Store(&probe)
}

// Config holds the metrics server configuration.
type Config struct {
	// Addr is the listen address (e.g., ":9090").
	Addr string

	// Enabled controls whether the endpoint is served.
	Enabled bool
}

// Server provides an HTTP server for Prometheus metrics.
type Server struct {
	config Config
	server *http.Server
	logger *logging.Logger
}

// NewServer creates a new metrics server.
func NewServer(cfg Config) *Server {
	return &Server{
		config: cfg,
		logger: logging.NewLogger("metrics"),
	}
}

// Start starts the metrics HTTP server.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.server = &http.Server{
		Addr:    s.config.Addr,
		Handler: mux,
	}

	go func() {
		s.logger.Info("Starting metrics server", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping metrics server")
	return s.server.Shutdown(ctx)
}

// handleMetrics handles the /metrics endpoint in Prometheus format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := Get()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Terrain metrics
	fmt.Fprintf(w, "# HELP terrastore_points_written_total Terrain points written\n")
	fmt.Fprintf(w, "# TYPE terrastore_points_written_total counter\n")
	fmt.Fprintf(w, "terrastore_points_written_total %d\n", m.PointsWritten.Load())

	fmt.Fprintf(w, "# HELP terrastore_points_read_total Terrain point lookups\n")
	fmt.Fprintf(w, "# TYPE terrastore_points_read_total counter\n")
	fmt.Fprintf(w, "terrastore_points_read_total %d\n", m.PointsRead.Load())

	fmt.Fprintf(w, "# HELP terrastore_range_queries_total Rectangular range queries\n")
	fmt.Fprintf(w, "# TYPE terrastore_range_queries_total counter\n")
	fmt.Fprintf(w, "terrastore_range_queries_total %d\n", m.RangeQueries.Load())

	fmt.Fprintf(w, "# HELP terrastore_lookup_latency_avg_microseconds Average lookup latency\n")
	fmt.Fprintf(w, "# TYPE terrastore_lookup_latency_avg_microseconds gauge\n")
	fmt.Fprintf(w, "terrastore_lookup_latency_avg_microseconds %.2f\n", m.AverageLookupLatency())

	// Cache metrics
	if probe := m.cacheProbe.Load(); probe != nil {
		hits, misses, resident, capacity := (*probe)()

		fmt.Fprintf(w, "# HELP terrastore_cache_hits_total Grid cache hits\n")
		fmt.Fprintf(w, "# TYPE terrastore_cache_hits_total counter\n")
		fmt.Fprintf(w, "terrastore_cache_hits_total %d\n", hits)

		fmt.Fprintf(w, "# HELP terrastore_cache_misses_total Grid cache misses\n")
		fmt.Fprintf(w, "# TYPE terrastore_cache_misses_total counter\n")
		fmt.Fprintf(w, "terrastore_cache_misses_total %d\n", misses)

		fmt.Fprintf(w, "# HELP terrastore_cache_resident_cells Cells currently cached\n")
		fmt.Fprintf(w, "# TYPE terrastore_cache_resident_cells gauge\n")
		fmt.Fprintf(w, "terrastore_cache_resident_cells %d\n", resident)

		fmt.Fprintf(w, "# HELP terrastore_cache_capacity_cells Configured cache capacity\n")
		fmt.Fprintf(w, "# TYPE terrastore_cache_capacity_cells gauge\n")
		fmt.Fprintf(w, "terrastore_cache_capacity_cells %d\n", capacity)
	}

	// Worker pool metrics
	if probe := m.poolProbe.Load(); probe != nil {
		workers, pending, completed := (*probe)()

		fmt.Fprintf(w, "# HELP terrastore_pool_workers Current worker count\n")
		fmt.Fprintf(w, "# TYPE terrastore_pool_workers gauge\n")
		fmt.Fprintf(w, "terrastore_pool_workers %d\n", workers)

		fmt.Fprintf(w, "# HELP terrastore_pool_pending_tasks Queued tasks\n")
		fmt.Fprintf(w, "# TYPE terrastore_pool_pending_tasks gauge\n")
		fmt.Fprintf(w, "terrastore_pool_pending_tasks %d\n", pending)

		fmt.Fprintf(w, "# HELP terrastore_pool_completed_tasks_total Completed tasks\n")
		fmt.Fprintf(w, "# TYPE terrastore_pool_completed_tasks_total counter\n")
		fmt.Fprintf(w, "terrastore_pool_completed_tasks_total %d\n", completed)
	}
}
