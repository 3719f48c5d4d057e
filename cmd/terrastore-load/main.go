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
Package main is the bulk terrain loader for TerraStore.

Loader Overview:
================

terrastore-load ingests a CSV of terrain samples (lon,lat,value per
line) into a terrain database. The input is cut into batches, each
batch is submitted to the worker pool as one atomic BatchPut, and the
loader waits for every batch to land before reporting.

When a metadata DSN is configured, a job record is written to the
platform's relational database after the load completes. When a
metrics port is configured, the Prometheus endpoint is served for the
duration of the load.

Usage:

	terrastore-load -input samples.csv -data /var/lib/terrastore

	terrastore-load -input samples.csv -batch 5000 -sync
*/
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"terrastore/internal/config"
	"terrastore/internal/dbpool"
	"terrastore/internal/errors"
	"terrastore/internal/health"
	"terrastore/internal/logging"
	"terrastore/internal/metrics"
	"terrastore/internal/store"
	"terrastore/internal/terrain"
	"terrastore/internal/workerpool"
)

func main() {
	input := flag.String("input", "", "CSV file of lon,lat,value samples (required)")
	dataDir := flag.String("data", "", "terrain database directory (overrides config)")
	configFile := flag.String("config", "", "configuration file path")
	batchSize := flag.Int("batch", 1000, "samples per atomic batch")
	syncWrites := flag.Bool("sync", false, "flush every batch to stable storage")
	flag.Parse()

	logger := logging.NewLogger("loader")

	if *input == "" {
		fmt.Fprintln(os.Stderr, "terrastore-load: -input is required")
		flag.Usage()
		os.Exit(2)
	}
	if *batchSize <= 0 {
		*batchSize = 1000
	}

	mgr := config.Global()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			logger.Error("Config load failed", "error", err)
			os.Exit(1)
		}
		mgr.LoadFromEnv()
	} else if err := mgr.Load(); err != nil {
		logger.Error("Config load failed", "error", err)
		os.Exit(1)
	}
	cfg := mgr.Get()
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)

	st := store.Global()
	if err := st.Initialize(cfg.DataDir, nil); err != nil {
		logger.Error("Store initialization failed", "error", err)
		os.Exit(1)
	}
	defer st.Shutdown()

	engine, err := terrain.New(st, terrain.Config{
		MinLon:        cfg.MinLon,
		MinLat:        cfg.MinLat,
		MaxLon:        cfg.MaxLon,
		MaxLat:        cfg.MaxLat,
		CellSize:      cfg.CellSize,
		CacheCapacity: cfg.CacheCapacity,
	})
	if err != nil {
		logger.Error("Engine construction failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	pool := workerpool.New(workerpool.Config{
		MinWorkers:  cfg.PoolMinWorkers,
		MaxWorkers:  cfg.PoolMaxWorkers,
		MaxTasks:    cfg.PoolMaxTasks,
		IdleTimeout: time.Duration(cfg.PoolIdleSecs) * time.Second,
		Mode:        workerpool.ParseMode(cfg.PoolMode),
	})
	defer pool.Shutdown()

	if cfg.MetricsPort > 0 {
		m := metrics.Get()
		m.SetCacheProbe(func() (int64, int64, int, int) {
			s := engine.CacheStats()
			return s.Hits, s.Misses, s.Entries, s.Capacity
		})
		m.SetPoolProbe(func() (int, int, int64) {
			s := pool.Stats()
			return s.Workers, s.Pending, s.Completed
		})
		srv := metrics.NewServer(metrics.Config{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Enabled: true,
		})
		if err := srv.Start(); err != nil {
			logger.Warn("Metrics server failed to start", "error", err)
		} else {
			defer srv.Stop()
		}
	}

	if cfg.HealthPort > 0 {
		checker := health.NewChecker("terrastore-load")
		checker.RegisterCheck("store", health.StoreCheck(func() error {
			_, err := st.Stats()
			return err
		}))
		checker.RegisterCheck("pool", health.PoolCheck(func() (bool, string) {
			s := pool.Stats()
			if s.Pending >= cfg.PoolMaxTasks {
				return false, "task queue saturated"
			}
			return true, fmt.Sprintf("%d workers, %d pending", s.Workers, s.Pending)
		}))
		srv := health.NewServer(fmt.Sprintf(":%d", cfg.HealthPort), checker)
		if err := srv.Start(); err != nil {
			logger.Warn("Health server failed to start", "error", err)
		} else {
			defer srv.Stop()
		}
	}

	start := time.Now()
	loaded, failed, err := loadFile(engine, pool, *input, *batchSize, *syncWrites, logger)
	if err != nil {
		logger.Error("Load failed", "error", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	logger.Info("Load complete",
		"loaded", loaded, "failed_batches", failed,
		"duration", elapsed.Round(time.Millisecond).String())

	if cfg.MetadataDSN != "" {
		if err := recordJob(cfg.MetadataDSN, *input, loaded, elapsed); err != nil {
			logger.Warn("Job record not written", "error", err)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// loadFile streams the CSV, submitting one BatchPut task per batch,
// and waits for every batch to resolve.
func loadFile(engine *terrain.Engine, pool *workerpool.Pool, path string, batchSize int, sync bool, logger *logging.Logger) (loaded int, failedBatches int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var futures []*workerpool.Future
	var sizes []int
	batch := make([]terrain.Point, 0, batchSize)
	lineNum := 0
	skipped := 0

	submit := func(points []terrain.Point) error {
		future, err := pool.Submit(workerpool.Normal, func() (interface{}, error) {
			return nil, engine.BatchPut(points, sync)
		})
		if err != nil {
			return err
		}
		futures = append(futures, future)
		sizes = append(sizes, len(points))
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		point, ok := parseLine(line)
		if !ok {
			skipped++
			logger.Warn("Skipping malformed line", "line", lineNum)
			continue
		}

		batch = append(batch, point)
		if len(batch) >= batchSize {
			if err := submit(batch); err != nil {
				return 0, 0, err
			}
			batch = make([]terrain.Point, 0, batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if len(batch) > 0 {
		if err := submit(batch); err != nil {
			return 0, 0, err
		}
	}

	for i, future := range futures {
		if _, err := future.Wait(); err != nil {
			failedBatches++
			logger.Error("Batch failed", "batch", i, "error", errors.FormatError(err))
			continue
		}
		loaded += sizes[i]
		metrics.Get().PointsWritten.Add(uint64(sizes[i]))
	}

	if skipped > 0 {
		logger.Warn("Malformed lines skipped", "count", skipped)
	}
	return loaded, failedBatches, nil
}

// parseLine parses one "lon,lat,value" line.
func parseLine(line string) (terrain.Point, bool) {
	parts := strings.SplitN(line, ",", 3)
	if len(parts) != 3 {
		return terrain.Point{}, false
	}
	lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return terrain.Point{}, false
	}
	return terrain.Point{Lon: lon, Lat: lat, Value: strings.TrimSpace(parts[2])}, true
}

// recordJob writes one load-job row to the platform metadata database.
func recordJob(dsn, input string, loaded int, elapsed time.Duration) error {
	pool, err := dbpool.New(dbpool.DefaultConfig(dsn))
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return pool.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO terrain_load_jobs (input_file, points_loaded, duration_ms, finished_at)
			 VALUES (?, ?, ?, NOW())`,
			input, loaded, elapsed.Milliseconds())
		return err
	})
}
