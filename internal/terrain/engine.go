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
Package terrain implements the grid-partitioned, cache-fronted terrain
storage engine.

Engine Overview:
================

The engine serves point insertions, point lookups and axis-aligned
rectangular range queries over geolocated elevation samples. It
composes three parts:

  - a Grid that maps (lon, lat) to cell ids and storage keys,
  - a GridCache holding fully materialised cells with LRU eviction,
  - the KV store façade, held by non-owning reference.

The underlying LSM gives ordered seeks but pays a per-seek cost, and
terrain workloads repeat queries in small areas. Partitioning by
uniform cells turns a rectangle query into a bounded set of prefix
scans, and caching whole cells amortises the scan across subsequent
queries in the same cell. The cache key is the cell, not the point:
per-point caching could not serve range queries.

Write Path:
===========

Writes are write-through: the store is updated first and resident
cache cells absorb the write only after the store reports success, so
the cache can never get ahead of disk. Batch writes commit atomically
at the store; the cache-side updates that follow are best-effort.

Read Path:
==========

A lookup in a resident cell is answered from the cell's mapping. On a
cache miss the point is read from the store and the entire cell is
then materialised into the cache, whether or not the point exists:
neighbouring points are likely to be asked for next (warm-on-miss).

Failure Semantics:
==================

Out-of-range coordinates fail writes with a validation error and
read as absent without error. Store errors surface unchanged.
Malformed keys encountered during scans are skipped.
*/
package terrain

import (
	"sync/atomic"

	"terrastore/internal/cache"
	"terrastore/internal/errors"
	"terrastore/internal/grid"
	"terrastore/internal/logging"
	"terrastore/internal/store"
)

// Point is one terrain sample. Value is opaque to the engine.
type Point struct {
	Lon   float64
	Lat   float64
	Value string
}

// Config holds the engine construction parameters. It is immutable
// after construction.
type Config struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64

	// CellSize is the grid cell edge in degrees.
	CellSize float64

	// CacheCapacity is the number of cells held in cache. Zero or
	// negative selects the cache default.
	CacheCapacity int
}

// Engine is the terrain storage engine. It owns its cache exclusively
// and holds a non-owning reference to the store; Close clears the
// cache but never shuts the store down.
type Engine struct {
	store  *store.Store
	grid   *grid.Grid
	cache  *cache.GridCache
	logger *logging.Logger

	pointsWritten atomic.Int64
}

// New creates an Engine over st with the given configuration. Invalid
// grid parameters (inverted bounds, non-positive cell size, more than
// 1000 cells on an axis) fail construction.
func New(st *store.Store, cfg Config) (*Engine, error) {
	g, err := grid.New(cfg.MinLon, cfg.MinLat, cfg.MaxLon, cfg.MaxLat, cfg.CellSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:  st,
		grid:   g,
		cache:  cache.New(cache.Config{Capacity: cfg.CacheCapacity}),
		logger: logging.NewLogger("terrain"),
	}
	e.logger.Info("Engine created",
		"rows", g.Rows(), "cols", g.Cols(), "cell_size", g.CellSize())
	return e, nil
}

// Close releases the engine's cache. The store is left running.
func (e *Engine) Close() {
	e.cache.Clear()
}

// Grid exposes the engine's grid index for operator tooling.
func (e *Engine) Grid() *grid.Grid {
	return e.grid
}

// ComputeGridID returns the cell tag for the given coordinates.
func (e *Engine) ComputeGridID(lon, lat float64) string {
	return e.grid.CellID(lon, lat)
}

// Put stores one terrain sample. Out-of-bounds coordinates are
// rejected with a validation error. The store write happens first; a
// resident cache cell absorbs the write only on success.
func (e *Engine) Put(lon, lat float64, value string, sync bool) error {
	if !e.grid.Contains(lon, lat) {
		return errors.OutOfBounds(lon, lat)
	}

	gridID := e.grid.CellID(lon, lat)
	key := e.grid.Key(lon, lat)

	if err := e.store.Put(key, value, sync); err != nil {
		return err
	}

	if item := e.cache.Get(gridID); item != nil {
		item.Set(key, value)
	}
	e.pointsWritten.Add(1)
	return nil
}

// Get returns the sample at (lon, lat). Out-of-bounds coordinates read
// as absent without error. A cache miss reads the point from the store
// and then materialises the whole cell, present or not, so subsequent
// lookups nearby are cache-local.
func (e *Engine) Get(lon, lat float64) (string, bool, error) {
	if !e.grid.Contains(lon, lat) {
		return "", false, nil
	}

	gridID := e.grid.CellID(lon, lat)
	key := e.grid.Key(lon, lat)

	if item := e.cache.Get(gridID); item != nil {
		v, ok := item.Get(key)
		return v, ok, nil
	}

	value, found, err := e.store.Get(key)
	if err != nil {
		return "", false, err
	}

	// Warm-on-miss is unconditional: neighbouring points are likely.
	if _, err := e.loadCell(gridID); err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Delete removes the sample at (lon, lat). Deleting an absent point is
// idempotent success.
func (e *Engine) Delete(lon, lat float64, sync bool) error {
	if !e.grid.Contains(lon, lat) {
		return errors.OutOfBounds(lon, lat)
	}

	gridID := e.grid.CellID(lon, lat)
	key := e.grid.Key(lon, lat)

	if err := e.store.Delete(key, sync); err != nil {
		return err
	}

	if item := e.cache.Get(gridID); item != nil {
		item.Delete(key)
	}
	return nil
}

// BatchPut stores a set of samples in one atomic store batch. Every
// point is bounds-checked before any write; a single violation aborts
// the whole batch. Resident cells absorb the writes after the commit
// succeeds.
func (e *Engine) BatchPut(points []Point, sync bool) error {
	for _, p := range points {
		if !e.grid.Contains(p.Lon, p.Lat) {
			return errors.OutOfBounds(p.Lon, p.Lat)
		}
	}

	batch := e.store.NewBatch()
	for _, p := range points {
		batch.Put(e.grid.Key(p.Lon, p.Lat), p.Value)
	}
	if err := batch.Commit(sync); err != nil {
		return err
	}

	for _, p := range points {
		if item := e.cache.Get(e.grid.CellID(p.Lon, p.Lat)); item != nil {
			item.Set(e.grid.Key(p.Lon, p.Lat), p.Value)
		}
	}
	e.pointsWritten.Add(int64(len(points)))
	return nil
}

// RangeQuery invokes cb for every stored sample inside the closed
// rectangle. Cells are visited row-major; order within a cell is
// unspecified for cached cells and byte-lexicographic for scanned
// ones. Callers must not assume a global order. The result set is
// identical whether or not the touched cells are cached.
func (e *Engine) RangeQuery(minLon, minLat, maxLon, maxLat float64, cb func(lon, lat float64, value string)) error {
	row0, col0, row1, col1 := e.grid.Coverage(minLon, minLat, maxLon, maxLat)

	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			gridID := e.grid.CellIDAt(row, col)
			if err := e.queryCell(gridID, minLon, minLat, maxLon, maxLat, cb); err != nil {
				return err
			}
		}
	}
	return nil
}

// queryCell emits the matching points of one cell, from the cache when
// the cell is resident and from a store range scan otherwise.
func (e *Engine) queryCell(gridID string, minLon, minLat, maxLon, maxLat float64, cb func(lon, lat float64, value string)) error {
	if item := e.cache.Get(gridID); item != nil {
		// Snapshot under the item lock; user callbacks run outside it.
		type kv struct{ k, v string }
		var pairs []kv
		item.Range(func(k, v string) bool {
			pairs = append(pairs, kv{k, v})
			return true
		})
		for _, p := range pairs {
			lon, lat, err := grid.ParseKey(p.k)
			if err != nil {
				continue
			}
			if lon >= minLon && lon <= maxLon && lat >= minLat && lat <= maxLat {
				cb(lon, lat, p.v)
			}
		}
		return nil
	}

	return e.store.RangeQuery(grid.CellPrefix(gridID), grid.CellEnd(gridID), func(k, v string) error {
		lon, lat, err := grid.ParseKey(k)
		if err != nil {
			return nil
		}
		if lon >= minLon && lon <= maxLon && lat >= minLat && lat <= maxLat {
			cb(lon, lat, v)
		}
		return nil
	})
}

// loadCell materialises one cell from the store and installs it.
func (e *Engine) loadCell(gridID string) (*cache.Item, error) {
	item := cache.NewItem(gridID)
	err := e.store.RangeQuery(grid.CellPrefix(gridID), grid.CellEnd(gridID), func(k, v string) error {
		item.Set(k, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.cache.Put(gridID, item)
	return item, nil
}

// PreloadGrid force-loads one cell into the cache.
func (e *Engine) PreloadGrid(gridID string) error {
	_, err := e.loadCell(gridID)
	return err
}

// EvictGridFromCache drops one cell from the cache.
func (e *Engine) EvictGridFromCache(gridID string) {
	e.cache.Remove(gridID)
}

// ClearCache drops every cached cell.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// CacheSize returns the number of resident cells.
func (e *Engine) CacheSize() int {
	return e.cache.Len()
}

// CacheStats returns the cache's hit/miss statistics.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// PointsWritten returns the number of samples written through this
// engine since construction.
func (e *Engine) PointsWritten() int64 {
	return e.pointsWritten.Load()
}
