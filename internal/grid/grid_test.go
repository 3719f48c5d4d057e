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

package grid

import (
	"strings"
	"testing"

	"terrastore/internal/errors"
)

// newTestGrid builds the reference region used across the test suite:
// lon [116.0, 117.5], lat [39.0, 41.0], 0.01-degree cells.
func newTestGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := New(116.0, 39.0, 117.5, 41.0, 0.01)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name                           string
		minLon, minLat, maxLon, maxLat float64
		cellSize                       float64
	}{
		{"inverted lon", 117.5, 39.0, 116.0, 41.0, 0.01},
		{"inverted lat", 116.0, 41.0, 117.5, 39.0, 0.01},
		{"equal lon", 116.0, 39.0, 116.0, 41.0, 0.01},
		{"zero cell size", 116.0, 39.0, 117.5, 41.0, 0},
		{"negative cell size", 116.0, 39.0, 117.5, 41.0, -0.5},
		{"too many cells", 116.0, 39.0, 117.5, 41.0, 0.001},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.minLon, tc.minLat, tc.maxLon, tc.maxLat, tc.cellSize)
			if err == nil {
				t.Fatal("Expected construction error")
			}
			if !errors.IsValidationError(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestGridDimensions(t *testing.T) {
	g := newTestGrid(t)

	if g.Cols() != 150 {
		t.Errorf("Expected 150 cols, got %d", g.Cols())
	}
	if g.Rows() != 200 {
		t.Errorf("Expected 200 rows, got %d", g.Rows())
	}
}

func TestCellID(t *testing.T) {
	g := newTestGrid(t)

	cases := []struct {
		lon, lat float64
		want     string
	}{
		{116.405, 39.905, "G_090_040"},
		{116.0, 39.0, "G_000_000"},
		{117.499, 40.999, "G_199_149"},
	}

	for _, tc := range cases {
		if got := g.CellID(tc.lon, tc.lat); got != tc.want {
			t.Errorf("CellID(%g, %g) = %s, want %s", tc.lon, tc.lat, got, tc.want)
		}
	}
}

func TestCellIDClampsAtBounds(t *testing.T) {
	g := newTestGrid(t)

	// The upper corner must clamp into the last valid cell, not spill
	// past the id width.
	if got := g.CellID(117.5, 41.0); got != "G_199_149" {
		t.Errorf("CellID at max corner = %s, want G_199_149", got)
	}
	// Out-of-bounds input clamps to an edge cell.
	if got := g.CellID(200.0, 50.0); got != "G_199_149" {
		t.Errorf("CellID far out of bounds = %s, want G_199_149", got)
	}
	if got := g.CellID(100.0, 30.0); got != "G_000_000" {
		t.Errorf("CellID far below bounds = %s, want G_000_000", got)
	}
}

func TestCellIDDeterministic(t *testing.T) {
	g := newTestGrid(t)

	for i := 0; i < 10; i++ {
		if got := g.CellID(116.789, 40.123); got != g.CellID(116.789, 40.123) {
			t.Fatalf("CellID is not deterministic: %s", got)
		}
	}
}

func TestKeyFormat(t *testing.T) {
	g := newTestGrid(t)

	key := g.Key(116.405285, 39.904989)
	want := "G_090_040|116.4052850|39.9049890"
	if key != want {
		t.Errorf("Key = %s, want %s", key, want)
	}
}

func TestKeyWithinCellRange(t *testing.T) {
	g := newTestGrid(t)

	points := []struct{ lon, lat float64 }{
		{116.405285, 39.904989},
		{116.0, 39.0},
		{117.5, 41.0},
		{116.4099999, 39.9000001},
	}

	for _, p := range points {
		cellID := g.CellID(p.lon, p.lat)
		key := g.Key(p.lon, p.lat)
		prefix := CellPrefix(cellID)
		end := CellEnd(cellID)

		if !(key >= prefix && key < end) {
			t.Errorf("Key %s not inside [%s, %s)", key, prefix, end)
		}
		if !strings.HasPrefix(key, prefix) {
			t.Errorf("Key %s does not start with prefix %s", key, prefix)
		}
	}
}

func TestParseKey(t *testing.T) {
	g := newTestGrid(t)

	key := g.Key(116.405285, 39.904989)
	lon, lat, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if lon != 116.405285 || lat != 39.904989 {
		t.Errorf("ParseKey = (%v, %v), want (116.405285, 39.904989)", lon, lat)
	}
}

func TestParseKeyMalformed(t *testing.T) {
	cases := []string{
		"",
		"G_001_002",
		"G_001_002|",
		"G_001_002|abc|39.9",
		"G_001_002|116.4|xyz",
		"no-separators-at-all",
	}

	for _, key := range cases {
		if _, _, err := ParseKey(key); err == nil {
			t.Errorf("ParseKey(%q) should fail", key)
		} else if !errors.IsParseError(err) {
			t.Errorf("ParseKey(%q) should yield a parse error, got %v", key, err)
		}
	}
}

func TestContains(t *testing.T) {
	g := newTestGrid(t)

	inside := []struct{ lon, lat float64 }{
		{116.405, 39.905},
		{116.0, 39.0}, // closed rectangle includes the edges
		{117.5, 41.0},
	}
	outside := []struct{ lon, lat float64 }{
		{115.9, 38.9},
		{117.6, 41.1},
		{116.5, 38.0},
	}

	for _, p := range inside {
		if !g.Contains(p.lon, p.lat) {
			t.Errorf("Contains(%g, %g) = false, want true", p.lon, p.lat)
		}
	}
	for _, p := range outside {
		if g.Contains(p.lon, p.lat) {
			t.Errorf("Contains(%g, %g) = true, want false", p.lon, p.lat)
		}
	}
}

func TestCoverage(t *testing.T) {
	g := newTestGrid(t)

	row0, col0, row1, col1 := g.Coverage(116.401, 39.900, 116.406, 39.905)
	if row0 != 90 || row1 != 90 {
		t.Errorf("Coverage rows = [%d, %d], want [90, 90]", row0, row1)
	}
	if col0 != 40 || col1 != 40 {
		t.Errorf("Coverage cols = [%d, %d], want [40, 40]", col0, col1)
	}

	// A rectangle spilling past the bounds clamps to the edge cells.
	row0, col0, row1, col1 = g.Coverage(100.0, 30.0, 200.0, 50.0)
	if row0 != 0 || col0 != 0 || row1 != g.Rows()-1 || col1 != g.Cols()-1 {
		t.Errorf("Clamped coverage = (%d,%d)-(%d,%d), want (0,0)-(%d,%d)",
			row0, col0, row1, col1, g.Rows()-1, g.Cols()-1)
	}
}

func TestCellEndSortsAfterKeys(t *testing.T) {
	g := newTestGrid(t)

	cellID := g.CellID(116.405, 39.905)
	end := CellEnd(cellID)

	// '~' must sort after any digit or '.' that can appear in a key.
	for _, lon := range []float64{116.40, 116.405, 116.4099999} {
		key := g.Key(lon, 39.905)
		if key >= end {
			t.Errorf("Key %s sorts at or after sentinel %s", key, end)
		}
	}
}
