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
Package grid implements the deterministic mapping between geographic
coordinates and grid cells for the terrain storage engine.

A Grid divides the configured bounds into uniform square cells of
cell_size degrees. Each cell is identified by a textual tag of the form
G_RRR_CCC, with row and column zero-padded to exactly three digits. Data
point keys extend the cell tag:

	G_RRR_CCC|<lon>|<lat>

with both coordinates rendered in fixed notation with exactly 7
fractional digits. Byte-lexicographic ordering of these keys groups all
points of a cell contiguously, so a cell's complete contents live in the
key range [G_RRR_CCC|, G_RRR_CCC|~). The '~' sentinel (ASCII 0x7E)
sorts strictly after every digit and '.'.

The three-digit id width is a compatibility boundary of the on-disk key
format: grids larger than 1000x1000 cells are rejected at construction.

All functions are pure; the package performs no I/O.
*/
package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"terrastore/internal/errors"
)

// maxCellsPerAxis caps rows and cols so cell ids always fit the
// three-digit G_RRR_CCC format.
const maxCellsPerAxis = 1000

// KeySeparator separates the cell tag from the coordinate fields.
const KeySeparator = "|"

// cellEndSentinel sorts after every key in a cell's range.
const cellEndSentinel = "~"

// Grid maps coordinates within a bounded region to uniform cells.
// A Grid is immutable after construction and safe for concurrent use.
type Grid struct {
	minLon, minLat float64
	maxLon, maxLat float64
	cellSize       float64
	rows, cols     int
}

// New creates a Grid for the given bounds and cell size in degrees.
// It returns a validation error when the bounds are inverted, the cell
// size is not positive, or the derived dimensions exceed 1000 cells on
// either axis.
func New(minLon, minLat, maxLon, maxLat, cellSize float64) (*Grid, error) {
	if minLon >= maxLon {
		return nil, errors.InvalidGrid(fmt.Sprintf("min_lon %g must be less than max_lon %g", minLon, maxLon))
	}
	if minLat >= maxLat {
		return nil, errors.InvalidGrid(fmt.Sprintf("min_lat %g must be less than max_lat %g", minLat, maxLat))
	}
	if cellSize <= 0 {
		return nil, errors.InvalidGrid(fmt.Sprintf("cell_size %g must be positive", cellSize))
	}

	cols := int(math.Ceil((maxLon - minLon) / cellSize))
	rows := int(math.Ceil((maxLat - minLat) / cellSize))
	if rows > maxCellsPerAxis || cols > maxCellsPerAxis {
		return nil, errors.InvalidGrid(fmt.Sprintf("%dx%d cells exceed the %d-per-axis id limit", rows, cols, maxCellsPerAxis))
	}

	return &Grid{
		minLon:   minLon,
		minLat:   minLat,
		maxLon:   maxLon,
		maxLat:   maxLat,
		cellSize: cellSize,
		rows:     rows,
		cols:     cols,
	}, nil
}

// Rows returns the number of cell rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of cell columns.
func (g *Grid) Cols() int { return g.cols }

// Bounds returns the configured region as (minLon, minLat, maxLon, maxLat).
func (g *Grid) Bounds() (float64, float64, float64, float64) {
	return g.minLon, g.minLat, g.maxLon, g.maxLat
}

// CellSize returns the cell edge length in degrees.
func (g *Grid) CellSize() float64 { return g.cellSize }

// Contains reports whether (lon, lat) lies within the closed bounds
// rectangle.
func (g *Grid) Contains(lon, lat float64) bool {
	return lon >= g.minLon && lon <= g.maxLon &&
		lat >= g.minLat && lat <= g.maxLat
}

// colOf converts a longitude to a column index. The coordinate is
// clamped into bounds first, so out-of-bounds input yields an edge cell
// rather than an invalid index; callers that need strict bounds use
// Contains separately.
func (g *Grid) colOf(lon float64) int {
	clamped := math.Max(g.minLon, math.Min(g.maxLon, lon))
	col := int((clamped - g.minLon) / g.cellSize)
	if col >= g.cols {
		col = g.cols - 1
	}
	return col
}

// rowOf converts a latitude to a row index, clamped like colOf.
func (g *Grid) rowOf(lat float64) int {
	clamped := math.Max(g.minLat, math.Min(g.maxLat, lat))
	row := int((clamped - g.minLat) / g.cellSize)
	if row >= g.rows {
		row = g.rows - 1
	}
	return row
}

// CellID returns the cell tag for the given coordinates.
func (g *Grid) CellID(lon, lat float64) string {
	return g.CellIDAt(g.rowOf(lat), g.colOf(lon))
}

// CellIDAt renders the cell tag for an explicit (row, col) pair.
func (g *Grid) CellIDAt(row, col int) string {
	return fmt.Sprintf("G_%03d_%03d", row, col)
}

// Key returns the full storage key for a data point.
func (g *Grid) Key(lon, lat float64) string {
	return g.CellID(lon, lat) + KeySeparator + formatCoord(lon) + KeySeparator + formatCoord(lat)
}

// CellPrefix returns the inclusive lower bound of a cell's key range.
func CellPrefix(cellID string) string {
	return cellID + KeySeparator
}

// CellEnd returns the exclusive upper bound of a cell's key range.
func CellEnd(cellID string) string {
	return cellID + KeySeparator + cellEndSentinel
}

// Coverage returns the clamped rectangle of cells covered by the query
// rectangle, as inclusive (row0, col0, row1, col1). Iteration is
// row-major: for row, then for col.
func (g *Grid) Coverage(minLon, minLat, maxLon, maxLat float64) (row0, col0, row1, col1 int) {
	return g.rowOf(minLat), g.colOf(minLon), g.rowOf(maxLat), g.colOf(maxLon)
}

// ParseKey extracts the coordinates from a storage key. Malformed keys
// yield a parse error; scan paths treat that as "skip this entry".
func ParseKey(key string) (lon, lat float64, err error) {
	parts := strings.SplitN(key, KeySeparator, 3)
	if len(parts) != 3 {
		return 0, 0, errors.MalformedKey(key)
	}
	lon, lonErr := strconv.ParseFloat(parts[1], 64)
	lat, latErr := strconv.ParseFloat(parts[2], 64)
	if lonErr != nil || latErr != nil {
		return 0, 0, errors.MalformedKey(key)
	}
	return lon, lat, nil
}

// formatCoord renders a coordinate with exactly 7 fractional digits in
// fixed notation. The key format depends on this width.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}
