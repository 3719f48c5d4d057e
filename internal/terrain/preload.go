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

package terrain

import (
	"golang.org/x/sync/errgroup"
)

// preloadConcurrency bounds the number of cell scans in flight during
// a bulk preload.
const preloadConcurrency = 8

// PreloadGrids force-loads a set of cells into the cache, scanning up
// to preloadConcurrency cells concurrently. Every cell is attempted
// even after a scan fails; the first scan error is returned, and cells
// that loaded stay resident.
func (e *Engine) PreloadGrids(gridIDs []string) error {
	var g errgroup.Group
	g.SetLimit(preloadConcurrency)

	for _, gridID := range gridIDs {
		g.Go(func() error {
			return e.PreloadGrid(gridID)
		})
	}
	return g.Wait()
}
