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
Package main is the interactive operator shell for TerraStore.

Shell Overview:
===============

terrastore-shell is a REPL for inspecting and manipulating a terrain
database in place. It opens the store directly (no server involved),
builds a terrain engine from the loaded configuration and executes one
command per line.

Command Types:
==============

 1. Data commands:
    - PUT <lon> <lat> <value>             : Store one sample
    - GET <lon> <lat>                     : Look one sample up
    - DEL <lon> <lat>                     : Delete one sample
    - RANGE <minLon> <minLat> <maxLon> <maxLat> : Rectangle query

 2. Grid and cache commands:
    - GRID <lon> <lat>   : Show the cell id for a coordinate
    - PRELOAD <cellID>   : Force-load a cell into the cache
    - EVICT <cellID>     : Drop a cell from the cache
    - CACHE              : Show cache statistics
    - CLEARCACHE         : Drop every cached cell

 3. Store commands:
    - STATS              : Dump engine statistics
    - COMPACT            : Compact the whole keyspace

 4. Shell commands:
    - HELP, EXIT, QUIT

Usage Examples:
===============

	terrastore-shell -data /var/lib/terrastore

	terrastore> PUT 116.405285 39.904989 43.5
	OK
	terrastore> GET 116.405285 39.904989
	43.5
	terrastore> RANGE 116.40 39.90 116.41 39.91
	(116.4052850, 39.9049890) = 43.5
	1 point(s)
*/
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"terrastore/internal/config"
	"terrastore/internal/errors"
	"terrastore/internal/logging"
	"terrastore/internal/store"
	"terrastore/internal/terrain"
)

// shellCommands contains all completable commands for tab completion.
var shellCommands = []string{
	"PUT", "GET", "DEL", "RANGE",
	"GRID", "PRELOAD", "EVICT", "CACHE", "CLEARCACHE",
	"STATS", "COMPACT",
	"HELP", "EXIT", "QUIT",
}

// getHistoryFilePath returns the path to the history file.
func getHistoryFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".terrastore_history")
}

// createCompleter creates a readline completer for tab completion.
func createCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommands))
	for _, cmd := range shellCommands {
		items = append(items, readline.PcItem(cmd))
	}
	return readline.NewPrefixCompleter(items...)
}

func main() {
	dataDir := flag.String("data", "", "terrain database directory (overrides config)")
	configFile := flag.String("config", "", "configuration file path")
	flag.Parse()

	// Quiet the component logs; the shell prints its own output.
	logging.SetGlobalLevel(logging.WARN)

	mgr := config.Global()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "terrastore-shell: %v\n", err)
			os.Exit(1)
		}
		mgr.LoadFromEnv()
	} else if err := mgr.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "terrastore-shell: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get()
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "terrastore-shell: %v\n", err)
		os.Exit(1)
	}

	st := store.Global()
	if err := st.Initialize(cfg.DataDir, nil); err != nil {
		fmt.Fprintf(os.Stderr, "terrastore-shell: %s\n", errors.FormatError(err))
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
		fmt.Fprintf(os.Stderr, "terrastore-shell: %s\n", errors.FormatError(err))
		os.Exit(1)
	}
	defer engine.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "terrastore> ",
		HistoryFile:       getHistoryFilePath(),
		AutoComplete:      createCompleter(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "terrastore-shell: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("TerraStore shell, database at %s\n", cfg.DataDir)
	fmt.Printf("Bounds lon [%g, %g], lat [%g, %g], cell %g deg. Type HELP for commands.\n",
		cfg.MinLon, cfg.MaxLon, cfg.MinLat, cfg.MaxLat, cfg.CellSize)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if done := dispatch(engine, st, line); done {
			break
		}
	}
}

// dispatch executes one shell command. Returns true to exit the loop.
func dispatch(engine *terrain.Engine, st *store.Store, line string) bool {
	fields := strings.Fields(line)
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case "EXIT", "QUIT":
		return true

	case "HELP":
		printHelp()

	case "PUT":
		if len(args) < 3 {
			fmt.Println("usage: PUT <lon> <lat> <value>")
			return false
		}
		lon, lat, ok := parseCoords(args[0], args[1])
		if !ok {
			return false
		}
		value := strings.Join(args[2:], " ")
		if err := engine.Put(lon, lat, value, false); err != nil {
			fmt.Println(errors.FormatError(err))
			return false
		}
		fmt.Println("OK")

	case "GET":
		if len(args) != 2 {
			fmt.Println("usage: GET <lon> <lat>")
			return false
		}
		lon, lat, ok := parseCoords(args[0], args[1])
		if !ok {
			return false
		}
		value, found, err := engine.Get(lon, lat)
		if err != nil {
			fmt.Println(errors.FormatError(err))
			return false
		}
		if !found {
			fmt.Println("(absent)")
			return false
		}
		fmt.Println(value)

	case "DEL":
		if len(args) != 2 {
			fmt.Println("usage: DEL <lon> <lat>")
			return false
		}
		lon, lat, ok := parseCoords(args[0], args[1])
		if !ok {
			return false
		}
		if err := engine.Delete(lon, lat, false); err != nil {
			fmt.Println(errors.FormatError(err))
			return false
		}
		fmt.Println("OK")

	case "RANGE":
		if len(args) != 4 {
			fmt.Println("usage: RANGE <minLon> <minLat> <maxLon> <maxLat>")
			return false
		}
		minLon, minLat, ok := parseCoords(args[0], args[1])
		if !ok {
			return false
		}
		maxLon, maxLat, ok := parseCoords(args[2], args[3])
		if !ok {
			return false
		}
		count := 0
		err := engine.RangeQuery(minLon, minLat, maxLon, maxLat, func(lon, lat float64, value string) {
			fmt.Printf("(%.7f, %.7f) = %s\n", lon, lat, value)
			count++
		})
		if err != nil {
			fmt.Println(errors.FormatError(err))
			return false
		}
		fmt.Printf("%d point(s)\n", count)

	case "GRID":
		if len(args) != 2 {
			fmt.Println("usage: GRID <lon> <lat>")
			return false
		}
		lon, lat, ok := parseCoords(args[0], args[1])
		if !ok {
			return false
		}
		fmt.Println(engine.ComputeGridID(lon, lat))

	case "PRELOAD":
		if len(args) != 1 {
			fmt.Println("usage: PRELOAD <cellID>")
			return false
		}
		if err := engine.PreloadGrid(args[0]); err != nil {
			fmt.Println(errors.FormatError(err))
			return false
		}
		fmt.Println("OK")

	case "EVICT":
		if len(args) != 1 {
			fmt.Println("usage: EVICT <cellID>")
			return false
		}
		engine.EvictGridFromCache(args[0])
		fmt.Println("OK")

	case "CACHE":
		s := engine.CacheStats()
		fmt.Printf("cells: %d/%d  hits: %d  misses: %d  hit rate: %.1f%%\n",
			s.Entries, s.Capacity, s.Hits, s.Misses, s.HitRate*100)

	case "CLEARCACHE":
		engine.ClearCache()
		fmt.Println("OK")

	case "STATS":
		stats, err := st.Stats()
		if err != nil {
			fmt.Println(errors.FormatError(err))
			return false
		}
		fmt.Println(stats)
		fmt.Printf("points written this session: %d\n", engine.PointsWritten())

	case "COMPACT":
		if err := st.CompactRange("", ""); err != nil {
			fmt.Println(errors.FormatError(err))
			return false
		}
		fmt.Println("OK")

	default:
		fmt.Printf("unknown command: %s (type HELP)\n", cmd)
	}
	return false
}

// parseCoords parses a lon/lat pair, reporting a shell-style error.
func parseCoords(lonStr, latStr string) (float64, float64, bool) {
	lon, err1 := strconv.ParseFloat(lonStr, 64)
	lat, err2 := strconv.ParseFloat(latStr, 64)
	if err1 != nil || err2 != nil {
		fmt.Println("coordinates must be decimal degrees")
		return 0, 0, false
	}
	return lon, lat, true
}

func printHelp() {
	fmt.Print(`Data commands:
  PUT <lon> <lat> <value>                      store one sample
  GET <lon> <lat>                              look one sample up
  DEL <lon> <lat>                              delete one sample
  RANGE <minLon> <minLat> <maxLon> <maxLat>    rectangle query

Grid and cache commands:
  GRID <lon> <lat>      show the cell id for a coordinate
  PRELOAD <cellID>      force-load a cell into the cache
  EVICT <cellID>        drop a cell from the cache
  CACHE                 show cache statistics
  CLEARCACHE            drop every cached cell

Store commands:
  STATS                 dump engine statistics
  COMPACT               compact the whole keyspace

Shell commands:
  HELP, EXIT, QUIT
`)
}
