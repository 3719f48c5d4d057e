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
Package dbpool provides the connection pool for the simulation
platform's relational metadata database.

Connection Pool Overview:
=========================

Scenario runs, dataset manifests and job accounting live in a MySQL
database beside the terrain store. The pool manages a bounded set of
reusable connections to it, validating a connection with a ping before
handing it out and rolling transactions back when the caller fails.

Features:
=========

  - Configurable pool size (min/max connections)
  - Connection health checking on acquisition
  - Thread-safe acquisition and release
  - Connect timeout support
  - Idle connection cleanup

Usage Example:
==============

	pool, err := dbpool.New(dbpool.Config{
		DSN:      "sim:sim@tcp(localhost:3306)/platform",
		MinConns: 2,
		MaxConns: 10,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	conn, err := pool.Get(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Put(conn)
*/
package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"terrastore/internal/logging"
)

// Config holds the configuration for a connection pool.
type Config struct {
	// DSN is the MySQL data source name
	// (e.g., "user:pass@tcp(localhost:3306)/platform").
	DSN string

	// MinConns is the number of connections opened when the pool
	// starts. They are not kept open as a floor: idle connections are
	// closed after ConnMaxIdleTime like any other.
	MinConns int

	// MaxConns is the maximum number of connections allowed.
	// Get blocks while all connections are in use.
	MaxConns int

	// ConnMaxIdleTime is how long a connection can be idle before
	// being closed. Set to 0 to disable idle cleanup.
	ConnMaxIdleTime time.Duration

	// ConnectTimeout is the timeout for the initial connectivity check.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MinConns:        2,
		MaxConns:        10,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Pool manages a pool of connections to the metadata database.
type Pool struct {
	config Config
	db     *sql.DB
	logger *logging.Logger
	closed atomic.Bool
}

// New creates a new connection pool with the given configuration and
// verifies connectivity before returning.
func New(config Config) (*Pool, error) {
	if config.DSN == "" {
		return nil, errors.New("dbpool: DSN is required")
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 10
	}
	if config.MinConns < 0 {
		config.MinConns = 0
	}
	if config.MinConns > config.MaxConns {
		config.MinConns = config.MaxConns
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	db, err := sql.Open("mysql", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConns)
	db.SetMaxIdleConns(config.MaxConns)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach metadata database: %w", err)
	}

	p := &Pool{
		config: config,
		db:     db,
		logger: logging.NewLogger("dbpool"),
	}

	// Warm the minimum connections so first callers skip the dial. All
	// are held at once so each one is a distinct connection.
	warm := make([]*sql.Conn, 0, config.MinConns)
	for i := 0; i < config.MinConns; i++ {
		conn, err := db.Conn(ctx)
		if err != nil {
			break
		}
		warm = append(warm, conn)
	}
	for _, conn := range warm {
		conn.Close()
	}

	p.logger.Info("Connection pool ready",
		"max_conns", config.MaxConns, "min_conns", config.MinConns)
	return p, nil
}

// Get acquires a connection from the pool, validating it with a ping.
// A dead connection is discarded and replaced once before giving up.
func (p *Pool) Get(ctx context.Context) (*sql.Conn, error) {
	if p.closed.Load() {
		return nil, errors.New("dbpool: pool is closed")
	}

	for attempt := 0; attempt < 2; attempt++ {
		conn, err := p.db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			continue
		}
		return conn, nil
	}
	return nil, errors.New("dbpool: could not acquire a healthy connection")
}

// Put returns a connection to the pool.
func (p *Pool) Put(conn *sql.Conn) {
	if conn == nil {
		return
	}
	conn.Close()
}

// WithTx runs fn inside a transaction. The transaction is rolled back
// when fn returns an error or panics, and committed otherwise.
func (p *Pool) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if p.closed.Load() {
		return errors.New("dbpool: pool is closed")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Stats holds current pool statistics.
type Stats struct {
	// OpenConnections is the total number of open connections.
	OpenConnections int

	// IdleConnections is the number of idle connections.
	IdleConnections int

	// InUseConnections is the number of connections currently in use.
	InUseConnections int

	// MaxConnections is the maximum allowed connections.
	MaxConnections int
}

// Stats returns the current pool statistics.
func (p *Pool) Stats() Stats {
	s := p.db.Stats()
	return Stats{
		OpenConnections:  s.OpenConnections,
		IdleConnections:  s.Idle,
		InUseConnections: s.InUse,
		MaxConnections:   p.config.MaxConns,
	}
}

// Close closes the pool and all its connections.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}
