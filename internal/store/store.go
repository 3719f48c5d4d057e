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
Package store provides the typed façade over the embedded LSM engine
used by TerraStore.

Store Overview:
===============

The façade wraps a goleveldb database behind a process-wide singleton
with an explicit lifecycle: Initialize opens the database exactly once,
Shutdown closes it exactly once, and re-initializing a live store is an
error. All higher layers (the terrain engine, the operator shell, the
bulk loader) hold a non-owning reference obtained from Global().

Operations:
===========

  - Point ops: Put, Get, Delete, Exists
  - Atomic multi-op batches via NewBatch / Batch.Commit
  - Snapshot-consistent forward iteration via NewIterator
  - Byte-lexicographic range and prefix scans with a callback
  - CompactRange hints and engine statistics

Failure Semantics:
==================

A missing key is a normal negative result, never an error: Get and
Exists report absence through their boolean, and Delete of a missing
key is idempotent success. Every other engine failure surfaces as a
structured storage error wrapping the goleveldb cause.
*/
package store

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"terrastore/internal/errors"
	"terrastore/internal/logging"
)

// Options configures the underlying goleveldb database.
type Options struct {
	// BlockCacheMiB is the block cache capacity in MiB.
	BlockCacheMiB int

	// WriteBufferMiB is the memtable write buffer size in MiB.
	WriteBufferMiB int

	// BloomBitsPerKey configures the Bloom filter policy.
	BloomBitsPerKey int

	// ErrorIfMissing refuses to create a new database when true.
	ErrorIfMissing bool
}

// DefaultOptions returns the tuned defaults: create-if-missing, 100 MiB
// block cache, Bloom filter at 10 bits/key, 64 MiB write buffer.
func DefaultOptions() *Options {
	return &Options{
		BlockCacheMiB:   100,
		WriteBufferMiB:  64,
		BloomBitsPerKey: 10,
		ErrorIfMissing:  false,
	}
}

// ldbOptions converts Options into goleveldb options.
func (o *Options) ldbOptions() *opt.Options {
	return &opt.Options{
		BlockCacheCapacity: o.BlockCacheMiB * opt.MiB,
		WriteBuffer:        o.WriteBufferMiB * opt.MiB,
		Filter:             filter.NewBloomFilter(o.BloomBitsPerKey),
		ErrorIfMissing:     o.ErrorIfMissing,
	}
}

// Store is the façade over one embedded database. The zero value is an
// uninitialized store.
type Store struct {
	mu     sync.RWMutex
	db     *leveldb.DB
	path   string
	logger *logging.Logger
}

// global is the process-wide store instance.
var global = &Store{logger: logging.NewLogger("store")}

// Global returns the process-wide store singleton.
func Global() *Store {
	return global
}

// New returns a fresh, uninitialized Store. Tests and tools that must
// not share the process-wide singleton use this.
func New() *Store {
	return &Store{logger: logging.NewLogger("store")}
}

// Initialize opens the database at path. Passing nil opts selects
// DefaultOptions. Initializing an already-live store is an error.
func (s *Store) Initialize(path string, opts *Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return errors.StoreAlreadyInitialized(s.path)
	}

	if opts == nil {
		opts = DefaultOptions()
	}

	db, err := leveldb.OpenFile(path, opts.ldbOptions())
	if err != nil {
		return errors.IOFailure("open", err)
	}

	s.db = db
	s.path = path
	s.logger.Info("Store opened", "path", path,
		"block_cache_mib", opts.BlockCacheMiB, "write_buffer_mib", opts.WriteBufferMiB)
	return nil
}

// Shutdown closes the database and releases resources. Shutting down an
// uninitialized store is a no-op.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	s.logger.Info("Store closed", "path", s.path)
	s.path = ""
	if err != nil {
		return errors.IOFailure("close", err)
	}
	return nil
}

// IsInitialized reports whether the store is open.
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Path returns the database path, or "" when not initialized.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// handle returns the open database or a not-initialized error.
func (s *Store) handle() (*leveldb.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.StoreNotInitialized()
	}
	return s.db, nil
}

// writeOptions maps the sync flag onto goleveldb write options.
func writeOptions(sync bool) *opt.WriteOptions {
	return &opt.WriteOptions{Sync: sync}
}

// Put writes a key-value pair. With sync true the write is flushed to
// stable storage before returning.
func (s *Store) Put(key, value string, sync bool) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := db.Put([]byte(key), []byte(value), writeOptions(sync)); err != nil {
		return errors.IOFailure("put", err)
	}
	return nil
}

// Get reads the value for key. A missing key returns ("", false, nil).
func (s *Store) Get(key string) (string, bool, error) {
	db, err := s.handle()
	if err != nil {
		return "", false, err
	}
	value, err := db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.IOFailure("get", err)
	}
	return string(value), true, nil
}

// Delete removes a key. Deleting a missing key is idempotent success.
func (s *Store) Delete(key string, sync bool) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := db.Delete([]byte(key), writeOptions(sync)); err != nil {
		return errors.IOFailure("delete", err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *Store) Exists(key string) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}
	found, err := db.Has([]byte(key), nil)
	if err != nil {
		return false, errors.IOFailure("exists", err)
	}
	return found, nil
}

// ============================================================================
// Batches
// ============================================================================

// Batch stages a set of writes that commit atomically.
type Batch struct {
	store *Store
	batch *leveldb.Batch
}

// NewBatch creates an empty batch bound to this store.
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s, batch: new(leveldb.Batch)}
}

// Put stages a write.
func (b *Batch) Put(key, value string) {
	b.batch.Put([]byte(key), []byte(value))
}

// Delete stages a deletion.
func (b *Batch) Delete(key string) {
	b.batch.Delete([]byte(key))
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return b.batch.Len()
}

// Clear discards all staged operations.
func (b *Batch) Clear() {
	b.batch.Reset()
}

// Commit applies all staged operations atomically from the perspective
// of readers, then clears the batch.
func (b *Batch) Commit(sync bool) error {
	db, err := b.store.handle()
	if err != nil {
		return err
	}
	if err := db.Write(b.batch, writeOptions(sync)); err != nil {
		return errors.BatchFailed(err)
	}
	b.batch.Reset()
	return nil
}

// ============================================================================
// Iterators
// ============================================================================

// Iterator is a forward, seekable cursor over the whole keyspace. It
// observes a consistent view captured at creation time. Callers must
// Release it when done.
type Iterator struct {
	it iterator.Iterator
}

// NewIterator creates an iterator positioned at the first key.
func (s *Store) NewIterator() (*Iterator, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	it := db.NewIterator(nil, nil)
	it.First()
	return &Iterator{it: it}, nil
}

// Valid reports whether the cursor is positioned on a key.
func (i *Iterator) Valid() bool { return i.it.Valid() }

// Next advances the cursor.
func (i *Iterator) Next() { i.it.Next() }

// Key returns the current key.
func (i *Iterator) Key() string { return string(i.it.Key()) }

// Value returns the current value.
func (i *Iterator) Value() string { return string(i.it.Value()) }

// Seek positions the cursor at the first key >= k.
func (i *Iterator) Seek(k string) { i.it.Seek([]byte(k)) }

// SeekToFirst positions the cursor at the first key.
func (i *Iterator) SeekToFirst() { i.it.First() }

// SeekToLast positions the cursor at the last key.
func (i *Iterator) SeekToLast() { i.it.Last() }

// Release frees the iterator's snapshot.
func (i *Iterator) Release() { i.it.Release() }

// Err returns any accumulated iteration error.
func (i *Iterator) Err() error {
	if err := i.it.Error(); err != nil {
		return errors.IOFailure("iterate", err)
	}
	return nil
}

// ============================================================================
// Range and Prefix Scans
// ============================================================================

// RangeQuery invokes cb for every key in byte-lexicographic order in
// [start, end). An empty end scans to the end of the keyspace. A
// non-nil error from cb aborts the scan and is returned unchanged.
func (s *Store) RangeQuery(start, end string, cb func(key, value string) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	rng := &util.Range{Start: []byte(start)}
	if end != "" {
		rng.Limit = []byte(end)
	}

	it := db.NewIterator(rng, nil)
	defer it.Release()

	for it.Next() {
		if err := cb(string(it.Key()), string(it.Value())); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return errors.IOFailure("range query", err)
	}
	return nil
}

// PrefixQuery invokes cb for every key beginning with prefix. An empty
// prefix scans everything.
func (s *Store) PrefixQuery(prefix string, cb func(key, value string) error) error {
	return s.RangeQuery(prefix, succ(prefix), cb)
}

// succ computes the exclusive upper bound of a prefix scan by
// incrementing the final byte. TerraStore keys are printable ASCII, so
// the increment never carries.
func succ(prefix string) string {
	if prefix == "" {
		return ""
	}
	end := []byte(prefix)
	end[len(end)-1]++
	return string(end)
}

// CompactRange hints the engine to compact [start, end). Empty strings
// select the respective end of the keyspace.
func (s *Store) CompactRange(start, end string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	rng := util.Range{}
	if start != "" {
		rng.Start = []byte(start)
	}
	if end != "" {
		rng.Limit = []byte(end)
	}
	if err := db.CompactRange(rng); err != nil {
		return errors.CompactionFailed(err)
	}
	return nil
}

// Stats returns the engine's diagnostic dump.
func (s *Store) Stats() (string, error) {
	db, err := s.handle()
	if err != nil {
		return "", err
	}
	stats, err := db.GetProperty("leveldb.stats")
	if err != nil {
		return "", errors.IOFailure("stats", err)
	}
	return stats, nil
}
