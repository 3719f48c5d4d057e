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

package store

import (
	"testing"

	"terrastore/internal/errors"
)

// newTestStore opens a fresh store in a temporary directory and closes
// it when the test ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Initialize(t.TempDir(), nil); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestStoreLifecycle(t *testing.T) {
	s := New()
	dir := t.TempDir()

	if s.IsInitialized() {
		t.Error("Fresh store should not be initialized")
	}

	if err := s.Initialize(dir, nil); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !s.IsInitialized() {
		t.Error("Store should be initialized")
	}
	if s.Path() != dir {
		t.Errorf("Expected path %s, got %s", dir, s.Path())
	}

	// Re-initializing a live store is an error.
	err := s.Initialize(dir, nil)
	if err == nil {
		t.Fatal("Expected already-initialized error")
	}
	if errors.GetCode(err) != errors.ErrCodeAlreadyInitialized {
		t.Errorf("Expected already-initialized code, got %v", err)
	}

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if s.IsInitialized() {
		t.Error("Store should not be initialized after Shutdown")
	}

	// Shutdown is idempotent.
	if err := s.Shutdown(); err != nil {
		t.Errorf("Second Shutdown should be a no-op, got %v", err)
	}
}

func TestStoreNotInitialized(t *testing.T) {
	s := New()

	if err := s.Put("k", "v", false); err == nil {
		t.Error("Put on uninitialized store should fail")
	} else if errors.GetCode(err) != errors.ErrCodeNotInitialized {
		t.Errorf("Expected not-initialized code, got %v", err)
	}

	if _, _, err := s.Get("k"); err == nil {
		t.Error("Get on uninitialized store should fail")
	}
}

func TestStorePutAndGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put("key1", "value1", false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, found, err := s.Get("key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("Expected key1 to be found")
	}
	if value != "value1" {
		t.Errorf("Expected 'value1', got '%s'", value)
	}

	// Sync writes land the same way.
	if err := s.Put("key2", "value2", true); err != nil {
		t.Fatalf("Sync put failed: %v", err)
	}
	if _, found, _ := s.Get("key2"); !found {
		t.Error("Expected key2 to be found")
	}
}

func TestStoreGetNotFound(t *testing.T) {
	s := newTestStore(t)

	value, found, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Missing key must not be an error, got %v", err)
	}
	if found {
		t.Error("Expected missing key to be absent")
	}
	if value != "" {
		t.Errorf("Expected empty value, got '%s'", value)
	}
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)

	s.Put("key1", "value1", false)
	if err := s.Delete("key1", false); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := s.Get("key1"); found {
		t.Error("Expected key1 to be gone")
	}

	// Deleting a missing key is idempotent success.
	if err := s.Delete("never-existed", false); err != nil {
		t.Errorf("Delete of missing key should succeed, got %v", err)
	}
}

func TestStoreExists(t *testing.T) {
	s := newTestStore(t)

	s.Put("key1", "value1", false)

	found, err := s.Exists("key1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !found {
		t.Error("Expected key1 to exist")
	}

	found, err = s.Exists("missing")
	if err != nil {
		t.Fatalf("Exists of missing key must not be an error, got %v", err)
	}
	if found {
		t.Error("Expected missing key to not exist")
	}
}

func TestStoreBatch(t *testing.T) {
	s := newTestStore(t)

	s.Put("stale", "old", false)

	batch := s.NewBatch()
	batch.Put("b1", "v1")
	batch.Put("b2", "v2")
	batch.Delete("stale")
	if batch.Len() != 3 {
		t.Errorf("Expected 3 staged ops, got %d", batch.Len())
	}

	// Nothing is visible before commit.
	if _, found, _ := s.Get("b1"); found {
		t.Error("Staged write must not be visible before commit")
	}

	if err := batch.Commit(false); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	for key, want := range map[string]string{"b1": "v1", "b2": "v2"} {
		value, found, _ := s.Get(key)
		if !found || value != want {
			t.Errorf("After commit, %s = '%s' (found=%v), want '%s'", key, value, found, want)
		}
	}
	if _, found, _ := s.Get("stale"); found {
		t.Error("Batched delete did not apply")
	}

	// The batch is reusable after commit.
	if batch.Len() != 0 {
		t.Errorf("Committed batch should be empty, got %d ops", batch.Len())
	}
}

func TestStoreBatchClear(t *testing.T) {
	s := newTestStore(t)

	batch := s.NewBatch()
	batch.Put("x", "1")
	batch.Clear()
	if err := batch.Commit(false); err != nil {
		t.Fatalf("Commit of cleared batch failed: %v", err)
	}
	if _, found, _ := s.Get("x"); found {
		t.Error("Cleared op must not be applied")
	}
}

func TestStoreRangeQuery(t *testing.T) {
	s := newTestStore(t)

	for _, kv := range [][2]string{
		{"a|1", "va1"}, {"a|2", "va2"}, {"b|1", "vb1"}, {"c|1", "vc1"},
	} {
		s.Put(kv[0], kv[1], false)
	}

	var keys []string
	err := s.RangeQuery("a|", "b|", func(k, v string) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		t.Fatalf("RangeQuery failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a|1" || keys[1] != "a|2" {
		t.Errorf("Expected [a|1 a|2] in order, got %v", keys)
	}

	// Open-ended scan covers everything from start.
	keys = nil
	if err := s.RangeQuery("b|", "", func(k, v string) error {
		keys = append(keys, k)
		return nil
	}); err != nil {
		t.Fatalf("Open-ended RangeQuery failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "b|1" || keys[1] != "c|1" {
		t.Errorf("Expected [b|1 c|1], got %v", keys)
	}
}

func TestStoreRangeQueryCallbackAbort(t *testing.T) {
	s := newTestStore(t)

	s.Put("k1", "v1", false)
	s.Put("k2", "v2", false)

	sentinel := errors.NewStorageError("stop")
	count := 0
	err := s.RangeQuery("", "", func(k, v string) error {
		count++
		return sentinel
	})
	if err != sentinel {
		t.Errorf("Expected callback error to surface unchanged, got %v", err)
	}
	if count != 1 {
		t.Errorf("Expected scan to stop after 1 key, got %d", count)
	}
}

func TestStorePrefixQuery(t *testing.T) {
	s := newTestStore(t)

	for _, kv := range [][2]string{
		{"G_001_001|x", "1"}, {"G_001_001|y", "2"}, {"G_001_002|x", "3"},
	} {
		s.Put(kv[0], kv[1], false)
	}

	var keys []string
	if err := s.PrefixQuery("G_001_001|", func(k, v string) error {
		keys = append(keys, k)
		return nil
	}); err != nil {
		t.Fatalf("PrefixQuery failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys under prefix, got %v", keys)
	}

	// Empty prefix scans the whole keyspace.
	count := 0
	if err := s.PrefixQuery("", func(k, v string) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("Empty PrefixQuery failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 keys total, got %d", count)
	}
}

func TestStoreIterator(t *testing.T) {
	s := newTestStore(t)

	for _, k := range []string{"a", "b", "c"} {
		s.Put(k, "v-"+k, false)
	}

	it, err := s.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Release()

	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Errorf("Expected [a b c], got %v", keys)
	}

	it.Seek("b")
	if !it.Valid() || it.Key() != "b" || it.Value() != "v-b" {
		t.Errorf("Seek(b) landed on %s", it.Key())
	}

	it.SeekToLast()
	if !it.Valid() || it.Key() != "c" {
		t.Errorf("SeekToLast landed on %s", it.Key())
	}

	it.SeekToFirst()
	if !it.Valid() || it.Key() != "a" {
		t.Errorf("SeekToFirst landed on %s", it.Key())
	}

	if err := it.Err(); err != nil {
		t.Errorf("Iterator error: %v", err)
	}
}

func TestStoreIteratorSnapshot(t *testing.T) {
	s := newTestStore(t)

	s.Put("k1", "v1", false)

	it, err := s.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Release()

	// Writes after iterator creation are not visible to it.
	s.Put("k2", "v2", false)

	count := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		count++
	}
	if count != 1 {
		t.Errorf("Expected snapshot view with 1 key, got %d", count)
	}
}

func TestStoreCompactAndStats(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 100; i++ {
		s.Put(string(rune('a'+i%26))+"-key", "value", false)
	}

	if err := s.CompactRange("", ""); err != nil {
		t.Fatalf("CompactRange failed: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats == "" {
		t.Error("Expected non-empty stats dump")
	}
}
