/*
 * Copyright 2024 The Yorkie Authors. All rights reserved.
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

// Package cmap provides a sharded concurrent map. Every callback passed to it
// runs while the owning shard is locked, which makes read-modify-write
// sequences on a single key atomic.
package cmap

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// numShards is the number of shards.
const numShards = 32

type shard[K comparable, V any] struct {
	sync.RWMutex
	items map[K]V
}

// Map is a concurrent map that is safe for multiple goroutines.
type Map[K comparable, V any] struct {
	shards [numShards]shard[K, V]
}

// New creates a new Map.
func New[K comparable, V any]() *Map[K, V] {
	m := &Map[K, V]{}
	for i := 0; i < numShards; i++ {
		m.shards[i].items = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardForKey(key K) *shard[K, V] {
	hash := fnv.New32a()
	switch k := any(key).(type) {
	case string:
		_, _ = hash.Write([]byte(k))
	default:
		_, _ = hash.Write([]byte(fmt.Sprintf("%v", key)))
	}
	return &m.shards[hash.Sum32()%numShards]
}

// UpsertFunc computes the value stored under a key from its previous value.
type UpsertFunc[V any] func(value V, exists bool) V

// Upsert inserts or updates a key-value pair and returns the stored value.
func (m *Map[K, V]) Upsert(key K, upsertFunc UpsertFunc[V]) V {
	s := m.shardForKey(key)

	s.Lock()
	defer s.Unlock()

	v, exists := s.items[key]
	res := upsertFunc(v, exists)
	s.items[key] = res
	return res
}

// Get retrieves a value from the map.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardForKey(key)

	s.RLock()
	defer s.RUnlock()

	v, exists := s.items[key]
	return v, exists
}

// View runs fn with the value under a read lock.
func (m *Map[K, V]) View(key K, fn func(value V, exists bool)) {
	s := m.shardForKey(key)

	s.RLock()
	defer s.RUnlock()

	v, exists := s.items[key]
	fn(v, exists)
}

// DeleteFunc reports whether the value should be removed.
type DeleteFunc[V any] func(value V, exists bool) bool

// Delete removes a key when deleteFunc agrees.
func (m *Map[K, V]) Delete(key K, deleteFunc DeleteFunc[V]) bool {
	s := m.shardForKey(key)

	s.Lock()
	defer s.Unlock()

	v, exists := s.items[key]
	del := deleteFunc(v, exists)
	if del && exists {
		delete(s.items, key)
	}
	return del
}

// Len returns the number of items in the map.
func (m *Map[K, V]) Len() int {
	count := 0
	for i := 0; i < numShards; i++ {
		s := &m.shards[i]
		s.RLock()
		count += len(s.items)
		s.RUnlock()
	}
	return count
}

// Keys returns every key in the map.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0)
	for i := 0; i < numShards; i++ {
		s := &m.shards[i]
		s.RLock()
		for k := range s.items {
			keys = append(keys, k)
		}
		s.RUnlock()
	}
	return keys
}

// Range calls fn for every pair while the pair's shard is read-locked.
// Iteration stops when fn returns false.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for i := 0; i < numShards; i++ {
		s := &m.shards[i]
		s.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}
