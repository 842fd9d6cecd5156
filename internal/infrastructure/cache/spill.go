// Package cache implements the rotating-file spill store used to bound
// memory during large order pulls. Batches are serialized to JSON segment
// files under a root directory and drained back in write order.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

// Segment files are named <key>.cache, <key>__1.cache, <key>__2.cache and
// so on. The unsuffixed segment is always the oldest; Read pops it and
// shifts the rest down, so the sequence stays contiguous from zero.

// Store persists order batches as rotating JSON segments under dir.
// Store I/O errors are fatal to a sync run and are returned unwrapped.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates dir if needed and returns a store rooted there
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Write appends orders as a new segment for key, after any existing ones
func (s *Store) Write(key string, orders []sync.Order) error {
	n := 0
	for s.exists(key, n) {
		n++
	}
	data, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("cache: marshal segment %s: %w", key, err)
	}
	path := s.segmentPath(key, n)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cache: write segment %s: %w", path, err)
	}
	s.logger.Debug("spill segment written",
		zap.String("key", key),
		zap.Int("segment", n),
		zap.Int("orders", len(orders)))
	return nil
}

// Read pops the oldest segment for key and shifts the remaining segments
// down one slot. It returns nil, nil once key is drained.
func (s *Store) Read(key string) ([]sync.Order, error) {
	path := s.segmentPath(key, 0)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read segment %s: %w", path, err)
	}
	var orders []sync.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("cache: decode segment %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("cache: remove segment %s: %w", path, err)
	}
	for n := 1; s.exists(key, n); n++ {
		if err := os.Rename(s.segmentPath(key, n), s.segmentPath(key, n-1)); err != nil {
			return nil, fmt.Errorf("cache: rotate segment %s: %w", key, err)
		}
	}
	s.logger.Debug("spill segment drained",
		zap.String("key", key),
		zap.Int("orders", len(orders)))
	return orders, nil
}

// Purge removes every segment for key
func (s *Store) Purge(key string) error {
	for n := 0; s.exists(key, n); n++ {
		if err := os.Remove(s.segmentPath(key, n)); err != nil {
			return fmt.Errorf("cache: purge segment %s: %w", key, err)
		}
	}
	s.logger.Debug("spill key purged", zap.String("key", key))
	return nil
}

// Len returns the number of pending segments for key
func (s *Store) Len(key string) int {
	n := 0
	for s.exists(key, n) {
		n++
	}
	return n
}

func (s *Store) segmentPath(key string, n int) string {
	if n == 0 {
		return filepath.Join(s.dir, key+".cache")
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s__%d.cache", key, n))
}

func (s *Store) exists(key string, n int) bool {
	_, err := os.Stat(s.segmentPath(key, n))
	return err == nil
}
