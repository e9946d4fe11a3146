// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package sidecar provides durable keyed JSON persistence for mechanism
documents.

Each document is stored as one pretty-printed JSON file under a base
directory, keyed by session id or period id. Writes are atomic (temp file,
fsync, rename) so readers never observe a partially written sidecar, and a
write whose rendered bytes equal the existing file content is skipped
entirely, which keeps repeated runs from touching unchanged files.

# Thread Safety

Store uses a mutex so multiple goroutines can Put and Get concurrently;
the backfill worker pool writes results from several workers at once.
*/
package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned by Get when no sidecar exists for a key.
var ErrNotFound = errors.New("sidecar not found")

// Store persists JSON documents under a base directory, one file per key.
type Store struct {
	baseDir string

	mu sync.RWMutex
}

// NewStore creates a store rooted at baseDir, creating the directory when
// missing.
func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("sidecar: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sidecar directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Dir returns the directory the store writes into.
func (s *Store) Dir() string {
	return s.baseDir
}

// Put marshals doc and writes it under key. The write is skipped when the
// rendered content is byte-identical to what is already stored; the boolean
// result reports whether the file actually changed.
func (s *Store) Put(key string, doc any) (bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	rendered, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal sidecar %q: %w", key, err)
	}
	rendered = append(rendered, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, rendered) {
		return false, nil
	}
	if err := writeFileAtomic(path, rendered, 0o644); err != nil {
		return false, fmt.Errorf("write sidecar %q: %w", key, err)
	}
	return true, nil
}

// Get reads the sidecar for key into out. Returns ErrNotFound when the key
// has never been written.
func (s *Store) Get(key string, out any) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("read sidecar %q: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode sidecar %q: %w", key, err)
	}
	return nil
}

// Raw reads the sidecar bytes for key without decoding.
func (s *Store) Raw(key string) ([]byte, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read sidecar %q: %w", key, err)
	}
	return data, nil
}

// Exists reports whether a sidecar is stored under key.
func (s *Store) Exists(key string) bool {
	path, err := s.pathFor(key)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ListKeys returns every stored key in sorted order.
func (s *Store) ListKeys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list sidecar directory: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// pathFor maps a key to its file path, rejecting keys that would escape the
// base directory.
func (s *Store) pathFor(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("sidecar: key is required")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("sidecar: invalid key %q", key)
	}
	return filepath.Join(s.baseDir, key+".json"), nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it, then renames it over the destination so readers never see a partial
// file. On Windows the rename falls back to remove-then-rename.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sidecar-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("remove destination: %w", rmErr)
		}
		for attempt := 0; attempt < 3; attempt++ {
			if err = os.Rename(tmpName, path); err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if err != nil {
			return fmt.Errorf("rename temp file: %w", err)
		}
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}
	return nil
}
