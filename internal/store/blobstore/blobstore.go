// Package blobstore keeps immutable content on disk addressed by its
// SHA-256 hash. Page sections are stored here so version rows stay small
// and identical content is written once.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrBlobNotFound = errors.New("blob not found")

// Store is rooted at one directory. Blobs live under {dir}/{hash[:2]}/{hash}.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put stores data and returns its id. Existing content is not rewritten.
func (s *Store) Put(data []byte) (string, error) {
	hash := sha256.Sum256(data)
	id := hex.EncodeToString(hash[:])

	p := s.path(id)
	if _, err := os.Stat(p); err == nil {
		return id, nil
	}
	if err := AtomicWriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return id, nil
}

// Get reads a blob and verifies its hash.
func (s *Store) Get(id string) ([]byte, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrBlobNotFound, id)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	hash := sha256.Sum256(data)
	if got := hex.EncodeToString(hash[:]); got != id {
		return nil, fmt.Errorf("blob integrity check failed: expected %s, got %s", id, got)
	}
	return data, nil
}

func (s *Store) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	_, err := os.Stat(s.path(id))
	return err == nil
}

func (s *Store) path(id string) string {
	if len(id) < 2 {
		return filepath.Join(s.dir, "__invalid__", id)
	}
	return filepath.Join(s.dir, id[:2], id)
}

// ids are lowercase hex sha256
func validID(id string) bool {
	if len(id) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil && strings.ToLower(id) == id
}

// AtomicWriteFile writes data to a temp file in the target directory, syncs
// it and renames it into place, so readers never see a partial file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("invalid path: %q contains '..'", path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
