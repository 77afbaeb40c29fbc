package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a Store backed by a single JSON object on disk. Every operation
// re-reads the file under an exclusive lock, so several processes can share
// one store.
type File struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// NewFile returns a file store at path. The file is created lazily.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("kv: file path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("kv: create store dir: %w", err)
	}
	return &File{path: abs}, nil
}

// Path returns the absolute path of the backing file.
func (f *File) Path() string { return f.path }

func (f *File) Get(key string) (string, bool, error) {
	unlock, err := f.lock()
	if err != nil {
		return "", false, err
	}
	defer unlock()

	data, err := f.readLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	unlock, err := f.lock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := f.readLocked()
	if err != nil {
		return err
	}
	data[key] = value
	return f.writeLocked(data)
}

func (f *File) Delete(key string) error {
	unlock, err := f.lock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := f.readLocked()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return f.writeLocked(data)
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *File) lock() (func(), error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	release, err := lockFile(f.path + ".lock")
	if err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("kv: lock store: %w", err)
	}
	return func() {
		release()
		f.mu.Unlock()
	}, nil
}

// readLocked loads the store (caller must hold lock). A missing or corrupt
// file reads as empty.
func (f *File) readLocked() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return map[string]string{}, nil
	}
	return data, nil
}

// writeLocked replaces the file atomically via rename (caller must hold lock).
func (f *File) writeLocked(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
