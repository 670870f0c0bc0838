package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"qrattend/internal/crypto"
)

// FileKV stores each key as <dir>/<key>.json, or <key>.json.enc when a
// master key is configured. Writes go through a temp file and a rename so
// a crash never leaves a truncated document behind.
type FileKV struct {
	dir       string
	masterKey []byte
	mu        sync.Mutex
}

// FileOption configures a FileKV.
type FileOption func(*FileKV)

// WithMasterKey encrypts every value with AES-GCM under a key derived
// per store from master.
func WithMasterKey(master []byte) FileOption {
	return func(f *FileKV) { f.masterKey = master }
}

// NewFileKV creates dir if needed and returns a store rooted there.
func NewFileKV(dir string, opts ...FileOption) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	f := &FileKV{dir: dir}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if f.masterKey == nil {
		return blob, nil
	}
	k, err := crypto.DeriveStoreKey(f.masterKey, key)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.DecryptAESGCM(k, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", filepath.Base(path), err)
	}
	return plain, nil
}

func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if f.masterKey != nil {
		k, err := crypto.DeriveStoreKey(f.masterKey, key)
		if err != nil {
			return err
		}
		if value, err = crypto.EncryptAESGCM(k, value); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Dir returns the directory the store writes to.
func (f *FileKV) Dir() string { return f.dir }

func (f *FileKV) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid store key %q", key)
	}
	name := key + ".json"
	if f.masterKey != nil {
		name += ".enc"
	}
	return filepath.Join(f.dir, name), nil
}
