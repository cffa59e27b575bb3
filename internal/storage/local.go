package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LocalBackend stores objects as files under a base directory. Writes go
// through a temp file and rename, so readers never see a partial table.
type LocalBackend struct {
	basePath string
	logger   zerolog.Logger

	mu      sync.Mutex
	madeDir map[string]struct{}
}

// NewLocalBackend creates basePath if needed and roots the backend there.
func NewLocalBackend(basePath string, logger zerolog.Logger) (*LocalBackend, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	return &LocalBackend{
		basePath: absPath,
		logger:   logger.With().Str("component", "local-storage").Logger(),
		madeDir:  make(map[string]struct{}),
	}, nil
}

// Write stores data at path atomically.
func (b *LocalBackend) Write(ctx context.Context, path string, data []byte) error {
	return b.WriteReader(ctx, path, bytes.NewReader(data), int64(len(data)))
}

// WriteReader copies reader into a temp file beside path and renames it
// into place. A positive size must match the bytes copied.
func (b *LocalBackend) WriteReader(ctx context.Context, path string, reader io.Reader, size int64) error {
	fullPath, err := b.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := b.mkdir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".wpilog-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	written, copyErr := io.Copy(tmp, reader)
	closeErr := tmp.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("failed to write data: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("failed to close temp file: %w", closeErr)
	case size > 0 && written != size:
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	default:
		// CreateTemp uses 0600; outputs are meant to be shared.
		if err = os.Chmod(tmp.Name(), 0644); err == nil {
			err = os.Rename(tmp.Name(), fullPath)
		}
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}

	b.logger.Debug().Str("path", path).Int64("size", written).Msg("Wrote file")
	return nil
}

func (b *LocalBackend) mkdir(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.madeDir[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	b.madeDir[dir] = struct{}{}
	return nil
}

// ReadTo copies the contents of path to writer.
func (b *LocalBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	fullPath, err := b.resolve(path)
	if err != nil {
		return err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrNotExist)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(writer, f); err != nil {
		return fmt.Errorf("failed to copy file data: %w", err)
	}
	return nil
}

// List walks prefix and returns slash-separated keys relative to the base,
// sorted, skipping dot files such as in-flight temp files.
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]string, error) {
	root, err := b.resolve(prefix)
	if err != nil {
		return nil, err
	}

	keys := []string{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(b.basePath, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether path is present.
func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
}

func (b *LocalBackend) Close() error { return nil }

func (b *LocalBackend) Type() string { return "local" }

// resolve maps a key to an absolute path under the base directory. Leading
// slashes, ".." and NUL bytes are neutralized before joining.
func (b *LocalBackend) resolve(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	key = strings.ReplaceAll(key, "..", "_")
	key = strings.ReplaceAll(key, "\x00", "")

	full := filepath.Join(b.basePath, key)
	rel, err := filepath.Rel(b.basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path %q: escapes base directory", key)
	}
	return full, nil
}
