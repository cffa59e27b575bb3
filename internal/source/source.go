// Package source turns a path or object-store URI into the contiguous byte
// span the wpilog engine parses. Local files are memory-mapped when
// possible; gzip and zstd inputs are decompressed transparently.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/basekick-labs/wpilog/internal/config"
	"github.com/basekick-labs/wpilog/internal/storage"
	"github.com/basekick-labs/wpilog/internal/wpilog"
	"github.com/rs/zerolog"
)

// ErrTooLarge is wrapped when an input exceeds Options.MaxSize.
var ErrTooLarge = errors.New("input exceeds size limit")

// Options controls how Open obtains bytes.
type Options struct {
	// Mmap maps uncompressed local files instead of reading them.
	Mmap bool
	// MaxSize bounds the (decompressed) input. Zero means no limit.
	MaxSize int64
	// Storage holds object-store credentials for s3:// and azure:// paths.
	Storage *config.StorageConfig
}

// Span is a read-only view of one input. Bytes stays valid until Close.
type Span struct {
	// Source is the path or URI the span was opened from.
	Source string
	// Compression is "gzip", "zstd" or "" for plain input.
	Compression string

	data  []byte
	unmap func([]byte) error
}

// Bytes returns the input contents. The slice must not be modified.
func (s *Span) Bytes() []byte { return s.data }

// Len returns the span length in bytes.
func (s *Span) Len() int { return len(s.data) }

// Mapped reports whether the span is backed by a file mapping.
func (s *Span) Mapped() bool { return s.unmap != nil }

// Close releases the mapping, if any. Safe to call more than once.
func (s *Span) Close() error {
	data, unmap := s.data, s.unmap
	s.data, s.unmap = nil, nil
	if unmap != nil {
		return unmap(data)
	}
	return nil
}

// Open loads path into memory. Every failure is a wpilog error of KindIo.
func Open(ctx context.Context, path string, opts Options, logger zerolog.Logger) (*Span, error) {
	u, err := storage.ParseURI(path)
	if err != nil {
		return nil, wpilog.IoError(err)
	}

	var span *Span
	if u.IsRemote() {
		span, err = openRemote(ctx, u, opts, logger)
	} else {
		span, err = openLocal(u.Key, opts)
	}
	if err != nil {
		return nil, wpilog.IoError(fmt.Errorf("%s: %w", path, err))
	}
	span.Source = path

	if err := span.decompress(opts.MaxSize); err != nil {
		span.Close()
		return nil, wpilog.IoError(fmt.Errorf("%s: %w", path, err))
	}

	logger.Debug().
		Str("source", path).
		Int("bytes", span.Len()).
		Bool("mapped", span.Mapped()).
		Str("compression", span.Compression).
		Msg("Opened input")
	return span, nil
}

func openLocal(path string, opts Options) (*Span, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("is a directory")
	}
	size := info.Size()

	// Compressed files are bounded after decompression, not here.
	if opts.MaxSize > 0 && size > opts.MaxSize && !compressedFile(f) {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, size, opts.MaxSize)
	}

	if opts.Mmap && size > 0 {
		data, err := mapFile(f, size)
		if err == nil {
			return &Span{data: data, unmap: unmapFile}, nil
		}
		if !errors.Is(err, errMmapUnsupported) {
			return nil, fmt.Errorf("mmap: %w", err)
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data := make([]byte, 0, size)
	buf := bytes.NewBuffer(data)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return &Span{data: buf.Bytes()}, nil
}

func compressedFile(f *os.File) bool {
	var head [4]byte
	n, _ := f.ReadAt(head[:], 0)
	return detectCompression(head[:n]) != ""
}

func openRemote(ctx context.Context, u storage.URI, opts Options, logger zerolog.Logger) (*Span, error) {
	if u.Key == "" {
		return nil, fmt.Errorf("missing object key")
	}
	cfg := opts.Storage
	if cfg == nil {
		cfg = &config.StorageConfig{}
	}
	backend, key, err := storage.ForURI(ctx, cfg, u, logger)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	w := &limitedBuffer{limit: opts.MaxSize}
	if err := backend.ReadTo(ctx, key, w); err != nil {
		return nil, err
	}
	return &Span{data: w.buf.Bytes()}, nil
}

// limitedBuffer fails the copy once more than limit bytes arrive.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int64
}

func (w *limitedBuffer) Write(p []byte) (int, error) {
	if w.limit > 0 && int64(w.buf.Len()+len(p)) > w.limit {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, w.limit)
	}
	return w.buf.Write(p)
}
