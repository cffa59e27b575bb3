package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/basekick-labs/wpilog/internal/wpilog"
	"github.com/basekick-labs/wpilog/internal/wpilog/wpilogtest"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestOpen_Local(t *testing.T) {
	log := wpilogtest.SpeedPos()
	path := writeFile(t, "speed.wpilog", log)

	for _, mmap := range []bool{false, true} {
		span, err := Open(context.Background(), path, Options{Mmap: mmap}, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, log, span.Bytes())
		assert.Equal(t, len(log), span.Len())
		assert.Equal(t, path, span.Source)
		assert.Empty(t, span.Compression)
		require.NoError(t, span.Close())
		require.NoError(t, span.Close())
		assert.Nil(t, span.Bytes())
	}
}

func TestOpen_MappedParses(t *testing.T) {
	path := writeFile(t, "speed.wpilog", wpilogtest.SpeedPos())

	span, err := Open(context.Background(), path, Options{Mmap: true}, zerolog.Nop())
	require.NoError(t, err)
	defer span.Close()

	table, err := wpilog.Parse(span.Bytes(), wpilog.DefaultOptions())
	require.NoError(t, err)
	defer table.Release()
	assert.Equal(t, 3, table.NumColumns())
}

func TestOpen_EmptyFile(t *testing.T) {
	path := writeFile(t, "empty.wpilog", nil)

	span, err := Open(context.Background(), path, Options{Mmap: true}, zerolog.Nop())
	require.NoError(t, err)
	defer span.Close()
	assert.Equal(t, 0, span.Len())
	assert.False(t, span.Mapped())
}

func TestOpen_Compressed(t *testing.T) {
	log := wpilogtest.SpeedPos()
	tests := []struct {
		name        string
		data        []byte
		compression string
	}{
		{"gzip", gzipped(t, log), "gzip"},
		{"zstd", zstded(t, log), "zstd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "log."+tt.name, tt.data)
			for _, mmap := range []bool{false, true} {
				span, err := Open(context.Background(), path, Options{Mmap: mmap}, zerolog.Nop())
				require.NoError(t, err)
				assert.Equal(t, log, span.Bytes())
				assert.Equal(t, tt.compression, span.Compression)
				assert.False(t, span.Mapped())
				require.NoError(t, span.Close())
			}
		})
	}
}

func TestOpen_CorruptCompressed(t *testing.T) {
	data := gzipped(t, wpilogtest.SpeedPos())
	path := writeFile(t, "bad.gz", data[:len(data)/2])

	_, err := Open(context.Background(), path, Options{}, zerolog.Nop())
	require.ErrorIs(t, err, wpilog.ErrIo)
}

func TestOpen_MaxSize(t *testing.T) {
	log := wpilogtest.SpeedPos()
	limit := int64(len(log) - 1)

	path := writeFile(t, "speed.wpilog", log)
	_, err := Open(context.Background(), path, Options{MaxSize: limit}, zerolog.Nop())
	require.ErrorIs(t, err, wpilog.ErrIo)
	assert.ErrorIs(t, err, ErrTooLarge)

	// The limit applies to decompressed bytes.
	gz := writeFile(t, "speed.gz", gzipped(t, log))
	_, err = Open(context.Background(), gz, Options{MaxSize: limit}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrTooLarge)

	span, err := Open(context.Background(), gz, Options{MaxSize: int64(len(log))}, zerolog.Nop())
	require.NoError(t, err)
	span.Close()
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "nope.wpilog")},
		{"directory", dir},
		{"empty path", ""},
		{"unsupported scheme", "ftp://host/log.wpilog"},
		{"missing object key", "s3://robot-logs"},
		{"missing azure blob", "azure://logs/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.path, Options{}, zerolog.Nop())
			require.Error(t, err)
			assert.Equal(t, wpilog.KindIo, wpilog.KindOf(err))
		})
	}
}

func TestDetectCompression(t *testing.T) {
	tests := []struct {
		head []byte
		want string
	}{
		{[]byte{0x1f, 0x8b, 0x08}, "gzip"},
		{[]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, "zstd"},
		{[]byte("WPILOG"), ""},
		{[]byte{0x1f}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := detectCompression(tt.head); got != tt.want {
			t.Errorf("detectCompression(%x) = %q, want %q", tt.head, got, tt.want)
		}
	}
}

func TestLimitedBuffer(t *testing.T) {
	w := &limitedBuffer{limit: 4}
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = w.Write([]byte("de"))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, "abc", w.buf.String())

	unbounded := &limitedBuffer{}
	_, err = unbounded.Write(make([]byte, 1<<16))
	assert.NoError(t, err)
}
