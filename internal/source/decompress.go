package source

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func detectCompression(head []byte) string {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return "gzip"
	case bytes.HasPrefix(head, zstdMagic):
		return "zstd"
	}
	return ""
}

// decompress replaces a compressed span with its decoded contents. The
// mapping, if any, is released once the copy is complete.
func (s *Span) decompress(maxSize int64) error {
	kind := detectCompression(s.data)
	if kind == "" {
		return nil
	}

	var r io.Reader
	switch kind {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(s.data))
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(s.data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	w := &limitedBuffer{limit: maxSize}
	w.buf.Grow(len(s.data) * 4)
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}

	if err := s.Close(); err != nil {
		return err
	}
	s.data = w.buf.Bytes()
	s.Compression = kind
	return nil
}
