package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotExist is wrapped by ReadTo when the object is missing.
var ErrNotExist = errors.New("object does not exist")

// Backend is a flat key space of objects. Input logs are fetched from it
// and converted tables are written to it.
type Backend interface {
	Write(ctx context.Context, path string, data []byte) error
	// WriteReader streams reader to path. size may be -1 when unknown.
	WriteReader(ctx context.Context, path string, reader io.Reader, size int64) error

	ReadTo(ctx context.Context, path string, writer io.Writer) error

	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)

	Close() error
	// Type is "local", "s3" or "azure".
	Type() string
}

// contentType picks the object content type from the file extension.
func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(path, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
