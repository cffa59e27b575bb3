//go:build !unix

package source

import (
	"errors"
	"os"
)

var errMmapUnsupported = errors.New("mmap unsupported")

func mapFile(*os.File, int64) ([]byte, error) { return nil, errMmapUnsupported }

func unmapFile([]byte) error { return nil }
