//go:build unix

package source

import (
	"errors"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

var errMmapUnsupported = errors.New("mmap unsupported")

func mapFile(f *os.File, size int64) ([]byte, error) {
	if size > math.MaxInt {
		return nil, errMmapUnsupported
	}
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
}

func unmapFile(data []byte) error {
	return unix.Munmap(data)
}
