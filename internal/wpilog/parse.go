package wpilog

import (
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
)

// Options controls a parse.
type Options struct {
	// Lenient skips malformed data records and lists them in
	// Table.Skipped. The zero value aborts on the first one.
	Lenient bool
	// DecodeMsgpack renders entries typed "msgpack" as JSON text.
	DecodeMsgpack bool
	// Logger receives per-pass progress and skip warnings. Nil disables logging.
	Logger *zerolog.Logger
	// Allocator backs the arrow arrays. Nil uses memory.DefaultAllocator.
	Allocator memory.Allocator
}

// DefaultOptions returns strict options with logging disabled. It equals
// the zero value.
func DefaultOptions() Options {
	return Options{}
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return o.Logger.With().Str("component", "wpilog").Logger()
}

func (o Options) allocator() memory.Allocator {
	if o.Allocator == nil {
		return memory.DefaultAllocator
	}
	return o.Allocator
}

// InferSchema runs the first pass only and returns the ordered columns.
func InferSchema(data []byte, opts Options) (*Schema, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	inf, err := inferSchema(r, opts)
	if err != nil {
		return nil, err
	}
	return inf.schema, nil
}

// Parse decodes data into a dense table. data is borrowed for the duration
// of the call and never modified; the table does not reference it.
func Parse(data []byte, opts Options) (*Table, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	inf, err := inferSchema(r, opts)
	if err != nil {
		return nil, err
	}

	m := newMergeAccumulator(r, inf, opts)
	if err := m.run(); err != nil {
		return nil, err
	}
	return m.finish(opts.allocator()), nil
}

// Info summarizes a log without building columns.
type Info struct {
	Header         Header
	Size           int
	Records        int
	ControlRecords int
	Entries        int
	DataRecords    int
	FirstTimestamp int64
	LastTimestamp  int64
}

// Summarize walks the records once. Framing errors are returned as is;
// control records are only counted, except Start records which are
// decoded to count distinct entries.
func Summarize(data []byte) (*Info, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	info := &Info{Header: r.Header(), Size: r.Len()}
	entries := make(map[uint32]struct{})
	first := true

	it := r.Records()
	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		info.Records++
		if rec.IsControl() {
			info.ControlRecords++
			ctl, err := DecodeControl(rec)
			if err != nil {
				return nil, err
			}
			if ctl.Kind == ControlStart {
				entries[ctl.EntryID] = struct{}{}
			}
			continue
		}
		info.DataRecords++
		if first || rec.Timestamp < info.FirstTimestamp {
			info.FirstTimestamp = rec.Timestamp
		}
		if first || rec.Timestamp > info.LastTimestamp {
			info.LastTimestamp = rec.Timestamp
		}
		first = false
	}
	info.Entries = len(entries)
	return info, nil
}
