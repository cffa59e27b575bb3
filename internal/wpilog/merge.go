package wpilog

import (
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
)

// mergeAccumulator is pass 2: it re-walks the records and writes every data
// payload into its column at the row of its timestamp.
type mergeAccumulator struct {
	reader   *Reader
	schema   *Schema
	index    *TimestampIndex
	tracker  *entryTracker
	builders []*ColumnBuilder
	decoder  payloadDecoder
	strict   bool
	logger   zerolog.Logger

	skipped []SkippedRecord
	written int
}

func newMergeAccumulator(r *Reader, inf *inference, opts Options) *mergeAccumulator {
	logger := opts.logger()
	rows := inf.index.Len()
	builders := make([]*ColumnBuilder, inf.schema.Len())
	for i, e := range inf.schema.Entries {
		builders[i] = NewColumnBuilder(e, rows)
	}
	return &mergeAccumulator{
		reader:   r,
		schema:   inf.schema,
		index:    inf.index,
		tracker:  newEntryTracker(inf.schema, true, logger),
		builders: builders,
		decoder:  payloadDecoder{decodeMsgpack: opts.DecodeMsgpack},
		strict:   !opts.Lenient,
		logger:   logger,
	}
}

func (m *mergeAccumulator) run() error {
	it := m.reader.Records()
	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Framing failures exhaust the iterator, so skipping means stopping.
			if !m.strict && isTrailingDataFailure(err) {
				m.skip(err)
				break
			}
			return err
		}

		if rec.IsControl() {
			ctl, err := DecodeControl(rec)
			if err != nil {
				return err
			}
			if err := m.tracker.apply(rec, ctl); err != nil {
				return err
			}
			continue
		}

		if err := m.write(rec); err != nil {
			if m.strict {
				return err
			}
			m.skip(err)
		}
	}

	for _, e := range m.schema.Entries {
		if n := m.decoder.repaired[e.ID]; n > 0 {
			m.logger.Warn().
				Str("entry", e.Name).
				Uint32("entry_id", e.ID).
				Int("values", n).
				Msg("Replaced invalid UTF-8 in string values")
		}
	}

	m.logger.Debug().
		Int("values", m.written).
		Int("skipped", len(m.skipped)).
		Msg("Merge pass complete")
	return nil
}

// write decodes one data record and stores it. Errors are InvalidEntry or
// ParseError carrying the record offset and entry id.
func (m *mergeAccumulator) write(rec Record) error {
	entry, ok := m.schema.Lookup(rec.EntryID)
	if !ok {
		return newEntryError(KindInvalidEntry, rec.Offset, rec.EntryID, "data record for entry that was never started")
	}
	if !m.tracker.isActive(rec.EntryID) {
		return newEntryError(KindInvalidEntry, rec.Offset, rec.EntryID, "data record for finished entry %q", entry.Name)
	}

	row, ok := m.index.Row(rec.Timestamp)
	if !ok {
		// Pass 1 indexed every timestamp of an active entry in the same span.
		return newEntryError(KindParse, rec.Offset, rec.EntryID, "timestamp %d missing from index", rec.Timestamp)
	}

	v, err := m.decoder.decode(entry, rec.Payload)
	if err != nil {
		e := newEntryError(KindParse, rec.Offset, rec.EntryID, "entry %q: %v", entry.Name, err)
		e.Err = err
		return e
	}

	if err := m.builders[entry.Column].Set(row, v); err != nil {
		var we *Error
		if errors.As(err, &we) {
			we.Offset = rec.Offset
		}
		return err
	}
	m.written++
	return nil
}

func (m *mergeAccumulator) skip(err error) {
	s := SkippedRecord{Err: err}
	var we *Error
	if errors.As(err, &we) {
		s.Offset, s.EntryID, s.HasEntry = we.Offset, we.EntryID, we.HasEntry
	}
	m.skipped = append(m.skipped, s)

	ev := m.logger.Warn().Err(err).Int("offset", s.Offset)
	if s.HasEntry {
		ev = ev.Uint32("entry", s.EntryID)
	}
	ev.Msg("Skipping malformed data record")
}

func (m *mergeAccumulator) finish(mem memory.Allocator) *Table {
	return assembleTable(m.schema, m.index, m.builders, m.skipped, mem)
}
