package wpilog

import (
	"errors"
	"io"
	"slices"

	"github.com/rs/zerolog"
)

// Entry is one discovered column. Column is fixed at first sighting of the
// entry's start record and never changes.
type Entry struct {
	ID        uint32
	Name      string
	Type      ColumnType
	TypeToken string
	Metadata  string
	Column    int
}

// Schema is the ordered column registry produced by schema inference.
type Schema struct {
	Header  Header
	Entries []Entry
	byID    map[uint32]int
}

func newSchema(h Header) *Schema {
	return &Schema{Header: h, byID: make(map[uint32]int)}
}

// Len returns the number of data columns (the timestamp column excluded).
func (s *Schema) Len() int { return len(s.Entries) }

// Lookup returns the entry registered for id.
func (s *Schema) Lookup(id uint32) (Entry, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return s.Entries[i], true
}

// Names returns the column names in output order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		names[i] = e.Name
	}
	return names
}

// entryTracker replays control records in stream order. During inference it
// registers entries; once frozen it only tracks which ids are active, which
// both passes need to decide whether a data record is valid at its position.
type entryTracker struct {
	schema *Schema
	active map[uint32]bool
	frozen bool
	logger zerolog.Logger
}

func newEntryTracker(schema *Schema, frozen bool, logger zerolog.Logger) *entryTracker {
	return &entryTracker{
		schema: schema,
		active: make(map[uint32]bool),
		frozen: frozen,
		logger: logger,
	}
}

func (t *entryTracker) isActive(id uint32) bool { return t.active[id] }

// apply processes one control record.
func (t *entryTracker) apply(rec Record, ctl Control) error {
	switch ctl.Kind {
	case ControlStart:
		return t.start(rec, ctl)
	case ControlFinish:
		delete(t.active, ctl.EntryID)
	case ControlSetMetadata:
		if t.frozen {
			return nil
		}
		if i, ok := t.schema.byID[ctl.EntryID]; ok {
			t.schema.Entries[i].Metadata = ctl.Metadata
		}
	default:
		t.logger.Debug().
			Uint8("discriminator", uint8(ctl.Kind)).
			Int("offset", rec.Offset).
			Msg("Ignoring unknown control record")
	}
	return nil
}

// start registers or reopens an entry. A start whose name or type differs
// from the entry already registered under the same id is rejected, whether
// or not the earlier entry has been finished.
func (t *entryTracker) start(rec Record, ctl Control) error {
	colType, known := ResolveType(ctl.TypeToken)

	if i, ok := t.schema.byID[ctl.EntryID]; ok {
		prev := t.schema.Entries[i]
		if prev.Name != ctl.Name || prev.TypeToken != ctl.TypeToken {
			return newEntryError(KindSchema, rec.Offset, ctl.EntryID,
				"entry redefined from %q (%s) to %q (%s)", prev.Name, prev.TypeToken, ctl.Name, ctl.TypeToken)
		}
		if !t.frozen {
			t.schema.Entries[i].Metadata = ctl.Metadata
		}
		t.active[ctl.EntryID] = true
		return nil
	}

	if t.frozen {
		// Unreachable for a span that passed inference.
		return newEntryError(KindSchema, rec.Offset, ctl.EntryID, "entry %q was not discovered during inference", ctl.Name)
	}

	if !known {
		t.logger.Warn().
			Uint32("entry", ctl.EntryID).
			Str("name", ctl.Name).
			Str("type", ctl.TypeToken).
			Msg("Unknown type token, storing entry as string")
	}

	t.schema.byID[ctl.EntryID] = len(t.schema.Entries)
	t.schema.Entries = append(t.schema.Entries, Entry{
		ID:        ctl.EntryID,
		Name:      ctl.Name,
		Type:      colType,
		TypeToken: ctl.TypeToken,
		Metadata:  ctl.Metadata,
		Column:    len(t.schema.Entries),
	})
	t.active[ctl.EntryID] = true
	return nil
}

// TimestampIndex maps each distinct data timestamp to its row.
type TimestampIndex struct {
	values []int64
	rows   map[int64]int
}

// newTimestampIndex sorts and deduplicates ts in place.
func newTimestampIndex(ts []int64) *TimestampIndex {
	slices.Sort(ts)
	ts = slices.Compact(ts)
	rows := make(map[int64]int, len(ts))
	for i, v := range ts {
		rows[v] = i
	}
	return &TimestampIndex{values: ts, rows: rows}
}

// Len returns the number of rows.
func (x *TimestampIndex) Len() int { return len(x.values) }

// Row returns the row for timestamp ts.
func (x *TimestampIndex) Row(ts int64) (int, bool) {
	r, ok := x.rows[ts]
	return r, ok
}

// Values returns the ascending distinct timestamps.
func (x *TimestampIndex) Values() []int64 { return x.values }

// inference is the output of pass 1.
type inference struct {
	schema   *Schema
	index    *TimestampIndex
	records  int
	controls int
}

// inferSchema walks every record once, applying control records and
// collecting the timestamps of data records that reference an active entry.
func inferSchema(r *Reader, opts Options) (*inference, error) {
	logger := opts.logger()
	schema := newSchema(r.Header())
	tracker := newEntryTracker(schema, false, logger)
	res := &inference{schema: schema}

	var timestamps []int64
	last, haveLast := int64(0), false

	it := r.Records()
	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if opts.Lenient && isTrailingDataFailure(err) {
				logger.Warn().Err(err).Msg("Stopping schema inference at malformed trailing record")
				break
			}
			return nil, err
		}
		res.records++

		if rec.IsControl() {
			res.controls++
			ctl, err := DecodeControl(rec)
			if err != nil {
				return nil, err
			}
			if err := tracker.apply(rec, ctl); err != nil {
				return nil, err
			}
			continue
		}

		if !tracker.isActive(rec.EntryID) {
			continue
		}
		// Logs are mostly time-ordered; skip the obvious duplicates early.
		if haveLast && rec.Timestamp == last {
			continue
		}
		timestamps = append(timestamps, rec.Timestamp)
		last, haveLast = rec.Timestamp, true
	}

	if schema.Len() == 0 {
		return nil, newError(KindSchema, r.Len(), "no entries found")
	}

	res.index = newTimestampIndex(timestamps)

	logger.Debug().
		Int("records", res.records).
		Int("control_records", res.controls).
		Int("columns", schema.Len()).
		Int("rows", res.index.Len()).
		Msg("Schema inference complete")

	return res, nil
}
