package wpilog

// ControlKind is the one-byte discriminator at the start of a control payload.
type ControlKind uint8

const (
	ControlStart       ControlKind = 0
	ControlFinish      ControlKind = 1
	ControlSetMetadata ControlKind = 2
)

func (k ControlKind) String() string {
	switch k {
	case ControlStart:
		return "start"
	case ControlFinish:
		return "finish"
	case ControlSetMetadata:
		return "set-metadata"
	default:
		return "unknown"
	}
}

// Known reports whether the discriminator names a defined control record.
func (k ControlKind) Known() bool { return k <= ControlSetMetadata }

// Control is a decoded control record. Name and TypeToken are set only for
// Start; Metadata for Start and SetMetadata.
type Control struct {
	Kind      ControlKind
	EntryID   uint32
	Name      string
	TypeToken string
	Metadata  string
}

// DecodeControl interprets the payload of an entry-id-0 record.
//
// Missing fixed-shape fields are always a ParseError. An unrecognized
// discriminator is returned with Known() == false and no further decoding;
// the record framing already delimits its payload, so it can be dropped.
func DecodeControl(rec Record) (Control, error) {
	c := NewCursor(rec.Payload)
	kind, err := c.ReadU8()
	if err != nil {
		return Control{}, newEntryError(KindParse, rec.Offset, 0, "empty control record")
	}

	ctl := Control{Kind: ControlKind(kind)}
	if !ctl.Kind.Known() {
		return ctl, nil
	}

	entry, err := c.ReadU32()
	if err != nil {
		return Control{}, newEntryError(KindParse, rec.Offset, 0, "truncated %s control record", ctl.Kind)
	}
	ctl.EntryID = entry

	switch ctl.Kind {
	case ControlStart:
		if ctl.Name, err = c.ReadString(); err != nil {
			return Control{}, newEntryError(KindParse, rec.Offset, entry, "start record: truncated name")
		}
		if ctl.TypeToken, err = c.ReadString(); err != nil {
			return Control{}, newEntryError(KindParse, rec.Offset, entry, "start record: truncated type")
		}
		if ctl.Metadata, err = c.ReadString(); err != nil {
			return Control{}, newEntryError(KindParse, rec.Offset, entry, "start record: truncated metadata")
		}
	case ControlSetMetadata:
		if ctl.Metadata, err = c.ReadString(); err != nil {
			return Control{}, newEntryError(KindParse, rec.Offset, entry, "set-metadata record: truncated metadata")
		}
	}

	return ctl, nil
}
