package evolve

import (
	"fmt"

	"github.com/cadseer/naming/wire"
)

// Ledger message fields.
//
//	message Ledger {
//	  repeated Record records  = 1;
//	  repeated bytes  anchored = 2;
//	}
//	message Record {
//	  bytes source = 1;
//	  bytes target = 2;
//	}
const (
	fieldRecords  = 1
	fieldAnchored = 2

	fieldSource = 1
	fieldTarget = 2
)

// MarshalBinary encodes the records and anchored identifiers in insertion
// order. The prior ledger is not part of the encoding.
func (l *Ledger) MarshalBinary() ([]byte, error) {
	return l.AppendBinary(nil), nil
}

// AppendBinary appends the encoding of l to b.
func (l *Ledger) AppendBinary(b []byte) []byte {
	var rec []byte
	for _, r := range l.records {
		rec = wire.AppendID(rec[:0], fieldSource, r.Source)
		rec = wire.AppendID(rec, fieldTarget, r.Target)
		b = wire.AppendBytes(b, fieldRecords, rec)
	}
	for _, id := range l.anchored {
		b = wire.AppendID(b, fieldAnchored, id)
	}
	return b
}

// UnmarshalBinary replaces the contents of l with the decoded ledger. The
// prior ledger is kept.
func (l *Ledger) UnmarshalBinary(b []byte) error {
	decoded, err := Decode(b)
	if err != nil {
		return err
	}
	decoded.prior = l.prior
	*l = *decoded
	return nil
}

// Decode parses a ledger encoded by MarshalBinary.
func Decode(b []byte) (*Ledger, error) {
	l := NewLedger(nil)
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case fieldRecords:
			r, err := decodeRecord(f.Bytes)
			if err != nil {
				return err
			}
			if r.Target.IsNil() {
				return fmt.Errorf("%w: record with nil target", wire.ErrMalformed)
			}
			l.Insert(r.Source, r.Target)
		case fieldAnchored:
			id, err := f.ID()
			if err != nil {
				return err
			}
			l.Anchor(id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evolve: decode ledger: %w", err)
	}
	return l, nil
}

func decodeRecord(b []byte) (Record, error) {
	var r Record
	err := wire.Walk(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case fieldSource:
			r.Source, err = f.ID()
		case fieldTarget:
			r.Target, err = f.ID()
		}
		return err
	})
	return r, err
}
