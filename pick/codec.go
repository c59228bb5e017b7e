package pick

import (
	"fmt"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/topo"
	"github.com/cadseer/naming/wire"
)

// Reference message fields.
//
//	message Reference {
//	  bytes          origin    = 1;
//	  repeated bytes ids       = 2;
//	  bytes          fragment  = 3;
//	  uint32         selection = 4;
//	  double         u         = 5;
//	  double         v         = 6;
//	  string         tag       = 7;
//	  repeated uint32 kinds    = 8;
//	}
//
// Zero-valued scalars are omitted.
const (
	fieldOrigin    = 1
	fieldIDs       = 2
	fieldFragment  = 3
	fieldSelection = 4
	fieldU         = 5
	fieldV         = 6
	fieldTag       = 7
	fieldKinds     = 8
)

// MarshalBinary encodes r. Equal references encode to equal bytes.
func (r *Reference) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(nil), nil
}

// AppendBinary appends the encoding of r to b.
func (r *Reference) AppendBinary(b []byte) []byte {
	b = wire.AppendFeature(b, fieldOrigin, r.Origin)
	for _, id := range r.IDs {
		b = wire.AppendID(b, fieldIDs, id)
	}
	if r.Fragment != nil {
		b = wire.AppendBytes(b, fieldFragment, r.Fragment.AppendBinary(nil))
	}
	if r.Selection != SelectPart {
		b = wire.AppendVarint(b, fieldSelection, uint64(r.Selection))
	}
	if r.U != 0 {
		b = wire.AppendFloat(b, fieldU, r.U)
	}
	if r.V != 0 {
		b = wire.AppendFloat(b, fieldV, r.V)
	}
	if r.Tag != "" {
		b = wire.AppendString(b, fieldTag, r.Tag)
	}
	for _, k := range r.Kinds {
		b = wire.AppendVarint(b, fieldKinds, uint64(k))
	}
	return b
}

// UnmarshalBinary decodes b into r.
func (r *Reference) UnmarshalBinary(b []byte) error {
	var out Reference
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case fieldOrigin:
			origin, err := f.Feature()
			if err != nil {
				return err
			}
			out.Origin = origin
		case fieldIDs:
			id, err := f.ID()
			if err != nil {
				return err
			}
			out.IDs = append(out.IDs, id)
		case fieldFragment:
			frag, err := history.DecodeFragment(f.Bytes)
			if err != nil {
				return err
			}
			out.Fragment = frag
		case fieldSelection:
			if f.Int >= uint64(len(selectionNames)) {
				return fmt.Errorf("%w: selection %d", wire.ErrMalformed, f.Int)
			}
			out.Selection = Selection(f.Int)
		case fieldU:
			out.U = f.Float()
		case fieldV:
			out.V = f.Float()
		case fieldTag:
			out.Tag = string(f.Bytes)
		case fieldKinds:
			if f.Int > uint64(topo.Vertex) {
				return fmt.Errorf("%w: kind %d", wire.ErrMalformed, f.Int)
			}
			out.Kinds = append(out.Kinds, topo.Kind(f.Int))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pick: decode reference: %w", err)
	}
	*r = out
	return nil
}

// Decode decodes a reference written by MarshalBinary.
func Decode(b []byte) (*Reference, error) {
	r := new(Reference)
	if err := r.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return r, nil
}
