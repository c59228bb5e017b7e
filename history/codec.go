package history

import (
	"fmt"
	"slices"

	"github.com/cadseer/naming/evolve"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/wire"
)

// Snapshot message fields.
//
//	message Graph {
//	  repeated Feature features = 1; // append order
//	  repeated Edge    edges    = 2; // insertion order
//	}
//	message Feature {
//	  bytes  id      = 1;
//	  uint64 epoch   = 2;
//	  bool   removed = 3;
//	  bytes  ledger  = 4;
//	}
//	message Edge {
//	  Node   from    = 1;
//	  Node   to      = 2;
//	  bytes  feature = 3;
//	  uint64 epoch   = 4;
//	  bool   link    = 5;
//	}
const (
	graphFeatures = 1
	graphEdges    = 2

	featureID      = 1
	featureEpoch   = 2
	featureRemoved = 3
	featureLedger  = 4

	edgeFrom    = 1
	edgeTo      = 2
	edgeFeature = 3
	edgeEpoch   = 4
	edgeLink    = 5
)

// MarshalBinary encodes a snapshot of the graph. Graphs built by the same
// sequence of calls encode to the same bytes.
func (g *Graph) MarshalBinary() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var b, msg, sub []byte
	for _, f := range g.featuresBySeq() {
		st := g.features[f]
		msg = wire.AppendFeature(msg[:0], featureID, f)
		msg = wire.AppendVarint(msg, featureEpoch, uint64(st.epoch))
		if st.removed {
			msg = wire.AppendVarint(msg, featureRemoved, 1)
		}
		if st.ledger != nil {
			msg = wire.AppendBytes(msg, featureLedger, st.ledger.AppendBinary(sub[:0]))
		}
		b = wire.AppendBytes(b, graphFeatures, msg)
	}
	for _, e := range g.edges {
		msg = wire.AppendBytes(msg[:0], edgeFrom, appendNode(sub[:0], e.from))
		msg = wire.AppendBytes(msg, edgeTo, appendNode(sub[:0], e.to))
		msg = wire.AppendFeature(msg, edgeFeature, e.feature)
		msg = wire.AppendVarint(msg, edgeEpoch, uint64(e.epoch))
		if e.link {
			msg = wire.AppendVarint(msg, edgeLink, 1)
		}
		b = wire.AppendBytes(b, graphEdges, msg)
	}
	return b, nil
}

// Decode rebuilds a graph from a snapshot written by MarshalBinary.
func Decode(b []byte, opts ...Option) (*Graph, error) {
	g := New(opts...)
	err := wire.Walk(b, func(fd wire.Field) error {
		switch fd.Num {
		case graphFeatures:
			return g.decodeFeature(fd.Bytes)
		case graphEdges:
			return g.decodeEdge(fd.Bytes)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: decode snapshot: %w", err)
	}
	return g, nil
}

func (g *Graph) decodeFeature(b []byte) error {
	var (
		f  ident.FeatureID
		st = &featureState{}
	)
	err := wire.Walk(b, func(fd wire.Field) error {
		var err error
		switch fd.Num {
		case featureID:
			f, err = fd.Feature()
		case featureEpoch:
			st.epoch = int(fd.Int)
		case featureRemoved:
			st.removed = fd.Int != 0
		case featureLedger:
			st.ledger, err = evolve.Decode(fd.Bytes)
		}
		return err
	})
	if err != nil {
		return err
	}
	if _, dup := g.features[f]; dup {
		return fmt.Errorf("%w: duplicate feature %s", wire.ErrMalformed, f)
	}
	if st.ledger == nil {
		st.ledger = evolve.NewLedger(nil)
	}
	g.seq++
	st.seq = g.seq
	st.live = st.ledger.Live()
	g.features[f] = st
	for _, id := range st.live.Sorted() {
		g.addNode(Node{Feature: f, ID: id})
	}
	return nil
}

func (g *Graph) decodeEdge(b []byte) error {
	var e edge
	err := wire.Walk(b, func(fd wire.Field) error {
		var err error
		switch fd.Num {
		case edgeFrom:
			e.from, err = decodeNode(fd.Bytes)
		case edgeTo:
			e.to, err = decodeNode(fd.Bytes)
		case edgeFeature:
			e.feature, err = fd.Feature()
		case edgeEpoch:
			e.epoch = int(fd.Int)
		case edgeLink:
			e.link = fd.Int != 0
		}
		return err
	})
	if err != nil {
		return err
	}
	if _, dup := g.index[edgeKey{from: e.from, to: e.to}]; dup {
		return fmt.Errorf("%w: duplicate edge %s -> %s", wire.ErrMalformed, e.from, e.to)
	}
	g.addEdge(e.from, e.to, e.feature, e.epoch, e.link)
	return nil
}

// Equal reports whether two graphs hold the same features, ledgers and
// edges, ignoring insertion order. Dead nodes without edges are not compared.
func (g *Graph) Equal(other *Graph) bool {
	if g == other {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	if len(g.features) != len(other.features) || len(g.edges) != len(other.edges) {
		return false
	}
	for f, st := range g.features {
		ot, ok := other.features[f]
		if !ok || st.epoch != ot.epoch || st.removed != ot.removed {
			return false
		}
		if !slices.Equal(st.ledger.Records(), ot.ledger.Records()) || !slices.Equal(st.ledger.Anchored(), ot.ledger.Anchored()) {
			return false
		}
	}
	for _, e := range g.edges {
		i, ok := other.index[edgeKey{from: e.from, to: e.to}]
		if !ok {
			return false
		}
		oe := other.edges[i]
		if oe.feature != e.feature || oe.epoch != e.epoch || oe.link != e.link {
			return false
		}
	}
	return true
}
