package history

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/wire"
)

func TestCreateFragment(t *testing.T) {
	c := newChain(t)
	fc, x := ident.NewFeature(), ident.New()
	c.g.AppendLedger(fc, ledger(rec(c.b1, x)))

	frag := c.g.CreateFragment(fc, x)
	require.Equal(t, 3, frag.Len())

	root, ok := frag.Root(x)
	require.True(t, ok)
	assert.Equal(t, Node{Feature: fc, ID: x}, frag.Node(root))

	levels := frag.Levels(root)
	require.Len(t, levels, 2)
	assert.Equal(t, []Node{{Feature: c.fb, ID: c.b1}}, levels[0])
	assert.Equal(t, []Node{{Feature: c.fa, ID: c.a1}}, levels[1])

	_, ok = frag.Root(c.b1)
	assert.False(t, ok)
	assert.True(t, frag.Has(Node{Feature: c.fa, ID: c.a1}))
}

func TestCreateFragmentDepth(t *testing.T) {
	c := newChain(t, WithFragmentDepth(1))
	fc, x := ident.NewFeature(), ident.New()
	c.g.AppendLedger(fc, ledger(rec(c.b1, x)))

	frag := c.g.CreateFragment(fc, x)
	assert.Equal(t, 2, frag.Len())
	assert.False(t, frag.Has(Node{Feature: c.fa, ID: c.a1}))
}

func TestCreateFragmentUnknown(t *testing.T) {
	g := New()
	f, id := ident.NewFeature(), ident.New()
	frag := g.CreateFragment(f, id, id)

	assert.Equal(t, 1, frag.Len())
	assert.Len(t, frag.Roots(), 1)
	assert.Empty(t, frag.Levels(0))
}

func TestFragmentSharedAncestor(t *testing.T) {
	c := newChain(t)
	frag := c.g.CreateFragment(c.fb, c.b1, c.b2)

	assert.Equal(t, 3, frag.Len())
	assert.Len(t, frag.Roots(), 2)
	assert.Len(t, frag.Steps(), 2)
}

func TestFragmentCodec(t *testing.T) {
	c := newChain(t)
	frag := c.g.CreateFragment(c.fb, c.b1, c.b3)

	data, err := frag.MarshalBinary()
	require.NoError(t, err)
	back, err := DecodeFragment(data)
	require.NoError(t, err)

	assert.Equal(t, frag.Nodes(), back.Nodes())
	assert.Equal(t, frag.Steps(), back.Steps())
	assert.Equal(t, frag.Roots(), back.Roots())

	again, err := back.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestFragmentCodecRejectsBadIndex(t *testing.T) {
	frag := NewFragment()
	frag.addRoot(Node{Feature: ident.NewFeature(), ID: ident.New()})
	data, err := frag.MarshalBinary()
	require.NoError(t, err)

	// Append a root pointing past the arena.
	data = append(data, 0x18, 0x07)
	_, err = DecodeFragment(data)
	assert.Error(t, err)
}

func TestFragmentCodecRejectsWideIndex(t *testing.T) {
	frag := NewFragment()
	frag.addRoot(Node{Feature: ident.NewFeature(), ID: ident.New()})
	base, err := frag.MarshalBinary()
	require.NoError(t, err)

	// 1<<32 would wrap to node 0, which exists.
	wide := uint64(math.MaxUint32) + 1
	tests := []struct {
		name  string
		extra []byte
	}{
		{"root", wire.AppendVarint(nil, fragRoots, wide)},
		{"step child", wire.AppendBytes(nil, fragSteps, wire.AppendVarint(wire.AppendVarint(nil, stepChild, wide), stepParent, 0))},
		{"step parent", wire.AppendBytes(nil, fragSteps, wire.AppendVarint(wire.AppendVarint(nil, stepChild, 0), stepParent, wide))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(slices.Clone(base), tt.extra...)
			_, err := DecodeFragment(data)
			assert.ErrorIs(t, err, wire.ErrMalformed)
		})
	}
}

func TestFragmentMerge(t *testing.T) {
	c := newChain(t)
	one := c.g.CreateFragment(c.fb, c.b1)
	two := c.g.CreateFragment(c.fb, c.b3)

	one.Merge(two)
	assert.Equal(t, 4, one.Len())
	assert.Len(t, one.Roots(), 2)

	root, ok := one.Root(c.b3)
	require.True(t, ok)
	levels := one.Levels(root)
	require.Len(t, levels, 1)
	assert.Equal(t, []Node{{Feature: c.fa, ID: c.a2}}, levels[0])

	one.Merge(nil)
	assert.Equal(t, 4, one.Len())
}

func TestNilFragment(t *testing.T) {
	var frag *Fragment
	assert.Zero(t, frag.Len())
	assert.Nil(t, frag.Roots())
	assert.False(t, frag.Has(Node{}))
	_, ok := frag.Root(ident.New())
	assert.False(t, ok)
	assert.Nil(t, frag.Levels(0))
}
