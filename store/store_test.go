package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	k := Keys{Prefix: "naming:", Sep: ":"}
	assert.Equal(t, "naming:bracket:history", k.History("bracket"))
	assert.Equal(t, "naming:bracket:refs:fillet", k.Reference("bracket", "fillet"))
	assert.Equal(t, "naming:bracket:refs", k.ReferenceSet("bracket"))
	assert.Equal(t, "naming:bracket:updates", k.Updates("bracket"))

	name, ok := k.ReferenceName("bracket", "naming:bracket:refs:fillet")
	assert.True(t, ok)
	assert.Equal(t, "fillet", name)
	_, ok = k.ReferenceName("other", "naming:bracket:refs:fillet")
	assert.False(t, ok)
}

func TestKeysCheck(t *testing.T) {
	k := Keys{Prefix: "/naming/", Sep: "/"}
	assert.NoError(t, k.Check("bracket", "fillet.edge"))
	assert.ErrorIs(t, k.Check("a/b"), ErrInvalidName)
	assert.ErrorIs(t, k.Check("ok", ""), ErrInvalidName)
}
