package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name   string
		counts Counts
		want   Verdict
	}{
		{"all resolved", Counts{Requested: 3, Resolved: 3}, OK},
		{"split is fine", Counts{Requested: 1, Resolved: 1, Ambiguous: 1}, OK},
		{"partial", Counts{Requested: 3, Resolved: 2, Dropped: 1}, Warn},
		{"nothing", Counts{Requested: 2, Dropped: 2}, Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Evaluate(tt.counts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomPolicy(t *testing.T) {
	p, err := NewPolicy("via_ancestor > 0 && requested == 1", "ambiguous > 0")
	require.NoError(t, err)

	v, err := p.Evaluate(Counts{Requested: 1, Resolved: 1, ViaAncestor: 1})
	require.NoError(t, err)
	assert.Equal(t, Fatal, v)

	v, err = p.Evaluate(Counts{Requested: 2, Resolved: 2, Ambiguous: 1})
	require.NoError(t, err)
	assert.Equal(t, Warn, v)

	// Empty rules never fire.
	none, err := NewPolicy("", "")
	require.NoError(t, err)
	v, err = none.Evaluate(Counts{Requested: 1, Dropped: 1})
	require.NoError(t, err)
	assert.Equal(t, OK, v)
}

func TestPolicyRejectsBadRules(t *testing.T) {
	_, err := NewPolicy("dropped >", "")
	assert.Error(t, err)

	_, err = NewPolicy("dropped + 1", "")
	assert.ErrorContains(t, err, "want bool")

	_, err = NewPolicy("", "unknown_var > 0")
	assert.Error(t, err)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "ok", OK.String())
	assert.Equal(t, "warn", Warn.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "verdict(7)", Verdict(7).String())
}
