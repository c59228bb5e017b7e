package naming

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadseer/naming/resolve"
	"github.com/cadseer/naming/store"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "no cause",
			err:  &Error{Op: "Service.Resolve", Kind: KindUnresolvable},
			want: "naming: Service.Resolve: unresolvable",
		},
		{
			name: "cause",
			err:  &Error{Op: "Service.LoadHistory", Kind: KindNotFound, Err: store.ErrNotFound},
			want: "naming: Service.LoadHistory (not_found): store: not found",
		},
		{
			name: "context",
			err:  &Error{Op: "Op", Kind: KindStore, Err: errors.New("down"), Context: map[string]any{"project": "bracket"}},
			want: "naming: Op (store): down [context: map[project:bracket]]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Error{Op: "Service.SaveHistory", Kind: KindStore, Err: store.ErrInvalidName})

	assert.ErrorIs(t, err, &Error{Kind: KindStore})
	assert.ErrorIs(t, err, &Error{Op: "Service.SaveHistory", Kind: KindStore})
	assert.NotErrorIs(t, err, &Error{Op: "Service.LoadHistory", Kind: KindStore})
	assert.NotErrorIs(t, err, &Error{Kind: KindNotFound})
	assert.ErrorIs(t, err, store.ErrInvalidName)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Service.SaveHistory", e.Op)
}

func TestWithContextCopies(t *testing.T) {
	orig := &Error{Op: "Op", Kind: KindInternal, Context: map[string]any{"a": 1}}
	next := orig.WithContext(map[string]any{"b": 2})

	assert.Equal(t, map[string]any{"a": 1}, orig.Context)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, next.Context)
}

func TestWrapClassifies(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{store.ErrNotFound, KindNotFound},
		{fmt.Errorf("x: %w", store.ErrInvalidName), KindValidation},
		{&resolve.Unresolvable{Reason: resolve.FeatureGone}, KindUnresolvable},
		{ErrInvalidConfig, KindConfiguration},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			var e *Error
			require.ErrorAs(t, wrap("Op", tt.err), &e)
			assert.Equal(t, tt.kind, e.Kind)
		})
	}
	assert.NoError(t, wrap("Op", nil))
	assert.NoError(t, storeErr("Op", nil))

	var e *Error
	require.ErrorAs(t, storeErr("Op", errors.New("connection refused")), &e)
	assert.Equal(t, KindStore, e.Kind)
}

type failingCloser struct{ err error }

func (c failingCloser) Close() error { return c.err }

func TestCloseWithLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	CloseWithLog(failingCloser{}, logger, "ok")
	assert.Empty(t, buf.String())

	CloseWithLog(failingCloser{errors.New("disk full")}, logger, "history store")
	assert.Contains(t, buf.String(), "failed to close resource")
	assert.Contains(t, buf.String(), "history store")
	assert.Contains(t, buf.String(), "disk full")

	// A nil closer is ignored.
	CloseWithLog(nil, logger, "nothing")
}
