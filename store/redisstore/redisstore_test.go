package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadseer/naming/store/storetest"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New(Options{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStore(t *testing.T) {
	s, _ := setupTestStore(t)
	storetest.Run(t, s)
}

func TestKeyLayout(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	g, _, _ := storetest.Graph()
	require.NoError(t, s.SaveHistory(ctx, "bracket", g))
	assert.True(t, mr.Exists("naming:bracket:history"))
}

func TestSubscribe(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates, err := s.Subscribe(ctx, "bracket")
	require.NoError(t, err)

	g, _, _ := storetest.Graph()
	require.NoError(t, s.SaveHistory(ctx, "bracket", g))

	select {
	case u := <-updates:
		assert.Equal(t, "bracket", u.Project)
		assert.Equal(t, 2, u.Features)
		assert.Equal(t, 1, u.Edges)
	case <-ctx.Done():
		t.Fatal("no update received")
	}
}

func TestNew(t *testing.T) {
	t.Run("connection failure", func(t *testing.T) {
		_, err := New(Options{URL: "redis://127.0.0.1:1", ConnectTimeout: 200 * time.Millisecond})
		assert.ErrorContains(t, err, "failed to connect to Redis")
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := New(Options{URL: "not-a-url://"})
		assert.ErrorContains(t, err, "failed to parse Redis URL")
	})
}
