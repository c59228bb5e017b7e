package health

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/project"
	"github.com/cadseer/naming/store/badgerstore"
)

func quiet() project.Option {
	return project.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStoreCheck(t *testing.T) {
	s, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)

	status := StoreCheck(context.Background(), s, "bracket")
	assert.True(t, status.IsHealthy(), status.String())

	require.NoError(t, s.Close())
	status = StoreCheck(context.Background(), s, "bracket")
	assert.True(t, status.IsUnhealthy(), status.String())
	assert.Contains(t, status.Details, "error")

	assert.True(t, StoreCheck(context.Background(), nil, "bracket").IsUnhealthy())
}

func TestNetworkCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	tests := []struct {
		name    string
		address string
		healthy bool
	}{
		{"listening", ln.Addr().String(), true},
		{"closed port", "127.0.0.1:1", false},
		{"empty", "", false},
		{"malformed", "no-port", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			status := NetworkCheck(ctx, tt.address)
			assert.Equal(t, tt.healthy, status.IsHealthy(), status.String())
			assert.NotEmpty(t, status.Message)
		})
	}
}

func TestFileCheck(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "MANIFEST")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	assert.True(t, FileCheck(dir).IsHealthy())
	assert.True(t, FileCheck(file).IsUnhealthy())
	assert.True(t, FileCheck(filepath.Join(dir, "missing")).IsUnhealthy())
	assert.True(t, FileCheck("").IsUnhealthy())
}

func TestHistoryCheck(t *testing.T) {
	ctx := context.Background()
	assert.True(t, HistoryCheck(nil, 0.5).IsUnhealthy())
	assert.True(t, HistoryCheck(history.New(), 0.5).IsHealthy())

	p := project.New(quiet())
	box := project.NewBox(2, 1, 1)
	require.NoError(t, p.Add(box))
	require.NoError(t, p.Update(ctx))
	r, _ := p.Result(box.ID())
	edge, _ := r.Anchor("edge.00")
	split := project.NewSplit(box.ID(), pick.New(box.ID(), p.History(), pick.SelectPart, edge), "cut")
	require.NoError(t, p.Add(split))
	require.NoError(t, p.Update(ctx))
	assert.True(t, HistoryCheck(p.History(), 0.1).IsHealthy())

	// The removed split's nodes stay in the graph until compaction.
	require.NoError(t, p.Remove(split.ID()))
	status := HistoryCheck(p.History(), 0.1)
	assert.True(t, status.IsDegraded(), status.String())
	assert.True(t, HistoryCheck(p.History(), 0.9).IsHealthy())
}

func TestProjectCheck(t *testing.T) {
	ctx := context.Background()
	assert.True(t, ProjectCheck(nil).IsUnhealthy())

	p := project.New(quiet())
	box := project.NewBox(2, 1, 1)
	require.NoError(t, p.Add(box))
	require.NoError(t, p.Update(ctx))
	assert.True(t, ProjectCheck(p).IsHealthy())

	box.Height = 0
	require.NoError(t, p.Touch(box.ID()))
	require.Error(t, p.Update(ctx))
	status := ProjectCheck(p)
	assert.True(t, status.IsUnhealthy())
	assert.Equal(t, []string{box.ID().Short()}, status.Details["failed"])
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name   string
		checks []Status
		want   string
	}{
		{"none", nil, StatusHealthy},
		{"all healthy", []Status{Healthy("a"), Healthy("b")}, StatusHealthy},
		{"one degraded", []Status{Healthy("a"), Degraded("b", nil)}, StatusDegraded},
		{"unhealthy wins", []Status{Degraded("a", nil), Unhealthy("b", nil), Healthy("c")}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Combine(tt.checks...).Status)
		})
	}

	got := Combine(Unhealthy("", nil), Degraded("slow", nil))
	assert.Equal(t, []string{"unnamed check"}, got.Details["failed_checks"])
	assert.Equal(t, 1, got.Details["degraded"])
}
