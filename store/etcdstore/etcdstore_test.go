package etcdstore

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cadseer/naming/store/storetest"
)

func TestKeyLayout(t *testing.T) {
	tests := []struct {
		namespace string
		want      string
	}{
		{"", "/naming/bracket/history"},
		{"cad", "/cad/bracket/history"},
		{"/cad/", "/cad/bracket/history"},
	}
	for _, tt := range tests {
		t.Run(tt.namespace, func(t *testing.T) {
			assert.Equal(t, tt.want, keysFor(tt.namespace).History("bracket"))
		})
	}
	assert.Equal(t, "/naming/bracket/refs/fillet", keysFor("").Reference("bracket", "fillet"))
}

func TestNewRequiresEndpoints(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "endpoints cannot be empty")
}

// TestStore runs against a live cluster named by NAMING_ETCD_ENDPOINTS.
func TestStore(t *testing.T) {
	endpoints := os.Getenv("NAMING_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("NAMING_ETCD_ENDPOINTS not set")
	}
	s, err := New(Config{
		Endpoints: strings.Split(endpoints, ","),
		Namespace: "naming-test-" + strings.ReplaceAll(t.Name(), "/", "-"),
	})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.client.Delete(ctx, s.keys.Prefix, clientv3.WithPrefix())
	require.NoError(t, err)
	storetest.Run(t, s)
}
