// Package etcdstore implements store.Store on an etcd cluster.
//
// Keys live under "/<namespace>/":
//
//	/naming/<project>/history
//	/naming/<project>/refs/<name>
package etcdstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/store"
)

// Config configures the etcd connection.
type Config struct {
	Endpoints []string

	// Namespace is the root key segment. Defaults to "naming".
	Namespace string

	DialTimeout time.Duration
	TLS         *tls.Config
}

// Store keeps naming state in etcd.
type Store struct {
	client *clientv3.Client
	keys   store.Keys
}

var _ store.Store = (*Store)(nil)

// keysFor returns the key layout of namespace.
func keysFor(namespace string) store.Keys {
	namespace = strings.Trim(namespace, "/")
	if namespace == "" {
		namespace = "naming"
	}
	return store.Keys{Prefix: "/" + namespace + "/", Sep: "/"}
}

// New connects to the cluster and checks that it answers.
func New(cfg Config) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcdstore: endpoints cannot be empty")
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dial,
		TLS:         cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Store{client: cli, keys: keysFor(cfg.Namespace)}, nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, store.ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

// SaveHistory writes the snapshot of g.
func (s *Store) SaveHistory(ctx context.Context, project string, g *history.Graph) error {
	if err := s.keys.Check(project); err != nil {
		return err
	}
	data, err := store.EncodeHistory(g)
	if err != nil {
		return err
	}
	if _, err := s.client.Put(ctx, s.keys.History(project), string(data)); err != nil {
		return fmt.Errorf("failed to save history of %s: %w", project, err)
	}
	return nil
}

// LoadHistory reads the snapshot of project.
func (s *Store) LoadHistory(ctx context.Context, project string, opts ...history.Option) (*history.Graph, error) {
	if err := s.keys.Check(project); err != nil {
		return nil, err
	}
	data, err := s.get(ctx, s.keys.History(project))
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", project, err)
	}
	return history.Decode(data, opts...)
}

// SaveReference stores ref under name.
func (s *Store) SaveReference(ctx context.Context, project, name string, ref *pick.Reference) error {
	if err := s.keys.Check(project, name); err != nil {
		return err
	}
	data, err := store.EncodeReference(ref)
	if err != nil {
		return err
	}
	if _, err := s.client.Put(ctx, s.keys.Reference(project, name), string(data)); err != nil {
		return fmt.Errorf("failed to save reference %s: %w", name, err)
	}
	return nil
}

// LoadReference reads the reference stored under name.
func (s *Store) LoadReference(ctx context.Context, project, name string) (*pick.Reference, error) {
	if err := s.keys.Check(project, name); err != nil {
		return nil, err
	}
	data, err := s.get(ctx, s.keys.Reference(project, name))
	if err != nil {
		return nil, fmt.Errorf("failed to load reference %s: %w", name, err)
	}
	return pick.Decode(data)
}

// ListReferences returns the reference names of project, sorted by key.
func (s *Store) ListReferences(ctx context.Context, project string) ([]string, error) {
	if err := s.keys.Check(project); err != nil {
		return nil, err
	}
	resp, err := s.client.Get(ctx, s.keys.References(project),
		clientv3.WithPrefix(),
		clientv3.WithKeysOnly(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list references of %s: %w", project, err)
	}
	names := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if name, ok := s.keys.ReferenceName(project, string(kv.Key)); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// DeleteReference removes the reference stored under name.
func (s *Store) DeleteReference(ctx context.Context, project, name string) error {
	if err := s.keys.Check(project, name); err != nil {
		return err
	}
	resp, err := s.client.Delete(ctx, s.keys.Reference(project, name))
	if err != nil {
		return fmt.Errorf("failed to delete reference %s: %w", name, err)
	}
	if resp.Deleted == 0 {
		return fmt.Errorf("reference %s: %w", name, store.ErrNotFound)
	}
	return nil
}

// Watch reports the project whenever its history snapshot changes. The
// channel closes when ctx is done or the watch fails.
func (s *Store) Watch(ctx context.Context, project string) (<-chan string, error) {
	if err := s.keys.Check(project); err != nil {
		return nil, err
	}
	ch := make(chan string, 1)
	watch := s.client.Watch(ctx, s.keys.History(project))
	go func() {
		defer close(ch)
		for resp := range watch {
			if resp.Err() != nil {
				return
			}
			select {
			case ch <- project:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close closes the etcd client.
func (s *Store) Close() error {
	return s.client.Close()
}
