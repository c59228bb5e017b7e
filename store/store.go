// Package store persists project naming state: the history graph snapshot
// and named references.
//
// Three backends implement Store:
//
//   - redisstore keeps state in Redis and announces history updates on a
//     pub/sub channel, for tools that watch a shared project.
//   - badgerstore embeds BadgerDB, on disk or in memory.
//   - etcdstore keeps state in an etcd cluster under a key namespace.
//
// Values are the byte-stable wire encodings of history.Graph and
// pick.Reference, so the same state always stores as the same bytes.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/pick"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidName is returned for empty names or names containing the
	// key separator.
	ErrInvalidName = errors.New("store: invalid name")
)

// Store persists project naming state.
type Store interface {
	// SaveHistory writes a snapshot of g for project, replacing any earlier
	// one.
	SaveHistory(ctx context.Context, project string, g *history.Graph) error

	// LoadHistory reads the snapshot of project. It returns ErrNotFound when
	// none was saved.
	LoadHistory(ctx context.Context, project string, opts ...history.Option) (*history.Graph, error)

	// SaveReference stores ref under name.
	SaveReference(ctx context.Context, project, name string, ref *pick.Reference) error

	// LoadReference reads the reference stored under name.
	LoadReference(ctx context.Context, project, name string) (*pick.Reference, error)

	// ListReferences returns the reference names of project, sorted.
	ListReferences(ctx context.Context, project string) ([]string, error)

	// DeleteReference removes a reference. It returns ErrNotFound when the
	// name does not exist.
	DeleteReference(ctx context.Context, project, name string) error

	Close() error
}

// Keys lays out backend keys under a namespace:
//
//	<prefix><project><sep>history
//	<prefix><project><sep>refs<sep><name>
type Keys struct {
	Prefix string
	Sep    string
}

// History returns the history snapshot key of project.
func (k Keys) History(project string) string {
	return k.Prefix + project + k.Sep + "history"
}

// ReferenceSet returns the key holding every reference of project, for
// backends that keep them in one hash.
func (k Keys) ReferenceSet(project string) string {
	return k.Prefix + project + k.Sep + "refs"
}

// References returns the key prefix of every reference of project.
func (k Keys) References(project string) string {
	return k.ReferenceSet(project) + k.Sep
}

// Reference returns the key of one reference.
func (k Keys) Reference(project, name string) string {
	return k.References(project) + name
}

// Updates returns the channel on which history updates of project are
// announced.
func (k Keys) Updates(project string) string {
	return k.Prefix + project + k.Sep + "updates"
}

// ReferenceName extracts the reference name from a key of project.
func (k Keys) ReferenceName(project, key string) (string, bool) {
	return strings.CutPrefix(key, k.References(project))
}

// Check validates project and reference names against the separator.
func (k Keys) Check(names ...string) error {
	for _, n := range names {
		if n == "" || (k.Sep != "" && strings.Contains(n, k.Sep)) {
			return fmt.Errorf("%w: %q", ErrInvalidName, n)
		}
	}
	return nil
}

// EncodeHistory returns the snapshot bytes of g.
func EncodeHistory(g *history.Graph) ([]byte, error) {
	data, err := g.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("store: encode history: %w", err)
	}
	return data, nil
}

// EncodeReference returns the wire bytes of ref.
func EncodeReference(ref *pick.Reference) ([]byte, error) {
	data, err := ref.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("store: encode reference: %w", err)
	}
	return data, nil
}
