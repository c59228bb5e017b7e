// Package redisstore implements store.Store on Redis.
//
// History snapshots are plain string keys. References of a project live in
// one hash so that listing them is a single HKEYS. Every SaveHistory also
// publishes an Update on the project's updates channel.
package redisstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/store"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Namespace prefixes every key. Defaults to "naming".
	Namespace string

	// TLS configuration for secure connections
	TLS *tls.Config

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	Logger *slog.Logger
}

// Update is published after a history snapshot is saved.
type Update struct {
	Project  string    `json:"project"`
	Features int       `json:"features"`
	Edges    int       `json:"edges"`
	Live     int       `json:"live"`
	Saved    time.Time `json:"saved"`
}

// Store keeps naming state in Redis.
type Store struct {
	client *redis.Client
	keys   store.Keys
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with a ping.
func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Namespace == "" {
		opts.Namespace = "naming"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client: client,
		keys:   store.Keys{Prefix: opts.Namespace + ":", Sep: ":"},
		logger: opts.Logger.With("component", "redisstore"),
	}, nil
}

// SaveHistory writes the snapshot and publishes an Update in one transaction.
func (s *Store) SaveHistory(ctx context.Context, project string, g *history.Graph) error {
	if err := s.keys.Check(project); err != nil {
		return err
	}
	data, err := store.EncodeHistory(g)
	if err != nil {
		return err
	}
	st := g.Stats()
	msg, err := json.Marshal(Update{
		Project:  project,
		Features: st.Features,
		Edges:    st.Edges,
		Live:     st.Live,
		Saved:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.History(project), data, 0)
		pipe.Publish(ctx, s.keys.Updates(project), msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save history of %s: %w", project, err)
	}
	s.logger.DebugContext(ctx, "history saved", "project", project, "bytes", len(data))
	return nil
}

// LoadHistory reads the snapshot of project.
func (s *Store) LoadHistory(ctx context.Context, project string, opts ...history.Option) (*history.Graph, error) {
	if err := s.keys.Check(project); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.keys.History(project)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("history of %s: %w", project, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", project, err)
	}
	return history.Decode(data, opts...)
}

// SaveReference stores ref in the project's reference hash.
func (s *Store) SaveReference(ctx context.Context, project, name string, ref *pick.Reference) error {
	if err := s.keys.Check(project, name); err != nil {
		return err
	}
	data, err := store.EncodeReference(ref)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.keys.ReferenceSet(project), name, data).Err(); err != nil {
		return fmt.Errorf("failed to save reference %s: %w", name, err)
	}
	return nil
}

// LoadReference reads one reference.
func (s *Store) LoadReference(ctx context.Context, project, name string) (*pick.Reference, error) {
	if err := s.keys.Check(project, name); err != nil {
		return nil, err
	}
	data, err := s.client.HGet(ctx, s.keys.ReferenceSet(project), name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reference %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reference %s: %w", name, err)
	}
	return pick.Decode(data)
}

// ListReferences returns the sorted reference names of project.
func (s *Store) ListReferences(ctx context.Context, project string) ([]string, error) {
	if err := s.keys.Check(project); err != nil {
		return nil, err
	}
	names, err := s.client.HKeys(ctx, s.keys.ReferenceSet(project)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list references of %s: %w", project, err)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteReference removes one reference.
func (s *Store) DeleteReference(ctx context.Context, project, name string) error {
	if err := s.keys.Check(project, name); err != nil {
		return err
	}
	n, err := s.client.HDel(ctx, s.keys.ReferenceSet(project), name).Result()
	if err != nil {
		return fmt.Errorf("failed to delete reference %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("reference %s: %w", name, store.ErrNotFound)
	}
	return nil
}

// Subscribe delivers an Update for every history snapshot saved for project.
// The channel closes when ctx is done.
func (s *Store) Subscribe(ctx context.Context, project string) (<-chan Update, error) {
	if err := s.keys.Check(project); err != nil {
		return nil, err
	}
	channel := s.keys.Updates(project)
	pubsub := s.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	updates := make(chan Update)
	go func() {
		defer close(updates)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					s.logger.Warn("skipping malformed update", "channel", channel, "error", err)
					continue
				}
				select {
				case updates <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return updates, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
