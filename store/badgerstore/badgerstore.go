// Package badgerstore implements store.Store on an embedded BadgerDB.
//
// Keys follow store.Keys with a "/" separator:
//
//	/naming/<project>/history
//	/naming/<project>/refs/<name>
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/store"
)

// Config holds configuration for the database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	InMemory   bool
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often value log garbage collection runs. Zero
	// disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns a durable on-disk configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store keeps naming state in BadgerDB.
type Store struct {
	db   *badger.DB
	keys store.Keys

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ store.Store = (*Store)(nil)

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With("component", "badgerstore")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{
		db:   db,
		keys: store.Keys{Prefix: "/naming/", Sep: "/"},
		stop: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 {
			ratio = 0.5
		}
		s.wg.Add(1)
		go s.collect(cfg.GCInterval, ratio)
	}
	return s, nil
}

// collect runs value log GC until Close.
func (s *Store) collect(every time.Duration, ratio float64) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// RunValueLogGC rewrites one file per call; ErrNoRewrite ends the round.
			for {
				if err := s.db.RunValueLogGC(ratio); err != nil {
					break
				}
			}
		}
	}
}

func (s *Store) put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *Store) get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	return value, err
}

// SaveHistory writes the snapshot of g.
func (s *Store) SaveHistory(_ context.Context, project string, g *history.Graph) error {
	if err := s.keys.Check(project); err != nil {
		return err
	}
	data, err := store.EncodeHistory(g)
	if err != nil {
		return err
	}
	if err := s.put(s.keys.History(project), data); err != nil {
		return fmt.Errorf("save history of %s: %w", project, err)
	}
	return nil
}

// LoadHistory reads the snapshot of project.
func (s *Store) LoadHistory(_ context.Context, project string, opts ...history.Option) (*history.Graph, error) {
	if err := s.keys.Check(project); err != nil {
		return nil, err
	}
	data, err := s.get(s.keys.History(project))
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", project, err)
	}
	return history.Decode(data, opts...)
}

// SaveReference stores ref under name.
func (s *Store) SaveReference(_ context.Context, project, name string, ref *pick.Reference) error {
	if err := s.keys.Check(project, name); err != nil {
		return err
	}
	data, err := store.EncodeReference(ref)
	if err != nil {
		return err
	}
	if err := s.put(s.keys.Reference(project, name), data); err != nil {
		return fmt.Errorf("save reference %s: %w", name, err)
	}
	return nil
}

// LoadReference reads the reference stored under name.
func (s *Store) LoadReference(_ context.Context, project, name string) (*pick.Reference, error) {
	if err := s.keys.Check(project, name); err != nil {
		return nil, err
	}
	data, err := s.get(s.keys.Reference(project, name))
	if err != nil {
		return nil, fmt.Errorf("load reference %s: %w", name, err)
	}
	return pick.Decode(data)
}

// ListReferences returns the reference names of project. Badger iterates
// keys in byte order, so the names come back sorted.
func (s *Store) ListReferences(_ context.Context, project string) ([]string, error) {
	if err := s.keys.Check(project); err != nil {
		return nil, err
	}
	prefix := []byte(s.keys.References(project))
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if name, ok := s.keys.ReferenceName(project, string(it.Item().Key())); ok {
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list references of %s: %w", project, err)
	}
	return names, nil
}

// DeleteReference removes the reference stored under name.
func (s *Store) DeleteReference(_ context.Context, project, name string) error {
	if err := s.keys.Check(project, name); err != nil {
		return err
	}
	key := []byte(s.keys.Reference(project, name))
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("reference %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete reference %s: %w", name, err)
	}
	return nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
