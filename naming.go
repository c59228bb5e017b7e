package naming

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/cadseer/naming/config"
	"github.com/cadseer/naming/feature"
	"github.com/cadseer/naming/health"
	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/project"
	"github.com/cadseer/naming/resolve"
	"github.com/cadseer/naming/store"
	"github.com/cadseer/naming/store/badgerstore"
	"github.com/cadseer/naming/store/etcdstore"
	"github.com/cadseer/naming/store/redisstore"
	"github.com/cadseer/naming/telemetry"
)

// Service ties the naming packages to one configuration: it builds projects
// with the configured plans and history settings, resolves references under
// the configured policy and persists state in the configured store.
//
// All methods are safe for concurrent use. Projects it creates are not.
type Service struct {
	cfg         *config.Config
	logger      *slog.Logger
	instruments *telemetry.Instruments
	resolver    *resolve.Resolver
	store       store.Store

	mu     sync.RWMutex
	closed bool
}

// New creates a service. Configuration comes from WithConfig, else from
// WithConfigPath, else defaults.
func New(opts ...Option) (*Service, error) {
	sc := &serviceConfig{}
	for _, opt := range opts {
		opt(sc)
	}

	cfg := sc.cfg
	if cfg == nil && sc.configPath != "" {
		loaded, err := config.Load(sc.configPath)
		if err != nil {
			return nil, &Error{Op: "New", Kind: KindConfiguration, Err: fmt.Errorf("%w: %w", ErrInvalidConfig, err)}
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Op: "New", Kind: KindConfiguration, Err: fmt.Errorf("%w: %w", ErrInvalidConfig, err)}
	}

	logger := sc.logger
	if logger == nil {
		logger = cfg.Logger(os.Stderr)
	}

	tracer, meter := sc.tracer, sc.meter
	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		scope := cfg.Telemetry.GetScope()
		if tracer == nil {
			tracer = otel.Tracer(scope)
		}
		if meter == nil {
			meter = otel.Meter(scope)
		}
	}
	inst, err := telemetry.New(meter, tracer)
	if err != nil {
		return nil, &Error{Op: "New", Kind: KindInternal, Err: err}
	}

	policy, err := cfg.Resolve.Policy()
	if err != nil {
		return nil, &Error{Op: "New", Kind: KindConfiguration, Err: fmt.Errorf("%w: %w", ErrInvalidConfig, err)}
	}

	st := sc.store
	if st == nil {
		st, err = OpenStore(cfg.Store, logger)
		if err != nil {
			return nil, storeErr("New", err)
		}
	}

	logger.Debug("naming service ready",
		"store", cfg.Store.GetBackend(),
		"policy", policy.String(),
		"plans", len(cfg.Plans))
	return &Service{
		cfg:         cfg,
		logger:      logger,
		instruments: inst,
		resolver: resolve.New(
			resolve.WithLogger(logger),
			resolve.WithInstruments(inst),
			resolve.WithPolicy(policy)),
		store: st,
	}, nil
}

// OpenStore opens the backend described by sc. A nil sc or the memory
// backend yields an in-memory badger database.
func OpenStore(sc *config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch backend := sc.GetBackend(); backend {
	case config.BackendMemory:
		st, err = openBadger(badgerstore.InMemoryConfig())
	case config.BackendBadger:
		cfg := badgerstore.DefaultConfig(sc.Path)
		cfg.Logger = logger
		st, err = openBadger(cfg)
	case config.BackendRedis:
		var rs *redisstore.Store
		rs, err = redisstore.New(redisstore.Options{
			URL:            sc.GetRedisURL(),
			Namespace:      sc.GetNamespace(),
			ConnectTimeout: sc.GetTimeout(),
			Logger:         logger,
		})
		if err == nil {
			st = rs
		}
	case config.BackendEtcd:
		var es *etcdstore.Store
		es, err = etcdstore.New(etcdstore.Config{
			Endpoints:   sc.EtcdEndpoints,
			Namespace:   sc.GetNamespace(),
			DialTimeout: sc.GetTimeout(),
		})
		if err == nil {
			st = es
		}
	default:
		err = fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, backend)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func openBadger(cfg badgerstore.Config) (store.Store, error) {
	bs, err := badgerstore.Open(cfg)
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (s *Service) check(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &Error{Op: op, Kind: KindInternal, Err: ErrClosed}
	}
	return nil
}

// Config returns the configuration in use.
func (s *Service) Config() *config.Config { return s.cfg }

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger { return s.logger }

// Resolver returns the configured resolver.
func (s *Service) Resolver() *resolve.Resolver { return s.resolver }

// Store returns the backing store.
func (s *Service) Store() store.Store { return s.store }

func (s *Service) historyOptions() []history.Option {
	return []history.Option{
		history.WithLogger(s.logger),
		history.WithFragmentDepth(s.cfg.History.GetFragmentDepth()),
	}
}

// NewProject returns an empty project using the configured plans, history
// settings and resolver. opts are applied last.
func (s *Service) NewProject(opts ...project.Option) *project.Project {
	base := []project.Option{
		project.WithLogger(s.logger),
		project.WithInstruments(s.instruments),
		project.WithResolver(s.resolver),
		project.WithHistory(history.New(s.historyOptions()...)),
		project.WithCompaction(s.cfg.History.GetCompactKeep()),
	}
	for kind := range s.cfg.Plans {
		// Plans were validated in New.
		if plan, err := s.cfg.Plan(kind); err == nil && plan != nil {
			base = append(base, project.WithPlan(kind, plan))
		}
	}
	return project.New(append(base, opts...)...)
}

// SaveHistory persists the history graph of a project under name.
func (s *Service) SaveHistory(ctx context.Context, name string, g *history.Graph) error {
	const op = "Service.SaveHistory"
	if err := s.check(op); err != nil {
		return err
	}
	return storeErr(op, s.store.SaveHistory(ctx, name, g))
}

// LoadHistory reads the history graph saved under name.
func (s *Service) LoadHistory(ctx context.Context, name string) (*history.Graph, error) {
	const op = "Service.LoadHistory"
	if err := s.check(op); err != nil {
		return nil, err
	}
	g, err := s.store.LoadHistory(ctx, name, s.historyOptions()...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return g, nil
}

// SaveReference persists ref under name in project.
func (s *Service) SaveReference(ctx context.Context, projectName, name string, ref *pick.Reference) error {
	const op = "Service.SaveReference"
	if err := s.check(op); err != nil {
		return err
	}
	return storeErr(op, s.store.SaveReference(ctx, projectName, name, ref))
}

// LoadReference reads a saved reference.
func (s *Service) LoadReference(ctx context.Context, projectName, name string) (*pick.Reference, error) {
	const op = "Service.LoadReference"
	if err := s.check(op); err != nil {
		return nil, err
	}
	ref, err := s.store.LoadReference(ctx, projectName, name)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return ref, nil
}

// ListReferences returns the saved reference names of a project.
func (s *Service) ListReferences(ctx context.Context, projectName string) ([]string, error) {
	const op = "Service.ListReferences"
	if err := s.check(op); err != nil {
		return nil, err
	}
	names, err := s.store.ListReferences(ctx, projectName)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return names, nil
}

// DeleteReference removes a saved reference.
func (s *Service) DeleteReference(ctx context.Context, projectName, name string) error {
	const op = "Service.DeleteReference"
	if err := s.check(op); err != nil {
		return err
	}
	return storeErr(op, s.store.DeleteReference(ctx, projectName, name))
}

// Resolve resolves ref against payload. The set is returned alongside an
// unresolvable error when one exists, as resolve.Resolver does.
func (s *Service) Resolve(ctx context.Context, ref *pick.Reference, payload *feature.Payload, opts ...resolve.CallOption) (*resolve.Set, error) {
	const op = "Service.Resolve"
	if err := s.check(op); err != nil {
		return nil, err
	}
	set, err := s.resolver.Resolve(ctx, ref, payload, opts...)
	if err != nil {
		e := &Error{Op: op, Kind: KindUnresolvable, Err: err}
		return set, e.WithContext(map[string]any{
			"reference": ref.String(),
			"reason":    strings.ReplaceAll(resolve.ReasonOf(err).String(), " ", "_"),
		})
	}
	return set, nil
}

// Health checks the store backend. The store answers a listing for a probe
// project, and the database directory or network endpoints it depends on are
// checked where the backend has them.
func (s *Service) Health(ctx context.Context) health.Status {
	if err := s.check("Service.Health"); err != nil {
		return health.Unhealthy("service closed", nil)
	}
	checks := []health.Status{health.StoreCheck(ctx, s.store, "health")}
	sc := s.cfg.Store
	switch sc.GetBackend() {
	case config.BackendBadger:
		checks = append(checks, health.FileCheck(sc.Path))
	case config.BackendRedis:
		if opt, err := redis.ParseURL(sc.GetRedisURL()); err == nil {
			checks = append(checks, health.NetworkCheck(ctx, opt.Addr))
		}
	case config.BackendEtcd:
		for _, ep := range sc.EtcdEndpoints {
			checks = append(checks, health.NetworkCheck(ctx, endpointAddress(ep)))
		}
	}
	return health.Combine(checks...)
}

// endpointAddress strips the scheme from an etcd endpoint.
func endpointAddress(ep string) string {
	if u, err := url.Parse(ep); err == nil && u.Host != "" {
		return u.Host
	}
	return ep
}

// Close closes the store. Calling Close twice is harmless.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.store.Close(); err != nil {
		return storeErr("Service.Close", err)
	}
	return nil
}
