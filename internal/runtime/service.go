package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/protowire/internal/runtime/config"
	"github.com/drblury/protowire/internal/runtime/dispatch"
	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/health"
	loggingpkg "github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/manifest"
	"github.com/drblury/protowire/internal/runtime/metrics"
	"github.com/drblury/protowire/internal/runtime/registrar"
	"github.com/drblury/protowire/internal/runtime/schema"
	"github.com/drblury/protowire/transport"
)

// ServiceDependencies holds the collaborators a Service can use. Leave fields
// nil to get the default.
type ServiceDependencies struct {
	// Handlers resolves manifest handler identifiers.
	Handlers registrar.Lookup
	// Manifest is used instead of reading Config.ManifestFile.
	Manifest *manifest.Manifest
	// Connection is used instead of building one from Config. A supplied
	// connection is not closed by Shutdown.
	Connection transport.Connection
	// Transports builds the connection. Defaults to transport.DefaultRegistry.
	Transports *transport.Registry
	// SchemaRegistry replaces the HTTP registry at Config.SchemaRegistryURL.
	SchemaRegistry schema.Registry
	SchemaResolver schema.Resolver
	// MetricsRegistry receives the message counters and backs /metrics.
	// Defaults to the prometheus default registry.
	MetricsRegistry *prometheus.Registry
	Tracer          trace.Tracer
	// Hooks run around every handler invocation, after the logging hooks.
	Hooks dispatch.Hooks
}

// Service binds the handlers declared in a manifest to a message bus.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	manifest    manifest.Manifest
	conn        transport.Connection
	ownsConn    bool
	recorder    *metrics.Recorder
	metricsReg  *prometheus.Registry
	validator   *schema.Validator
	dispatchers registrar.Dispatchers
	registrar   *registrar.Registrar
	health      *health.Indicator

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	resourceTracker *resourceTracker

	bindOnce     sync.Once
	bindErr      error
	shutdownOnce sync.Once
}

// NewService is TryNewService that panics on error.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService validates conf and the manifest, opens the connection and
// builds one dispatcher per handler kind. Handlers are bound by Bind or Start.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	withDefaults := conf.WithDefaults()
	conf = &withDefaults
	if err := conf.Validate(); err != nil {
		return nil, &errspkg.ConfigValidationError{Err: err}
	}

	log.Info("Creating event service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	m, err := loadManifest(conf, deps)
	if err != nil {
		return nil, err
	}

	s := &Service{
		Conf:            conf,
		Logger:          log,
		manifest:        m,
		metricsReg:      deps.MetricsRegistry,
		resourceTracker: newResourceTracker(),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if s.metricsReg != nil {
		registerer = s.metricsReg
	}
	s.recorder = metrics.NewRecorder(registerer, conf.MetricsEnabled)

	if conf.SchemaValidationEnabled || deps.SchemaRegistry != nil {
		if s.validator, err = newSchemaValidator(conf, log, deps); err != nil {
			return nil, err
		}
	}

	s.conn = deps.Connection
	if s.conn == nil {
		transports := deps.Transports
		if transports == nil {
			transports = transport.DefaultRegistry
		}
		if s.conn, err = transports.Build(ctx, conf, loggingpkg.NewWatermillAdapter(log)); err != nil {
			return nil, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
		}
		s.ownsConn = true
	}
	s.health = health.NewIndicator(s.conn)

	opts := dispatch.Options{
		Connection:   s.conn,
		Recorder:     s.recorder,
		Logger:       log,
		Tracer:       deps.Tracer,
		Hooks:        dispatch.LoggingHooks(log).Merge(deps.Hooks),
		DrainTimeout: conf.DrainTimeout,
		PoolSize:     conf.SupplierPoolSize,
	}
	if s.dispatchers, err = newDispatchers(m, opts); err != nil {
		s.closeConnection()
		return nil, err
	}
	s.registrar = registrar.New(s.dispatchers, deps.Handlers, log)

	return s, nil
}

func loadManifest(conf *configpkg.Config, deps ServiceDependencies) (manifest.Manifest, error) {
	if deps.Manifest == nil {
		return manifest.Load(conf.ManifestFile)
	}
	m := deps.Manifest.Enabled()
	if err := manifest.Validate(m); err != nil {
		return manifest.Manifest{}, err
	}
	return m, nil
}

func newSchemaValidator(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*schema.Validator, error) {
	reg := deps.SchemaRegistry
	if reg == nil {
		httpReg, err := schema.NewHTTPRegistry(conf.SchemaRegistryURL, &http.Client{Timeout: conf.SchemaRegistryTimeout})
		if err != nil {
			return nil, err
		}
		reg = httpReg
	}
	var opts []schema.ValidatorOption
	if deps.SchemaResolver != nil {
		opts = append(opts, schema.WithResolver(deps.SchemaResolver))
	}
	return schema.NewValidator(reg, log, opts...)
}

func newDispatchers(m manifest.Manifest, opts dispatch.Options) (registrar.Dispatchers, error) {
	var (
		d   registrar.Dispatchers
		err error
	)
	if d.Consumer, err = dispatch.NewConsumerDispatcher(m, opts); err != nil {
		return d, err
	}
	if d.Function, err = dispatch.NewFunctionDispatcher(m, opts); err != nil {
		return d, err
	}
	if d.FunctionFanout, err = dispatch.NewFunctionFanoutDispatcher(m, opts); err != nil {
		return d, err
	}
	if d.Supplier, err = dispatch.NewSupplierDispatcher(m, opts); err != nil {
		return d, err
	}
	if d.SupplierFanout, err = dispatch.NewSupplierFanoutDispatcher(m, opts); err != nil {
		return d, err
	}
	return d, nil
}

// Bind validates schema contracts when enabled and binds every manifest entry
// to its dispatcher. It runs once; later calls return the first result.
// Supplier loops and subscriptions live until ctx is done or Shutdown.
func (s *Service) Bind(ctx context.Context) error {
	s.bindOnce.Do(func() {
		if s.validator != nil {
			if err := s.validator.Validate(ctx, s.manifest); err != nil {
				s.bindErr = err
				return
			}
		}
		s.bindErr = s.registrar.RegisterAll(ctx, s.manifest)
		if s.bindErr == nil {
			s.Logger.Info("Handlers bound", loggingpkg.LogFields{"count": len(s.registrar.Registrations())})
		}
	})
	return s.bindErr
}

// Start binds the handlers, serves the HTTP endpoints and blocks until ctx is
// cancelled, then shuts the service down. A failed Bind is returned at once.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Bind(ctx); err != nil {
		s.Shutdown()
		return err
	}

	s.registerDefaultHTTPHandlers()
	servers := s.startHTTPServers()

	<-ctx.Done()
	s.Logger.Info("Stopping event service", nil)
	s.stopHTTPServers(servers)
	s.Shutdown()
	return nil
}

// Shutdown stops supplier loops, drains subscriptions and closes the
// connection when the service opened it. It is safe to call more than once.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.dispatchers.Shutdown()
		s.closeConnection()
	})
}

func (s *Service) closeConnection() {
	if !s.ownsConn || s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, errspkg.ErrConnectionClosed) {
		s.Logger.Warn("Failed to close connection", loggingpkg.LogFields{"error": err.Error()})
	}
}

// Manifest returns the enabled entries the service was built from.
func (s *Service) Manifest() manifest.Manifest {
	return s.manifest
}

// Registrations lists the bound handlers in binding order.
func (s *Service) Registrations() []registrar.Registration {
	return s.registrar.Registrations()
}

func (s *Service) Recorder() *metrics.Recorder {
	return s.recorder
}

func (s *Service) Health() health.Health {
	return s.health.Check()
}

func (s *Service) Connection() transport.Connection {
	return s.conn
}
