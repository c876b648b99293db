// Package app wires the sidecar's components into a running process
// (spec §4.I "executor/runtime glue"): configuration, the four bound
// listeners, protocol detection, the router and its per-key stacks,
// sensors, metrics and the drain coordinator, plus a small admin HTTP
// server on the control listener for health/version/process/status.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/thushan/olla-sidecard/internal/adapter/balancer"
	"github.com/thushan/olla-sidecard/internal/adapter/discovery"
	"github.com/thushan/olla-sidecard/internal/adapter/health"
	"github.com/thushan/olla-sidecard/internal/adapter/listener"
	"github.com/thushan/olla-sidecard/internal/adapter/protocol"
	"github.com/thushan/olla-sidecard/internal/adapter/reconnect"
	"github.com/thushan/olla-sidecard/internal/adapter/transparent"
	"github.com/thushan/olla-sidecard/internal/config"
	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
	"github.com/thushan/olla-sidecard/internal/drain"
	"github.com/thushan/olla-sidecard/internal/logger"
	"github.com/thushan/olla-sidecard/internal/metrics"
	"github.com/thushan/olla-sidecard/internal/router"
	"github.com/thushan/olla-sidecard/internal/runtime"
	"github.com/thushan/olla-sidecard/internal/sensors"
	"github.com/thushan/olla-sidecard/internal/stack"
	"go.uber.org/multierr"
)

// Application is the sidecar process: two transparent servers (inbound,
// outbound) sharing a worker pool, sensor bus and metrics registry, an
// admin server bound to the control listener, and a separate metrics
// server bound to the metrics listener.
type Application struct {
	StartTime time.Time
	logger    logger.StyledLogger

	configMu sync.RWMutex
	config   *config.Config

	pool      *runtime.Pool
	metrics   *metrics.Metrics
	sensorBus *sensors.Bus
	drainer   *drain.Coordinator

	inboundRouter  *router.Router
	outboundRouter *router.Router

	inboundSrv  *transparent.Server
	outboundSrv *transparent.Server

	admin           *http.Server
	adminListener   net.Listener
	metricsSrv      *http.Server
	metricsListener net.Listener

	rateLimiter *RateLimiter
	sizeLimiter *RequestSizeLimiter

	healthPool      *health.WorkerPool
	healthScheduler *health.HealthScheduler
	endpointRepo    *discovery.Repository

	telemetryLoop *runtime.ControlPlane
	reapLoop      *runtime.ControlPlane
	controllerSvc *discovery.ControllerService

	errCh chan error
}

// New constructs an Application: it loads configuration, builds the
// two dataplane stacks (inbound/outbound) and the admin server, but
// does not start accepting connections until Start is called.
func New(startTime time.Time, styledLogger logger.StyledLogger) (*Application, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	pool := runtime.NewPool(context.Background(), 0)
	met := metrics.New()
	bus := sensors.New(cfg.Sidecar.EventBufferCapacity)
	coordinator := drain.New()

	repo := discovery.NewRepository()
	plainLogger := styledLogger.GetUnderlying()
	discoverySvc := discovery.NewStaticService(repo, plainLogger)

	seedEndpoints := endpointsFromConfig(cfg.Discovery.Static.Endpoints)
	discoverySvc.Refresh(context.Background(), seedEndpoints)

	// A controller address replaces the static service as the stacks'
	// discovery source; the static seed list still fills the repository
	// the health checker probes. The generated gRPC client stream itself
	// is out of scope here (spec §4.F), so the service is constructed
	// with a nil stream and each of its subscriptions reports
	// DoesNotExist.
	var controllerSvc *discovery.ControllerService
	var activeDiscovery ports.DiscoveryService = discoverySvc
	if cfg.Sidecar.ControllerAddr != "" {
		controllerSvc, err = discovery.NewControllerService(cfg.Sidecar.ControllerAddr, nil, repo, plainLogger)
		if err != nil {
			return nil, fmt.Errorf("app: dial controller: %w", err)
		}
		activeDiscovery = controllerSvc
	}

	circuitBreaker := health.NewCircuitBreaker()
	healthClient := health.NewHealthClient(&http.Client{Timeout: health.DefaultHealthCheckerTimeout}, circuitBreaker)
	statusTracker := health.NewStatusTransitionTracker()
	healthPool := health.NewWorkerPool(
		health.DefaultHealthCheckerWorkerCount,
		health.BaseHealthCheckerQueueSize,
		healthClient,
		repo,
		statusTracker,
		styledLogger,
	)
	healthScheduler := health.NewHealthScheduler(healthPool.GetJobChannel())

	lbFactory := balancer.NewFactory()
	selector, err := lbFactory.Create(cfg.Proxy.LoadBalancer)
	if err != nil {
		return nil, fmt.Errorf("app: load balancer: %w", err)
	}
	lb := balancer.Wrap(selector)
	reconnector := reconnect.New()

	detector := protocol.New(cfg.Sidecar.Protocol.DisabledPorts, cfg.Sidecar.Protocol.DisabledDestinations, cfg.Sidecar.Protocol.DetectTimeout)

	inboundFactory := stack.NewFactory(stack.Config{
		Discovery:      activeDiscovery,
		Balancer:       lb,
		Reconnector:    reconnector,
		Sensors:        bus,
		Metrics:        met,
		BufferCapacity: cfg.Sidecar.Stack.BufferCapacity,
		InFlightLimit:  cfg.Sidecar.Stack.InFlightLimit,
		BindTimeout:    cfg.Sidecar.Stack.BindTimeout,
		ConnectTimeout: cfg.Sidecar.Stack.PublicConnectTimeout,
		Direction:      domain.DirectionInbound,
	})
	outboundFactory := stack.NewFactory(stack.Config{
		Discovery:      activeDiscovery,
		Balancer:       lb,
		Reconnector:    reconnector,
		Sensors:        bus,
		Metrics:        met,
		BufferCapacity: cfg.Sidecar.Stack.BufferCapacity,
		InFlightLimit:  cfg.Sidecar.Stack.InFlightLimit,
		BindTimeout:    cfg.Sidecar.Stack.BindTimeout,
		ConnectTimeout: cfg.Sidecar.Stack.PrivateConnectTimeout,
		Direction:      domain.DirectionOutbound,
	})

	inboundRouter := router.New(cfg.Sidecar.Router.InboundCapacity, inboundFactory)
	outboundRouter := router.New(cfg.Sidecar.Router.OutboundCapacity, outboundFactory)

	inboundListener, err := listener.Bind(cfg.Sidecar.Listeners.Inbound, domain.DirectionInbound, nil)
	if err != nil {
		return nil, fmt.Errorf("app: bind inbound listener: %w", err)
	}
	outboundListener, err := listener.Bind(cfg.Sidecar.Listeners.Outbound, domain.DirectionOutbound, nil)
	if err != nil {
		return nil, fmt.Errorf("app: bind outbound listener: %w", err)
	}

	inboundSrv := transparent.New(transparent.Config{
		Listener:  inboundListener,
		Detector:  detector,
		Router:    inboundRouter,
		Pool:      pool,
		Metrics:   met,
		Direction: domain.DirectionInbound,
		Logger:    styledLogger,
	})
	outboundSrv := transparent.New(transparent.Config{
		Listener:  outboundListener,
		Detector:  detector,
		Router:    outboundRouter,
		Pool:      pool,
		Metrics:   met,
		Direction: domain.DirectionOutbound,
		Logger:    styledLogger,
	})

	rateLimiter := NewRateLimiter(cfg.Server.RateLimits, styledLogger)
	sizeLimiter := NewRequestSizeLimiter(cfg.Server.RequestLimits, styledLogger)

	a := &Application{
		StartTime:       startTime,
		logger:          styledLogger,
		config:          cfg,
		pool:            pool,
		metrics:         met,
		sensorBus:       bus,
		drainer:         coordinator,
		inboundRouter:   inboundRouter,
		outboundRouter:  outboundRouter,
		inboundSrv:      inboundSrv,
		outboundSrv:     outboundSrv,
		rateLimiter:     rateLimiter,
		sizeLimiter:     sizeLimiter,
		healthPool:      healthPool,
		healthScheduler: healthScheduler,
		endpointRepo:    repo,
		controllerSvc:   controllerSvc,
		errCh:           make(chan error, 4),
	}

	adminListener, err := net.Listen("tcp", cfg.Sidecar.Listeners.Control)
	if err != nil {
		return nil, fmt.Errorf("app: bind control listener: %w", err)
	}
	a.adminListener = adminListener
	a.admin = &http.Server{Handler: a.buildAdminMux()}

	metricsListener, err := net.Listen("tcp", cfg.Sidecar.Listeners.Metrics)
	if err != nil {
		return nil, fmt.Errorf("app: bind metrics listener: %w", err)
	}
	a.metricsListener = metricsListener
	a.metricsSrv = &http.Server{Handler: met.Handler()}

	return a, nil
}

func (a *Application) buildAdminMux() http.Handler {
	registry := router.NewRouteRegistry(a.logger)
	registry.Register("/internal/health", a.rateLimiter.Middleware(true)(http.HandlerFunc(a.healthHandler)).ServeHTTP, "Health check endpoint")
	registry.Register("/internal/version", a.versionHandler, "Build and capability metadata")
	registry.Register("/internal/process", a.processStatsHandler, "Process memory and GC stats")
	registry.Register("/internal/status", a.statusHandler, "Router and telemetry status")

	mux := http.NewServeMux()
	registry.WireUp(mux)
	return a.sizeLimiter.Middleware(mux)
}

// Start runs the inbound and outbound transparent servers, the admin
// server and the metrics server, each on the worker pool, and registers
// every drainable with the drain coordinator.
func (a *Application) Start(ctx context.Context) error {
	watchInbound := a.drainer.Watch()
	watchOutbound := a.drainer.Watch()
	a.inboundSrv.ShutdownOn(ctx, watchInbound)
	a.outboundSrv.ShutdownOn(ctx, watchOutbound)

	go a.runServer(ctx, "inbound", a.inboundSrv.Serve)
	go a.runServer(ctx, "outbound", a.outboundSrv.Serve)

	go func() {
		if err := a.admin.Serve(a.adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server error", "error", err)
			a.errCh <- err
		}
	}()
	go func() {
		if err := a.metricsSrv.Serve(a.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
			a.errCh <- err
		}
	}()

	a.telemetryLoop = runtime.StartControlPlane(ctx, a.reportDroppedEvents)
	a.reapLoop = runtime.StartControlPlane(ctx, a.reapIdleRouters)

	a.healthPool.Start(a.healthScheduler)
	a.healthScheduler.Start(ctx, a.endpointRepo)

	go func() {
		select {
		case err := <-a.errCh:
			a.logger.Error("component startup error", "error", err)
		case <-ctx.Done():
		}
	}()

	a.logger.Info("Olla started",
		"inbound", a.config.Sidecar.Listeners.Inbound,
		"outbound", a.config.Sidecar.Listeners.Outbound,
		"control", a.config.Sidecar.Listeners.Control,
		"metrics", a.config.Sidecar.Listeners.Metrics)
	return nil
}

func (a *Application) runServer(ctx context.Context, name string, serve func(ctx context.Context) error) {
	if err := serve(ctx); err != nil {
		a.logger.Error("transparent server stopped", "server", name, "error", err)
		select {
		case a.errCh <- err:
		default:
		}
	}
}

// reportDroppedEvents periodically syncs the sensor bus's dropped-event
// counter and each router's resident-key count into their Prometheus
// gauges; both are polled rather than pushed per-change.
func (a *Application) reportDroppedEvents(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.SetDroppedEvents(a.sensorBus.DroppedCount())
			a.metrics.SetRouterSize(domain.DirectionInbound.String(), float64(a.inboundRouter.Len()))
			a.metrics.SetRouterSize(domain.DirectionOutbound.String(), float64(a.outboundRouter.Len()))
		}
	}
}

// reapIdleRouters periodically evicts resident router keys that have sat
// idle longer than metrics_retain_idle, closing their stacks so a
// service that stops seeing traffic eventually releases its discovery
// subscription and endpoint-set pump rather than lingering forever
// (spec §4.D "Eviction. LRU by last-use timestamp"). The check interval
// is a fraction of the idle threshold itself so a key is never resident
// much longer than configured; a threshold of 0 disables both the check
// and ReapIdle's own no-op guard.
func (a *Application) reapIdleRouters(ctx context.Context) {
	maxIdle := a.config.Sidecar.Stack.MetricsRetainIdle
	if maxIdle <= 0 {
		return
	}
	interval := maxIdle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.inboundRouter.ReapIdle(maxIdle)
			a.outboundRouter.ReapIdle(maxIdle)
		}
	}
}

// Stop runs the three-phase drain sequence (spec §4.G): signal drain so
// every registered listener stops accepting, wait for in-flight work to
// finish, then shut down the worker pool and admin/metrics servers.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
	defer cancel()

	a.drainer.Signal()
	select {
	case <-a.drainer.Drained():
	case <-shutdownCtx.Done():
		a.logger.Warn("drain deadline exceeded, forcing shutdown")
	}

	a.pool.Shutdown()
	a.pool.Wait()

	a.telemetryLoop.Stop()
	a.reapLoop.Stop()
	a.inboundRouter.Close()
	a.outboundRouter.Close()
	a.sensorBus.Close()
	a.rateLimiter.Stop()
	a.healthScheduler.Stop()
	a.healthPool.Stop()

	// Every listener gets a chance to close even if an earlier one
	// failed: multierr.Append collects them into a single error rather
	// than short-circuiting on or hiding all but the first.
	var shutdownErr error
	if a.controllerSvc != nil {
		if err := a.controllerSvc.Close(); err != nil {
			a.logger.Error("controller connection close error", "error", err)
			shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("controller connection close: %w", err))
		}
	}
	if err := a.admin.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("admin server shutdown error", "error", err)
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("admin server shutdown: %w", err))
	}
	if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("metrics server shutdown error", "error", err)
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("metrics server shutdown: %w", err))
	}
	return shutdownErr
}

// statusHandler reports the dataplane's resident-key and dropped-event
// state — the sidecar-appropriate replacement for the model-routing
// proxy's endpoint/backend status report.
func (a *Application) statusHandler(w http.ResponseWriter, r *http.Request) {
	response := struct {
		InboundResidentKeys  int    `json:"inbound_resident_keys"`
		OutboundResidentKeys int    `json:"outbound_resident_keys"`
		DroppedEvents        uint64 `json:"dropped_telemetry_events"`
		LoadBalancer         string `json:"load_balancer"`
	}{
		InboundResidentKeys:  a.inboundRouter.Len(),
		OutboundResidentKeys: a.outboundRouter.Len(),
		DroppedEvents:        a.sensorBus.DroppedCount(),
		LoadBalancer:         a.getConfig().Proxy.LoadBalancer,
	}

	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// endpointsFromConfig converts the operator-supplied static endpoint
// list into domain.Endpoint values seeded into the Endpoint Set at
// startup. Malformed URLs are skipped rather than failing the whole
// application.
func endpointsFromConfig(entries []config.EndpointConfig) []*domain.Endpoint {
	out := make([]*domain.Endpoint, 0, len(entries))
	for _, e := range entries {
		u, err := url.Parse(e.URL)
		if err != nil {
			continue
		}
		healthURL := u
		if e.HealthCheckURL != "" {
			if hu, herr := url.Parse(e.HealthCheckURL); herr == nil {
				healthURL = hu
			}
		}

		checkInterval := e.CheckInterval
		if checkInterval <= 0 {
			checkInterval = 5 * time.Second
		}
		checkTimeout := e.CheckTimeout
		if checkTimeout <= 0 {
			checkTimeout = health.DefaultHealthCheckerTimeout
		}

		out = append(out, &domain.Endpoint{
			Name:                 e.Name,
			URL:                  u,
			URLString:            u.String(),
			Weight:               e.Priority,
			HealthCheckURL:       healthURL,
			HealthCheckURLString: healthURL.String(),
			CheckInterval:        checkInterval,
			CheckTimeout:         checkTimeout,
			Status:               domain.StatusUnknown,
			BackoffMultiplier:    1,
		})
	}
	return out
}
