// Package transparent implements the C component (spec §4.C): the
// per-listener server that drives an accepted, protocol-detected
// Connection into the router and, through it, the recognized key's
// Service Stack — without inspecting or rewriting anything beyond the
// authority used to pick that key.
package transparent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
	"github.com/thushan/olla-sidecard/internal/logger"
	"github.com/thushan/olla-sidecard/internal/metrics"
)

// Server binds one BoundListener's accept loop to the router: each
// accepted connection is protocol-detected, recognized, and handed to
// its stack's Call, with errors mapped to a best-effort HTTP response
// for HTTP/1 connections and a plain close for everything else
// (spec §4.C "Error mapping").
type Server struct {
	listener  ports.BoundListener
	detector  ports.ProtocolDetector
	router    ports.Router
	pool      ports.Runtime
	metrics   *metrics.Metrics
	direction domain.Direction
	logger    logger.StyledLogger

	drainDeadline time.Duration
}

// Config bounds a Server's construction.
type Config struct {
	Listener      ports.BoundListener
	Detector      ports.ProtocolDetector
	Router        ports.Router
	Pool          ports.Runtime
	Metrics       *metrics.Metrics
	Direction     domain.Direction
	Logger        logger.StyledLogger
	DrainDeadline time.Duration
}

func New(cfg Config) *Server {
	return &Server{
		listener:      cfg.Listener,
		detector:      cfg.Detector,
		router:        cfg.Router,
		pool:          cfg.Pool,
		metrics:       cfg.Metrics,
		direction:     cfg.Direction,
		logger:        cfg.Logger,
		drainDeadline: cfg.DrainDeadline,
	}
}

// Serve runs the accept loop until the listener closes (spec §4.G:
// closing the listener is how drain "stops accepting new streams").
// Each accepted connection is dispatched onto the pool so one slow
// connection never blocks Accept.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transparent: accept: %w", err)
		}

		if ok := s.pool.Go(func(ctx context.Context) {
			s.handle(ctx, conn)
		}); !ok {
			conn.Close()
		}
	}
}

// ShutdownOn implements ports.Drainable: on drain signal, stop
// accepting new connections by closing the listener. In-flight calls
// continue on the pool, which the drain coordinator awaits separately
// (spec §4.G ordering: "drain listeners → drain in-flight → shutdown
// worker pool").
func (s *Server) ShutdownOn(ctx context.Context, watch ports.DrainWatcher) {
	go func() {
		select {
		case <-watch.Signaled():
			s.listener.Close()
		case <-ctx.Done():
		}
		watch.Release()
	}()
}

func (s *Server) handle(ctx context.Context, conn *domain.Connection) {
	defer conn.Close()
	start := time.Now()

	detected, err := s.detector.Detect(ctx, conn)
	if err != nil {
		s.logger.Warn("protocol detection failed", "error", err, "remote", conn.RemoteAddr())
		return
	}
	conn = detected

	authority := authorityOf(conn)

	handle, err := s.router.Recognize(ctx, conn)
	if err != nil {
		s.fail(conn, authority, err)
		return
	}

	svc, err := handle.Stack()
	if err != nil {
		s.fail(conn, authority, err)
		return
	}

	callErr := svc.Call(ctx, conn)
	s.metrics.ObserveConnectionDuration(s.direction.String(), time.Since(start).Seconds())

	status := http.StatusOK
	if callErr != nil {
		status = statusFor(callErr)
		s.writeHTTPError(conn, status, callErr.Error())
	}
	// Opaque tunnels never speak HTTP (spec §8 scenario 4: "no HTTP
	// metrics emitted"); tcp_bytes_total is incremented by splice itself,
	// inside the stack's Call.
	if conn.Protocol != domain.ProtocolOpaque {
		s.metrics.ObserveRequest(s.direction.String(), authority, fmt.Sprintf("%d", status))
	}
}

func (s *Server) fail(conn *domain.Connection, authority string, err error) {
	status := statusFor(err)
	s.writeHTTPError(conn, status, err.Error())
	if conn.Protocol != domain.ProtocolOpaque {
		s.metrics.ObserveRequest(s.direction.String(), authority, fmt.Sprintf("%d", status))
	}
}

// writeHTTPError emits a minimal response with reason for HTTP/1
// connections only; h2 and opaque connections get a plain close, which
// is the connection-level equivalent (spec §4.C: "Connection-level
// errors terminate the connection"). reason is written as the body so a
// client (or an operator reading a capture) sees why the connection
// failed rather than a bare status line (spec §8 scenario 6).
func (s *Server) writeHTTPError(conn *domain.Connection, status int, reason string) {
	if conn.Protocol != domain.ProtocolHTTP1 {
		return
	}
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(reason), reason)
}

func authorityOf(conn *domain.Connection) string {
	if conn.HasOriginalDst() {
		return conn.OriginalDst.String()
	}
	return conn.LocalAddr().String()
}

// statusFor maps the dataplane error taxonomy to an HTTP status
// (spec §4.C "Error mapping", §7).
func statusFor(err error) int {
	var noCap *domain.NoCapacityError
	var notRecognized *domain.NotRecognizedError
	var gone *domain.ServiceGoneError
	var notFound *domain.DiscoveryNotFoundError
	var timeout *domain.TimeoutError
	var upstream *domain.UpstreamConnectError

	switch {
	case errors.As(err, &noCap):
		return http.StatusServiceUnavailable
	case errors.As(err, &notFound):
		// Spec §7 taxonomy: DiscoveryNotFound fails fast with a specific
		// reason rather than the generic "try again" 503 the other
		// capacity/gone dispositions use (spec §8 scenario 6).
		return http.StatusInternalServerError
	case errors.As(err, &gone):
		return http.StatusServiceUnavailable
	case errors.As(err, &timeout):
		if timeout.Kind == domain.TimeoutKindRead {
			return http.StatusRequestTimeout
		}
		return http.StatusGatewayTimeout
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	case errors.As(err, &notRecognized):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
