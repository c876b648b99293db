// Package stack implements the E component (spec §4.E): the per-key
// Service Stack a router entry builds once and every recognized
// connection for that key is driven through. Layers compose bottom-up
// as the spec describes them — endpoint resolver at the bottom, sensors
// at the very top — and Call is the single entry point a request enters
// from the top.
package stack

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/thushan/olla-sidecard/internal/adapter/discovery"
	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
	"github.com/thushan/olla-sidecard/internal/metrics"
	"github.com/thushan/olla-sidecard/pkg/pool"
)

// spliceBuffers pools the copy buffers io.CopyBuffer uses on either side
// of a splice. Every resident stack's connections share this pool rather
// than each splice allocating its own 32KiB buffer, the same amortisation
// the teacher's pkg/pool.LitePool doc comment calls out performance-
// sensitive paths for.
var spliceBuffers = pool.NewLitePool(func() []byte {
	return make([]byte, 32*1024)
})

// Dialer opens the upstream transport for a selected endpoint. The
// default is net.Dialer.DialContext; tests substitute an in-memory one.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Config bounds and wires one stack's layers (spec §4.E, §5 resource
// caps).
type Config struct {
	Discovery      ports.DiscoveryService
	Balancer       ports.LoadBalancer
	Reconnector    ports.Reconnector
	Sensors        ports.Sensors
	Dial           Dialer
	Metrics        *metrics.Metrics
	BufferCapacity int
	InFlightLimit  int
	BindTimeout    time.Duration
	ConnectTimeout time.Duration
	Direction      domain.Direction
}

// NewFactory returns a ports.StackFactory that builds a Stack per
// Config for each key the router first sees.
func NewFactory(cfg Config) ports.StackFactory {
	return func(ctx context.Context, key domain.ServiceKey) (ports.ServiceStack, error) {
		return newStack(ctx, key, cfg)
	}
}

// Stack is the E component instance for one ServiceKey.
type Stack struct {
	key domain.ServiceKey
	cfg Config

	repo *discovery.Repository
	sub  ports.Subscription

	bufferSem   chan struct{}
	inflightSem chan struct{}

	mu          sync.RWMutex
	notFound    bool
	cancelPump  context.CancelFunc
	pumpDone    chan struct{}
	closeOnce   sync.Once
}

func newStack(ctx context.Context, key domain.ServiceKey, cfg Config) (*Stack, error) {
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}

	repo := discovery.NewRepository()
	sub, err := cfg.Discovery.Subscribe(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stack %s: subscribe: %w", key, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	s := &Stack{
		key:         key,
		cfg:         cfg,
		repo:        repo,
		sub:         sub,
		bufferSem:   make(chan struct{}, cfg.BufferCapacity),
		inflightSem: make(chan struct{}, cfg.InFlightLimit),
		cancelPump:  cancel,
		pumpDone:    make(chan struct{}),
	}
	go s.pump(pumpCtx)
	return s, nil
}

// pump applies discovery updates to the stack's local endpoint set
// until the subscription closes (spec §4.E.1 "Endpoint Resolver").
func (s *Stack) pump(ctx context.Context) {
	defer close(s.pumpDone)
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-s.sub.Updates():
			if !ok {
				return
			}
			s.applyUpdate(ctx, upd)
		}
	}
}

func (s *Stack) applyUpdate(ctx context.Context, upd ports.Update) {
	switch upd.Kind {
	case ports.UpdateAdd:
		for _, ep := range upd.Endpoints {
			_ = s.repo.Add(ctx, ep)
		}
	case ports.UpdateRemove:
		for _, ep := range upd.Endpoints {
			_ = s.repo.Remove(ctx, ep.URL)
		}
	case ports.UpdateDoesNotExist:
		s.mu.Lock()
		s.notFound = true
		s.mu.Unlock()
	case ports.UpdateNoEndpoints, ports.UpdateExists:
		// no endpoint-set change; informational only.
	}
}

// PollReady reports whether the stack currently has a routable endpoint
// without committing to Call (spec §4.E.2 "poll_ready returns not
// ready").
func (s *Stack) PollReady(ctx context.Context) error {
	s.mu.RLock()
	notFound := s.notFound
	s.mu.RUnlock()
	if notFound {
		return &domain.DiscoveryNotFoundError{Key: s.key}
	}

	routable, err := s.repo.GetRoutable(ctx)
	if err != nil {
		return err
	}
	if len(routable) == 0 {
		return &domain.UpstreamConnectError{Address: s.key.String(), Err: fmt.Errorf("no routable endpoints")}
	}
	return nil
}

// Call drives conn through the stack: Buffer admission, In-Flight
// acquisition bounded by bind_timeout, balancer selection, a Reconnect
// wait for the selected endpoint, dial, then bidirectional byte splicing
// to the selected endpoint.
// The timestamp sensor brackets the whole call (spec §4.E "Timestamp
// sensor sits at the very top of the stack").
func (s *Stack) Call(ctx context.Context, conn *domain.Connection) error {
	opened := time.Now()
	s.cfg.Sensors.Publish(ports.Event{Kind: ports.EventConnectionOpened, Key: s.key, Direction: s.cfg.Direction})
	defer func() {
		s.cfg.Sensors.Publish(ports.Event{Kind: ports.EventConnectionClosed, Key: s.key, Direction: s.cfg.Direction})
	}()

	select {
	case s.bufferSem <- struct{}{}:
	default:
		return &domain.NoCapacityError{Capacity: cap(s.bufferSem), Scope: "buffer"}
	}
	releasedBuffer := false
	releaseBuffer := func() {
		if !releasedBuffer {
			releasedBuffer = true
			<-s.bufferSem
		}
	}
	defer releaseBuffer()

	deadline := time.Now().Add(s.cfg.BindTimeout)
	bindCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	select {
	case s.inflightSem <- struct{}{}:
	case <-bindCtx.Done():
		return &domain.TimeoutError{Kind: domain.TimeoutKindBind, Elapsed: time.Since(opened)}
	}
	defer func() { <-s.inflightSem }()
	releaseBuffer()

	if notFound, err := s.checkNotFound(); notFound {
		return err
	}

	routable, err := s.repo.GetRoutable(ctx)
	if err != nil {
		return err
	}

	endpoint, err := s.cfg.Balancer.Select(ctx, routable)
	if err != nil {
		return &domain.UpstreamConnectError{Address: s.key.String(), Err: err}
	}

	if err := s.cfg.Reconnector.Attempt(bindCtx, endpoint); err != nil {
		s.cfg.Balancer.Release(endpoint, 0, err)
		return err
	}

	dialStart := time.Now()
	dialCtx, dialCancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer dialCancel()

	upstream, err := s.cfg.Dial(dialCtx, "tcp", endpoint.URL.Host)
	if err != nil {
		s.cfg.Reconnector.RecordFailure(endpoint, err)
		s.cfg.Balancer.Release(endpoint, 0, err)
		s.cfg.Sensors.Publish(ports.Event{Kind: ports.EventEndpointFailed, Key: s.key, Direction: s.cfg.Direction, Err: err})
		return &domain.UpstreamConnectError{Address: endpoint.URL.Host, Err: err}
	}
	defer upstream.Close()

	rtt := float64(time.Since(dialStart).Milliseconds())
	s.cfg.Reconnector.RecordSuccess(endpoint)

	spliceErr := splice(conn, upstream, s.cfg.Metrics, s.cfg.Direction.String())
	s.cfg.Balancer.Release(endpoint, rtt, spliceErr)
	s.cfg.Sensors.Publish(ports.Event{Kind: ports.EventRequestCompleted, Key: s.key, Direction: s.cfg.Direction, Err: spliceErr})
	return spliceErr
}

func (s *Stack) checkNotFound() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.notFound {
		return true, &domain.DiscoveryNotFoundError{Key: s.key}
	}
	return false, nil
}

// splice copies bytes bidirectionally between the client connection and
// the upstream connection, propagating each side's half-close
// independently (spec §4.C "Opaque path"). The client's already-peeked
// prefix is forwarded first since the protocol detector consumed it
// from the wire without relaying it. Each direction's copied byte count
// feeds the tcp_bytes_total metric (spec §8 scenario 4) — mirrors
// matter, so "in"/"out" are both relative to direction, not to client
// vs. upstream.
func splice(client *domain.Connection, upstream net.Conn, m *metrics.Metrics, direction string) error {
	if len(client.Peeked) > 0 {
		if _, err := upstream.Write(client.Peeked); err != nil {
			return fmt.Errorf("stack: forward peeked prefix: %w", err)
		}
		if m != nil {
			m.AddTCPBytes(direction, "out", float64(len(client.Peeked)))
		}
	}

	errCh := make(chan error, 2)
	go func() {
		buf := spliceBuffers.Get()
		defer spliceBuffers.Put(buf)
		n, err := io.CopyBuffer(upstream, client, buf)
		if m != nil {
			m.AddTCPBytes(direction, "out", float64(n))
		}
		closeWrite(upstream)
		errCh <- err
	}()
	go func() {
		buf := spliceBuffers.Get()
		defer spliceBuffers.Put(buf)
		n, err := io.CopyBuffer(client, upstream, buf)
		if m != nil {
			m.AddTCPBytes(direction, "in", float64(n))
		}
		closeWrite(client)
		errCh <- err
	}()

	first := <-errCh
	second := <-errCh
	if first != nil && first != io.EOF {
		return first
	}
	if second != nil && second != io.EOF {
		return second
	}
	return nil
}

type halfCloser interface {
	CloseWrite() error
}

func closeWrite(conn net.Conn) {
	if hc, ok := conn.(halfCloser); ok {
		_ = hc.CloseWrite()
	}
}

// Close tears down the stack's discovery subscription and endpoint-set
// pump. Used by the router on eviction or drain (spec §4.G).
func (s *Stack) Close() error {
	s.closeOnce.Do(func() {
		s.cancelPump()
		s.sub.Close()
		<-s.pumpDone
	})
	return nil
}

var _ ports.ServiceStack = (*Stack)(nil)
