package discovery

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
)

// ControllerStream is the wire contract a generated control-plane
// client satisfies (spec §4.F, §9 "the gRPC client is out of scope —
// only the subscription contract it presents to the dataplane is
// specified"). ControllerService below only depends on this interface,
// so swapping in protoc-generated code means implementing ControllerStream
// against the real .proto, not touching the dataplane side.
type ControllerStream interface {
	// Recv blocks for the controller's next update for key, or returns
	// an error once the stream ends (connection loss, controller
	// shutdown, ctx cancellation).
	Recv(ctx context.Context, key domain.ServiceKey) (ports.Update, error)
}

// ControllerService implements ports.DiscoveryService against a remote
// control plane dialed over gRPC. It owns the connection's lifecycle
// (dial, backoff-free single connect — reconnection is the reconnect
// package's job one layer up). Each Subscribe call starts its own pump
// reading stream.Recv for that key; subscriptions to the same key do not
// share a stream.
type ControllerService struct {
	conn   *grpc.ClientConn
	stream ControllerStream
	logger *slog.Logger

	repo *Repository
}

// NewControllerService dials addr and wraps stream as the update source
// for every subsequent Subscribe call. Passing a nil stream is valid in
// tests that only exercise the dial/close lifecycle.
func NewControllerService(addr string, stream ControllerStream, repo *Repository, logger *slog.Logger) (*ControllerService, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &ControllerService{conn: conn, stream: stream, repo: repo, logger: logger}, nil
}

func (c *ControllerService) Subscribe(ctx context.Context, key domain.ServiceKey) (ports.Subscription, error) {
	sub := newStaticSubscription()

	go c.pump(ctx, key, sub)

	return sub, nil
}

func (c *ControllerService) pump(ctx context.Context, key domain.ServiceKey, sub *staticSubscription) {
	defer sub.Close()

	if c.stream == nil {
		sub.push(ports.Update{Kind: ports.UpdateDoesNotExist})
		return
	}

	for {
		update, err := c.stream.Recv(ctx, key)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("controller stream ended", "key", key.String(), "error", err)
			}
			return
		}

		switch update.Kind {
		case ports.UpdateAdd:
			c.repo.applyAdd(update.Endpoints)
		case ports.UpdateRemove:
			c.repo.applyRemove(update.Endpoints)
		}

		sub.push(update)
	}
}

// Close releases the underlying gRPC connection.
func (c *ControllerService) Close() error {
	return c.conn.Close()
}

var _ ports.DiscoveryService = (*ControllerService)(nil)
