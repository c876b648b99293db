package ports

import (
	"context"

	"github.com/thushan/olla-sidecard/internal/core/domain"
)

// UpdateKind enumerates the discovery subscription's push vocabulary
// (spec §4.F "Updates"): a resolution can add or remove endpoints, be
// told the name does not exist at all, or be told it exists but is
// momentarily empty.
type UpdateKind int

const (
	UpdateAdd UpdateKind = iota
	UpdateRemove
	UpdateDoesNotExist
	UpdateNoEndpoints
	UpdateExists
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateAdd:
		return "add"
	case UpdateRemove:
		return "remove"
	case UpdateDoesNotExist:
		return "does_not_exist"
	case UpdateNoEndpoints:
		return "no_endpoints"
	case UpdateExists:
		return "exists"
	default:
		return "unknown"
	}
}

// Update is one event on a discovery Subscription.
type Update struct {
	Kind      UpdateKind
	Endpoints []*domain.Endpoint // populated for UpdateAdd/UpdateRemove
}

// Subscription is a live discovery resolution for one ServiceKey: a
// channel of Updates plus a way to tear it down. Close stops the
// underlying resolution and closes the Updates channel.
type Subscription interface {
	Updates() <-chan Update
	Close()
}

// DiscoveryService resolves a ServiceKey into a live Subscription
// (spec §4.F). Implementations include a static/file-backed resolver
// and a controller-backed one dialing the control listener.
type DiscoveryService interface {
	Subscribe(ctx context.Context, key domain.ServiceKey) (Subscription, error)
}
