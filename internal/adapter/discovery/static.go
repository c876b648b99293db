package discovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
)

// StaticService implements ports.DiscoveryService from a fixed,
// operator-supplied endpoint list (spec §4.F): every ServiceKey shares
// the same Repository, and Refresh diffs a new endpoint list against
// what's resident, publishing Add/Remove Updates to every live
// Subscription for keys whose membership actually changed.
type StaticService struct {
	repo   *Repository
	logger *slog.Logger

	mu   sync.Mutex
	subs map[domain.ServiceKey][]*staticSubscription
}

func NewStaticService(repo *Repository, logger *slog.Logger) *StaticService {
	return &StaticService{
		repo:   repo,
		logger: logger,
		subs:   make(map[domain.ServiceKey][]*staticSubscription),
	}
}

// Subscribe returns a Subscription for key. If the Repository already
// holds endpoints, the subscriber's first read yields an UpdateAdd with
// the current set before any further changes are seen, matching the
// "freshly joined subscribers see current state" expectation implicit
// in spec §4.F.
func (s *StaticService) Subscribe(ctx context.Context, key domain.ServiceKey) (ports.Subscription, error) {
	sub := newStaticSubscription()

	s.mu.Lock()
	s.subs[key] = append(s.subs[key], sub)
	s.mu.Unlock()

	existing, _ := s.repo.GetAll(ctx)
	if len(existing) > 0 {
		sub.push(ports.Update{Kind: ports.UpdateAdd, Endpoints: existing})
	} else {
		sub.push(ports.Update{Kind: ports.UpdateNoEndpoints})
	}

	go func() {
		<-ctx.Done()
		s.unsubscribe(key, sub)
	}()

	return sub, nil
}

// Refresh replaces the set of endpoints backing every key this service
// serves, diffing against the current Repository contents and
// publishing Add/Remove Updates to every live Subscription. Intended to
// be called from the config loader's hot-reload path (spec §6).
func (s *StaticService) Refresh(ctx context.Context, endpoints []*domain.Endpoint) {
	existing, _ := s.repo.GetAll(ctx)

	byURL := make(map[string]*domain.Endpoint, len(existing))
	for _, ep := range existing {
		byURL[ep.URL.String()] = ep
	}
	wantURL := make(map[string]*domain.Endpoint, len(endpoints))
	for _, ep := range endpoints {
		wantURL[ep.URL.String()] = ep
	}

	var added, removed []*domain.Endpoint
	for u, ep := range wantURL {
		if _, ok := byURL[u]; !ok {
			added = append(added, ep)
		}
	}
	for u, ep := range byURL {
		if _, ok := wantURL[u]; !ok {
			removed = append(removed, ep)
		}
	}

	if len(added) == 0 && len(removed) == 0 {
		return
	}

	s.repo.applyAdd(added)
	s.repo.applyRemove(removed)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subsForKey := range s.subs {
		for _, sub := range subsForKey {
			if len(added) > 0 {
				sub.push(ports.Update{Kind: ports.UpdateAdd, Endpoints: added})
			}
			if len(removed) > 0 {
				sub.push(ports.Update{Kind: ports.UpdateRemove, Endpoints: removed})
			}
		}
	}

	if s.logger != nil {
		s.logger.Info("discovery refresh applied", "added", len(added), "removed", len(removed))
	}
}

func (s *StaticService) unsubscribe(key domain.ServiceKey, target *staticSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subsForKey := s.subs[key]
	for i, sub := range subsForKey {
		if sub == target {
			s.subs[key] = append(subsForKey[:i], subsForKey[i+1:]...)
			break
		}
	}
	target.closeOnce()
}

// staticSubscription is a single subscriber's Update channel; push is
// non-blocking and drops the oldest buffered update rather than stall
// the publisher (the Sensors bus, by contrast, drops the newest event).
type staticSubscription struct {
	ch     chan ports.Update
	once   sync.Once
	closed chan struct{}
}

func newStaticSubscription() *staticSubscription {
	return &staticSubscription{
		ch:     make(chan ports.Update, 16),
		closed: make(chan struct{}),
	}
}

func (s *staticSubscription) push(u ports.Update) {
	select {
	case s.ch <- u:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- u:
		default:
		}
	}
}

func (s *staticSubscription) Updates() <-chan ports.Update {
	return s.ch
}

func (s *staticSubscription) Close() {
	s.closeOnce()
}

func (s *staticSubscription) closeOnce() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

var _ ports.DiscoveryService = (*StaticService)(nil)
var _ ports.Subscription = (*staticSubscription)(nil)
