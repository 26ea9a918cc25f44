// Package ordering hosts ordering sessions and exposes them over HTTP and
// WebSocket.
package ordering

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/internal/geo"
	"github.com/eugene-kirzhanov/vkcup21/internal/resources"
	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/async"
	"github.com/eugene-kirzhanov/vkcup21/pkg/common"
	"github.com/eugene-kirzhanov/vkcup21/pkg/config"
	"github.com/eugene-kirzhanov/vkcup21/pkg/eventbus"
	pkggeo "github.com/eugene-kirzhanov/vkcup21/pkg/geo"
	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const eventSource = "taxi-service"

// PlacesFactory builds the nearby places provider of one session around its
// device fixes.
type PlacesFactory func(fixes *geo.Feed) taxi.NearbyPlacesProvider

// Dependencies are shared by every session of the service. Places, Renderer
// and Publisher may be nil.
type Dependencies struct {
	GeoCoder  taxi.GeoCoder
	Routes    taxi.RouteBuilder
	Orders    taxi.OrderManager
	Places    PlacesFactory
	Renderer  taxi.InfoWindowRenderer
	Publisher eventbus.Publisher
}

// Session is one hosted ordering session.
type Session struct {
	ID        string
	Locale    string
	CreatedAt time.Time
	Core      *taxi.Session
	Feed      *geo.Feed

	cancel context.CancelFunc
}

// CreateOptions customise a new session.
type CreateOptions struct {
	Locale     string
	MapVisible *bool
}

// ErrCapacityExceeded is returned by Create when the active session cap is
// reached.
var ErrCapacityExceeded = errors.New("active session limit reached")

// Service is the session registry.
type Service struct {
	deps     Dependencies
	cfg      config.SessionConfig
	currency string
	tasks    *async.Group

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a registry. Sessions live until closed or until parent
// is done.
func NewService(parent context.Context, deps Dependencies, cfg config.SessionConfig, currency string) *Service {
	return &Service{
		deps:     deps,
		cfg:      cfg,
		currency: currency,
		tasks:    async.NewGroup(parent),
		sessions: make(map[string]*Session),
	}
}

// Create starts a session with its own location feed.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	if err := s.tasks.Context().Err(); err != nil {
		return nil, common.NewGoneError("service is shutting down", err)
	}
	if s.atCapacity() {
		sessionsRejectedTotal.Inc()
		return nil, common.NewServiceUnavailableError("too many active sessions", ErrCapacityExceeded)
	}

	locale := opts.Locale
	if locale == "" {
		locale = s.cfg.Locale
	}

	id := uuid.NewString()
	feed := geo.NewFeed()
	deps := taxi.Dependencies{
		Location:  feed,
		GeoCoder:  s.deps.GeoCoder,
		Routes:    s.deps.Routes,
		Orders:    s.deps.Orders,
		Resources: resources.NewCatalog(locale, s.currency),
		Renderer:  s.deps.Renderer,
		Distance:  pkggeo.DistanceMeters,
	}
	if s.deps.Places != nil {
		deps.Places = s.deps.Places(feed)
	}

	sessionOpts := []taxi.Option{
		taxi.WithID(id),
		taxi.WithQueueCapacity(s.cfg.QueueCapacity),
		taxi.WithShareGrace(s.cfg.ShareGrace()),
		taxi.WithNearbyLimit(s.cfg.NearbyLimit),
	}
	if s.cfg.TrackMyLocation {
		sessionOpts = append(sessionOpts, taxi.WithMyLocationTracking(s.cfg.TrackMinDistanceMeters))
	}

	core := taxi.NewSession(s.tasks.Context(), deps, sessionOpts...)
	if opts.MapVisible != nil {
		core.SetMapVisible(*opts.MapVisible)
	}

	sessionCtx, cancel := context.WithCancel(logger.ContextWithSessionID(s.tasks.Context(), id))
	session := &Session{
		ID:        id,
		Locale:    locale,
		CreatedAt: time.Now().UTC(),
		Core:      core,
		Feed:      feed,
		cancel:    cancel,
	}

	s.mu.Lock()
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		s.stop(session)
		sessionsRejectedTotal.Inc()
		return nil, common.NewServiceUnavailableError("too many active sessions", ErrCapacityExceeded)
	}
	s.sessions[id] = session
	s.mu.Unlock()

	if s.deps.Publisher != nil {
		s.tasks.GoWith(sessionCtx, "trip-estimates", func(ctx context.Context) {
			s.publishTripEstimates(ctx, session)
		})
		s.publishLifecycle(ctx, eventbus.SubjectSessionOpened, session)
	}

	logger.InfoContext(sessionCtx, "ordering session created", zap.String("locale", locale))
	return session, nil
}

func (s *Service) atCapacity() bool {
	if s.cfg.MaxSessions <= 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions) >= s.cfg.MaxSessions
}

// Get returns an open session.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, common.NewNotFoundError("session not found", nil)
	}
	return session, nil
}

// Close stops a session and forgets it.
func (s *Service) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return common.NewNotFoundError("session not found", nil)
	}

	s.stop(session)
	if s.deps.Publisher != nil {
		s.publishLifecycle(ctx, eventbus.SubjectSessionClosed, session)
	}
	logger.InfoContext(logger.ContextWithSessionID(ctx, id), "ordering session closed")
	return nil
}

// CloseAll stops every session and the background publishers.
func (s *Service) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		s.stop(session)
	}
	s.tasks.Stop()
}

// IDs lists the open sessions.
func (s *Service) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) stop(session *Session) {
	session.cancel()
	session.Core.Close()
}
