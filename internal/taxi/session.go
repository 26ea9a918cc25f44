package taxi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/async"
	"github.com/eugene-kirzhanov/vkcup21/pkg/flow"
	"github.com/eugene-kirzhanov/vkcup21/pkg/geo"
	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"go.uber.org/zap"
)

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("taxi: session closed")

const (
	defaultQueueCapacity = 1000
	defaultShareGrace    = 5 * time.Second
	defaultNearbyLimit   = 20
)

// Dependencies are the capabilities a Session orchestrates. Renderer may be
// nil, in which case info windows carry no image. Distance defaults to the
// great-circle distance.
type Dependencies struct {
	Location  LocationProvider
	GeoCoder  GeoCoder
	Places    NearbyPlacesProvider
	Routes    RouteBuilder
	Orders    OrderManager
	Resources ResourceProvider
	Renderer  InfoWindowRenderer
	Distance  DistanceFunc
}

type options struct {
	id               string
	logger           *zap.Logger
	queueCapacity    int
	shareGrace       time.Duration
	nearbyLimit      int
	trackMinDistance float64
}

// Option configures a Session.
type Option func(*options)

// WithID tags the session and its logs with id.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger overrides the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithQueueCapacity sets how many geocode queries may wait for the worker.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueCapacity = n
		}
	}
}

// WithShareGrace sets how long the visible address streams keep running
// after their last subscriber leaves.
func WithShareGrace(d time.Duration) Option {
	return func(o *options) { o.shareGrace = d }
}

// WithNearbyLimit sets how many nearby places are requested at start.
func WithNearbyLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.nearbyLimit = n
		}
	}
}

// WithMyLocationTracking makes every device fix at least minDistance meters
// away from the previously tracked one resolve the source address.
func WithMyLocationTracking(minDistance float64) Option {
	return func(o *options) { o.trackMinDistance = minDistance }
}

// slot is one trip endpoint. Position and address always change together.
type slot struct {
	position *Position
	address  *Address
}

type endpoints struct {
	source      *Position
	destination *Position
}

func endpointsEqual(a, b endpoints) bool {
	return flow.PtrEqual(a.source, b.source) && flow.PtrEqual(a.destination, b.destination)
}

// Session is the address resolution and route orchestrator for one ordering
// screen. It owns the source and destination state, resolves addresses
// through a single FIFO geocode worker and derives the route and trip info
// from the endpoint positions.
type Session struct {
	id       string
	deps     Dependencies
	opts     options
	log      *zap.Logger
	distance DistanceFunc
	tasks    *async.Group

	mu          sync.RWMutex
	source      slot
	destination slot

	mapVisible          atomic.Bool
	permissionRequested atomic.Bool

	queries chan GeoCodeQuery

	rawSource      *flow.State[*Address]
	rawDestination *flow.State[*Address]
	endpoints      *flow.State[endpoints]

	sourceAddress      *flow.Shared[*Address]
	destinationAddress *flow.Shared[*Address]

	routeMu    sync.Mutex
	routeGen   uint64
	route      *flow.State[*Route]
	infoWindow *flow.State[*InfoWindow]

	nearbyPlaces *flow.State[[]Place]
	myLocation   *flow.State[*Position]
	lastTracked  *Position

	closeOnce sync.Once
}

// NewSession creates a session and starts its background work: the geocode
// worker, route derivation, the device location mirror and the one-shot
// nearby places fetch. Everything stops when parent is done or Close is called.
func NewSession(parent context.Context, deps Dependencies, opts ...Option) *Session {
	o := options{
		queueCapacity: defaultQueueCapacity,
		shareGrace:    defaultShareGrace,
		nearbyLimit:   defaultNearbyLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := parent
	if o.id != "" {
		ctx = logger.ContextWithSessionID(parent, o.id)
	}

	log := o.logger
	if log == nil {
		log = logger.WithContext(ctx)
	} else if o.id != "" {
		log = log.With(zap.String("session_id", o.id))
	}

	distance := deps.Distance
	if distance == nil {
		distance = geo.DistanceMeters
	}

	s := &Session{
		id:             o.id,
		deps:           deps,
		opts:           o,
		log:            log,
		distance:       distance,
		tasks:          async.NewGroup(ctx),
		queries:        make(chan GeoCodeQuery, o.queueCapacity),
		rawSource:      flow.NewState[*Address](nil, flow.PtrEqual[Address]),
		rawDestination: flow.NewState[*Address](nil, flow.PtrEqual[Address]),
		endpoints:      flow.NewState(endpoints{}, endpointsEqual),
		route:          flow.NewState[*Route](nil, flow.SamePtr[Route]),
		infoWindow:     flow.NewState[*InfoWindow](nil, flow.SamePtr[InfoWindow]),
		nearbyPlaces:   flow.NewState[[]Place](nil, nil),
		myLocation:     flow.NewState[*Position](nil, flow.PtrEqual[Position]),
	}
	s.mapVisible.Store(true)

	groupCtx := s.tasks.Context()
	s.sourceAddress = flow.NewShared[*Address](groupCtx, o.shareGrace, nil, flow.PtrEqual[Address], s.visibleAddresses(s.rawSource))
	s.destinationAddress = flow.NewShared[*Address](groupCtx, o.shareGrace, nil, flow.PtrEqual[Address], s.visibleAddresses(s.rawDestination))

	s.tasks.Go("geocode-worker", s.runGeocodeWorker)
	s.tasks.Go("route-derivation", s.runRouteDerivation)
	if deps.Location != nil {
		s.tasks.Go("my-location", s.mirrorMyLocation)
	}
	if deps.Places != nil {
		s.tasks.Go("nearby-places", s.loadNearbyPlaces)
	}

	sessionsActive.Inc()
	s.log.Debug("ordering session started")
	return s
}

// ID returns the session identifier given with WithID.
func (s *Session) ID() string {
	return s.id
}

// SubmitLocationGeocode requests resolution of a raw coordinate for the given
// slot. A MY_LOCATION request for a slot already holding a user-specified
// address is dropped and reported as not accepted.
func (s *Session) SubmitLocationGeocode(latitude, longitude float64, source AddressSource, addressType AddressType) (bool, error) {
	if source == SourceMyLocation && s.storedSource(addressType) == SourceUserSpecified {
		geocodeSuppressedTotal.WithLabelValues(addressType.String()).Inc()
		s.log.Debug("my location geocode suppressed",
			zap.Stringer("slot", addressType),
			zap.Float64("latitude", latitude),
			zap.Float64("longitude", longitude),
		)
		return false, nil
	}

	err := s.enqueue(LocationQuery{
		Source:      source,
		Latitude:    latitude,
		Longitude:   longitude,
		AddressType: addressType,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// SubmitPlaceGeocode requests resolution of a place the user picked.
func (s *Session) SubmitPlaceGeocode(place Place, addressType AddressType) error {
	return s.enqueue(PlaceQuery{
		Source:      SourceUserSpecified,
		Place:       place,
		AddressType: addressType,
	})
}

// RevealDestinationAddress re-resolves the current destination position as a
// user-specified address so it becomes visible. It reports false when there
// is no destination position yet.
func (s *Session) RevealDestinationAddress() (bool, error) {
	s.mu.RLock()
	pos := s.destination.position
	s.mu.RUnlock()

	if pos == nil {
		return false, nil
	}
	return s.SubmitLocationGeocode(pos.Latitude, pos.Longitude, SourceUserSpecified, AddressTypeDestination)
}

// SetMapVisible sets the display context flag used when addresses are emitted.
func (s *Session) SetMapVisible(visible bool) {
	s.mapVisible.Store(visible)
}

// IsMapVisible returns the display context flag.
func (s *Session) IsMapVisible() bool {
	return s.mapVisible.Load()
}

// ShouldRequestLocationPermission is true until OnLocationPermissionRequested
// has been called once.
func (s *Session) ShouldRequestLocationPermission() bool {
	return !s.permissionRequested.Load()
}

// OnLocationPermissionRequested latches the permission request.
func (s *Session) OnLocationPermissionRequested() {
	s.permissionRequested.Store(true)
}

// SlotState is a consistent view of one endpoint.
type SlotState struct {
	Position *Position
	Address  *Address
}

// SourceSlot returns the current source position and address.
func (s *Session) SourceSlot() SlotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SlotState{Position: s.source.position, Address: s.source.address}
}

// DestinationSlot returns the current destination position and address.
func (s *Session) DestinationSlot() SlotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SlotState{Position: s.destination.position, Address: s.destination.address}
}

// SourceAddress is the source address as shown on the map.
func (s *Session) SourceAddress() Stream[*Address] { return s.sourceAddress }

// DestinationAddress is the destination address as shown on the map.
func (s *Session) DestinationAddress() Stream[*Address] { return s.destinationAddress }

// Route is the derived route, nil when there is none.
func (s *Session) Route() Stream[*Route] { return s.route }

// InfoWindow is the derived trip info with its rendered image.
func (s *Session) InfoWindow() Stream[*InfoWindow] { return s.infoWindow }

// NearbyPlaces is the one-shot list of places around the device.
func (s *Session) NearbyPlaces() Stream[[]Place] { return s.nearbyPlaces }

// MyLocation mirrors the device location.
func (s *Session) MyLocation() Stream[*Position] { return s.myLocation }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.tasks.Context().Done()
}

// Close cancels the geocode worker, any in-flight route request and the
// nearby places fetch, and waits for them to return. It is safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.tasks.Stop()
		sessionsActive.Dec()
		s.log.Debug("ordering session closed")
	})
}

func (s *Session) storedSource(addressType AddressType) AddressSource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stored *Address
	switch addressType {
	case AddressTypeSource:
		stored = s.source.address
	case AddressTypeDestination:
		stored = s.destination.address
	}
	if stored == nil {
		return -1
	}
	return stored.Source
}

func (s *Session) enqueue(q GeoCodeQuery) error {
	ctx := s.tasks.Context()
	if ctx.Err() != nil {
		return ErrSessionClosed
	}

	select {
	case s.queries <- q:
		return nil
	case <-ctx.Done():
		return ErrSessionClosed
	}
}

// visibleAddresses feeds a display stream from a raw address state, skipping
// nil values and hiding non-user addresses while the map is not visible.
func (s *Session) visibleAddresses(raw *flow.State[*Address]) flow.Producer[*Address] {
	return func(ctx context.Context, emit func(*Address)) {
		for address := range raw.Subscribe(ctx) {
			if address == nil {
				continue
			}
			if s.mapVisible.Load() || address.Source == SourceUserSpecified {
				emit(address)
			}
		}
	}
}
