package taxi

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func newTestSession(t *testing.T, deps Dependencies, opts ...Option) *Session {
	t.Helper()
	if deps.Routes == nil {
		deps.Routes = &funcRouteBuilder{fn: func(context.Context, int32, *Position, *Position) (*Route, error) {
			return nil, nil
		}}
	}
	if deps.Resources == nil {
		deps.Resources = stubResources{}
	}
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	s := NewSession(context.Background(), deps, opts...)
	t.Cleanup(s.Close)
	return s
}

func addressIs(s *Session, addressType AddressType, source AddressSource, title string) func() bool {
	return func() bool {
		slot := s.SourceSlot()
		if addressType == AddressTypeDestination {
			slot = s.DestinationSlot()
		}
		return slot.Address != nil && slot.Address.Source == source && slot.Address.Title == title
	}
}

func receiveAddress(t *testing.T, ch <-chan *Address) *Address {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for address")
		return nil
	}
}

func TestSession_InitialState(t *testing.T) {
	s := newTestSession(t, Dependencies{GeoCoder: &mockGeoCoder{}}, WithID("s-1"))

	assert.Equal(t, "s-1", s.ID())
	assert.True(t, s.IsMapVisible())
	assert.True(t, s.ShouldRequestLocationPermission())
	assert.Equal(t, SlotState{}, s.SourceSlot())
	assert.Equal(t, SlotState{}, s.DestinationSlot())
	assert.Nil(t, s.Route().Value())
	assert.Nil(t, s.InfoWindow().Value())
	assert.Nil(t, s.NearbyPlaces().Value())
	assert.Nil(t, s.MyLocation().Value())
}

func TestSession_SuppressesMyLocationOverUserSpecified(t *testing.T) {
	tests := []struct {
		name        string
		addressType AddressType
		user        Position
		userTitle   string
	}{
		{
			name:        "source picked elsewhere",
			addressType: AddressTypeSource,
			user:        Position{Latitude: 11, Longitude: 21},
			userTitle:   "Elm St 2",
		},
		{
			name:        "destination picked at the same point",
			addressType: AddressTypeDestination,
			user:        Position{Latitude: 10, Longitude: 20},
			userTitle:   "Main St 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geocoder := &mockGeoCoder{}
			geocoder.On("ReverseGeoCode", mock.Anything, 10.0, 20.0).Return("Main St 1", nil)
			geocoder.On("ReverseGeoCode", mock.Anything, 11.0, 21.0).Return("Elm St 2", nil)

			s := newTestSession(t, Dependencies{GeoCoder: geocoder})
			slotOf := s.SourceSlot
			if tt.addressType == AddressTypeDestination {
				slotOf = s.DestinationSlot
			}

			accepted, err := s.SubmitLocationGeocode(10, 20, SourceMyLocation, tt.addressType)
			require.NoError(t, err)
			assert.True(t, accepted)

			accepted, err = s.SubmitLocationGeocode(tt.user.Latitude, tt.user.Longitude, SourceUserSpecified, tt.addressType)
			require.NoError(t, err)
			assert.True(t, accepted)
			require.Eventually(t, addressIs(s, tt.addressType, SourceUserSpecified, tt.userTitle), waitFor, tick)

			accepted, err = s.SubmitLocationGeocode(10, 20, SourceMyLocation, tt.addressType)
			require.NoError(t, err)
			assert.False(t, accepted)

			time.Sleep(20 * time.Millisecond)
			slot := slotOf()
			require.NotNil(t, slot.Address)
			assert.Equal(t, SourceUserSpecified, slot.Address.Source)
			assert.Equal(t, tt.userTitle, slot.Address.Title)
			assert.Equal(t, tt.user, *slot.Position)
			geocoder.AssertNumberOfCalls(t, "ReverseGeoCode", 2)
		})
	}
}

func TestSession_PlacePickSuppressesMyLocation(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, mock.Anything, mock.Anything).Return("somewhere", nil)

	s := newTestSession(t, Dependencies{GeoCoder: geocoder})

	require.NoError(t, s.SubmitPlaceGeocode(Place{ID: "p1", Latitude: 1, Longitude: 1}, AddressTypeSource))
	require.Eventually(t, addressIs(s, AddressTypeSource, SourceUserSpecified, "somewhere"), waitFor, tick)

	// place picks are stored as user specified, so my location is suppressed
	accepted, err := s.SubmitLocationGeocode(2, 2, SourceMyLocation, AddressTypeSource)
	require.NoError(t, err)
	assert.False(t, accepted)

	accepted, err = s.SubmitLocationGeocode(2, 2, SourceMyLocation, AddressTypeDestination)
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestSession_QueriesResolveInSubmissionOrder(t *testing.T) {
	geocoder := newGatedGeoCoder()
	slow := geocoder.gate(1, "first")
	fast := geocoder.gate(2, "second")

	s := newTestSession(t, Dependencies{GeoCoder: geocoder})

	_, err := s.SubmitLocationGeocode(1, 1, SourceUserSpecified, AddressTypeDestination)
	require.NoError(t, err)
	_, err = s.SubmitLocationGeocode(2, 2, SourceUserSpecified, AddressTypeDestination)
	require.NoError(t, err)

	// the later query finishes its round trip first
	close(fast)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []float64{1}, geocoder.Calls())
	close(slow)

	require.Eventually(t, addressIs(s, AddressTypeDestination, SourceUserSpecified, "second"), waitFor, tick)
	assert.Equal(t, []float64{1, 2}, geocoder.Calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&geocoder.maxActive))
	assert.Equal(t, Position{Latitude: 2, Longitude: 2}, *s.DestinationSlot().Position)
}

func TestSession_DestinationMyLocationKeepsAddress(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, 5.0, 5.0).Return("Picked", nil)
	geocoder.On("ReverseGeoCode", mock.Anything, 6.0, 6.0).Return("Device", nil)

	s := newTestSession(t, Dependencies{GeoCoder: geocoder})

	accepted, err := s.SubmitLocationGeocode(6, 6, SourceMyLocation, AddressTypeDestination)
	require.NoError(t, err)
	require.True(t, accepted)
	require.Eventually(t, func() bool { return s.DestinationSlot().Position != nil }, waitFor, tick)
	assert.Nil(t, s.DestinationSlot().Address)

	require.NoError(t, s.SubmitPlaceGeocode(Place{ID: "p", Latitude: 5, Longitude: 5}, AddressTypeDestination))
	require.Eventually(t, addressIs(s, AddressTypeDestination, SourceUserSpecified, "Picked"), waitFor, tick)

	accepted, err = s.SubmitLocationGeocode(6, 6, SourceMyLocation, AddressTypeSource)
	require.NoError(t, err)
	require.True(t, accepted)
	require.Eventually(t, addressIs(s, AddressTypeSource, SourceMyLocation, "Device"), waitFor, tick)

	dst := s.DestinationSlot()
	assert.Equal(t, "Picked", dst.Address.Title)
	assert.Equal(t, Position{Latitude: 5, Longitude: 5}, *dst.Position)
}

func TestSession_RevealDestinationAddress(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, 7.0, 8.0).Return("Hidden St", nil)

	s := newTestSession(t, Dependencies{GeoCoder: geocoder})

	revealed, err := s.RevealDestinationAddress()
	require.NoError(t, err)
	assert.False(t, revealed)

	_, err = s.SubmitLocationGeocode(7, 8, SourceMyLocation, AddressTypeDestination)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.DestinationSlot().Position != nil }, waitFor, tick)

	revealed, err = s.RevealDestinationAddress()
	require.NoError(t, err)
	assert.True(t, revealed)
	require.Eventually(t, addressIs(s, AddressTypeDestination, SourceUserSpecified, "Hidden St"), waitFor, tick)
}

func TestSession_GeocodeFallbackTitles(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, 10.5, 20.25).Return("", errors.New("upstream down"))
	geocoder.On("ReverseGeoCode", mock.Anything, 30.0, 40.0).Return("", nil)
	geocoder.On("ReverseGeoCode", mock.Anything, 50.0, 60.0).Return("", nil)

	core, logs := observer.New(zapcore.ErrorLevel)
	s := newTestSession(t, Dependencies{GeoCoder: geocoder}, WithLogger(zap.New(core)))

	_, err := s.SubmitLocationGeocode(10.5, 20.25, SourceUserSpecified, AddressTypeSource)
	require.NoError(t, err)
	require.Eventually(t, addressIs(s, AddressTypeSource, SourceUserSpecified, "10.5, 20.25"), waitFor, tick)
	assert.Equal(t, 1, logs.FilterMessage("reverse geocoding failed").Len())

	require.NoError(t, s.SubmitPlaceGeocode(Place{ID: "a", Address: "Cafe Street 3", Latitude: 30, Longitude: 40}, AddressTypeDestination))
	require.Eventually(t, addressIs(s, AddressTypeDestination, SourceUserSpecified, "Cafe Street 3"), waitFor, tick)

	require.NoError(t, s.SubmitPlaceGeocode(Place{ID: "b", Latitude: 50, Longitude: 60}, AddressTypeDestination))
	require.Eventually(t, addressIs(s, AddressTypeDestination, SourceUserSpecified, "50, 60"), waitFor, tick)
}

func TestSession_PermissionLatch(t *testing.T) {
	s := newTestSession(t, Dependencies{GeoCoder: &mockGeoCoder{}})

	assert.True(t, s.ShouldRequestLocationPermission())
	s.OnLocationPermissionRequested()
	assert.False(t, s.ShouldRequestLocationPermission())
	s.OnLocationPermissionRequested()
	assert.False(t, s.ShouldRequestLocationPermission())
}

func TestSession_RouteRequiresBothPositions(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, mock.Anything, mock.Anything).Return("x", nil)
	routes := &mockRouteBuilder{}

	s := newTestSession(t, Dependencies{GeoCoder: geocoder, Routes: routes})

	_, err := s.SubmitLocationGeocode(1, 1, SourceUserSpecified, AddressTypeSource)
	require.NoError(t, err)
	require.Eventually(t, addressIs(s, AddressTypeSource, SourceUserSpecified, "x"), waitFor, tick)
	time.Sleep(20 * time.Millisecond)

	routes.AssertNotCalled(t, "BuildRoute", mock.Anything, mock.Anything, mock.Anything)
	assert.Nil(t, s.Route().Value())
	assert.Nil(t, s.InfoWindow().Value())
}

func TestSession_DerivesRouteAndInfoWindow(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, mock.Anything, mock.Anything).Return("x", nil)

	route := &Route{Latitude: 2, Longitude: 2, Direction: Direction{DistanceMeters: 5000, DurationSeconds: 600}}
	routes := &mockRouteBuilder{}
	routes.On("BuildRoute", mock.Anything, &Position{Latitude: 1, Longitude: 1}, &Position{Latitude: 2, Longitude: 2}).
		Return(route, nil)

	details := RouteDetails{Latitude: 2, Longitude: 2, BestVariant: TripVariant{Tariff: "economy", Duration: 12, Cost: 300}}
	orders := &mockOrderManager{}
	orders.On("CalculateRouteDetails", *route).Return(details)
	renderer := &stubRenderer{}

	s := newTestSession(t, Dependencies{
		GeoCoder: geocoder,
		Routes:   routes,
		Orders:   orders,
		Renderer: renderer,
	})

	_, err := s.SubmitLocationGeocode(1, 1, SourceUserSpecified, AddressTypeSource)
	require.NoError(t, err)
	_, err = s.SubmitLocationGeocode(2, 2, SourceUserSpecified, AddressTypeDestination)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.InfoWindow().Value() != nil }, waitFor, tick)
	assert.Same(t, route, s.Route().Value())

	info := s.InfoWindow().Value()
	assert.Equal(t, InfoWindowData{Latitude: 2, Longitude: 2, Text: "trip_duration:12\ntrip_cost:300"}, info.Data)
	assert.NotNil(t, info.Image)
	assert.Equal(t, []string{"trip_duration:12\ntrip_cost:300"}, renderer.Texts())
	routes.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestSession_RouteFailureClearsRoute(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, mock.Anything, mock.Anything).Return("x", nil)

	first := &Route{Latitude: 2, Longitude: 2}
	routes := &funcRouteBuilder{fn: func(_ context.Context, call int32, _, _ *Position) (*Route, error) {
		if call == 1 {
			return first, nil
		}
		return nil, errors.New("directions unavailable")
	}}
	orders := &mockOrderManager{}
	orders.On("CalculateRouteDetails", mock.Anything).Return(RouteDetails{})

	s := newTestSession(t, Dependencies{GeoCoder: geocoder, Routes: routes, Orders: orders})

	_, err := s.SubmitLocationGeocode(1, 1, SourceUserSpecified, AddressTypeSource)
	require.NoError(t, err)
	_, err = s.SubmitLocationGeocode(2, 2, SourceUserSpecified, AddressTypeDestination)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Route().Value() == first }, waitFor, tick)

	_, err = s.SubmitLocationGeocode(3, 3, SourceUserSpecified, AddressTypeDestination)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return routes.Calls() == 2 && s.Route().Value() == nil && s.InfoWindow().Value() == nil
	}, waitFor, tick)
}

func TestSession_NewPositionsSupersedeInFlightRoute(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, mock.Anything, mock.Anything).Return("x", nil)

	var firstCancelled atomic.Bool
	stale := &Route{Latitude: 2, Longitude: 2}
	latest := &Route{Latitude: 3, Longitude: 3}
	routes := &funcRouteBuilder{fn: func(ctx context.Context, call int32, _, _ *Position) (*Route, error) {
		if call == 1 {
			<-ctx.Done()
			firstCancelled.Store(true)
			return stale, nil
		}
		return latest, nil
	}}
	orders := &mockOrderManager{}
	orders.On("CalculateRouteDetails", *latest).Return(RouteDetails{Latitude: 3, Longitude: 3})

	s := newTestSession(t, Dependencies{GeoCoder: geocoder, Routes: routes, Orders: orders})

	_, err := s.SubmitLocationGeocode(1, 1, SourceUserSpecified, AddressTypeSource)
	require.NoError(t, err)
	_, err = s.SubmitLocationGeocode(2, 2, SourceUserSpecified, AddressTypeDestination)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return routes.Calls() == 1 }, waitFor, tick)

	_, err = s.SubmitLocationGeocode(3, 3, SourceUserSpecified, AddressTypeDestination)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Route().Value() == latest }, waitFor, tick)
	assert.True(t, firstCancelled.Load())
	time.Sleep(20 * time.Millisecond)
	assert.Same(t, latest, s.Route().Value())
	orders.AssertNotCalled(t, "CalculateRouteDetails", *stale)
}

func TestSession_VisibleAddressesFollowMapVisibility(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, 1.0, 1.0).Return("Device", nil)
	geocoder.On("ReverseGeoCode", mock.Anything, 2.0, 2.0).Return("Typed", nil)

	s := newTestSession(t, Dependencies{GeoCoder: geocoder}, WithShareGrace(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := s.SourceAddress().Subscribe(ctx)
	assert.Nil(t, receiveAddress(t, stream))

	s.SetMapVisible(false)
	_, err := s.SubmitLocationGeocode(1, 1, SourceMyLocation, AddressTypeSource)
	require.NoError(t, err)
	require.Eventually(t, addressIs(s, AddressTypeSource, SourceMyLocation, "Device"), waitFor, tick)

	select {
	case a := <-stream:
		t.Fatalf("unexpected address while map hidden: %+v", a)
	case <-time.After(30 * time.Millisecond):
	}

	_, err = s.SubmitLocationGeocode(2, 2, SourceUserSpecified, AddressTypeSource)
	require.NoError(t, err)
	got := receiveAddress(t, stream)
	require.NotNil(t, got)
	assert.Equal(t, "Typed", got.Title)
	assert.Equal(t, SourceUserSpecified, got.Source)
}

func TestSession_VisibleAddressesShowMyLocationWhenMapVisible(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, 1.0, 1.0).Return("Device", nil)

	s := newTestSession(t, Dependencies{GeoCoder: geocoder}, WithShareGrace(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := s.SourceAddress().Subscribe(ctx)
	assert.Nil(t, receiveAddress(t, stream))

	_, err := s.SubmitLocationGeocode(1, 1, SourceMyLocation, AddressTypeSource)
	require.NoError(t, err)
	got := receiveAddress(t, stream)
	require.NotNil(t, got)
	assert.Equal(t, "Device", got.Title)
}

func TestSession_NearbyPlacesWithoutFixKeepProviderOrder(t *testing.T) {
	far := Place{ID: "far", Latitude: 10, Longitude: 10}
	near := Place{ID: "near", Latitude: 0.001, Longitude: 0.001}
	places := &mockPlacesProvider{}
	places.On("FindNearbyPlaces", mock.Anything, 20).Return([]Place{far, near}, nil)

	s := newTestSession(t, Dependencies{GeoCoder: &mockGeoCoder{}, Places: places})

	require.Eventually(t, func() bool { return s.NearbyPlaces().Value() != nil }, waitFor, tick)
	assert.Equal(t, []Place{far, near}, s.NearbyPlaces().Value())
}

func TestSession_NearbyPlacesSortedByDistanceFromFix(t *testing.T) {
	far := Place{ID: "far", Latitude: 10, Longitude: 10}
	mid := Place{ID: "mid", Latitude: 1, Longitude: 1}
	near := Place{ID: "near", Latitude: 0.001, Longitude: 0.001}

	release := make(chan time.Time)
	places := &mockPlacesProvider{}
	places.On("FindNearbyPlaces", mock.Anything, 3).
		WaitUntil(release).
		Return([]Place{far, near, mid}, nil)

	location := newFakeLocation()
	s := newTestSession(t, Dependencies{GeoCoder: &mockGeoCoder{}, Places: places, Location: location}, WithNearbyLimit(3))

	location.Fixes <- Position{Latitude: 0, Longitude: 0}
	require.Eventually(t, func() bool { return s.MyLocation().Value() != nil }, waitFor, tick)
	close(release)

	require.Eventually(t, func() bool { return s.NearbyPlaces().Value() != nil }, waitFor, tick)
	assert.Equal(t, []Place{near, mid, far}, s.NearbyPlaces().Value())
}

func TestSession_NearbyPlacesSortedByProviderFixBeforeMirror(t *testing.T) {
	far := Place{ID: "far", Latitude: 10, Longitude: 10}
	near := Place{ID: "near", Latitude: 0.001, Longitude: 0.001}
	places := &mockPlacesProvider{}
	places.On("FindNearbyPlaces", mock.Anything, 20).Return([]Place{far, near}, nil)

	location := newFakeLocation()
	location.SetLatest(Position{Latitude: 0, Longitude: 0})
	s := newTestSession(t, Dependencies{GeoCoder: &mockGeoCoder{}, Places: places, Location: location})

	require.Eventually(t, func() bool { return s.NearbyPlaces().Value() != nil }, waitFor, tick)
	assert.Equal(t, []Place{near, far}, s.NearbyPlaces().Value())
	assert.Nil(t, s.MyLocation().Value())
}

func TestSession_NearbyPlacesErrorLeavesListEmpty(t *testing.T) {
	places := &mockPlacesProvider{}
	places.On("FindNearbyPlaces", mock.Anything, 20).Return(nil, errors.New("quota exceeded"))

	core, logs := observer.New(zapcore.ErrorLevel)
	s := newTestSession(t, Dependencies{GeoCoder: &mockGeoCoder{}, Places: places}, WithLogger(zap.New(core)))

	require.Eventually(t, func() bool { return logs.FilterMessage("failed to fetch nearby places").Len() == 1 }, waitFor, tick)
	assert.Nil(t, s.NearbyPlaces().Value())
}

func TestSession_MyLocationTracking(t *testing.T) {
	geocoder := &mockGeoCoder{}
	geocoder.On("ReverseGeoCode", mock.Anything, mock.Anything, mock.Anything).Return("Here", nil)
	location := newFakeLocation()

	s := newTestSession(t, Dependencies{GeoCoder: geocoder, Location: location}, WithMyLocationTracking(50))

	location.Fixes <- Position{Latitude: 0, Longitude: 0}
	require.Eventually(t, addressIs(s, AddressTypeSource, SourceMyLocation, "Here"), waitFor, tick)

	// about 11 m away, below the threshold
	location.Fixes <- Position{Latitude: 0.0001, Longitude: 0}
	require.Eventually(t, func() bool {
		p := s.MyLocation().Value()
		return p != nil && p.Latitude == 0.0001
	}, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	geocoder.AssertNumberOfCalls(t, "ReverseGeoCode", 1)

	location.Fixes <- Position{Latitude: 0.01, Longitude: 0}
	require.Eventually(t, func() bool {
		p := s.SourceSlot().Position
		return p != nil && p.Latitude == 0.01
	}, waitFor, tick)
	geocoder.AssertNumberOfCalls(t, "ReverseGeoCode", 2)
}

func TestSession_MyLocationWithoutTrackingDoesNotGeocode(t *testing.T) {
	geocoder := &mockGeoCoder{}
	location := newFakeLocation()

	s := newTestSession(t, Dependencies{GeoCoder: geocoder, Location: location})

	location.Fixes <- Position{Latitude: 4, Longitude: 5}
	require.Eventually(t, func() bool { return s.MyLocation().Value() != nil }, waitFor, tick)
	assert.Equal(t, Position{Latitude: 4, Longitude: 5}, *s.MyLocation().Value())
	geocoder.AssertNotCalled(t, "ReverseGeoCode", mock.Anything, mock.Anything, mock.Anything)
	assert.Nil(t, s.SourceSlot().Address)
}

func TestSession_CloseCancelsPendingWork(t *testing.T) {
	geocoder := newGatedGeoCoder()
	geocoder.gate(1, "never")

	places := &mockPlacesProvider{}
	places.On("FindNearbyPlaces", mock.Anything, 20).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.Canceled)

	core, logs := observer.New(zapcore.ErrorLevel)
	s := NewSession(context.Background(), Dependencies{
		GeoCoder:  geocoder,
		Places:    places,
		Routes:    &mockRouteBuilder{},
		Resources: stubResources{},
	}, WithLogger(zap.New(core)))

	_, err := s.SubmitLocationGeocode(1, 1, SourceUserSpecified, AddressTypeSource)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(geocoder.Calls()) == 1 }, waitFor, tick)

	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("session not done after Close")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&geocoder.cancelled))
	assert.Nil(t, s.SourceSlot().Address)
	assert.Zero(t, logs.Len())

	accepted, err := s.SubmitLocationGeocode(2, 2, SourceUserSpecified, AddressTypeSource)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.False(t, accepted)
	assert.ErrorIs(t, s.SubmitPlaceGeocode(Place{}, AddressTypeSource), ErrSessionClosed)
}

func TestSession_ParentCancellationStopsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(ctx, Dependencies{GeoCoder: &mockGeoCoder{}, Routes: &mockRouteBuilder{}}, WithLogger(zap.NewNop()))
	defer s.Close()

	cancel()
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not stop with its parent")
	}
}
