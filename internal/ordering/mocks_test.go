package ordering

import (
	"context"
	"sync"

	"github.com/eugene-kirzhanov/vkcup21/internal/geo"
	"github.com/eugene-kirzhanov/vkcup21/internal/pricing"
	"github.com/eugene-kirzhanov/vkcup21/internal/render"
	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/eventbus"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/mock"
)

type mockGeoCoder struct {
	mock.Mock
}

func (m *mockGeoCoder) ReverseGeoCode(ctx context.Context, latitude, longitude float64) (string, error) {
	args := m.Called(ctx, latitude, longitude)
	return args.String(0), args.Error(1)
}

type mockPlacesProvider struct {
	mock.Mock
}

func (m *mockPlacesProvider) FindNearbyPlaces(ctx context.Context, limit int) ([]taxi.Place, error) {
	args := m.Called(ctx, limit)
	places, _ := args.Get(0).([]taxi.Place)
	return places, args.Error(1)
}

// straightRoutes returns a two-point route for any pair of endpoints.
type straightRoutes struct{}

func (straightRoutes) BuildRoute(ctx context.Context, source, destination *taxi.Position) (*taxi.Route, error) {
	if source == nil || destination == nil {
		return nil, nil
	}
	return &taxi.Route{
		Latitude:  destination.Latitude,
		Longitude: destination.Longitude,
		Direction: taxi.Direction{
			Geometry: orb.LineString{
				{source.Longitude, source.Latitude},
				{destination.Longitude, destination.Latitude},
			},
			DistanceMeters:  12000,
			DurationSeconds: 1200,
			Summary:         "Tverskaya st.",
		},
	}, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]*eventbus.Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string][]*eventbus.Event)}
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[subject] = append(p.events[subject], event)
	return nil
}

func (p *recordingPublisher) Events(subject string) []*eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventbus.Event(nil), p.events[subject]...)
}

func testDependencies(geoCoder taxi.GeoCoder, places taxi.NearbyPlacesProvider, publisher eventbus.Publisher) Dependencies {
	deps := Dependencies{
		GeoCoder:  geoCoder,
		Routes:    straightRoutes{},
		Orders:    pricing.NewCalculator(pricing.DefaultTariffs()),
		Renderer:  render.NewRenderer(render.DefaultStyle()),
		Publisher: publisher,
	}
	if places != nil {
		deps.Places = func(*geo.Feed) taxi.NearbyPlacesProvider { return places }
	}
	return deps
}
