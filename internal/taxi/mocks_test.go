package taxi

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
)

type mockGeoCoder struct {
	mock.Mock
}

func (m *mockGeoCoder) ReverseGeoCode(ctx context.Context, latitude, longitude float64) (string, error) {
	args := m.Called(ctx, latitude, longitude)
	return args.String(0), args.Error(1)
}

type mockRouteBuilder struct {
	mock.Mock
}

func (m *mockRouteBuilder) BuildRoute(ctx context.Context, source, destination *Position) (*Route, error) {
	args := m.Called(ctx, source, destination)
	route, _ := args.Get(0).(*Route)
	return route, args.Error(1)
}

type mockOrderManager struct {
	mock.Mock
}

func (m *mockOrderManager) CalculateRouteDetails(route Route) RouteDetails {
	args := m.Called(route)
	return args.Get(0).(RouteDetails)
}

type mockPlacesProvider struct {
	mock.Mock
}

func (m *mockPlacesProvider) FindNearbyPlaces(ctx context.Context, limit int) ([]Place, error) {
	args := m.Called(ctx, limit)
	places, _ := args.Get(0).([]Place)
	return places, args.Error(1)
}

// stubResources renders "key:arg".
type stubResources struct{}

func (stubResources) GetString(key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	return fmt.Sprintf("%s:%v", key, args[0])
}

type stubRenderer struct {
	mu    sync.Mutex
	texts []string
}

func (r *stubRenderer) Render(text string) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

func (r *stubRenderer) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// fakeLocation forwards positions pushed into Fixes to every subscriber.
type fakeLocation struct {
	Fixes chan Position

	mu     sync.Mutex
	latest *Position
}

func newFakeLocation() *fakeLocation {
	return &fakeLocation{Fixes: make(chan Position)}
}

// SetLatest records a fix the provider knows about without delivering it.
func (f *fakeLocation) SetLatest(p Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = &p
}

func (f *fakeLocation) Latest() *Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

func (f *fakeLocation) Updates(ctx context.Context) <-chan Position {
	out := make(chan Position)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-f.Fixes:
				f.SetLatest(p)
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// gatedGeoCoder blocks each call keyed by latitude until its gate is opened
// and records how many calls ran at the same time.
type gatedGeoCoder struct {
	mu        sync.Mutex
	gates     map[float64]chan struct{}
	titles    map[float64]string
	calls     []float64
	active    int32
	maxActive int32
	cancelled int32
}

func newGatedGeoCoder() *gatedGeoCoder {
	return &gatedGeoCoder{
		gates:  make(map[float64]chan struct{}),
		titles: make(map[float64]string),
	}
}

func (g *gatedGeoCoder) gate(latitude float64, title string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[latitude] = ch
	g.titles[latitude] = title
	return ch
}

func (g *gatedGeoCoder) Calls() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]float64(nil), g.calls...)
}

func (g *gatedGeoCoder) ReverseGeoCode(ctx context.Context, latitude, longitude float64) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, latitude)
	gate := g.gates[latitude]
	title := g.titles[latitude]
	g.mu.Unlock()

	n := atomic.AddInt32(&g.active, 1)
	defer atomic.AddInt32(&g.active, -1)
	for {
		current := atomic.LoadInt32(&g.maxActive)
		if n <= current || atomic.CompareAndSwapInt32(&g.maxActive, current, n) {
			break
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			atomic.AddInt32(&g.cancelled, 1)
			return "", ctx.Err()
		}
	}
	return title, nil
}

// funcRouteBuilder delegates to fn and counts calls.
type funcRouteBuilder struct {
	calls int32
	fn    func(ctx context.Context, call int32, source, destination *Position) (*Route, error)
}

func (b *funcRouteBuilder) BuildRoute(ctx context.Context, source, destination *Position) (*Route, error) {
	call := atomic.AddInt32(&b.calls, 1)
	return b.fn(ctx, call, source, destination)
}

func (b *funcRouteBuilder) Calls() int32 {
	return atomic.LoadInt32(&b.calls)
}
