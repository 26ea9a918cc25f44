package taxi

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// runRouteDerivation rebuilds the route whenever an endpoint position
// changes. A new request cancels the one in flight and only the latest
// request may publish its result.
func (s *Session) runRouteDerivation(ctx context.Context) {
	cancelInFlight := func() {}
	defer func() { cancelInFlight() }()

	for ep := range s.endpoints.Subscribe(ctx) {
		cancelInFlight()
		gen := s.nextRouteGeneration()

		if ep.source == nil || ep.destination == nil {
			cancelInFlight = func() {}
			s.publishRoute(gen, nil, nil)
			continue
		}

		reqCtx, cancel := context.WithCancel(ctx)
		cancelInFlight = cancel
		s.tasks.GoWith(reqCtx, "build-route", func(ctx context.Context) {
			s.buildRoute(ctx, gen, ep)
		})
	}
}

func (s *Session) buildRoute(ctx context.Context, gen uint64, ep endpoints) {
	route, err := s.deps.Routes.BuildRoute(ctx, ep.source, ep.destination)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		routeRequestsTotal.WithLabelValues("superseded").Inc()
		return
	}
	if err != nil {
		routeRequestsTotal.WithLabelValues("error").Inc()
		s.log.Error("failed to build route",
			zap.Any("source", ep.source),
			zap.Any("destination", ep.destination),
			zap.Error(err),
		)
		s.publishRoute(gen, nil, nil)
		return
	}
	if route == nil {
		routeRequestsTotal.WithLabelValues("none").Inc()
		s.publishRoute(gen, nil, nil)
		return
	}

	routeRequestsTotal.WithLabelValues("ok").Inc()
	s.publishRoute(gen, route, s.tripInfo(ep, *route))
}

// tripInfo prices the route built between ep and renders its info window.
func (s *Session) tripInfo(ep endpoints, route Route) *InfoWindow {
	details := s.deps.Orders.CalculateRouteDetails(route)
	data := FormatInfoWindow(details, s.deps.Resources)

	info := &InfoWindow{
		Data:        data,
		Source:      *ep.source,
		Destination: *ep.destination,
		Route:       route,
		Details:     details,
	}
	if s.deps.Renderer != nil {
		info.Image = s.deps.Renderer.Render(data.Text)
	}
	return info
}

func (s *Session) nextRouteGeneration() uint64 {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()
	s.routeGen++
	return s.routeGen
}

// publishRoute stores the route and its trip info unless a newer derivation
// has started since gen was issued.
func (s *Session) publishRoute(gen uint64, route *Route, info *InfoWindow) {
	s.routeMu.Lock()
	defer s.routeMu.Unlock()

	if gen != s.routeGen {
		return
	}
	s.route.Set(route)
	s.infoWindow.Set(info)
}
