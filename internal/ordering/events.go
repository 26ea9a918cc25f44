package ordering

import (
	"context"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/eventbus"
	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// publishTripEstimates publishes one trip estimate per derived trip info
// until ctx is done.
func (s *Service) publishTripEstimates(ctx context.Context, session *Session) {
	for info := range session.Core.InfoWindow().Subscribe(ctx) {
		if info == nil {
			continue
		}
		s.publish(ctx, eventbus.SubjectTripEstimated, s.tripEstimate(session, info))
	}
}

// tripEstimate describes the trip info exactly as it was derived: endpoints,
// route and prices all come from info.
func (s *Service) tripEstimate(session *Session, info *taxi.InfoWindow) eventbus.TripEstimatedData {
	details := info.Details

	data := eventbus.TripEstimatedData{
		SessionID:      session.ID,
		Source:         eventPoint(info.Source, session.Core.SourceSlot()),
		Destination:    eventPoint(info.Destination, session.Core.DestinationSlot()),
		DistanceMeters: float64(info.Route.Direction.DistanceMeters),
		Best:           variantData(details.BestVariant),
		Currency:       s.currency,
		EstimatedAt:    time.Now().UTC(),
	}
	for _, v := range details.Alternatives {
		data.Alternatives = append(data.Alternatives, variantData(v))
	}
	return data
}

func (s *Service) publishLifecycle(ctx context.Context, subject string, session *Session) {
	s.publish(ctx, subject, eventbus.SessionLifecycleData{
		SessionID: session.ID,
		Locale:    session.Locale,
		At:        time.Now().UTC(),
	})
}

// publish is best effort: failures are logged and counted.
func (s *Service) publish(ctx context.Context, subject string, data interface{}) {
	event, err := eventbus.NewEvent(subject, eventSource, data)
	if err != nil {
		eventsPublishedTotal.WithLabelValues(subject, "error").Inc()
		logger.ErrorContext(ctx, "failed to build event", zap.String("subject", subject), zap.Error(err))
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.deps.Publisher.Publish(publishCtx, subject, event); err != nil {
		eventsPublishedTotal.WithLabelValues(subject, "error").Inc()
		logger.WarnContext(ctx, "failed to publish event", zap.String("subject", subject), zap.Error(err))
		return
	}
	eventsPublishedTotal.WithLabelValues(subject, "ok").Inc()
}

// eventPoint reports the routed position. The slot address is attached only
// while it still describes that position: a my-location destination moves
// the position but keeps the previous address.
func eventPoint(position taxi.Position, slot taxi.SlotState) *eventbus.EventPoint {
	point := &eventbus.EventPoint{Latitude: position.Latitude, Longitude: position.Longitude}
	if a := slot.Address; a != nil && a.Latitude == position.Latitude && a.Longitude == position.Longitude {
		point.Title = a.Title
		point.Source = a.Source.String()
	}
	return point
}

func variantData(v taxi.TripVariant) eventbus.TripVariantData {
	return eventbus.TripVariantData{Tariff: v.Tariff, DurationMinutes: v.Duration, Cost: v.Cost}
}
