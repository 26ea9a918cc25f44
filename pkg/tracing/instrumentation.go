package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	HTTPMethodKey = attribute.Key("http.method")
	HTTPURLKey    = attribute.Key("http.url")
	HTTPStatusKey = attribute.Key("http.status_code")

	SessionIDKey         = attribute.Key("session.id")
	AddressTypeKey       = attribute.Key("address.type")
	LocationLatitudeKey  = attribute.Key("location.latitude")
	LocationLongitudeKey = attribute.Key("location.longitude")
)

// TraceHTTPClient wraps an outgoing HTTP call in a client span. fn returns
// the response status, zero when no response arrived.
func TraceHTTPClient(ctx context.Context, tracerName, method, url string, fn func(ctx context.Context) (int, error)) (int, error) {
	ctx, span := StartSpan(ctx, tracerName, "HTTP "+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(HTTPMethodKey.String(method), HTTPURLKey.String(url))

	status, err := fn(ctx)
	if status != 0 {
		span.SetAttributes(HTTPStatusKey.Int(status))
	}

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= 400:
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	default:
		span.SetStatus(codes.Ok, "")
	}
	return status, err
}

// TraceExternalAPI wraps a call to a third-party service
func TraceExternalAPI(ctx context.Context, tracerName, serviceName, operation string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, serviceName+"."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("external.service", serviceName),
		attribute.String("external.operation", operation),
	)
	span.SetAttributes(attrs...)

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func LocationAttributes(latitude, longitude float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		LocationLatitudeKey.Float64(latitude),
		LocationLongitudeKey.Float64(longitude),
	}
}
