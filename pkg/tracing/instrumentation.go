package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys
var (
	DBSystemKey    = attribute.Key("db.system")
	DBOperationKey = attribute.Key("db.operation")
	DBTableKey     = attribute.Key("db.sql.table")

	HTTPMethodKey    = attribute.Key("http.method")
	HTTPURLKey       = attribute.Key("http.url")
	HTTPStatusKey    = attribute.Key("http.status_code")
	HTTPRouteKey     = attribute.Key("http.route")
	HTTPClientIPKey  = attribute.Key("http.client_ip")
	HTTPRequestIDKey = attribute.Key("http.request_id")

	ActorIDKey    = attribute.Key("actor.id")
	ActorRoleKey  = attribute.Key("actor.role")
	RideIDKey     = attribute.Key("ride.id")
	RideStatusKey = attribute.Key("ride.status")
	RadiusKey     = attribute.Key("dispatch.radius_meters")
	ResultsKey    = attribute.Key("dispatch.results")
)

// TraceDBQuery wraps a PostgreSQL call in a client span.
func TraceDBQuery(ctx context.Context, tracerName, operation, table string, fn func(ctx context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			DBSystemKey.String("postgresql"),
			DBOperationKey.String(operation),
			DBTableKey.String(table),
		),
	)
	defer span.End()

	if err := fn(ctx); err != nil {
		RecordError(ctx, err)
		return err
	}
	return nil
}

// ActorAttributes describes the caller of a ride operation.
func ActorAttributes(actorID, role string) []attribute.KeyValue {
	return []attribute.KeyValue{ActorIDKey.String(actorID), ActorRoleKey.String(role)}
}
