package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span this server emits.
const TracerName = "schemals"

// Tracer returns the tracer for a component. Without a configured provider
// the global no-op tracer is used.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(TracerName + "." + component)
}
