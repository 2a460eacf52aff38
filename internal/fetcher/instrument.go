package fetcher

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hazz-dev/statusrelay/internal/registry"
)

// Observer receives every completed fetch.
type Observer interface {
	ObserveFetch(ctx context.Context, o Outcome)
}

type instrumented struct {
	next     Fetcher
	tracer   trace.Tracer
	observer Observer
}

// Instrument wraps f so each fetch runs in its own span and is reported to
// observer. Either may be nil.
func Instrument(f Fetcher, tracer trace.Tracer, observer Observer) Fetcher {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &instrumented{next: f, tracer: tracer, observer: observer}
}

func (i *instrumented) Fetch(ctx context.Context, ep registry.Endpoint) Outcome {
	ctx, span := i.tracer.Start(ctx, "fetch "+ep.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("endpoint.name", ep.Name)),
	)
	defer span.End()

	o := i.next.Fetch(ctx, ep)

	span.SetAttributes(attribute.String("fetch.outcome", o.Label()))
	if o.StatusCode != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", o.StatusCode))
	}
	if !o.OK() {
		if o.Err != nil {
			span.RecordError(o.Err)
		}
		span.SetStatus(codes.Error, o.Label())
	}

	if i.observer != nil {
		i.observer.ObserveFetch(ctx, o)
	}
	return o
}
