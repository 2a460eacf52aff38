// Package telemetry wires OpenTelemetry metrics and tracing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/hazz-dev/statusrelay/internal/version"
)

const instrumentationName = "github.com/hazz-dev/statusrelay"

// Config selects exporters. Metrics: prometheus, stdout, otlp, none.
// Traces: stdout, otlp, none. Empty means none.
type Config struct {
	Metrics string
	Traces  string
}

// Provider owns the meter and tracer providers for the process.
type Provider struct {
	Metrics *Metrics

	tracer         trace.Tracer
	metricsHandler http.Handler
	shutdowns      []func(context.Context) error
}

// Setup builds the providers selected by cfg.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", "statusrelay"),
		attribute.String("service.version", version.Version),
	)
	p := &Provider{}

	reader, handler, err := newMetricReader(ctx, cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("creating metrics reader: %w", err)
	}
	var mp metric.MeterProvider = metricnoop.NewMeterProvider()
	if reader != nil {
		smp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
		p.shutdowns = append(p.shutdowns, smp.Shutdown)
		mp = smp
	}
	p.metricsHandler = handler

	exporter, err := newSpanExporter(ctx, cfg.Traces)
	if err != nil {
		p.Shutdown(ctx)
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}
	var tp trace.TracerProvider = tracenoop.NewTracerProvider()
	if exporter != nil {
		stp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
		p.shutdowns = append(p.shutdowns, stp.Shutdown)
		tp = stp
	}
	p.tracer = tp.Tracer(instrumentationName)

	p.Metrics, err = NewMetrics(mp.Meter(instrumentationName))
	if err != nil {
		p.Shutdown(ctx)
		return nil, fmt.Errorf("creating instruments: %w", err)
	}
	return p, nil
}

// Tracer returns the process tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// MetricsHandler returns the Prometheus scrape handler, or nil when the
// prometheus exporter is not selected.
func (p *Provider) MetricsHandler() http.Handler {
	return p.metricsHandler
}

// Shutdown flushes and stops every provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdowns = nil
	return errors.Join(errs...)
}

func newMetricReader(ctx context.Context, name string) (sdkmetric.Reader, http.Handler, error) {
	switch name {
	case "prometheus":
		reg := promclient.NewRegistry()
		exp, err := prometheus.New(prometheus.WithRegisterer(reg))
		if err != nil {
			return nil, nil, fmt.Errorf("creating prometheus exporter: %w", err)
		}
		return exp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil

	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil, nil

	case "otlp":
		if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") == "" {
			return nil, nil, errors.New("OTLP metrics endpoint not configured: set OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
		}
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("creating OTLP metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil, nil

	case "none", "":
		return nil, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown metrics exporter %q", name)
	}
}

func newSpanExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))

	case "otlp":
		if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" {
			return nil, errors.New("OTLP traces endpoint not configured: set OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
		}
		return otlptracegrpc.New(ctx)

	case "none", "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown trace exporter %q", name)
	}
}
