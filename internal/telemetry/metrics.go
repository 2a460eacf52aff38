package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hazz-dev/statusrelay/internal/command"
	"github.com/hazz-dev/statusrelay/internal/fetcher"
)

// Metrics records fetch and command instruments. It implements
// fetcher.Observer and command.Observer and is safe for concurrent use.
type Metrics struct {
	fetchTotal      metric.Int64Counter
	fetchDuration   metric.Float64Histogram
	commandTotal    metric.Int64Counter
	commandDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	fetchTotal, err := meter.Int64Counter(
		"statusrelay.fetches",
		metric.WithDescription("Health document fetches by endpoint and outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"statusrelay.fetch.duration",
		metric.WithDescription("Health document fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	commandTotal, err := meter.Int64Counter(
		"statusrelay.commands",
		metric.WithDescription("Handled chat commands by command and status"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	commandDuration, err := meter.Float64Histogram(
		"statusrelay.command.duration",
		metric.WithDescription("Chat command handling duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		fetchTotal:      fetchTotal,
		fetchDuration:   fetchDuration,
		commandTotal:    commandTotal,
		commandDuration: commandDuration,
	}, nil
}

func (m *Metrics) ObserveFetch(ctx context.Context, o fetcher.Outcome) {
	opt := metric.WithAttributes(
		attribute.String("endpoint", o.Endpoint.Name),
		attribute.String("outcome", o.Label()),
	)
	m.fetchTotal.Add(ctx, 1, opt)
	m.fetchDuration.Record(ctx, float64(o.Duration.Microseconds())/1000, opt)
}

func (m *Metrics) ObserveCommand(ctx context.Context, inv command.Invocation) {
	opt := metric.WithAttributes(
		attribute.String("command", inv.Command),
		attribute.String("status", string(inv.Status)),
	)
	m.commandTotal.Add(ctx, 1, opt)
	m.commandDuration.Record(ctx, float64(inv.Duration.Microseconds())/1000, opt)
}
