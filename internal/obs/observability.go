// Package obs provides the edge server's OpenTelemetry observability
// provider, adapted from the teacher's pkg/observability/observability.go
// Provider pattern: the same trace/metric provider lifecycle and RED
// (Rate, Errors, Duration) metric triple, renamed to the order-engine
// operations this repo actually has.
package obs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers for one edge-server process.
type Config struct {
	ServiceName    string
	ServiceVersion string
	TenantID       string
	OTLPEndpoint   string
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns a disabled-by-default configuration; an edge
// deployment behind a kiosk network rarely has an OTLP collector reachable
// until it's explicitly configured.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "tallyforge-edge",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        false,
		Insecure:       true,
	}
}

// Provider manages the trace/metric providers and the RED metric triple
// for command execution.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	commandCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// New creates the observability provider. When config.Enabled is false it
// returns a no-op provider whose Record* methods are safe but inert.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{config: config, logger: slog.Default().With("component", "obs")}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("edge.tenant_id", config.TenantID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: build resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("obs: init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("obs: init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("tallyforge.edge", trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter("tallyforge.edge", metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("obs: init metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName, "endpoint", config.OTLPEndpoint, "sample_rate", config.SampleRate)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return err
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return err
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initMetrics() error {
	var err error
	if p.commandCounter, err = p.meter.Int64Counter("edge.commands.total",
		metric.WithDescription("Total order commands executed"), metric.WithUnit("{command}")); err != nil {
		return err
	}
	if p.errorCounter, err = p.meter.Int64Counter("edge.errors.total",
		metric.WithDescription("Total command failures"), metric.WithUnit("{error}")); err != nil {
		return err
	}
	if p.durationHist, err = p.meter.Float64Histogram("edge.command.duration",
		metric.WithDescription("Command execution duration"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0)); err != nil {
		return err
	}
	if p.activeOperations, err = p.meter.Int64UpDownCounter("edge.operations.active",
		metric.WithDescription("In-flight order commands"), metric.WithUnit("{operation}")); err != nil {
		return err
	}
	return nil
}

// Shutdown drains and stops the trace/metric providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Logger returns the provider's base logger.
func (p *Provider) Logger() *slog.Logger { return p.logger }

// TrackCommand wraps one order-engine command execution with a span plus
// the RED metric triple, mirroring the teacher's TrackOperation.
func (p *Provider) TrackCommand(ctx context.Context, commandType string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("edge.command_type", commandType)}

	if p.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := p.tracer.Start(ctx, "order.command."+commandType, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	if p.activeOperations != nil {
		p.activeOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if p.commandCounter != nil {
		p.commandCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		if p.activeOperations != nil {
			p.activeOperations.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		if p.durationHist != nil {
			p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			if p.errorCounter != nil {
				allAttrs := append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
				p.errorCounter.Add(ctx, 1, metric.WithAttributes(allAttrs...))
			}
		}
		span.End()
	}
}
