package observability

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"
)

// Options selects what gets exported and where
type Options struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	// Registerer receives the OTel Prometheus exporter; nil means prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// Observability holds the OpenTelemetry providers installed globally
type Observability struct {
	tracerShutdown func(ctx context.Context) error
	meterShutdown  func(ctx context.Context) error
	status         Status
}

// Status tracks which components are initialized
type Status struct {
	TracingEnabled bool
	MetricsEnabled bool
}

// Shutdown flushes and stops the exporters
func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error

	if o.tracerShutdown != nil {
		if err := o.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	if o.meterShutdown != nil {
		if err := o.meterShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (o *Observability) Status() Status {
	return o.status
}

// Setup installs OTLP tracing and metrics when an endpoint is configured.
// Without one the global no-op providers stay in place.
func Setup(ctx context.Context, opts Options) (*Observability, error) {
	obs := &Observability{}
	logger := zap.L().With(zap.String("component", "observability"))

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	if opts.OTLPEndpoint == "" {
		logger.Info("OTLP endpoint not set, tracing and metric export disabled")
		return obs, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.DeploymentEnvironment(opts.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	endpoint := stripProtocol(opts.OTLPEndpoint)

	tracerShutdown, err := initTracing(ctx, res, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	obs.tracerShutdown = tracerShutdown
	obs.status.TracingEnabled = true
	logger.Info("OTLP trace exporter initialized", zap.String("endpoint", endpoint))

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	meterShutdown, err := initMetrics(ctx, res, endpoint, registerer)
	if err != nil {
		// Metrics are optional
		logger.Warn("Failed to initialize metrics", zap.Error(err))
	} else {
		obs.meterShutdown = meterShutdown
		obs.status.MetricsEnabled = true
		logger.Info("Metric exporters initialized", zap.String("otlp_endpoint", endpoint))
	}

	return obs, nil
}

func initTracing(ctx context.Context, res *resource.Resource, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithMaxExportBatchSize(512),
		sdktrace.WithMaxQueueSize(2048),
		sdktrace.WithBatchTimeout(5*time.Second),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)

	return tracerProvider.Shutdown, nil
}

// initMetrics pushes to the collector and exposes the same instruments on /metrics
func initMetrics(ctx context.Context, res *resource.Resource, endpoint string, registerer prometheus.Registerer) (func(context.Context) error, error) {
	otlpExporter, err := otlpmetrichttp.New(
		ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	prometheusExporter, err := promexporter.New(promexporter.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(otlpExporter, metric.WithInterval(30*time.Second))),
		metric.WithReader(prometheusExporter),
	)
	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}

// stripProtocol reduces an endpoint to host:port; the OTLP exporters append /v1/traces and /v1/metrics themselves
func stripProtocol(endpoint string) string {
	endpoint = strings.TrimSpace(strings.Trim(endpoint, `"`))

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if idx := strings.Index(endpoint, "/"); idx != -1 {
			return endpoint[:idx]
		}
		return endpoint
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	}

	return parsedURL.Host
}
