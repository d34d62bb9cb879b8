// Package telemetry wires OTLP trace export for the transform service.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTLPConfig describes the OTLP gRPC trace exporter.
type OTLPConfig struct {
	// Endpoint is the collector's gRPC address, host:port.
	Endpoint string

	ServiceName    string
	ServiceVersion string
	Environment    string

	// InsecureTLS uses a plaintext gRPC connection.
	InsecureTLS bool

	BatchTimeout  time.Duration
	ExportTimeout time.Duration

	// SamplingRatio is the fraction of traces kept, 0 to 1.
	SamplingRatio float64
}

// DefaultOTLPConfig targets a local collector with full sampling.
func DefaultOTLPConfig(serviceName string) OTLPConfig {
	return OTLPConfig{
		Endpoint:       "localhost:4317",
		ServiceName:    serviceName,
		ServiceVersion: "0.0.0",
		Environment:    "production",
		InsecureTLS:    true,
		BatchTimeout:   3 * time.Second,
		ExportTimeout:  15 * time.Second,
		SamplingRatio:  1.0,
	}
}

// OTLPExporter owns the tracer provider lifecycle.
type OTLPExporter struct {
	mu sync.Mutex

	cfg         OTLPConfig
	provider    *sdktrace.TracerProvider
	tracer      trace.Tracer
	shutdown    func(context.Context) error
	initialized bool
}

// NewOTLPExporter creates an exporter from the given configuration.
func NewOTLPExporter(cfg OTLPConfig) *OTLPExporter {
	return &OTLPExporter{cfg: cfg}
}

// Init connects the exporter, installs the global tracer provider and
// propagators, and returns the shutdown hook that flushes pending spans.
// A second Init returns the first hook.
func (e *OTLPExporter) Init(ctx context.Context) (func(context.Context) error, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return e.shutdown, nil
	}

	exporter, err := e.newExporter(ctx)
	if err != nil {
		return nil, err
	}

	res, err := e.newResource()
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	e.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(e.cfg.BatchTimeout),
			sdktrace.WithExportTimeout(e.cfg.ExportTimeout),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(e.newSampler()),
	)

	otel.SetTracerProvider(e.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	e.tracer = e.provider.Tracer(e.cfg.ServiceName)
	e.shutdown = func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()

		if !e.initialized {
			return nil
		}
		e.initialized = false
		return e.provider.Shutdown(ctx)
	}

	e.initialized = true
	return e.shutdown, nil
}

func (e *OTLPExporter) newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(e.cfg.Endpoint),
		otlptracegrpc.WithTimeout(e.cfg.ExportTimeout),
	}
	if e.cfg.InsecureTLS {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

func (e *OTLPExporter) newResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(e.cfg.ServiceName),
			semconv.ServiceVersion(e.cfg.ServiceVersion),
			semconv.DeploymentEnvironment(e.cfg.Environment),
		),
	)
}

func (e *OTLPExporter) newSampler() sdktrace.Sampler {
	switch {
	case e.cfg.SamplingRatio >= 1:
		return sdktrace.AlwaysSample()
	case e.cfg.SamplingRatio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(e.cfg.SamplingRatio)
	}
}

// Tracer returns the service tracer. Nil until Init has run.
func (e *OTLPExporter) Tracer() trace.Tracer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracer
}
