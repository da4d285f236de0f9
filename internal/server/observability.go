package server

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider   *sdktrace.TracerProvider
	AnalysisCounter metric.Int64Counter
	RejectedCounter metric.Int64Counter
	ConfigUpdates   metric.Int64Counter
	ConfidenceScore metric.Float64Histogram
	SequenceLength  metric.Int64Histogram
}

func SetupObservability(ctx context.Context, cfg ObservabilityConfig) (*Observability, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "halprobe-api"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	analysisCounter, _ := meter.Int64Counter("halprobe_analysis_total")
	rejectedCounter, _ := meter.Int64Counter("halprobe_analysis_rejected_total")
	configUpdates, _ := meter.Int64Counter("halprobe_config_update_total")
	confidenceScore, _ := meter.Float64Histogram("halprobe_confidence_score")
	sequenceLength, _ := meter.Int64Histogram("halprobe_sequence_length")
	return &Observability{
		Tracer:          tracer,
		Meter:           meter,
		traceProvider:   tp,
		AnalysisCounter: analysisCounter,
		RejectedCounter: rejectedCounter,
		ConfigUpdates:   configUpdates,
		ConfidenceScore: confidenceScore,
		SequenceLength:  sequenceLength,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.traceProvider == nil {
		return nil
	}
	return o.traceProvider.Shutdown(ctx)
}

func (o *Observability) MarkAnalysis(ctx context.Context, risk string, suspected bool, confidence float64, length int) {
	if o == nil {
		return
	}
	o.AnalysisCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("risk", risk),
		attribute.Bool("suspected", suspected),
	))
	o.ConfidenceScore.Record(ctx, confidence, metric.WithAttributes(
		attribute.String("risk", risk),
	))
	o.SequenceLength.Record(ctx, int64(length))
}

func (o *Observability) MarkRejected(ctx context.Context, reason string) {
	if o == nil {
		return
	}
	o.RejectedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (o *Observability) MarkConfigUpdate(ctx context.Context) {
	if o == nil {
		return
	}
	o.ConfigUpdates.Add(ctx, 1)
}
