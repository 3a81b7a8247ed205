// Package otel sets up the global meter and tracer providers of the server and
// holds the instruments of the REST layer.
package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	metrics "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const requestMeter = "zenorchestrator-rest"

// RestInstruments are recorded by the opentelemetry middleware for every request.
type RestInstruments struct {
	RequestTotal     metrics.Int64Counter
	RequestUriTotal  metrics.Int64Counter
	RequestBodySize  metrics.Float64Counter
	ResponseBodySize metrics.Float64Counter
	RequestDuration  metrics.Float64Histogram
}

type Otel struct {
	Rest           *RestInstruments
	meterProvider  *metric.MeterProvider
	tracerProvider *trace.TracerProvider
}

// SetupOtel installs a prometheus backed meter provider and, when tracing is enabled,
// an OTLP/HTTP tracer provider. Metrics are served from the default prometheus registry.
func SetupOtel(ctx context.Context, conf config.Tracing) (*Otel, error) {
	o := Otel{}
	var err error

	o.meterProvider, err = setupMeterProvider(conf.Name)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(o.meterProvider)

	o.Rest, err = NewRestInstruments(otel.Meter(requestMeter))
	if err != nil {
		return nil, err
	}

	if conf.Enabled {
		o.tracerProvider, err = setupTraceProvider(ctx, conf)
		if err != nil {
			return nil, fmt.Errorf("failed to set up tracer: %w", err)
		}
		otel.SetTracerProvider(o.tracerProvider)
	}
	return &o, nil
}

func (o *Otel) Stop(ctx context.Context) {
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
		o.meterProvider = nil
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
		o.tracerProvider = nil
	}
}

func setupMeterProvider(appName string) (*metric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to set up prometheus exporter: %w", err)
	}
	res := resource.NewSchemaless(
		semconv.ServiceName(appName),
		attribute.String("library.language", "go"),
	)
	return metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	), nil
}

// NewRestInstruments creates the request instruments on meter.
func NewRestInstruments(meter metrics.Meter) (*RestInstruments, error) {
	var (
		res     RestInstruments
		err     error
		errJoin error
	)
	res.RequestTotal, err = meter.Int64Counter("request_total", metrics.WithDescription("Total requests to the server"))
	errJoin = errors.Join(errJoin, err)
	res.RequestUriTotal, err = meter.Int64Counter("request_uri_total", metrics.WithDescription("Total request per uri"))
	errJoin = errors.Join(errJoin, err)
	res.RequestBodySize, err = meter.Float64Counter("request_body_size", metrics.WithUnit("By"), metrics.WithDescription("Server received request body size, bytes"))
	errJoin = errors.Join(errJoin, err)
	res.ResponseBodySize, err = meter.Float64Counter("response_body_size", metrics.WithUnit("By"), metrics.WithDescription("Server send response body size, bytes"))
	errJoin = errors.Join(errJoin, err)
	res.RequestDuration, err = meter.Float64Histogram("request_duration", metrics.WithUnit("ms"), metrics.WithDescription("Time the server took to handle the request, milliseconds"))
	errJoin = errors.Join(errJoin, err)
	if errJoin != nil {
		return nil, fmt.Errorf("failed to create request instruments: %w", errJoin)
	}
	return &res, nil
}
