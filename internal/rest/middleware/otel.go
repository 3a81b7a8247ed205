package middleware

import (
	"context"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenorchestrator/internal/config"
	otelint "github.com/pbinitiative/zenorchestrator/internal/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const defaultOperation = "zenorchestrator-rest"

// Opentelemetry traces incoming requests and records them on instruments.
// The span is named after the matched chi route once the request was served.
func Opentelemetry(conf config.Tracing, instruments *otelint.RestInstruments) func(next http.Handler) http.Handler {
	operation := conf.Name
	if operation == "" {
		operation = defaultOperation
	}
	return func(next http.Handler) http.Handler {
		observed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := withTransferHeaders(r.Context(), r, conf.TransferHeaders)
			span := trace.SpanFromContext(ctx)
			span.SetAttributes(transferHeaderAttributes(r, conf.TransferHeaders)...)
			r = r.WithContext(ctx)

			m := httpsnoop.CaptureMetrics(next, w, r)

			route := routePattern(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
			recordRequest(instruments, r, route, m)
		})
		return otelhttp.NewHandler(observed, operation)
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func recordRequest(instruments *otelint.RestInstruments, r *http.Request, route string, m httpsnoop.Metrics) {
	if instruments == nil {
		return
	}
	ctx := r.Context()
	tags := metric.WithAttributes(
		attribute.String("path", route),
		attribute.String("method", r.Method),
		attribute.Int("status", m.Code),
	)
	instruments.RequestTotal.Add(ctx, 1)
	instruments.RequestUriTotal.Add(ctx, 1, tags)
	if r.ContentLength > 0 {
		instruments.RequestBodySize.Add(ctx, float64(r.ContentLength), tags)
	}
	if m.Written > 0 {
		instruments.ResponseBodySize.Add(ctx, float64(m.Written), tags)
	}
	instruments.RequestDuration.Record(ctx, float64(m.Duration.Microseconds())/1000, tags)
}

func withTransferHeaders(ctx context.Context, r *http.Request, headers []string) context.Context {
	for _, header := range headers {
		ctx = context.WithValue(ctx, otelint.TransferHeaderKey(header), r.Header.Get(header))
	}
	return ctx
}

func transferHeaderAttributes(r *http.Request, headers []string) []attribute.KeyValue {
	res := make([]attribute.KeyValue, 0, len(headers))
	for _, header := range headers {
		if v := r.Header.Get(header); v != "" {
			res = append(res, attribute.String(header, v))
		}
	}
	return res
}
