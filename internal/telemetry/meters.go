// Package telemetry holds the metric instruments of the session client.
// Recording before InitMeters is a no-op.
package telemetry

import (
	"context"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterPrefix = "openkcm/"

var (
	refreshCounter metric.Int64Counter
	requestCounter metric.Int64Counter
	retryCounter   metric.Int64Counter
)

func InitMeters(ctx context.Context, app commoncfg.Application) error {
	meter := otel.Meter(
		meterPrefix+app.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(app)...),
	)

	var err error

	refreshCounter, err = meter.Int64Counter(
		"session.refresh_count",
		metric.WithDescription("Token refresh attempts"),
		metric.WithUnit("refresh"),
	)
	if err != nil {
		return oops.In("Telemetry").
			WithContext(ctx).
			Wrapf(err, "creating refresh_count meter")
	}

	requestCounter, err = meter.Int64Counter(
		"authorizer.request_count",
		metric.WithDescription("Outgoing authorized request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return oops.In("Telemetry").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	retryCounter, err = meter.Int64Counter(
		"authorizer.retry_count",
		metric.WithDescription("Requests retried after a token refresh"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return oops.In("Telemetry").
			WithContext(ctx).
			Wrapf(err, "creating retry_count meter")
	}

	return nil
}

func RecordRefresh(ctx context.Context, success bool) {
	if refreshCounter == nil {
		return
	}

	refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func RecordRequest(ctx context.Context, statusCode int, retried bool) {
	if requestCounter == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Int("status_code", statusCode),
		attribute.Bool("retried", retried),
	)
	requestCounter.Add(ctx, 1, attrs)

	if retried && retryCounter != nil {
		retryCounter.Add(ctx, 1, attrs)
	}
}
