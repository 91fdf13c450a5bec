package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/log"
)

var (
	scenarioCounter metric.Int64Counter
	recoverySeconds metric.Float64Histogram
)

// InitMetrics wires the otel meter provider through the prometheus
// exporter and registers the engine's instruments
func InitMetrics() error {
	exporter, err := prometheus.New()
	if err != nil {
		return err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(tracerName)
	scenarioCounter, err = meter.Int64Counter("resiliency_scenarios_total",
		metric.WithDescription("Scenario outcomes by verdict"))
	if err != nil {
		return err
	}
	recoverySeconds, err = meter.Float64Histogram("resiliency_recovery_seconds",
		metric.WithDescription("Observed time to recovery per scenario"))
	if err != nil {
		return err
	}
	return nil
}

// RecordScenario counts one scenario outcome and, on success, the observed
// recovery duration
func RecordScenario(ctx context.Context, scenario string, passed bool, recovery time.Duration) {
	if scenarioCounter == nil {
		return
	}
	verdict := "fail"
	if passed {
		verdict = "pass"
	}
	attrs := metric.WithAttributes(
		attribute.String("scenario", scenario),
		attribute.String("verdict", verdict),
	)
	scenarioCounter.Add(ctx, 1, attrs)
	if passed && recoverySeconds != nil {
		recoverySeconds.Record(ctx, recovery.Seconds(), metric.WithAttributes(attribute.String("scenario", scenario)))
	}
}

// ServeMetrics exposes /metrics on addr in the background
func ServeMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("Metrics endpoint stopped, err: %v", err)
		}
	}()
}
