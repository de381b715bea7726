package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/hook"
)

// meterName is the instrumentation scope name for coordinator metrics.
const meterName = "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"

// Compile-time interface checks.
var (
	_ hook.Extension       = (*MetricsExtension)(nil)
	_ hook.LeaseAcquired   = (*MetricsExtension)(nil)
	_ hook.AcquireRejected = (*MetricsExtension)(nil)
	_ hook.LeaseReleased   = (*MetricsExtension)(nil)
	_ hook.SweepCompleted  = (*MetricsExtension)(nil)
)

// MetricsExtension records ownership lifecycle metrics. Register it on a
// coordinator to track acquisition, rejection, release, and sweep rates.
//
// Instruments:
//   - twitchmon.lease.acquired (Int64Counter), attribute takeover
//   - twitchmon.lease.rejected (Int64Counter), attribute reason
//   - twitchmon.lease.released (Int64Counter)
//   - twitchmon.sweep.removed (Int64Counter), attribute kind
type MetricsExtension struct {
	acquired metric.Int64Counter
	rejected metric.Int64Counter
	released metric.Int64Counter
	swept    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. With no provider configured the instruments are noops
// and the extension becomes a pass-through.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use; on error the API returns noop instruments.
	acquired, aErr := meter.Int64Counter(
		"twitchmon.lease.acquired",
		metric.WithDescription("Total channel leases acquired by this instance"),
		metric.WithUnit("{lease}"),
	)
	_ = aErr // noop fallback guaranteed by OTel API contract

	rejected, rErr := meter.Int64Counter(
		"twitchmon.lease.rejected",
		metric.WithDescription("Total acquisition attempts refused"),
		metric.WithUnit("{attempt}"),
	)
	_ = rErr // noop fallback guaranteed by OTel API contract

	released, relErr := meter.Int64Counter(
		"twitchmon.lease.released",
		metric.WithDescription("Total channel leases voluntarily released"),
		metric.WithUnit("{lease}"),
	)
	_ = relErr // noop fallback guaranteed by OTel API contract

	swept, sErr := meter.Int64Counter(
		"twitchmon.sweep.removed",
		metric.WithDescription("Total expired rows removed by cleanup sweeps"),
		metric.WithUnit("{row}"),
	)
	_ = sErr // noop fallback guaranteed by OTel API contract

	return &MetricsExtension{
		acquired: acquired,
		rejected: rejected,
		released: released,
		swept:    swept,
	}
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnLeaseAcquired implements hook.LeaseAcquired.
func (m *MetricsExtension) OnLeaseAcquired(ctx context.Context, _ string, takeover bool) error {
	m.acquired.Add(ctx, 1, metric.WithAttributes(attribute.Bool("takeover", takeover)))
	return nil
}

// OnAcquireRejected implements hook.AcquireRejected.
func (m *MetricsExtension) OnAcquireRejected(ctx context.Context, _ string, reason string) error {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return nil
}

// OnLeaseReleased implements hook.LeaseReleased.
func (m *MetricsExtension) OnLeaseReleased(ctx context.Context, _ string) error {
	m.released.Add(ctx, 1)
	return nil
}

// OnSweepCompleted implements hook.SweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(ctx context.Context, leasesRemoved, instancesRemoved int64) error {
	m.swept.Add(ctx, leasesRemoved, metric.WithAttributes(attribute.String("kind", "lease")))
	m.swept.Add(ctx, instancesRemoved, metric.WithAttributes(attribute.String("kind", "instance")))
	return nil
}
