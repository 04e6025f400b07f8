package stock

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"stallpos/pkg/logger"
)

var meter = otel.Meter("stallpos/stock")

// LoggingObserver returns a ClampObserver that logs every clamp as a warning and
// counts it in the stallpos.stock.clamped metric, so over-allocation stays visible
// even though the displayed figure is zero.
func LoggingObserver(log *logger.Logger) ClampObserver {
	log = log.WithComponent("stock")
	counter, err := meter.Int64Counter("stallpos.stock.clamped",
		metric.WithDescription("Stock figures that computed negative and were shown as zero"))
	if err != nil {
		log.Warnw("clamp counter unavailable", "error", err)
	}

	return func(ev ClampEvent) {
		log.Warnw("negative stock clamped to zero",
			"scope", ev.Scope,
			"item_id", ev.ItemID,
			"stall_id", ev.StallID,
			"raw", ev.Raw,
		)
		if counter != nil {
			counter.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("scope", string(ev.Scope)),
				attribute.String("item_id", ev.ItemID),
			))
		}
	}
}
