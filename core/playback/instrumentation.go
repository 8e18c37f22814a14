package playback

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-sonic/core/playback"

var (
	meter = otel.Meter(scopeName)

	underflowCounter, _ = meter.Int64Counter("playback.underflow_samples",
		metric.WithDescription("Silence samples padded after playback had started"),
		metric.WithUnit("{sample}"))
)
