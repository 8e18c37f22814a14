package tools

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-sonic/core/tools"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	toolFailureCounter, _ = meter.Int64Counter("tools.failures",
		metric.WithDescription("Tool calls that were answered with an error result"),
		metric.WithUnit("{call}"),
	)
)
