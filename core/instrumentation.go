package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-sonic/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	activeSessionsCounter, _ = meter.Int64UpDownCounter("sessions.active",
		metric.WithDescription("Sessions registered with a manager"),
		metric.WithUnit("{session}"),
	)
	decodeErrorCounter, _ = meter.Int64Counter("sessions.decode_errors",
		metric.WithDescription("Inbound frames dropped because they could not be decoded"),
		metric.WithUnit("{frame}"),
	)
	protocolRejectionCounter, _ = meter.Int64Counter("sessions.protocol_rejections",
		metric.WithDescription("Outbound events refused because they were out of order"),
		metric.WithUnit("{event}"),
	)
)
