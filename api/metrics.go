package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kanban-api/api")

// snapshotMetrics traces a board snapshot read and logs its timings.
type snapshotMetrics struct {
	logger *log.Logger
	start  time.Time
	span   trace.Span
}

func newSnapshotMetrics(ctx context.Context, logger *log.Logger) (*snapshotMetrics, context.Context) {
	spanCtx, span := tracer.Start(ctx, "board.snapshot")
	return &snapshotMetrics{logger: logger, start: time.Now(), span: span}, spanCtx
}

func (m *snapshotMetrics) Finish(lists int, err error) {
	if m == nil {
		return
	}
	elapsed := time.Since(m.start)
	m.span.SetAttributes(attribute.Int("board.lists", lists))
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":    "/api/boards/:id",
		"total_ms": durationToMillis(elapsed),
		"lists":    lists,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Debug("board.snapshot.metrics")
}

// moveMetrics traces a card move, the one write path where latency directly
// shows up as drag-and-drop lag.
type moveMetrics struct {
	logger *log.Logger
	start  time.Time
	span   trace.Span
	cardID string
}

func newMoveMetrics(ctx context.Context, logger *log.Logger, cardID string) (*moveMetrics, context.Context) {
	spanCtx, span := tracer.Start(ctx, "card.move", trace.WithAttributes(attribute.String("card.id", cardID)))
	return &moveMetrics{logger: logger, start: time.Now(), span: span, cardID: cardID}, spanCtx
}

func (m *moveMetrics) Finish(err error) {
	if m == nil {
		return
	}
	elapsed := time.Since(m.start)
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":    "/api/cards/:id/move",
		"card":     m.cardID,
		"total_ms": durationToMillis(elapsed),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("card.move.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
