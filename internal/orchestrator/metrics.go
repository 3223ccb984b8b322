package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// metrics holds the orchestrator's counters. Instruments come from the
// global meter provider; with no provider installed they are no-ops.
type metrics struct {
	started metric.Int64Counter
	settled metric.Int64Counter
	refunds metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("mietcheck/orchestrator")

	m := &metrics{}
	var err error
	if m.started, err = meter.Int64Counter("mietcheck_jobs_started_total",
		metric.WithDescription("Analysis jobs launched")); err != nil {
		log.Warn().Err(err).Msg("Creating jobs_started counter failed")
	}
	if m.settled, err = meter.Int64Counter("mietcheck_jobs_settled_total",
		metric.WithDescription("Analysis jobs settled, by outcome")); err != nil {
		log.Warn().Err(err).Msg("Creating jobs_settled counter failed")
	}
	if m.refunds, err = meter.Int64Counter("mietcheck_refunds_total",
		metric.WithDescription("Automatic refunds, by result")); err != nil {
		log.Warn().Err(err).Msg("Creating refunds counter failed")
	}
	return m
}

func (m *metrics) jobsStarted(ctx context.Context) {
	if m.started != nil {
		m.started.Add(ctx, 1)
	}
}

func (m *metrics) jobSettled(ctx context.Context, rec *models.CompletedRecord) {
	if m.settled == nil {
		return
	}
	outcome := "done"
	attrs := []attribute.KeyValue{}
	if rec.Failed() {
		outcome = "failed"
		attrs = append(attrs, attribute.String("error_kind", string(rec.ErrKind)))
	}
	attrs = append(attrs, attribute.String("outcome", outcome))
	m.settled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) refundIssued(ctx context.Context) {
	if m.refunds != nil {
		m.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "issued")))
	}
}

func (m *metrics) refundFailed(ctx context.Context) {
	if m.refunds != nil {
		m.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
	}
}
