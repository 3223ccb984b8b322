package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/internal/analysis"
	"github.com/mietcheck/mietcheck/internal/messages"
	"github.com/mietcheck/mietcheck/internal/preprocess"
	"github.com/mietcheck/mietcheck/internal/report"
	"github.com/mietcheck/mietcheck/pkg/models"
)

// defaultJobTimeout bounds a single analysis job end to end, retries
// included.
const defaultJobTimeout = 5 * time.Minute

// runJob executes the analysis for one session and settles the outcome.
// It must terminate in a settled state on every path, including panics
// in the preprocessor or model client.
func (o *Orchestrator) runJob(ctx context.Context, sessionID string, in *models.PendingInput) {
	defer o.jobs.Done()

	// The timeout covers the analysis only. Settlement and notification
	// run on the undecorated ctx: a job that burned its whole timeout
	// must still write its failed record, or the session stays active
	// until the safety TTL.
	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	rec := o.executeJob(jobCtx, sessionID, in)
	rec.CompletedAt = time.Now()

	if err := o.store.Settle(ctx, sessionID, rec); err != nil {
		// The active flag carries a TTL, so even this worst case heals;
		// the client sees an extended "processing" until then.
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Settling job failed")
		return
	}

	o.metrics.jobSettled(ctx, rec)

	evt := log.Info().Str("sessionId", sessionID).Dur("duration", time.Since(start))
	if rec.Failed() {
		evt.Str("errorKind", string(rec.ErrKind)).Msg("Analysis job failed")
	} else {
		evt.Str("validation", string(rec.Result.Validation)).Msg("Analysis job done")
	}

	o.notify(ctx, sessionID, in, rec)
}

// executeJob runs preprocess, analysis and the refund policy. It never
// returns an error; failures become a failed CompletedRecord with a
// client-ready message.
func (o *Orchestrator) executeJob(ctx context.Context, sessionID string, in *models.PendingInput) (rec *models.CompletedRecord) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("sessionId", sessionID).Interface("panic", r).Msg("Analysis job panicked")
			rec = &models.CompletedRecord{
				ErrMessage: o.msgs.Get(messages.KeyGeneric),
				ErrKind:    models.ErrKindGeneric,
			}
		}
	}()

	payload, err := preprocess.Build(in.Files)
	if err != nil {
		return o.failedRecord(ctx, sessionID, err)
	}

	opts := analysis.Options{Plan: in.Plan, FloorAreaSqm: in.FloorAreaSqm}
	result, err := analysis.WithRetry(ctx, o.cfg.Retry, func(ctx context.Context) (*models.AnalysisResult, error) {
		return o.analyzer.Analyze(ctx, payload, opts)
	})
	if err != nil {
		return o.failedRecord(ctx, sessionID, err)
	}

	rec = &models.CompletedRecord{Result: result}
	if !result.Usable() {
		// The model read the input but rejected it. The customer paid
		// for an analysis they cannot get, so the charge goes back.
		msg := o.msgs.ValidationMessage(result.Validation, result.Summary)
		status, amount := o.refund(ctx, sessionID)
		if status != refundSkipped {
			msg += "\n" + o.msgs.RefundLine(status == refundIssued, amount)
		}
		rec = &models.CompletedRecord{
			ErrMessage:        msg,
			ErrKind:           models.ErrKindValidation,
			Refunded:          status == refundIssued,
			RefundedAmountCts: amount,
		}
	}
	return rec
}

// failedRecord maps an infrastructure error to a failed record. Infra
// failures never refund: the customer can retry for free once the
// provider recovers.
func (o *Orchestrator) failedRecord(ctx context.Context, sessionID string, err error) *models.CompletedRecord {
	kind := models.ErrKindGeneric
	key := messages.KeyGeneric
	switch analysis.KindOf(err) {
	case analysis.KindAuth:
		kind = models.ErrKindAuth
		key = messages.KeyAuthFailure
	case analysis.KindRateLimit:
		kind = models.ErrKindRateLimit
		key = messages.KeyRateLimited
	case analysis.KindUnavailable, analysis.KindMalformed:
		kind = models.ErrKindGeneric
		key = messages.KeyGeneric
	}

	log.Error().Err(err).Str("sessionId", sessionID).Str("errorKind", string(kind)).Msg("Analysis failed")
	return &models.CompletedRecord{
		ErrMessage: o.msgs.Get(key),
		ErrKind:    kind,
	}
}

type refundStatus int

const (
	refundIssued refundStatus = iota
	refundFailed
	// refundSkipped means an earlier job on this session already
	// refunded; the session never refunds twice.
	refundSkipped
)

// refund issues at most one refund per session, guarded by the store's
// test-and-set marker so repeated validation failures after retries
// never refund twice.
func (o *Orchestrator) refund(ctx context.Context, sessionID string) (refundStatus, int64) {
	first, err := o.store.MarkRefunded(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Refund marker failed")
		return refundFailed, 0
	}
	if !first {
		log.Info().Str("sessionId", sessionID).Msg("Refund already issued for session")
		return refundSkipped, 0
	}

	res, err := o.gateway.Refund(ctx, sessionID)
	if err != nil || !res.Succeeded {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Refund failed")
		o.metrics.refundFailed(ctx)
		return refundFailed, 0
	}

	o.metrics.refundIssued(ctx)
	log.Info().Str("sessionId", sessionID).Int64("amountCents", res.AmountCents).Msg("Refund issued")
	return refundIssued, res.AmountCents
}

// notify sends the best-effort result email and records the settled job
// in the archive. Neither affects the job outcome.
func (o *Orchestrator) notify(ctx context.Context, sessionID string, in *models.PendingInput, rec *models.CompletedRecord) {
	if o.archive != nil {
		if err := o.archive.Record(ctx, sessionID, rec); err != nil {
			log.Warn().Err(err).Str("sessionId", sessionID).Msg("Archiving settled job failed")
		}
	}

	if o.mailer == nil || in.Email == "" || rec.Failed() {
		return
	}

	pdf, err := report.Render(rec.Result)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Report rendering for email failed")
		pdf = nil
	}
	if err := o.mailer.SendResult(in.Email, rec.Result, pdf); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Result email failed")
		return
	}
	log.Info().Str("sessionId", sessionID).Msg("Result email sent")
}
