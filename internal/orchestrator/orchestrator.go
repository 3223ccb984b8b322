// Package orchestrator drives a session from "paid" through background
// analysis to its terminal outcome. It owns the only real race in the
// system: two simultaneous status checks for a never-yet-started
// session must launch exactly one job.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/internal/analysis"
	"github.com/mietcheck/mietcheck/internal/mailer"
	"github.com/mietcheck/mietcheck/internal/messages"
	"github.com/mietcheck/mietcheck/internal/payment"
	"github.com/mietcheck/mietcheck/internal/preprocess"
	"github.com/mietcheck/mietcheck/internal/report"
	"github.com/mietcheck/mietcheck/internal/store"
	"github.com/mietcheck/mietcheck/internal/store/archive"
	"github.com/mietcheck/mietcheck/pkg/models"
)

// Analyzer runs one model invocation over a preprocessed payload.
type Analyzer interface {
	Analyze(ctx context.Context, payload *preprocess.Payload, opts analysis.Options) (*models.AnalysisResult, error)
}

// ErrNoReport is returned when a report is requested before the
// session has a successful result.
var ErrNoReport = fmt.Errorf("no report available")

// State is the client-visible job state.
type State string

const (
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Outcome is the tagged result of a poll. The polling interface never
// returns an error for job failures; they arrive as StateFailed with a
// pre-written message.
type Outcome struct {
	State   State
	Result  *models.AnalysisResult
	Message string
	Kind    models.ErrorKind
}

// Config holds orchestrator tuning.
type Config struct {
	Retry analysis.RetryConfig
	// BaseURL is the public origin for checkout redirect URLs.
	BaseURL string
	// Prices maps plan identifiers to checkout amounts in cents.
	Prices map[string]int64
	// Currency for checkouts, e.g. "eur".
	Currency string
	// JobTimeout bounds one analysis job, retries included.
	JobTimeout time.Duration
}

// Orchestrator is the job state machine over the session store.
type Orchestrator struct {
	store    store.Store
	gateway  payment.Gateway
	analyzer Analyzer
	msgs     *messages.Catalog
	cfg      Config

	// Optional collaborators; nil disables the side effect.
	mailer  *mailer.Mailer
	archive *archive.Archive

	metrics *metrics
	jobs    sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithMailer enables best-effort result emails.
func WithMailer(m *mailer.Mailer) Option {
	return func(o *Orchestrator) { o.mailer = m }
}

// WithArchive enables the durable settled-job trail.
func WithArchive(a *archive.Archive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// New creates an orchestrator.
func New(st store.Store, gw payment.Gateway, an Analyzer, msgs *messages.Catalog, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Backoff == 0 {
		cfg.Retry = analysis.DefaultRetryConfig()
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}

	o := &Orchestrator{
		store:    st,
		gateway:  gw,
		analyzer: an,
		msgs:     msgs,
		cfg:      cfg,
		metrics:  newMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartCheckout creates the payment session and stores the uploaded
// files as pending input keyed by the new session id.
func (o *Orchestrator) StartCheckout(ctx context.Context, in *models.PendingInput) (*payment.Checkout, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("no files uploaded")
	}

	plan := in.Plan
	amount, ok := o.cfg.Prices[plan]
	if !ok {
		plan = "basic"
		amount = o.cfg.Prices[plan]
	}

	checkout, err := o.gateway.CreateCheckout(ctx, payment.CheckoutParams{
		AmountCents:   amount,
		Currency:      o.cfg.Currency,
		ProductName:   "MietCheck Nebenkostenprüfung",
		SuccessURL:    o.cfg.BaseURL + "/pruefung?session={CHECKOUT_SESSION_ID}",
		CancelURL:     o.cfg.BaseURL + "/abbruch",
		CustomerEmail: in.Email,
		Metadata:      map[string]string{"plan": plan},
	})
	if err != nil {
		return nil, fmt.Errorf("start checkout: %w", err)
	}

	in.Plan = plan
	in.CreatedAt = time.Now()
	if err := o.store.PutPending(ctx, checkout.ID, in); err != nil {
		return nil, fmt.Errorf("store pending input: %w", err)
	}

	log.Info().Str("sessionId", checkout.ID).Str("plan", plan).Int("files", len(in.Files)).Msg("Checkout started")
	return checkout, nil
}

// PollStatus reports the session's job state and, on the first call for
// a paid session with pending input, launches the background job. The
// method is idempotent: re-entrant calls while a job runs report
// "processing" without a second launch.
func (o *Orchestrator) PollStatus(ctx context.Context, sessionID string) Outcome {
	if rec, err := o.store.GetCompleted(ctx, sessionID); err == nil && rec != nil {
		return o.recordOutcome(rec)
	} else if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Completed lookup failed")
		return Outcome{State: StateProcessing}
	}

	if active, err := o.store.IsActive(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Active lookup failed")
		return Outcome{State: StateProcessing}
	} else if active {
		return Outcome{State: StateProcessing}
	}

	// The job captures this input reference; a racing sweep cannot pull
	// it out from under the launched task.
	in, err := o.store.GetPending(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Pending lookup failed")
		return Outcome{State: StateProcessing}
	}
	if in == nil {
		return Outcome{
			State:   StateFailed,
			Message: o.msgs.Get(messages.KeyUnknown),
			Kind:    models.ErrKindGeneric,
		}
	}

	info, err := o.gateway.Info(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Payment status lookup failed")
		return Outcome{State: StateProcessing}
	}
	if info.Status != payment.StatusPaid {
		// Payment is the sole gate; the client keeps polling while the
		// provider finishes confirming.
		return Outcome{State: StateProcessing}
	}

	// Atomic check-and-set before spawning: no suspension point between
	// the check and the launch decision.
	launched, err := o.store.TryActivate(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Activation failed")
		return Outcome{State: StateProcessing}
	}
	if launched {
		o.metrics.jobsStarted(ctx)
		o.jobs.Add(1)
		go o.runJob(context.WithoutCancel(ctx), sessionID, in)
		log.Info().Str("sessionId", sessionID).Msg("Analysis job launched")
	}

	return Outcome{State: StateProcessing}
}

// RetryWithNewUpload replaces the session's input with a fresh upload
// and re-enters Pending. Only valid for a session whose payment is
// confirmed; the retry itself is free.
func (o *Orchestrator) RetryWithNewUpload(ctx context.Context, sessionID string, in *models.PendingInput) (Outcome, error) {
	if len(in.Files) == 0 {
		return Outcome{}, fmt.Errorf("no files uploaded")
	}

	info, err := o.gateway.Info(ctx, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("verify payment: %w", err)
	}
	if info.Status != payment.StatusPaid {
		return Outcome{}, fmt.Errorf("payment not confirmed for session %s", sessionID)
	}

	if active, err := o.store.IsActive(ctx, sessionID); err != nil {
		return Outcome{}, err
	} else if active {
		// A job is still running; its outcome arrives via polling.
		return Outcome{State: StateProcessing}, nil
	}

	prev, err := o.store.GetPending(ctx, sessionID)
	if err == nil && prev != nil {
		// Keep metadata the new upload did not restate.
		if in.Email == "" {
			in.Email = prev.Email
		}
		if in.FloorAreaSqm == 0 {
			in.FloorAreaSqm = prev.FloorAreaSqm
		}
	}
	if in.Plan == "" {
		in.Plan = info.Metadata["plan"]
	}
	in.CreatedAt = time.Now()

	// The new pending input goes in before the old terminal state is
	// cleared. A poll landing in between sees the previous outcome, not
	// an unknown session, and the lingering completed record blocks
	// activation until the replacement input is in place.
	if err := o.store.PutPending(ctx, sessionID, in); err != nil {
		return Outcome{}, fmt.Errorf("store retry input: %w", err)
	}

	// Most recent completed job wins.
	if err := o.store.DeleteCompleted(ctx, sessionID); err != nil {
		return Outcome{}, err
	}

	log.Info().Str("sessionId", sessionID).Int("files", len(in.Files)).Msg("Retry with new upload accepted")
	return Outcome{State: StateProcessing}, nil
}

// Report renders the PDF report for a completed session.
func (o *Orchestrator) Report(ctx context.Context, sessionID string) ([]byte, error) {
	rec, err := o.store.GetCompleted(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Failed() {
		return nil, ErrNoReport
	}
	return report.Render(rec.Result)
}

// ActiveJobs reports the number of currently running jobs.
func (o *Orchestrator) ActiveJobs(ctx context.Context) int {
	n, err := o.store.ActiveCount(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Wait blocks until all in-flight jobs have settled. Used on shutdown
// and by tests.
func (o *Orchestrator) Wait() {
	o.jobs.Wait()
}

func (o *Orchestrator) recordOutcome(rec *models.CompletedRecord) Outcome {
	if !rec.Failed() {
		return Outcome{State: StateDone, Result: rec.Result}
	}
	return Outcome{State: StateFailed, Message: rec.ErrMessage, Kind: rec.ErrKind}
}
