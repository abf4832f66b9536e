package orchestrator

import (
	"context"
	"errors"
	"time"

	"portraits/internal/domain"
	"portraits/internal/infra"
	"portraits/internal/pipeline"
	"portraits/internal/providers/stylize"
)

// ProviderClient is the slice of the stylize client the orchestrator drives.
type ProviderClient interface {
	Submit(ctx context.Context, req stylize.SubmitRequest) (*stylize.Outcome, error)
	Poll(ctx context.Context, handle *stylize.QueueHandle) (string, error)
}

// ArtifactProcessor turns a provider result URL into stored artifacts.
type ArtifactProcessor interface {
	Process(ctx context.Context, jobID, sourceURL string) (*pipeline.Artifacts, error)
}

// Orchestrator owns the lifecycle of one job from processing to a terminal
// state. Runs are dispatched detached from the creating request, so every
// error is handled and logged here; nothing awaits the run.
type Orchestrator struct {
	jobs     domain.JobRepository
	provider ProviderClient
	pipeline ArtifactProcessor
	notifier domain.Notifier
	logger   infra.Logger

	maxAttempts int
	retryDelay  time.Duration
	viewURL     func(jobID string) string
}

// Options wires an Orchestrator. MaxAttempts and RetryDelay default to
// 3 attempts with a 3s linear backoff step.
type Options struct {
	Jobs        domain.JobRepository
	Provider    ProviderClient
	Pipeline    ArtifactProcessor
	Notifier    domain.Notifier
	Logger      infra.Logger
	MaxAttempts int
	RetryDelay  time.Duration
	ViewURL     func(jobID string) string
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 3 * time.Second
	}
	viewURL := opts.ViewURL
	if viewURL == nil {
		viewURL = func(jobID string) string { return "/portraits/" + jobID }
	}
	return &Orchestrator{
		jobs:        opts.Jobs,
		provider:    opts.Provider,
		pipeline:    opts.Pipeline,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		viewURL:     viewURL,
	}
}

// runSpec is everything a detached run needs; it never re-reads the request.
type runSpec struct {
	JobID           string
	OwnerID         string
	ImageURLs       []string
	Style           string
	EditInstruction string
}

// Run drives one job to a terminal state. ctx is the process lifetime
// context: a caller cannot cancel a running job, only shutdown can.
func (o *Orchestrator) Run(ctx context.Context, spec runSpec) {
	logger := o.logger.With().Str("job_id", spec.JobID).Logger()

	if err := o.jobs.TransitionProcessing(ctx, spec.JobID); err != nil {
		logger.Error().Err(err).Msg("orchestrator: transition to processing failed")
		o.finalizeFailure(ctx, logger, spec.JobID, domain.MsgGenerationFailed)
		return
	}

	resultURL, genErr := o.generate(ctx, logger, spec)
	if genErr != nil {
		message := domain.MsgGenerationFailed
		if errors.Is(genErr, stylize.ErrPollTimeout) {
			message = domain.MsgGenerationTimeout
		}
		logger.Error().Err(genErr).Msg("orchestrator: generation exhausted all attempts")
		o.finalizeFailure(ctx, logger, spec.JobID, message)
		return
	}

	// The provider call already succeeded and is the expensive step; a
	// pipeline failure fails the job immediately instead of re-buying it.
	artifacts, err := o.pipeline.Process(ctx, spec.JobID, resultURL)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: artifact pipeline failed")
		o.finalizeFailure(ctx, logger, spec.JobID, domain.MsgGenerationFailed)
		return
	}

	applied, err := o.jobs.FinalizeSuccess(ctx, spec.JobID, artifacts.PreviewKey, artifacts.HDKey)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: finalize success failed")
		return
	}
	if !applied {
		// Lost the race against a staleness sweep; the other writer's
		// terminal state stands.
		logger.Warn().Msg("orchestrator: job already finalized, success dropped")
		return
	}
	logger.Info().Str("preview_key", artifacts.PreviewKey).Msg("orchestrator: job completed")

	if err := o.notifier.GenerationComplete(ctx, spec.OwnerID, spec.JobID, o.viewURL(spec.JobID)); err != nil {
		logger.Warn().Err(err).Msg("orchestrator: completion notification failed")
	}
}

// generate runs the submit/poll protocol with a linear backoff retry budget
// and returns the provider's artifact URL. The most recent error across
// attempts is returned when the budget is exhausted.
func (o *Orchestrator) generate(ctx context.Context, logger infra.Logger, spec runSpec) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt-1) * o.retryDelay):
			}
		}

		outcome, err := o.provider.Submit(ctx, stylize.SubmitRequest{
			ImageURLs:       spec.ImageURLs,
			Style:           spec.Style,
			EditInstruction: spec.EditInstruction,
			RequestID:       spec.JobID,
		})
		if err != nil {
			if errors.Is(err, domain.ErrDisallowedHost) {
				// A provider pointing us off the allow-list is not transient.
				return "", err
			}
			lastErr = err
			logger.Warn().Err(err).Int("attempt", attempt).Msg("orchestrator: submit attempt failed")
			continue
		}
		if outcome.Handle == nil {
			return outcome.ResultURL, nil
		}

		resultURL, err := o.provider.Poll(ctx, outcome.Handle)
		if err != nil {
			if errors.Is(err, domain.ErrDisallowedHost) {
				return "", err
			}
			lastErr = err
			logger.Warn().Err(err).Int("attempt", attempt).Msg("orchestrator: poll attempt failed")
			continue
		}
		return resultURL, nil
	}
	if lastErr == nil {
		lastErr = domain.ErrProviderFailure
	}
	return "", lastErr
}

func (o *Orchestrator) finalizeFailure(ctx context.Context, logger infra.Logger, jobID, message string) {
	applied, err := o.jobs.FinalizeFailure(ctx, jobID, message)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: finalize failure failed")
		return
	}
	if !applied {
		logger.Warn().Msg("orchestrator: job already finalized, failure dropped")
	}
}
