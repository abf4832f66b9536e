package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"portraits/internal/admission"
	"portraits/internal/domain"
	"portraits/internal/infra"
)

// AdmissionDeniedError carries the structured deny reason to the API layer.
type AdmissionDeniedError struct {
	Decision domain.AdmissionDecision
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("admission denied: %s", e.Decision.Reason)
}

// CreateJobInput is the exposed createJob contract.
type CreateJobInput struct {
	OwnerID         string
	SourceIdentity  string
	Privileged      bool
	OrderID         string
	UploadIDs       []string
	Style           string
	EditInstruction string
}

// JobView is the exposed read model: status and, when relevant, one
// user-safe error or the public preview URL. The HD reference stays private.
type JobView struct {
	JobID      string
	Status     domain.JobStatus
	Error      string
	PreviewURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Service is the facade the API layer talks to: admission, job creation with
// a detached orchestrator run, and status reads.
type Service struct {
	admission *admission.Controller
	jobs      domain.JobRepository
	uploads   domain.UploadResolver
	orch      *Orchestrator
	logger    infra.Logger

	// runCtx bounds detached runs to the process lifetime rather than the
	// creating request, which returns immediately.
	runCtx     context.Context
	previewURL func(key string) string

	// dispatch is swappable in tests to run synchronously.
	dispatch func(func())
}

// NewService wires the facade. previewURL maps a stored preview key to its
// public URL.
func NewService(runCtx context.Context, controller *admission.Controller, jobs domain.JobRepository, uploads domain.UploadResolver, orch *Orchestrator, previewURL func(key string) string, logger infra.Logger) *Service {
	if previewURL == nil {
		previewURL = func(key string) string { return key }
	}
	return &Service{
		admission:  controller,
		jobs:       jobs,
		uploads:    uploads,
		orch:       orch,
		logger:     logger,
		runCtx:     runCtx,
		previewURL: previewURL,
		dispatch:   func(run func()) { go run() },
	}
}

// CreateJob authorizes, persists a queued job and dispatches its detached
// run. It returns the job id immediately; callers learn the outcome by
// polling GetJob.
func (s *Service) CreateJob(ctx context.Context, input CreateJobInput) (string, error) {
	if err := validateCreateInput(input); err != nil {
		return "", err
	}

	decision := s.admission.AuthorizeJob(ctx, input.SourceIdentity, input.OwnerID, input.Privileged)
	if !decision.Allowed {
		return "", &AdmissionDeniedError{Decision: decision}
	}

	imageURLs := make([]string, 0, len(input.UploadIDs))
	for _, uploadID := range input.UploadIDs {
		url, err := s.uploads.Resolve(ctx, input.OwnerID, uploadID)
		if err != nil {
			return "", fmt.Errorf("%w: upload %s", domain.ErrInvalidRequest, uploadID)
		}
		imageURLs = append(imageURLs, url)
	}

	job := &domain.Job{
		ID:              uuid.NewString(),
		UserID:          input.OwnerID,
		OrderID:         input.OrderID,
		UploadIDs:       input.UploadIDs,
		Style:           input.Style,
		EditInstruction: strings.TrimSpace(input.EditInstruction),
		Status:          domain.JobStatusQueued,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	spec := runSpec{
		JobID:           job.ID,
		OwnerID:         job.UserID,
		ImageURLs:       imageURLs,
		Style:           job.Style,
		EditInstruction: job.EditInstruction,
	}
	s.dispatch(func() { s.orch.Run(s.runCtx, spec) })

	s.logger.Info().Str("job_id", job.ID).Str("style", job.Style).Msg("job queued")
	return job.ID, nil
}

// GetJob is a pure read, safe to poll.
func (s *Service) GetJob(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	view := &JobView{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	switch job.Status {
	case domain.JobStatusCompleted:
		view.PreviewURL = s.previewURL(job.PreviewKey)
	case domain.JobStatusFailed:
		view.Error = job.ErrorMessage
	case domain.JobStatusQueued, domain.JobStatusProcessing:
	}
	return view, nil
}

func validateCreateInput(input CreateJobInput) error {
	if strings.TrimSpace(input.OwnerID) == "" {
		return fmt.Errorf("%w: owner is required", domain.ErrInvalidRequest)
	}
	if len(input.UploadIDs) < domain.MinJobImages || len(input.UploadIDs) > domain.MaxJobImages {
		return fmt.Errorf("%w: between %d and %d images required", domain.ErrInvalidRequest, domain.MinJobImages, domain.MaxJobImages)
	}
	if !domain.ValidStyle(input.Style) {
		return fmt.Errorf("%w: unknown style %q", domain.ErrInvalidRequest, input.Style)
	}
	return nil
}
