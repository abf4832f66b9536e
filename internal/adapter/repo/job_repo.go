package repo

import (
	"context"
	"time"

	"portraits/internal/domain"
	"portraits/internal/infra"
	"portraits/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record in the queued state.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QCreateJob,
		job.ID,
		job.UserID,
		job.OrderID,
		job.UploadIDs,
		job.Style,
		job.EditInstruction,
	)
	return err
}

// TransitionProcessing moves a queued job into processing.
func (r *JobRepositoryPG) TransitionProcessing(ctx context.Context, jobID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QTransitionProcessing, jobID)
	return err
}

// FinalizeSuccess completes a job with both artifact keys. The update is
// conditioned on the job still being non-terminal; the return value reports
// whether this call was the effective terminal transition.
func (r *JobRepositoryPG) FinalizeSuccess(ctx context.Context, jobID, previewKey, hdKey string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFinalizeJobSuccess, jobID, previewKey, hdKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FinalizeFailure fails a job with a user-safe message, guarded the same way
// as FinalizeSuccess.
func (r *JobRepositoryPG) FinalizeFailure(ctx context.Context, jobID, message string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFinalizeJobFailure, jobID, message)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QGetJob, jobID)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.OrderID,
		&job.UploadIDs,
		&job.Style,
		&job.EditInstruction,
		&job.Status,
		&job.PreviewKey,
		&job.HDKey,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// CountActive counts queued/processing jobs created within the trailing window.
func (r *JobRepositoryPG) CountActive(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountActiveJobs, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountActiveForUser counts one user's queued/processing jobs within the window.
func (r *JobRepositoryPG) CountActiveForUser(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountActiveJobsForUser, userID, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SweepStale fails queued/processing jobs older than the cutoff so they stop
// holding concurrency slots.
func (r *JobRepositoryPG) SweepStale(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QSweepStaleJobs, olderThan, message)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
