package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

const analysisJobColumns = `id, owner_id, source_artifact_ref, content_type, description, external_job_ref,
	status, transcript, analysis, error_detail, claim_token, claim_expires_at, created_at, updated_at`

func scanAnalysisJob(row rowScanner) (*models.AnalysisJob, error) {
	var (
		j          models.AnalysisJob
		status     string
		transcript []byte
		analysis   []byte
	)
	if err := row.Scan(&j.ID, &j.OwnerID, &j.SourceArtifactRef, &j.ContentType, &j.Description,
		&j.ExternalJobRef, &status, &transcript, &analysis, &j.ErrorDetail, &j.ClaimToken,
		&j.ClaimExpiresAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)

	var err error
	if j.Transcript, err = decodePayload[models.Transcript](transcript); err != nil {
		return nil, fmt.Errorf("job %s transcript: %w", j.ID, err)
	}
	if j.Analysis, err = decodePayload[models.Analysis](analysis); err != nil {
		return nil, fmt.Errorf("job %s analysis: %w", j.ID, err)
	}
	if err := j.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("job %s: %w: %v", j.ID, ErrInvalidRecord, err)
	}
	return &j, nil
}

func statusArgs(statuses []models.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (s *PostgresStore) CreateAnalysisJob(ctx context.Context, job *models.AnalysisJob) error {
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("create analysis job: status must be %s, got %s", models.JobStatusPending, job.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, owner_id, source_artifact_ref, content_type, description, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.OwnerID, job.SourceArtifactRef, job.ContentType, job.Description,
		string(job.Status), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create analysis job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysisJob(ctx context.Context, id, ownerID uuid.UUID) (*models.AnalysisJob, error) {
	job, err := scanAnalysisJob(s.pool.QueryRow(ctx,
		`SELECT `+analysisJobColumns+` FROM analysis_jobs WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.ownershipError(ctx, "analysis_jobs", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListAnalysisJobs(ctx context.Context, filter JobFilter) ([]*models.AnalysisJob, int, error) {
	conditions := []string{"owner_id = $1"}
	args := []any{filter.OwnerID}
	argIdx := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM analysis_jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analysis jobs: %w", err)
	}

	limit, offset := filter.normalize()
	query := fmt.Sprintf(`SELECT %s FROM analysis_jobs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		analysisJobColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list analysis jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.AnalysisJob{}
	for rows.Next() {
		job, err := scanAnalysisJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) MarkAnalysisProcessing(ctx context.Context, id, ownerID uuid.UUID, externalRef string) (*models.AnalysisJob, error) {
	if strings.TrimSpace(externalRef) == "" {
		return nil, fmt.Errorf("mark analysis processing: external reference is empty")
	}
	return s.updateAnalysisJob(ctx, "mark analysis processing",
		`UPDATE analysis_jobs SET status = 'PROCESSING', external_job_ref = $3, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND status = ANY($4)
		 RETURNING `+analysisJobColumns,
		id, ownerID, externalRef, statusArgs(models.SourceStatuses(models.JobStatusProcessing)))
}

func (s *PostgresStore) ClaimAnalysisJob(ctx context.Context, id, ownerID uuid.UUID, lease time.Duration) (uuid.UUID, error) {
	token := uuid.New()
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET claim_token = $3, claim_expires_at = NOW() + make_interval(secs => $4), updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND status = 'PROCESSING'
		   AND (claim_token IS NULL OR claim_expires_at < NOW())`,
		id, ownerID, token, lease.Seconds())
	if err != nil {
		return uuid.Nil, fmt.Errorf("claim analysis job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, ErrConflict
	}
	return token, nil
}

func (s *PostgresStore) SaveTranscript(ctx context.Context, id, ownerID, claimToken uuid.UUID, transcript *models.Transcript) error {
	payload, err := encodePayload(transcript)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET transcript = $4, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND status = 'PROCESSING' AND claim_token = $3`,
		id, ownerID, claimToken, payload)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) CompleteAnalysisJob(ctx context.Context, id, ownerID, claimToken uuid.UUID, analysis *models.Analysis) (*models.AnalysisJob, error) {
	payload, err := encodePayload(analysis)
	if err != nil {
		return nil, err
	}
	return s.updateAnalysisJob(ctx, "complete analysis job",
		`UPDATE analysis_jobs SET status = 'COMPLETE', analysis = $4, error_detail = NULL,
		        claim_token = NULL, claim_expires_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND status = ANY($5) AND claim_token = $3 AND transcript IS NOT NULL
		 RETURNING `+analysisJobColumns,
		id, ownerID, claimToken, payload, statusArgs(models.SourceStatuses(models.JobStatusComplete)))
}

func (s *PostgresStore) FailAnalysisJob(ctx context.Context, id, ownerID, claimToken uuid.UUID, detail string) (*models.AnalysisJob, error) {
	if strings.TrimSpace(detail) == "" {
		detail = "unknown failure"
	}
	return s.updateAnalysisJob(ctx, "fail analysis job",
		`UPDATE analysis_jobs SET status = 'FAILED', error_detail = $4,
		        claim_token = NULL, claim_expires_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND status = ANY($5)
		   AND (claim_token = $3 OR claim_token IS NULL OR claim_expires_at < NOW())
		 RETURNING `+analysisJobColumns,
		id, ownerID, claimToken, detail, statusArgs(models.SourceStatuses(models.JobStatusFailed)))
}

// updateAnalysisJob runs a guarded UPDATE ... RETURNING and maps "no row
// matched the guard" to ErrConflict.
func (s *PostgresStore) updateAnalysisJob(ctx context.Context, op, query string, args ...any) (*models.AnalysisJob, error) {
	job, err := scanAnalysisJob(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}
