package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kiranshivaraju/convointel/internal/cache"
	"github.com/kiranshivaraju/convointel/internal/store"
	"github.com/kiranshivaraju/convointel/internal/transcription"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// InsightGenerator produces the analysis for a transcribed call.
type InsightGenerator interface {
	AnalyzeConversation(ctx context.Context, transcript *models.Transcript, description *string) (*models.Analysis, error)
}

type ReconcilerConfig struct {
	// ClaimLease bounds how long one poll owns insight generation for a job.
	ClaimLease time.Duration
	// MinPollInterval skips the transcription status check when the job was
	// checked more recently than this. Zero disables throttling.
	MinPollInterval time.Duration
}

// Reconciler advances an analysis job by one step each time it is polled.
type Reconciler struct {
	store       store.JobStore
	transcriber transcription.Client
	generator   InsightGenerator
	cache       cache.Cache
	cfg         ReconcilerConfig
	metrics     *pipelineMetrics
}

// NewReconciler creates a Reconciler. ca may be nil, which disables poll
// throttling.
func NewReconciler(st store.JobStore, tc transcription.Client, gen InsightGenerator, ca cache.Cache, cfg ReconcilerConfig) *Reconciler {
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	return &Reconciler{
		store:       st,
		transcriber: tc,
		generator:   gen,
		cache:       ca,
		cfg:         cfg,
		metrics:     newPipelineMetrics(),
	}
}

// Reconcile loads the job owned by ownerID and, unless it is terminal or
// still PENDING, checks transcription progress and runs insight generation once the
// transcript is ready. It returns the job as it stands after this poll.
//
// The work runs detached from ctx cancellation: a client that disconnects
// mid-poll does not abort a pipeline that has already started.
func (r *Reconciler) Reconcile(ctx context.Context, id, ownerID uuid.UUID) (*models.AnalysisJob, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "analysis.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("analysis_id", id.String()))

	job, err := r.reconcile(ctx, id, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("status", string(job.Status)))
	return job, nil
}

func (r *Reconciler) reconcile(ctx context.Context, id, ownerID uuid.UUID) (*models.AnalysisJob, error) {
	job, err := r.store.GetAnalysisJob(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	// A PENDING job may still have its submission in flight; only the
	// submitter moves it on.
	if job.Status.IsTerminal() || job.Status == models.JobStatusPending {
		return job, nil
	}
	if job.ExternalJobRef == nil || *job.ExternalJobRef == "" {
		return r.fail(ctx, job, uuid.Nil, DetailMissingExternalRef)
	}
	if r.throttled(ctx, job.ID) {
		return job, nil
	}

	res, err := r.transcriber.GetStatus(ctx, *job.ExternalJobRef)
	if err != nil {
		slog.Warn("transcription status check failed", "job_id", job.ID, "error", err)
		return nil, fmt.Errorf("check transcription status: %w", err)
	}

	switch res.Status {
	case transcription.StatusQueued, transcription.StatusProcessing:
		return job, nil
	case transcription.StatusError:
		detail := strings.TrimSpace(res.Error)
		if detail == "" {
			detail = DetailTranscriptionFailed
		}
		return r.fail(ctx, job, uuid.Nil, detail)
	case transcription.StatusCompleted:
		if strings.TrimSpace(res.Text) == "" {
			return r.fail(ctx, job, uuid.Nil, DetailEmptyTranscript)
		}
		return r.generate(ctx, job, res)
	default:
		return r.fail(ctx, job, uuid.Nil, detailUnknownStatus+res.Status)
	}
}

// generate claims the job, stores the transcript and then runs insight
// generation. Only the claim holder reaches the provider; a poll that loses
// the claim returns the job as it currently stands.
func (r *Reconciler) generate(ctx context.Context, job *models.AnalysisJob, res *transcription.Result) (*models.AnalysisJob, error) {
	token, err := r.store.ClaimAnalysisJob(ctx, job.ID, job.OwnerID, r.cfg.ClaimLease)
	if errors.Is(err, store.ErrConflict) {
		return r.reload(ctx, job)
	}
	if err != nil {
		return nil, fmt.Errorf("claim analysis job: %w", err)
	}

	transcript := buildTranscript(res)
	if err := r.store.SaveTranscript(ctx, job.ID, job.OwnerID, token, transcript); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return r.reload(ctx, job)
		case errors.Is(err, store.ErrInvalidPayload):
			return r.fail(ctx, job, token, "transcription returned a malformed transcript")
		default:
			return nil, fmt.Errorf("save transcript: %w", err)
		}
	}
	slog.Info("transcript stored", "job_id", job.ID, "utterances", len(transcript.Utterances))

	start := time.Now()
	analysis, err := r.generator.AnalyzeConversation(ctx, transcript, job.Description)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		r.metrics.insight(ctx, elapsed, "error")
		return r.fail(ctx, job, token, err.Error())
	}
	r.metrics.insight(ctx, elapsed, "ok")

	done, err := r.store.CompleteAnalysisJob(ctx, job.ID, job.OwnerID, token, analysis)
	if errors.Is(err, store.ErrConflict) {
		return r.reload(ctx, job)
	}
	if err != nil {
		return nil, fmt.Errorf("complete analysis job: %w", err)
	}
	r.metrics.transition(ctx, string(models.JobStatusComplete))
	slog.Info("analysis complete", "job_id", job.ID, "insight_seconds", elapsed)
	return done, nil
}

func (r *Reconciler) fail(ctx context.Context, job *models.AnalysisJob, token uuid.UUID, detail string) (*models.AnalysisJob, error) {
	failed, err := r.store.FailAnalysisJob(ctx, job.ID, job.OwnerID, token, detail)
	if errors.Is(err, store.ErrConflict) {
		return r.reload(ctx, job)
	}
	if err != nil {
		return nil, fmt.Errorf("fail analysis job: %w", err)
	}
	r.metrics.transition(ctx, string(models.JobStatusFailed))
	slog.Info("analysis failed", "job_id", job.ID, "error_detail", detail)
	return failed, nil
}

// reload returns the current record after a conditional write lost a race.
func (r *Reconciler) reload(ctx context.Context, job *models.AnalysisJob) (*models.AnalysisJob, error) {
	current, err := r.store.GetAnalysisJob(ctx, job.ID, job.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("reload analysis job: %w", err)
	}
	return current, nil
}

// throttled reports whether the job's status was checked within
// MinPollInterval. Cache errors never block a poll.
func (r *Reconciler) throttled(ctx context.Context, id uuid.UUID) bool {
	if r.cache == nil || r.cfg.MinPollInterval <= 0 {
		return false
	}
	created, err := r.cache.SetIfAbsent(ctx, cache.PollThrottleKey(id), r.cfg.MinPollInterval)
	if err != nil {
		slog.Warn("poll throttle unavailable", "job_id", id, "error", err)
		return false
	}
	return !created
}

// buildTranscript converts a provider result into the stored shape, dropping
// blank utterances and repairing reversed time ranges.
func buildTranscript(res *transcription.Result) *models.Transcript {
	t := &models.Transcript{FullText: strings.TrimSpace(res.Text), Utterances: []models.Utterance{}}
	for _, u := range res.Utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(u.Speaker)
		if speaker == "" {
			speaker = "unknown"
		}
		start, end := u.StartMs, u.EndMs
		if start < 0 {
			start = 0
		}
		if end < start {
			end = start
		}
		t.Utterances = append(t.Utterances, models.Utterance{Speaker: speaker, Text: text, StartMs: start, EndMs: end})
	}
	return t
}
