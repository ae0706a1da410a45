package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kiranshivaraju/convointel/internal/storage"
	"github.com/kiranshivaraju/convointel/internal/store"
	"github.com/kiranshivaraju/convointel/internal/transcription"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// sniffBytes is how much of an upload is inspected when its declared type is
// missing or generic.
const sniffBytes = 3072

// AcceptedAudioTypes lists the media types an upload may carry.
var AcceptedAudioTypes = []string{
	"audio/mpeg", "audio/mp3", "audio/wav", "audio/x-wav", "audio/wave",
	"audio/mp4", "audio/x-m4a", "audio/m4a", "audio/aac",
	"audio/ogg", "audio/webm", "audio/flac", "audio/x-flac",
}

var acceptedAudio = func() map[string]bool {
	m := make(map[string]bool, len(AcceptedAudioTypes))
	for _, t := range AcceptedAudioTypes {
		m[t] = true
	}
	return m
}()

// SubmitRequest is one audio upload.
type SubmitRequest struct {
	OwnerID     uuid.UUID
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Description string
}

// Submitter stores uploads and hands them to the transcription service.
type Submitter struct {
	store       store.JobStore
	storage     storage.Storage
	transcriber transcription.Client
	maxBytes    int64
	metrics     *pipelineMetrics
}

func NewSubmitter(st store.JobStore, stg storage.Storage, tc transcription.Client, maxBytes int64) *Submitter {
	return &Submitter{
		store:       st,
		storage:     stg,
		transcriber: tc,
		maxBytes:    maxBytes,
		metrics:     newPipelineMetrics(),
	}
}

// Submit validates and stores the upload, creates a PENDING job and submits
// it for diarized transcription. When the transcription service refuses the
// job, or its reference cannot be recorded, the job is marked FAILED and a
// *SubmissionError carrying its id is returned.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*models.AnalysisJob, error) {
	ctx, span := tracer.Start(ctx, "analysis.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("owner_id", req.OwnerID.String()))

	job, outcome, err := s.submit(ctx, req)
	s.metrics.submission(ctx, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(attribute.String("analysis_id", job.ID.String()))
	return job, nil
}

func (s *Submitter) submit(ctx context.Context, req SubmitRequest) (*models.AnalysisJob, string, error) {
	if req.Body == nil {
		return nil, "rejected", &ValidationError{Field: "file", Message: "is required"}
	}
	if req.Size <= 0 {
		return nil, "rejected", &ValidationError{Field: "file", Message: "is empty"}
	}
	if req.Size > s.maxBytes {
		return nil, "rejected", &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("exceeds maximum size of %d bytes", s.maxBytes),
		}
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(req.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "rejected", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	contentType, verr := resolveContentType(req.ContentType, head)
	if verr != nil {
		return nil, "rejected", verr
	}

	jobID := uuid.New()
	key := fmt.Sprintf("audio/%s/%s%s", req.OwnerID, jobID, extensionFor(req.Filename, contentType))
	body := &capReader{r: io.MultiReader(bytes.NewReader(head), req.Body), remaining: s.maxBytes}

	obj, err := s.storage.Put(ctx, key, contentType, body)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			return nil, "rejected", &ValidationError{
				Field:   "file",
				Message: fmt.Sprintf("exceeds maximum size of %d bytes", s.maxBytes),
			}
		}
		return nil, "storage_failed", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if obj.Size == 0 {
		s.discard(ctx, key)
		return nil, "rejected", &ValidationError{Field: "file", Message: "is empty"}
	}

	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:                jobID,
		OwnerID:           req.OwnerID,
		SourceArtifactRef: obj.URL,
		ContentType:       contentType,
		Status:            models.JobStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		job.Description = &d
	}
	if err := s.store.CreateAnalysisJob(ctx, job); err != nil {
		s.discard(ctx, key)
		return nil, "store_failed", fmt.Errorf("create analysis job: %w", err)
	}

	ref, err := s.transcriber.Submit(ctx, obj.URL, transcription.Options{Diarization: true})
	if err != nil {
		detail := detailSubmissionFailed + err.Error()
		if _, ferr := s.store.FailAnalysisJob(context.WithoutCancel(ctx), jobID, req.OwnerID, uuid.Nil, detail); ferr != nil {
			slog.Warn("failed to mark analysis job failed", "job_id", jobID, "error", ferr)
		}
		s.metrics.transition(ctx, string(models.JobStatusFailed))
		slog.Info("analysis submission rejected", "job_id", jobID, "error", err)
		return nil, "submission_failed", &SubmissionError{JobID: jobID, Err: err}
	}

	updated, err := s.store.MarkAnalysisProcessing(ctx, jobID, req.OwnerID, ref)
	if err != nil {
		// The provider holds a job nobody will poll; its ref only survives in
		// the log and the error detail.
		detail := detailRecordRefFailed + err.Error()
		if _, ferr := s.store.FailAnalysisJob(context.WithoutCancel(ctx), jobID, req.OwnerID, uuid.Nil, detail); ferr != nil {
			slog.Warn("failed to mark analysis job failed", "job_id", jobID, "error", ferr)
		}
		s.metrics.transition(ctx, string(models.JobStatusFailed))
		slog.Error("analysis submitted but not recorded", "job_id", jobID, "external_job_ref", ref, "error", err)
		return nil, "store_failed", &SubmissionError{
			JobID: jobID,
			Err:   fmt.Errorf("%w: external job %s: %v", ErrRecordSubmission, ref, err),
		}
	}
	s.metrics.transition(ctx, string(models.JobStatusProcessing))
	slog.Info("analysis submitted", "job_id", jobID, "external_job_ref", ref, "content_type", contentType, "bytes", obj.Size)
	return updated, "accepted", nil
}

// discard removes an artifact no job will reference.
func (s *Submitter) discard(ctx context.Context, key string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("failed to delete orphaned upload", "key", key, "error", err)
	}
}

// resolveContentType trusts an accepted declared type. A missing or generic
// declaration falls back to sniffing head, walking up the detected type's
// parents.
func resolveContentType(declared string, head []byte) (string, error) {
	mediaType := ""
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			mediaType = strings.ToLower(mt)
		}
	}
	if acceptedAudio[mediaType] {
		return mediaType, nil
	}
	if mediaType != "" && mediaType != "application/octet-stream" {
		return "", &ValidationError{Field: "file", Message: fmt.Sprintf("unsupported content type %q", mediaType)}
	}

	for m := mimetype.Detect(head); m != nil; m = m.Parent() {
		for _, t := range AcceptedAudioTypes {
			if m.Is(t) {
				return t, nil
			}
		}
	}
	return "", &ValidationError{
		Field:   "file",
		Message: fmt.Sprintf("unsupported content type %q", mimetype.Detect(head).String()),
	}
}

// extensionFor keeps a short alphanumeric filename extension, otherwise
// uses the canonical one for contentType.
func extensionFor(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) >= 2 && len(ext) <= 6 && isAlnum(ext[1:]) {
		return ext
	}
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

var errUploadTooLarge = errors.New("upload exceeds size limit")

// capReader fails once more than remaining bytes have been read, so a body
// larger than its declared size cannot slip past the limit.
type capReader struct {
	r         io.Reader
	remaining int64
}

func (c *capReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, errUploadTooLarge
	}
	return n, err
}
