package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/convointel/internal/analysis"
	"github.com/kiranshivaraju/convointel/internal/api/response"
	"github.com/kiranshivaraju/convointel/internal/store"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

const (
	// multipartOverhead leaves room for boundaries and the description field
	// on top of the file size limit.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
	defaultPageLimit  = 20
	maxPageLimit      = 100
)

// Submitter accepts audio uploads.
type Submitter interface {
	Submit(ctx context.Context, req analysis.SubmitRequest) (*models.AnalysisJob, error)
}

// Reconciler advances a job on each poll.
type Reconciler interface {
	Reconcile(ctx context.Context, id, ownerID uuid.UUID) (*models.AnalysisJob, error)
}

// JobLister lists an owner's jobs.
type JobLister interface {
	ListAnalysisJobs(ctx context.Context, filter store.JobFilter) ([]*models.AnalysisJob, int, error)
}

type submitResponse struct {
	AnalysisID uuid.UUID        `json:"analysis_id"`
	Status     models.JobStatus `json:"status"`
}

// NewUploadAnalysisHandler returns an http.HandlerFunc for POST /api/v1/analyses.
// The body is multipart/form-data with a "file" part and an optional
// "description" field.
func NewUploadAnalysisHandler(svc Submitter, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFrom(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "file: exceeds maximum size",
					map[string]string{"file": "exceeds maximum size of " + strconv.FormatInt(maxBytes, 10) + " bytes"})
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart/form-data body", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "file: is required",
				map[string]string{"file": "is required"})
			return
		}
		defer file.Close()

		job, err := svc.Submit(r.Context(), analysis.SubmitRequest{
			OwnerID:     ownerID,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
			Description: r.FormValue("description"),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.Created(w, "/api/v1/analyses/"+job.ID.String(), submitResponse{AnalysisID: job.ID, Status: job.Status})
	}
}

type pollResponse struct {
	AnalysisID uuid.UUID        `json:"analysis_id"`
	Status     models.JobStatus `json:"status"`
}

// NewPollAnalysisHandler returns an http.HandlerFunc for
// GET /api/v1/analyses/{analysisID}. Each call advances the job; the full
// record is returned only once it is terminal.
func NewPollAnalysisHandler(svc Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "analysisID", "INVALID_ANALYSIS_ID")
		if !ok {
			return
		}

		job, err := svc.Reconcile(r.Context(), id, ownerID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if !job.Status.IsTerminal() {
			response.JSON(w, pollResponse{AnalysisID: job.ID, Status: job.Status})
			return
		}
		response.JSON(w, job)
	}
}

// NewListAnalysesHandler returns an http.HandlerFunc for GET /api/v1/analyses.
// It reads stored state only and never polls the transcription service.
func NewListAnalysesHandler(lister JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := ownerFrom(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		filter := store.JobFilter{OwnerID: ownerID, Page: 1, Limit: defaultPageLimit}

		if s := q.Get("status"); s != "" {
			status := models.JobStatus(s)
			if !status.Valid() {
				response.Error(w, http.StatusBadRequest, "INVALID_STATUS",
					"status must be one of PENDING, PROCESSING, COMPLETE, FAILED", nil)
				return
			}
			filter.Status = status
		}
		if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
			filter.Page = v
		}
		if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
			filter.Limit = min(v, maxPageLimit)
		}

		jobs, total, err := lister.ListAnalysisJobs(r.Context(), filter)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.Collection(w, jobs, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}
