package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/convointel/internal/ai"
	mw "github.com/kiranshivaraju/convointel/internal/api/middleware"
	"github.com/kiranshivaraju/convointel/internal/api/response"
	"github.com/kiranshivaraju/convointel/internal/analysis"
	"github.com/kiranshivaraju/convointel/internal/store"
	"github.com/kiranshivaraju/convointel/internal/transcription"
)

// writeError maps service errors to status codes and stable error codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *analysis.ValidationError
		serr *analysis.SubmissionError
	)
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(),
			map[string]string{verr.Field: verr.Message})
	case errors.As(err, &serr):
		msg := "The transcription service did not accept the recording"
		if errors.Is(err, analysis.ErrRecordSubmission) {
			msg = "The recording was submitted but could not be recorded"
		}
		response.Error(w, http.StatusInternalServerError, "SUBMISSION_FAILED", msg, map[string]string{
				"analysis_id": serr.JobID.String(),
				"reason":      serr.Err.Error(),
			})
	case errors.Is(err, analysis.ErrStorage):
		response.Error(w, http.StatusInternalServerError, "STORAGE_FAILED", "Failed to store the uploaded file", nil)
	case errors.Is(err, store.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "Resource belongs to another user", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, analysis.ErrEmptyConversation):
		response.Error(w, http.StatusUnprocessableEntity, "EMPTY_CONVERSATION",
			"The simulation has no conversation turns yet", nil)
	case errors.Is(err, analysis.ErrFeedbackInProgress):
		response.Error(w, http.StatusConflict, "FEEDBACK_IN_PROGRESS",
			"Feedback is already being generated for this simulation", nil)
	case errors.Is(err, store.ErrConflict):
		response.Error(w, http.StatusConflict, "CONFLICT", "The resource changed state; reload and retry", nil)
	case errors.Is(err, transcription.ErrUnreachable), errors.Is(err, transcription.ErrTimeout):
		response.Error(w, http.StatusBadGateway, "TRANSCRIPTION_UNAVAILABLE",
			"The transcription service could not be reached; poll again later", nil)
	case errors.Is(err, ai.ErrInferenceTimeout):
		response.Error(w, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT",
			"AI generation took too long and was cancelled", nil)
	case errors.Is(err, ai.ErrProviderUnavailable):
		response.Error(w, http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE",
			"The AI provider is not available", nil)
	case errors.Is(err, ai.ErrInvalidResponse), errors.Is(err, ai.ErrRequestRejected):
		response.Error(w, http.StatusBadGateway, "AI_INVALID_RESPONSE",
			"The AI provider returned an unusable reply", nil)
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimw.GetReqID(r.Context()),
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func ownerFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ownerID, ok := mw.GetOwnerID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing owner", nil)
	}
	return ownerID, ok
}

// pathID parses the named chi URL parameter as a UUID, writing a 400 with
// code on failure.
func pathID(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, code, "Invalid "+name+" format", nil)
		return uuid.Nil, false
	}
	return id, true
}
