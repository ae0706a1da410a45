// Package client is a Go client for the convointel HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/convointel/pkg/models"
)

// DefaultPollInterval is used by WaitForAnalysis when no interval is given.
const DefaultPollInterval = 2 * time.Second

// Client talks to a convointel server using a bearer API key.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New returns a Client for baseURL authenticating with token.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// Temporary reports whether retrying the same request may succeed. Upstream
// outages leave the job untouched, so a poller can keep going.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Submission is the response to an upload.
type Submission struct {
	AnalysisID uuid.UUID        `json:"analysis_id"`
	Status     models.JobStatus `json:"status"`
}

// Pagination mirrors the meta block of list responses.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// AnalysisPage is one page of ListAnalyses.
type AnalysisPage struct {
	Items []models.AnalysisJob
	Meta  Pagination
}

// ListOptions filters ListAnalyses. Zero values use server defaults.
type ListOptions struct {
	Status models.JobStatus
	Page   int
	Limit  int
}

// SimulationInput is the body of CreateSimulation.
type SimulationInput struct {
	Scenario string        `json:"scenario"`
	Persona  *string       `json:"persona,omitempty"`
	Turns    []models.Turn `json:"turns,omitempty"`
}

// SubmitAudio uploads a call recording. The body is streamed, so r is read
// exactly once.
func (c *Client) SubmitAudio(ctx context.Context, filename string, r io.Reader, description string) (*Submission, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUpload(mw, filename, r, description))
	}()

	var out Submission
	err := c.do(ctx, http.MethodPost, "/api/v1/analyses", mw.FormDataContentType(), pr, &out, nil)
	// Unblocks the writer if the server answered before reading the whole body.
	pr.CloseWithError(err)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func writeUpload(mw *multipart.Writer, filename string, r io.Reader, description string) error {
	if description != "" {
		if err := mw.WriteField("description", description); err != nil {
			return err
		}
	}

	// Declared generic so the server sniffs the real type.
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", "application/octet-stream")

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	return mw.Close()
}

// GetAnalysis polls a job once. The server advances the job as a side effect;
// only terminal jobs carry transcript, analysis and error detail.
func (c *Client) GetAnalysis(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	var out struct {
		models.AnalysisJob
		AnalysisID uuid.UUID `json:"analysis_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/analyses/"+id.String(), "", nil, &out, nil); err != nil {
		return nil, err
	}
	job := out.AnalysisJob
	if job.ID == uuid.Nil {
		job.ID = out.AnalysisID
	}
	return &job, nil
}

// WaitForAnalysis polls until the job is COMPLETE or FAILED, at most once per
// interval. onPoll, if set, sees every successful poll. Temporary API errors
// are retried on the next tick; anything else is returned.
func (c *Client) WaitForAnalysis(ctx context.Context, id uuid.UUID, interval time.Duration, onPoll func(*models.AnalysisJob)) (*models.AnalysisJob, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// Wait fails early when the next tick falls past the deadline.
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}

		job, err := c.GetAnalysis(ctx, id)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Temporary() {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if onPoll != nil {
			onPoll(job)
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
	}
}

// ListAnalyses returns one page of the caller's jobs, newest first.
func (c *Client) ListAnalyses(ctx context.Context, opts ListOptions) (*AnalysisPage, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/v1/analyses"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	page := &AnalysisPage{}
	if err := c.do(ctx, http.MethodGet, path, "", nil, &page.Items, &page.Meta); err != nil {
		return nil, err
	}
	return page, nil
}

// CreateSimulation starts a practice call.
func (c *Client) CreateSimulation(ctx context.Context, in SimulationInput) (*models.CallSimulation, error) {
	var out models.CallSimulation
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/simulations", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSimulation fetches a practice call with its turns and feedback.
func (c *Client) GetSimulation(ctx context.Context, id uuid.UUID) (*models.CallSimulation, error) {
	var out models.CallSimulation
	if err := c.do(ctx, http.MethodGet, "/api/v1/simulations/"+id.String(), "", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendTurns adds conversation turns to a practice call.
func (c *Client) AppendTurns(ctx context.Context, id uuid.UUID, turns []models.Turn) (*models.CallSimulation, error) {
	body := struct {
		Turns []models.Turn `json:"turns"`
	}{Turns: turns}

	var out models.CallSimulation
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/simulations/"+id.String()+"/turns", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateFeedback returns coaching feedback for a practice call, generating
// it on the first request.
func (c *Client) GenerateFeedback(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	var out models.Feedback
	if err := c.do(ctx, http.MethodPost, "/api/v1/simulations/"+id.String()+"/feedback", "", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(b), out, nil)
}

// do sends one request and unwraps the {data, meta} envelope into data and
// meta. Either may be nil.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, data, meta any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if resp.StatusCode == http.StatusNoContent || data == nil {
		return nil
	}

	env := struct {
		Data any `json:"data"`
		Meta any `json:"meta"`
	}{Data: data, Meta: meta}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Error.Code == "" {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &APIError{StatusCode: status, Message: msg}
	}
	return &APIError{
		StatusCode: status,
		Code:       env.Error.Code,
		Message:    env.Error.Message,
		Details:    env.Error.Details,
	}
}
