// Package transcription talks to the external speech-to-text service that
// produces diarized transcripts for uploaded calls.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for transcription client failures.
var (
	ErrUnreachable     = errors.New("transcription service unreachable")
	ErrTimeout         = errors.New("transcription service timeout")
	ErrRequestRejected = errors.New("transcription request rejected")
	ErrInvalidResponse = errors.New("invalid transcription response")
)

// Provider status values. Anything else is passed through untouched so the
// caller can decide how to treat it.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Client is the interface for the transcription service.
type Client interface {
	Submit(ctx context.Context, audioURL string, opts Options) (string, error)
	GetStatus(ctx context.Context, externalRef string) (*Result, error)
}

type Options struct {
	Diarization  bool
	LanguageCode string
}

// Result is the provider's view of one transcription job.
type Result struct {
	Status     string
	Text       string
	Utterances []Utterance
	Error      string
}

// Utterance times are milliseconds from the start of the recording.
type Utterance struct {
	Speaker string
	Text    string
	StartMs int64
	EndMs   int64
}

// HTTPClient implements Client against the provider's REST API.
type HTTPClient struct {
	baseURL      string
	apiKey       string
	languageCode string
	client       *http.Client
}

// NewHTTPClient creates a new transcription HTTP client. languageCode is
// used when a submission does not set one.
func NewHTTPClient(baseURL, apiKey, languageCode string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		languageCode: languageCode,
		client:       &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Submit(ctx context.Context, audioURL string, opts Options) (string, error) {
	lang := opts.LanguageCode
	if lang == "" {
		lang = c.languageCode
	}
	body, err := json.Marshal(submitRequest{
		AudioURL:      audioURL,
		SpeakerLabels: opts.Diarization,
		LanguageCode:  lang,
	})
	if err != nil {
		return "", fmt.Errorf("encoding submit request: %w", err)
	}

	var out transcriptResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/transcript", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: submit response has no id", ErrInvalidResponse)
	}
	return out.ID, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, externalRef string) (*Result, error) {
	if externalRef == "" {
		return nil, fmt.Errorf("%w: empty external reference", ErrRequestRejected)
	}
	u := fmt.Sprintf("%s/v2/transcript/%s", c.baseURL, url.PathEscape(externalRef))

	var out transcriptResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	if out.Status == "" {
		return nil, fmt.Errorf("%w: status response has no status", ErrInvalidResponse)
	}

	res := &Result{Status: out.Status, Error: out.Error}
	if out.Text != nil {
		res.Text = *out.Text
	}
	for _, u := range out.Utterances {
		res.Utterances = append(res.Utterances, Utterance{
			Speaker: u.Speaker,
			Text:    u.Text,
			StartMs: u.Start,
			EndMs:   u.End,
		})
	}
	return res, nil
}

func (c *HTTPClient) do(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRequestRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// --- provider wire types ---

type submitRequest struct {
	AudioURL      string `json:"audio_url"`
	SpeakerLabels bool   `json:"speaker_labels"`
	LanguageCode  string `json:"language_code,omitempty"`
}

type transcriptResponse struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"`
	Text       *string             `json:"text"`
	Utterances []utteranceResponse `json:"utterances"`
	Error      string              `json:"error"`
}

type utteranceResponse struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
