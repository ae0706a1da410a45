package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/convointel/internal/transcription"
)

// Client satisfies transcription.Client for tests and local runs. Each
// external ref walks through its script one poll at a time and stays on the
// last entry.
type Client struct {
	SubmitFunc    func(ctx context.Context, audioURL string, opts transcription.Options) (string, error)
	GetStatusFunc func(ctx context.Context, externalRef string) (*transcription.Result, error)

	mu          sync.Mutex
	nextRef     int
	scripts     map[string][]transcription.Result
	defaultRun  []transcription.Result
	submitCalls int
	statusCalls map[string]int
	lastOptions transcription.Options
}

// NewClient returns a Client whose jobs go queued, processing, then completed
// with a short two-speaker transcript.
func NewClient() *Client {
	return &Client{
		scripts:     map[string][]transcription.Result{},
		statusCalls: map[string]int{},
		defaultRun: []transcription.Result{
			{Status: transcription.StatusQueued},
			{Status: transcription.StatusProcessing},
			{
				Status: transcription.StatusCompleted,
				Text:   "Thanks for taking the call. Happy to hear what you have.",
				Utterances: []transcription.Utterance{
					{Speaker: "A", Text: "Thanks for taking the call.", StartMs: 0, EndMs: 1800},
					{Speaker: "B", Text: "Happy to hear what you have.", StartMs: 1900, EndMs: 3500},
				},
			},
		},
	}
}

// NewFailingClient returns a Client whose calls all fail with err.
func NewFailingClient(err error) *Client {
	c := NewClient()
	c.SubmitFunc = func(context.Context, string, transcription.Options) (string, error) { return "", err }
	c.GetStatusFunc = func(context.Context, string) (*transcription.Result, error) { return nil, err }
	return c
}

// Script sets the status sequence returned for ref.
func (c *Client) Script(ref string, results ...transcription.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[ref] = results
}

func (c *Client) Submit(ctx context.Context, audioURL string, opts transcription.Options) (string, error) {
	c.mu.Lock()
	c.submitCalls++
	c.lastOptions = opts
	c.mu.Unlock()

	if c.SubmitFunc != nil {
		return c.SubmitFunc(ctx, audioURL, opts)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextRef++
	return fmt.Sprintf("mock-%d", c.nextRef), nil
}

func (c *Client) GetStatus(ctx context.Context, externalRef string) (*transcription.Result, error) {
	c.mu.Lock()
	n := c.statusCalls[externalRef]
	c.statusCalls[externalRef] = n + 1
	c.mu.Unlock()

	if c.GetStatusFunc != nil {
		return c.GetStatusFunc(ctx, externalRef)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	script, ok := c.scripts[externalRef]
	if !ok {
		script = c.defaultRun
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	res := script[n]
	res.Utterances = append([]transcription.Utterance(nil), res.Utterances...)
	return &res, nil
}

func (c *Client) SubmitCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitCalls
}

// StatusCalls reports how many times GetStatus was called for ref.
func (c *Client) StatusCalls(ref string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls[ref]
}

// TotalStatusCalls reports GetStatus calls across every ref.
func (c *Client) TotalStatusCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.statusCalls {
		total += n
	}
	return total
}

// LastOptions returns the options passed to the most recent Submit.
func (c *Client) LastOptions() transcription.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOptions
}

// Compile-time check that Client implements transcription.Client.
var _ transcription.Client = (*Client)(nil)
