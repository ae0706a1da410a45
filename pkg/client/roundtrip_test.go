package client_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/convointel/internal/ai"
	aimock "github.com/kiranshivaraju/convointel/internal/ai/mock"
	"github.com/kiranshivaraju/convointel/internal/analysis"
	"github.com/kiranshivaraju/convointel/internal/api"
	"github.com/kiranshivaraju/convointel/internal/api/handler"
	mw "github.com/kiranshivaraju/convointel/internal/api/middleware"
	"github.com/kiranshivaraju/convointel/internal/storage"
	"github.com/kiranshivaraju/convointel/internal/store/memory"
	tmock "github.com/kiranshivaraju/convointel/internal/transcription/mock"
	"github.com/kiranshivaraju/convointel/pkg/client"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

type openCache struct{}

func (openCache) Delete(context.Context, string) error { return nil }
func (openCache) Ping(context.Context) error           { return nil }
func (openCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}
func (openCache) SetIfAbsent(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

const roundTripKey = "ci_roundtrip_key_0123456789abcdef"

// newLiveClient serves the real router over an in-memory store.
func newLiveClient(t *testing.T) *client.Client {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	user, err := st.GetDefaultUser(ctx)
	require.NoError(t, err)
	key, err := handler.NewAPIKey(user.ID, "roundtrip", roundTripKey, []string{"read", "write"})
	require.NoError(t, err)
	require.NoError(t, st.CreateAPIKey(ctx, key))

	media, err := storage.NewLocalStorage(t.TempDir(), "http://media.test/media/")
	require.NoError(t, err)

	const maxBytes = 1 << 20
	gen := ai.NewGenerator(aimock.NewMockProvider(), time.Second)
	transcriber := tmock.NewClient()
	submitter := analysis.NewSubmitter(st, media, transcriber, maxBytes)
	reconciler := analysis.NewReconciler(st, transcriber, gen, openCache{}, analysis.ReconcilerConfig{ClaimLease: time.Minute})
	feedback := analysis.NewFeedbackService(st, gen, openCache{}, time.Minute)

	router := api.NewRouter(api.Dependencies{
		Auth:             mw.NewAuth(st),
		RateLimit:        mw.NewRateLimit(openCache{}, 1000),
		HealthHandler:    handler.NewHealthHandler(st, openCache{}),
		UploadAnalysis:   handler.NewUploadAnalysisHandler(submitter, maxBytes),
		PollAnalysis:     handler.NewPollAnalysisHandler(reconciler),
		ListAnalyses:     handler.NewListAnalysesHandler(st),
		CreateSimulation: handler.NewCreateSimulationHandler(feedback),
		GetSimulation:    handler.NewGetSimulationHandler(feedback),
		AppendTurns:      handler.NewAppendTurnsHandler(feedback),
		GenerateFeedback: handler.NewGenerateFeedbackHandler(feedback),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return client.New(srv.URL, roundTripKey)
}

func wavBytes() string {
	return "RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x40\x1f\x00\x00\x80\x3e\x00\x00\x02\x00\x10\x00data\x00\x00\x00\x00"
}

func TestRoundTrip_SubmitAndWait(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping round-trip test in short mode")
	}
	c := newLiveClient(t)
	ctx := context.Background()

	sub, err := c.SubmitAudio(ctx, "call.wav", strings.NewReader(wavBytes()), "renewal call")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, sub.Status)

	polls := 0
	job, err := c.WaitForAnalysis(ctx, sub.AnalysisID, time.Millisecond, func(*models.AnalysisJob) { polls++ })
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, job.Status)
	assert.Equal(t, sub.AnalysisID, job.ID)
	require.NotNil(t, job.Transcript)
	assert.NotEmpty(t, job.Transcript.FullText)
	require.NotNil(t, job.Analysis)
	assert.NotEmpty(t, job.Analysis.Summary)
	assert.Equal(t, 3, polls)

	page, err := c.ListAnalyses(ctx, client.ListOptions{Status: models.JobStatusComplete})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Meta.Total)
}

func TestRoundTrip_SimulationFeedback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping round-trip test in short mode")
	}
	c := newLiveClient(t)
	ctx := context.Background()

	sim, err := c.CreateSimulation(ctx, client.SimulationInput{Scenario: "Cold call a CFO"})
	require.NoError(t, err)

	_, err = c.GenerateFeedback(ctx, sim.ID)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "EMPTY_CONVERSATION", apiErr.Code)

	_, err = c.AppendTurns(ctx, sim.ID, []models.Turn{
		{Role: models.TurnRoleRep, Content: "Hi, is now a good time?"},
		{Role: models.TurnRoleProspect, Content: "Two minutes."},
	})
	require.NoError(t, err)

	fb, err := c.GenerateFeedback(ctx, sim.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, fb.Summary)

	got, err := c.GetSimulation(ctx, sim.ID)
	require.NoError(t, err)
	assert.Equal(t, fb, got.Feedback)
}
