package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/convointel/pkg/models"
)

const testToken = "ci_cli_test_token_0123456789"

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("CONVOINTEL")
	viper.AutomaticEnv()
	bindFlags()
}

// resetFlags restores every flag to its default; cobra keeps values between
// Execute calls on the same command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	resetViper()
	resetFlags(rootCmd)
	cfgFile = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func fakeAPI(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeErr(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid API key")
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF\x24\x00\x00\x00WAVEfmt "), 0o600))
	return path
}

func completeJob(id uuid.UUID) map[string]any {
	return map[string]any{
		"id":          id,
		"status":      "COMPLETE",
		"description": "Renewal with Acme",
		"transcript": map[string]any{
			"full_text": "Thanks for taking the call. Happy to hear what you have.",
			"utterances": []map[string]any{
				{"speaker": "A", "text": "Thanks for taking the call.", "start_ms": 0, "end_ms": 1800},
				{"speaker": "B", "text": "Happy to hear what you have.", "start_ms": 61900, "end_ms": 63500},
			},
		},
		"analysis": map[string]any{
			"summary":      "Friendly intro, prospect open to a demo.",
			"sentiment":    "positive",
			"score":        81,
			"action_items": []string{"Send demo invite"},
			"objections":   []map[string]any{{"objection": "Budget is tight", "handled": true}},
		},
	}
}

// ─── submit ──────────────────────────────────────────────────────────────────

func TestSubmit_ReturnsImmediately(t *testing.T) {
	id := uuid.New()
	url := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST /api/v1/analyses", r.Method+" "+r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Renewal with Acme", r.FormValue("description"))
		writeData(w, http.StatusCreated, map[string]any{"analysis_id": id, "status": "PROCESSING"})
	})

	out, err := execute(t, "submit", audioFile(t), "--url", url, "--token", testToken, "-d", "Renewal with Acme")
	require.NoError(t, err)
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "PROCESSING")
	assert.Contains(t, out, "convoctl wait "+id.String())
}

func TestSubmit_Wait(t *testing.T) {
	id := uuid.New()
	var polls atomic.Int32
	url := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeData(w, http.StatusCreated, map[string]any{"analysis_id": id, "status": "PROCESSING"})
			return
		}
		if polls.Add(1) < 3 {
			writeData(w, http.StatusOK, map[string]any{"analysis_id": id, "status": "PROCESSING"})
			return
		}
		writeData(w, http.StatusOK, completeJob(id))
	})

	out, err := execute(t, "submit", audioFile(t), "--url", url, "--token", testToken, "--wait", "--interval", "1ms")
	require.NoError(t, err)
	assert.EqualValues(t, 3, polls.Load())
	assert.Contains(t, out, "COMPLETE")
	assert.Contains(t, out, "Friendly intro, prospect open to a demo.")
	assert.Contains(t, out, "Send demo invite")
	assert.Contains(t, out, "Budget is tight")
	assert.NotContains(t, out, "Transcript")
}

func TestSubmit_MissingFile(t *testing.T) {
	_, err := execute(t, "submit", filepath.Join(t.TempDir(), "nope.wav"), "--token", testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open audio")
}

func TestSubmit_Rejected(t *testing.T) {
	url := fakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "file: unsupported content type")
	})

	_, err := execute(t, "submit", audioFile(t), "--url", url, "--token", testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload failed")
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
}

// ─── status / wait ───────────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	id := uuid.New()
	url := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses/"+id.String(), r.URL.Path)
		writeData(w, http.StatusOK, completeJob(id))
	})

	out, err := execute(t, "status", id.String(), "--url", url, "--token", testToken, "--transcript")
	require.NoError(t, err)
	assert.Contains(t, out, "Renewal with Acme")
	assert.Contains(t, out, "81")
	assert.Contains(t, out, "Transcript")
	assert.Contains(t, out, "[01:01]")
	assert.Contains(t, out, "Happy to hear what you have.")
}

func TestStatus_InvalidID(t *testing.T) {
	_, err := execute(t, "status", "not-a-uuid", "--token", testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid analysis id "not-a-uuid"`)
}

func TestStatus_MissingToken(t *testing.T) {
	t.Setenv("CONVOINTEL_TOKEN", "")
	_, err := execute(t, "status", uuid.NewString())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API token not found")
}

func TestStatus_TokenFromEnv(t *testing.T) {
	id := uuid.New()
	url := fakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"analysis_id": id, "status": "PROCESSING"})
	})
	t.Setenv("CONVOINTEL_TOKEN", testToken)
	t.Setenv("CONVOINTEL_URL", url)

	out, err := execute(t, "status", id.String())
	require.NoError(t, err)
	assert.Contains(t, out, "PROCESSING")
}

func TestStatus_ConfigFile(t *testing.T) {
	id := uuid.New()
	url := fakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"analysis_id": id, "status": "PENDING"})
	})
	cfg := filepath.Join(t.TempDir(), "convoctl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("url: "+url+"\ntoken: "+testToken+"\n"), 0o600))

	out, err := execute(t, "status", id.String(), "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "PENDING")
}

func TestWait_Failed(t *testing.T) {
	id := uuid.New()
	url := fakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"id": id, "status": "FAILED", "error_detail": "audio could not be decoded"})
	})

	out, err := execute(t, "wait", id.String(), "--url", url, "--token", testToken, "--interval", "1ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, out, "audio could not be decoded")
}

func TestWait_Timeout(t *testing.T) {
	id := uuid.New()
	url := fakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"analysis_id": id, "status": "PROCESSING"})
	})

	out, err := execute(t, "wait", id.String(), "--url", url, "--token", testToken,
		"--interval", "10ms", "--timeout", "60ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still PROCESSING")
	assert.Equal(t, 1, strings.Count(out, id.String()), "status changes are printed once")
}

// ─── list ────────────────────────────────────────────────────────────────────

func TestList(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	long := strings.Repeat("quarterly business review ", 4)
	url := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "COMPLETE", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": first, "status": "COMPLETE", "description": long},
				{"id": second, "status": "COMPLETE"},
			},
			"meta": map[string]any{"page": 1, "limit": 2, "total": 5, "has_next": true},
		})
	})

	out, err := execute(t, "list", "--status", "complete", "--limit", "2", "--url", url, "--token", testToken)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, first.String())
	assert.Contains(t, out, second.String())
	assert.Contains(t, out, "…")
	assert.NotContains(t, out, long)
	assert.Contains(t, out, "2 of 5 total")
	assert.Contains(t, out, "convoctl list --page 2")
}

func TestList_Empty(t *testing.T) {
	url := fakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[],"meta":{"page":1,"limit":20,"total":0,"has_next":false}}`))
	})

	out, err := execute(t, "list", "--url", url, "--token", testToken)
	require.NoError(t, err)
	assert.Contains(t, out, "No analyses found.")
}

func TestList_InvalidStatus(t *testing.T) {
	_, err := execute(t, "list", "--status", "DONE", "--token", testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid status "DONE"`)
}

// ─── feedback ────────────────────────────────────────────────────────────────

func TestFeedback(t *testing.T) {
	id := uuid.New()
	url := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST /api/v1/simulations/"+id.String()+"/feedback", r.Method+" "+r.URL.Path)
		writeData(w, http.StatusOK, models.Feedback{
			Summary:      "Strong opener, rushed the close.",
			Strengths:    []string{"Clear value statement"},
			Improvements: []string{"Ask for the next meeting"},
		})
	})

	out, err := execute(t, "feedback", id.String(), "--url", url, "--token", testToken)
	require.NoError(t, err)
	assert.Contains(t, out, "Strong opener, rushed the close.")
	assert.Contains(t, out, "Clear value statement")
	assert.Contains(t, out, "Ask for the next meeting")
}

func TestFeedback_EmptyConversation(t *testing.T) {
	url := fakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusUnprocessableEntity, "EMPTY_CONVERSATION", "simulation has no turns")
	})

	_, err := execute(t, "feedback", uuid.NewString(), "--url", url, "--token", testToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMPTY_CONVERSATION")
}

// ─── formatting ──────────────────────────────────────────────────────────────

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\t c", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestFormatScore(t *testing.T) {
	assert.Contains(t, formatScore(90), colorGreen)
	assert.Contains(t, formatScore(60), colorYellow)
	assert.Contains(t, formatScore(10), colorRed)
}

func TestColorizeStatus(t *testing.T) {
	for _, s := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusProcessing, models.JobStatusComplete, models.JobStatusFailed,
	} {
		assert.Contains(t, colorizeStatus(s), string(s))
		assert.Contains(t, colorizeStatus(s), colorReset)
	}
	assert.Equal(t, "UNKNOWN", colorizeStatus("UNKNOWN"))
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "00:00", formatOffset(0))
	assert.Equal(t, "01:01", formatOffset(61900))
	assert.Equal(t, "10:00", formatOffset(600000))
}
