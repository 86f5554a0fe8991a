package automod

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestClassifier points an OpenAI classifier at a fake moderation endpoint.
func newTestClassifier(t *testing.T, status int, body string) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/moderations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewOpenAI(openai.NewClientWithConfig(cfg), testLogger())
}

func TestOpenAIClassify(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantVerdict Verdict
		wantLabels  []string
		wantErr     bool
	}{
		{
			name:        "clean text",
			status:      http.StatusOK,
			body:        `{"id":"m1","model":"text-moderation-latest","results":[{"flagged":false,"categories":{}}]}`,
			wantVerdict: Clean,
		},
		{
			name:        "flagged text carries labels",
			status:      http.StatusOK,
			body:        `{"id":"m2","model":"text-moderation-latest","results":[{"flagged":true,"categories":{"hate":true,"violence":true}}]}`,
			wantVerdict: Flagged,
			wantLabels:  []string{"hate", "violence"},
		},
		{
			name:        "bad request means unsupported input",
			status:      http.StatusBadRequest,
			body:        `{"error":{"message":"unsupported language","type":"invalid_request_error"}}`,
			wantVerdict: Unsupported,
		},
		{
			name:    "server error is an error",
			status:  http.StatusInternalServerError,
			body:    `{"error":{"message":"boom","type":"server_error"}}`,
			wantErr: true,
		},
		{
			name:    "empty results is an error",
			status:  http.StatusOK,
			body:    `{"id":"m3","model":"text-moderation-latest","results":[]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(t, tt.status, tt.body)
			got, err := c.Classify(context.Background(), "hello")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVerdict, got.Verdict)
			assert.Equal(t, tt.wantLabels, got.Labels)
		})
	}
}

func TestNewWithoutKeyIsUnavailable(t *testing.T) {
	c := New("", testLogger())
	got, err := c.Classify(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, Unsupported, got.Verdict)
}
