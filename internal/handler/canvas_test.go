package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/handler"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
	"github.com/sakif/pixelboard/internal/repository/repotest"
)

func newCanvasRouter(t *testing.T) http.Handler {
	t.Helper()
	repo := repotest.New()
	repo.PutPixel(repository.PixelCommit{X: 1, Y: 0, Color: "#00FF00", AuthorID: "42"})

	cv := canvas.New(repo, testLogger(), canvas.Options{})
	require.NoError(t, cv.Boot(context.Background(), canvas.MergeDefaults(canvas.BuiltinDefaults(), []canvas.Default{
		{Key: model.KeyGridWidth, Value: 2, Public: true},
		{Key: model.KeyGridHeight, Value: 1, Public: true},
		{Key: "secret_key", Value: "hunter2"},
	})))

	h := handler.NewCanvasHandler(cv, testLogger())
	r := chi.NewRouter()
	r.Get("/api/grid", h.HandleGrid)
	r.Get("/api/config/{key}", h.HandleConfigValue)
	return r
}

func TestCanvasHandler_HandleGrid(t *testing.T) {
	r := newCanvasRouter(t)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/grid", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"width":2,"height":1,"colors":[["#FFFFFF","#00FF00"]]}`, rr.Body.String())
}

func TestCanvasHandler_HandleConfigValue(t *testing.T) {
	r := newCanvasRouter(t)

	tests := []struct {
		name       string
		key        string
		wantStatus int
		wantBody   string
	}{
		{"public key", model.KeyPixelTimeoutMS, http.StatusOK, `{"key":"pixel_timeout_ms","value":30000}`},
		{"private key", "secret_key", http.StatusNotFound, ""},
		{"private builtin", model.KeyAutomodEnabled, http.StatusNotFound, ""},
		{"unknown key", "nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()

			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config/"+tt.key, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rr.Body.String())
			} else {
				assert.NotContains(t, rr.Body.String(), "hunter2")
			}
		})
	}
}
