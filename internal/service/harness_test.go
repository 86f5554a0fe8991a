package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/metrics"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository/repotest"
)

// =========================================================================
// TEST HARNESS
// =========================================================================
//
// Every protocol test runs against a real canvas (real stores) on top of
// repotest.Fake, and a real broadcast hub. Observers are just registered hub
// clients whose queues the test drains, so assertions are about the frames a
// socket would actually have received.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	repo  *repotest.Fake
	cv    *canvas.Canvas
	hub   *broadcast.Hub
	clock *fakeClock
	deps  Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := repotest.New()
	clock := &fakeClock{now: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)}
	logger := testLogger()

	cv := canvas.New(repo, logger, canvas.Options{Now: clock.Now})
	require.NoError(t, cv.Boot(context.Background(), canvas.BuiltinDefaults()))

	hub := broadcast.NewHub(logger, broadcast.Options{})
	return &harness{
		repo:  repo,
		cv:    cv,
		hub:   hub,
		clock: clock,
		deps:  Deps{Canvas: cv, Hub: hub, Metrics: metrics.New(), Logger: logger},
	}
}

// connect registers a socket and returns the Caller it would produce.
func (h *harness) connect(clientID string, id *model.Identity, admin bool) (Caller, *broadcast.Client) {
	subject := ""
	if id != nil {
		subject = id.SubjectID
	}
	c := h.hub.Register(clientID, subject)
	return Caller{ClientID: clientID, Identity: id, Admin: admin}, c
}

func identity(subject, name string) *model.Identity {
	return &model.Identity{SubjectID: subject, DisplayName: name}
}

// frame is an outbound message with its payload left raw for per-test decoding.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// drain returns every frame queued for c.
func drain(t *testing.T, c *broadcast.Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case data, ok := <-c.Frames():
			if !ok {
				return out
			}
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func types(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

// only returns the frames of one type.
func only(frames []frame, msgType string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Type == msgType {
			out = append(out, f)
		}
	}
	return out
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func intPtr(i int) *int { return &i }
