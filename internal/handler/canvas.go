package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/protocol"
)

// CanvasHandler serves read-only snapshots over plain HTTP, for clients that
// want the board without opening a socket.
type CanvasHandler struct {
	canvas *canvas.Canvas
	logger *slog.Logger
}

func NewCanvasHandler(cv *canvas.Canvas, logger *slog.Logger) *CanvasHandler {
	return &CanvasHandler{canvas: cv, logger: logger}
}

// HandleGrid returns the current colors in the full_grid payload shape.
//
// HTTP: GET /api/grid
func (h *CanvasHandler) HandleGrid(w http.ResponseWriter, r *http.Request) {
	var out protocol.FullGridPayload
	h.canvas.Grid.View(func(size model.Size, rows [][]model.Cell) {
		out = protocol.FullGridPayload{Width: size.Width, Height: size.Height, Colors: make([][]string, len(rows))}
		for y, row := range rows {
			colors := make([]string, len(row))
			for x, c := range row {
				colors[x] = c.Color
			}
			out.Colors[y] = colors
		}
	})
	writeJSON(w, http.StatusOK, out)
}

// HandleConfigValue returns one public config value.
//
// HTTP: GET /api/config/{key}
//
// Private keys answer 404 exactly like unknown ones, so their existence
// does not leak.
func (h *CanvasHandler) HandleConfigValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	e, ok := h.canvas.Config.Entry(key)
	if !ok || e.Visibility != model.Public {
		writeError(w, apperror.NotFound("config", key))
		return
	}
	writeJSON(w, http.StatusOK, protocol.ConfigValuePayload{Key: e.Key, Value: e.Value})
}
