// Package service implements the socket protocols on top of the canvas stores.
//
// LAYERING:
//
//	realtime (socket, routing, admin gate) → service (protocol rules) → canvas stores
//	                                                                ↘ broadcast hub
//
// Services never see a websocket. They receive a Caller describing who sent
// the message and answer exclusively through the broadcast hub: unicast to
// the caller, a room, or everyone. That keeps every protocol testable with a
// hub and a fake repository.
package service

import (
	"errors"
	"log/slog"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/metrics"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/protocol"
	"github.com/sakif/pixelboard/internal/store"
)

// Caller is the sender of one inbound message.
type Caller struct {
	ClientID string
	// Identity is nil for anonymous observers.
	Identity *model.Identity
	// Admin is true when Identity matches the configured administrator.
	Admin bool
}

// SubjectID is empty for anonymous callers.
func (c Caller) SubjectID() string {
	if c.Identity == nil {
		return ""
	}
	return c.Identity.SubjectID
}

// Deps is what every protocol needs.
type Deps struct {
	Canvas  *canvas.Canvas
	Hub     *broadcast.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func message(msgType string, payload any) broadcast.Message {
	return broadcast.Message{Type: msgType, Payload: payload}
}

// statsMessage carries every stat value.
func statsMessage(stats *store.Stats) broadcast.Message {
	return message(protocol.OutStats, stats.Values())
}

func gridMessages(grid *store.Grid) (full, authors broadcast.Message) {
	var fg protocol.FullGridPayload
	var fa protocol.FullAuthorPayload
	grid.View(func(size model.Size, rows [][]model.Cell) {
		fg = protocol.FullGridPayload{Width: size.Width, Height: size.Height, Colors: make([][]string, len(rows))}
		fa = protocol.FullAuthorPayload{Authors: make([][]*model.Author, len(rows))}
		for y, row := range rows {
			colors := make([]string, len(row))
			authors := make([]*model.Author, len(row))
			for x, c := range row {
				colors[x] = c.Color
				authors[x] = c.Author
			}
			fg.Colors[y] = colors
			fa.Authors[y] = authors
		}
	})
	return message(protocol.OutFullGrid, fg), message(protocol.OutFullAuthorData, fa)
}

func gridSizeMessage(size model.Size) broadcast.Message {
	return message(protocol.OutGridSize, size)
}

func bannedUsersMessage(bans *store.Bans) broadcast.Message {
	return message(protocol.OutBannedUsers, bans.List())
}

func configValuesMessage(cfg *store.Config) broadcast.Message {
	entries := cfg.All()
	out := make([]protocol.ConfigEntryPayload, 0, len(entries))
	for _, e := range entries {
		out = append(out, protocol.ConfigEntryPayload{Key: e.Key, Value: e.Value, Public: e.Visibility == model.Public})
	}
	return message(protocol.OutConfigValues, out)
}

// reasonFor maps an error onto the short reason string sent to clients.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, apperror.ErrPersistence):
		return protocol.ReasonDatabaseError
	case errors.Is(err, apperror.ErrTypeViolation):
		return protocol.ReasonTypeViolation
	case errors.Is(err, apperror.ErrNotFound):
		return protocol.ReasonNotFound
	case errors.Is(err, apperror.ErrExists):
		return protocol.ReasonExists
	case errors.Is(err, apperror.ErrValidation):
		return protocol.ReasonInvalid
	default:
		return protocol.ReasonInternal
	}
}
