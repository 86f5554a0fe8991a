package service

import (
	"log/slog"

	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/protocol"
)

// ObserverService answers the read-only messages any socket may send and
// brings a freshly connected socket up to date.
type ObserverService struct {
	canvas *canvas.Canvas
	hub    *broadcast.Hub
	logger *slog.Logger
}

func NewObserverService(deps Deps) *ObserverService {
	return &ObserverService{
		canvas: deps.Canvas,
		hub:    deps.Hub,
		logger: deps.Logger.With(slog.String("protocol", "observer")),
	}
}

// Welcome sends a new socket everything it needs to render: who it is, the
// grid, and whether it may paint. Admin sockets also join the admin room and
// receive the ban list and full config.
func (s *ObserverService) Welcome(caller Caller) {
	cv := s.canvas
	s.hub.Unicast(caller.ClientID, message(protocol.OutIdentity, caller.Identity))

	full, authors := gridMessages(cv.Grid)
	s.hub.Unicast(caller.ClientID, gridSizeMessage(cv.Grid.Size()))
	s.hub.Unicast(caller.ClientID, full)
	s.hub.Unicast(caller.ClientID, authors)
	s.hub.Unicast(caller.ClientID, message(protocol.OutReadonly, cv.Config.Readonly()))

	if caller.Admin {
		s.hub.Join(caller.ClientID, broadcast.RoomAdmin)
		s.hub.Unicast(caller.ClientID, bannedUsersMessage(cv.Bans))
		s.hub.Unicast(caller.ClientID, configValuesMessage(cv.Config))
	}
}

func (s *ObserverService) CheckReadonly(caller Caller) {
	s.hub.Unicast(caller.ClientID, message(protocol.OutReadonly, s.canvas.Config.Readonly()))
}

// PublicConfigValue answers only for public keys; private and unknown keys
// get no reply at all.
func (s *ObserverService) PublicConfigValue(caller Caller, key string) bool {
	e, ok := s.canvas.Config.Entry(key)
	if !ok || e.Visibility != model.Public {
		return false
	}
	s.hub.Unicast(caller.ClientID, message(protocol.OutConfigValue, protocol.ConfigValuePayload{Key: e.Key, Value: e.Value}))
	return true
}

// JoinStats subscribes the socket to live counters and sends the current
// values straight away. Joining twice is harmless.
func (s *ObserverService) JoinStats(caller Caller) {
	s.hub.Join(caller.ClientID, broadcast.RoomStats)
	s.hub.Unicast(caller.ClientID, statsMessage(s.canvas.Stats))
}

// PresenceChanged mirrors the number of connected identities into the
// virtual connected_users stat. It is wired as the hub's presence hook.
func (s *ObserverService) PresenceChanged(distinct int) {
	if err := s.canvas.Stats.SetVirtual(model.StatConnectedUsers, int64(distinct), true); err != nil {
		s.logger.Warn("connected_users not updated", slog.String("error", err.Error()))
		return
	}
	s.hub.Room(broadcast.RoomStats, statsMessage(s.canvas.Stats))
}
