package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/metrics"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/protocol"
	"github.com/sakif/pixelboard/internal/repository"
	"github.com/sakif/pixelboard/internal/store"
)

// AdminService implements the administrator's messages.
//
// The caller has already passed the admin gate when any method here runs;
// nothing in this file checks identity again. Failures are reported to the
// admin with admin_action_failed (grid size has its own reply shape).
type AdminService struct {
	canvas  *canvas.Canvas
	hub     *broadcast.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAdminService(deps Deps) *AdminService {
	return &AdminService{
		canvas:  deps.Canvas,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		logger:  deps.Logger.With(slog.String("protocol", "admin")),
	}
}

// reservedKeys can only change through their dedicated messages.
var reservedKeys = map[string]string{
	model.KeyGridWidth:  protocol.InAdminSetGridSize,
	model.KeyGridHeight: protocol.InAdminSetGridSize,
}

func (s *AdminService) fail(caller Caller, action, reason string) {
	s.hub.Unicast(caller.ClientID, message(protocol.OutAdminActionFailed, protocol.AdminActionFailedPayload{
		Action: action,
		Reason: reason,
	}))
}

func (s *AdminService) done(caller Caller, action string) {
	s.metrics.AdminAction(action)
	s.logger.Info("admin action",
		slog.String("action", action),
		slog.String("user_id", caller.SubjectID()),
	)
}

// BanUser adds subjectID to the denylist and refreshes the admin room's list.
func (s *AdminService) BanUser(ctx context.Context, caller Caller, subjectID string) {
	var username *string
	if d, err := s.canvas.Repo.GetDetails(ctx, subjectID); err == nil {
		username = &d.Username
	} else if !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Warn("could not look up username for ban", slog.String("error", err.Error()))
	}

	if err := s.canvas.Bans.Ban(ctx, subjectID, username); err != nil {
		s.fail(caller, protocol.InAdminBanUser, reasonFor(err))
		return
	}
	s.hub.Room(broadcast.RoomAdmin, bannedUsersMessage(s.canvas.Bans))
	s.done(caller, protocol.InAdminBanUser)
}

// UnbanUser takes effect on the identity's very next message.
func (s *AdminService) UnbanUser(ctx context.Context, caller Caller, subjectID string) {
	if err := s.canvas.Bans.Unban(ctx, subjectID); err != nil {
		s.fail(caller, protocol.InAdminUnbanUser, reasonFor(err))
		return
	}
	s.hub.Room(broadcast.RoomAdmin, bannedUsersMessage(s.canvas.Bans))
	s.done(caller, protocol.InAdminUnbanUser)
}

// SetConfigValue writes a key strictly. Public keys are announced to
// everyone, private keys only to the admin room.
func (s *AdminService) SetConfigValue(ctx context.Context, caller Caller, req protocol.SetConfigValue) {
	if _, reserved := reservedKeys[req.Key]; reserved {
		s.fail(caller, protocol.InAdminSetConfigValue, protocol.ReasonReservedKey)
		return
	}
	if req.Key == model.KeyReadonly {
		b, ok := req.Value.(bool)
		if !ok {
			s.fail(caller, protocol.InAdminSetConfigValue, protocol.ReasonInvalid)
			return
		}
		s.SetReadonly(ctx, caller, b)
		return
	}

	vis := model.VisibilityOf(req.IsPublic)
	if err := s.canvas.Config.Set(ctx, req.Key, req.Value, &vis, store.Strict); err != nil {
		s.fail(caller, protocol.InAdminSetConfigValue, reasonFor(err))
		return
	}

	e, _ := s.canvas.Config.Entry(req.Key)
	msg := message(protocol.OutConfigValue, protocol.ConfigValuePayload{Key: e.Key, Value: e.Value})
	if e.Visibility == model.Public {
		s.hub.Global(msg)
	} else {
		s.hub.Room(broadcast.RoomAdmin, msg)
	}
	s.done(caller, protocol.InAdminSetConfigValue)
}

// SetReadonly flips read-only mode and tells everyone.
func (s *AdminService) SetReadonly(ctx context.Context, caller Caller, readonly bool) {
	public := model.Public
	if err := s.canvas.Config.Set(ctx, model.KeyReadonly, readonly, &public, store.Strict); err != nil {
		s.fail(caller, protocol.InAdminSetReadonly, reasonFor(err))
		return
	}
	s.hub.Global(message(protocol.OutReadonly, readonly))
	s.done(caller, protocol.InAdminSetReadonly)
}

// SetGridSize persists both dimensions in one transaction, then reloads the
// grid at the new size. If either step fails, the grid and config are left as
// they were and the admin is sent the unchanged dimensions.
func (s *AdminService) SetGridSize(ctx context.Context, caller Caller, req protocol.GridSize) {
	cv := s.canvas
	prev := cv.Config.GridSize()
	next := model.Size{Width: req.Width, Height: req.Height}
	if next.Width < 1 || next.Height < 1 || next.Width > protocol.MaxGridDimension || next.Height > protocol.MaxGridDimension {
		s.hub.Unicast(caller.ClientID, gridSizeMessage(prev))
		return
	}

	rows, err := s.sizeRows(next)
	if err == nil {
		err = cv.Repo.SetConfigMany(ctx, rows)
	}
	if err != nil {
		s.logger.Error("grid size not persisted",
			slog.Int("width", next.Width),
			slog.Int("height", next.Height),
			slog.String("error", err.Error()),
		)
		s.hub.Unicast(caller.ClientID, gridSizeMessage(prev))
		return
	}

	snap := cv.Grid.Snapshot()
	if _, err := cv.Grid.Load(ctx, next); err != nil {
		cv.Grid.Restore(snap)
		s.logger.Error("grid reload failed; restoring previous size", slog.String("error", err.Error()))
		if rollback, rerr := s.sizeRows(prev); rerr == nil {
			if rerr := cv.Repo.SetConfigMany(context.WithoutCancel(ctx), rollback); rerr != nil {
				s.logger.Error("grid size rollback not persisted", slog.String("error", rerr.Error()))
			}
		}
		s.hub.Unicast(caller.ClientID, gridSizeMessage(prev))
		return
	}

	_ = cv.Config.Set(ctx, model.KeyGridWidth, next.Width, nil, store.InMemoryOnly)
	_ = cv.Config.Set(ctx, model.KeyGridHeight, next.Height, nil, store.InMemoryOnly)

	full, authors := gridMessages(cv.Grid)
	s.hub.Global(gridSizeMessage(next))
	s.hub.Global(full)
	s.hub.Global(authors)
	s.done(caller, protocol.InAdminSetGridSize)
}

func (s *AdminService) sizeRows(size model.Size) ([]repository.ConfigRow, error) {
	public := model.Public
	w, err := s.canvas.Config.Row(model.KeyGridWidth, size.Width, &public)
	if err != nil {
		return nil, err
	}
	h, err := s.canvas.Config.Row(model.KeyGridHeight, size.Height, &public)
	if err != nil {
		return nil, err
	}
	return []repository.ConfigRow{w, h}, nil
}

// RefreshGrid reloads every cell from durable storage at the current size.
func (s *AdminService) RefreshGrid(ctx context.Context, caller Caller) {
	cv := s.canvas
	snap := cv.Grid.Snapshot()
	if _, err := cv.Grid.Load(ctx, cv.Config.GridSize()); err != nil {
		cv.Grid.Restore(snap)
		s.logger.Error("grid refresh failed", slog.String("error", err.Error()))
		s.fail(caller, protocol.InAdminRefreshGrid, protocol.ReasonDatabaseError)
		return
	}
	full, authors := gridMessages(cv.Grid)
	s.hub.Global(full)
	s.hub.Global(authors)
	s.done(caller, protocol.InAdminRefreshGrid)
}

// ReloadBans replaces the denylist from durable storage, all or nothing.
func (s *AdminService) ReloadBans(ctx context.Context, caller Caller) {
	bans := s.canvas.Bans
	snap := bans.Snapshot()
	if _, err := bans.Load(ctx); err != nil {
		bans.Restore(snap)
		s.logger.Error("ban reload failed", slog.String("error", err.Error()))
		s.fail(caller, protocol.InAdminReloadBans, protocol.ReasonDatabaseError)
		return
	}
	s.hub.Room(broadcast.RoomAdmin, bannedUsersMessage(bans))
	s.done(caller, protocol.InAdminReloadBans)
}

func (s *AdminService) GetBannedUsers(caller Caller) {
	s.hub.Unicast(caller.ClientID, bannedUsersMessage(s.canvas.Bans))
}

func (s *AdminService) GetConfig(caller Caller) {
	s.hub.Unicast(caller.ClientID, configValuesMessage(s.canvas.Config))
}

func (s *AdminService) Announce(caller Caller, text string) {
	s.hub.Global(message(protocol.OutAnnouncement, protocol.AnnouncementPayload{Message: text}))
	s.done(caller, protocol.InAdminAnnounce)
}

// ForceReload asks every client to reload the page.
func (s *AdminService) ForceReload(caller Caller) {
	s.hub.Global(message(protocol.OutReload, nil))
	s.done(caller, protocol.InAdminForceReload)
}

// SetManualStat creates or updates a Manual stat.
func (s *AdminService) SetManualStat(ctx context.Context, caller Caller, req protocol.ManualStat) {
	stats := s.canvas.Stats
	var err error
	if model.IsServerCounter(req.Key) {
		err = apperror.TypeViolation(req.Key, model.Managed.String(), "manual set")
	} else if st, ok := stats.Stat(req.Key); !ok {
		err = stats.InitManual(ctx, req.Key, req.Value)
	} else if st.Kind != model.Manual {
		err = apperror.TypeViolation(req.Key, st.Kind.String(), "manual set")
	} else {
		err = stats.SetDurable(ctx, req.Key, req.Value, store.SetOptions{})
	}
	if err != nil {
		s.fail(caller, protocol.InAdminSetManualStat, reasonFor(err))
		return
	}
	s.hub.Room(broadcast.RoomStats, statsMessage(stats))
	s.done(caller, protocol.InAdminSetManualStat)
}

func (s *AdminService) DeleteManualStat(ctx context.Context, caller Caller, key string) {
	stats := s.canvas.Stats
	if model.IsServerCounter(key) {
		s.fail(caller, protocol.InAdminDeleteManualStat, protocol.ReasonTypeViolation)
		return
	}
	if err := stats.DeleteManual(ctx, key); err != nil {
		s.fail(caller, protocol.InAdminDeleteManualStat, reasonFor(err))
		return
	}
	s.hub.Room(broadcast.RoomStats, statsMessage(stats))
	s.done(caller, protocol.InAdminDeleteManualStat)
}
