// Package realtime is the websocket surface: it upgrades connections, reads
// frames, and routes each one to the protocol that handles it.
//
// DISPATCH:
// Routing is a static table from message name to handler. Each entry also
// says whether the message is admin-only. The table is fixed at compile time;
// nothing registers handlers at runtime.
//
// THE ADMIN GATE:
// An admin-only message from anyone but the configured administrator is
// logged and dropped. The sender gets no reply at all, so a non-admin cannot
// tell an admin message from an unknown one.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/pixelboard/internal/protocol"
	"github.com/sakif/pixelboard/internal/service"
)

// Services is what the router dispatches into.
type Services struct {
	Pixels   *service.PixelService
	Comments *service.CommentService
	Admin    *service.AdminService
	Observer *service.ObserverService
}

type handlerFunc func(ctx context.Context, s Services, c service.Caller, payload json.RawMessage) error

type route struct {
	adminOnly bool
	handle    handlerFunc
}

var (
	errUnknownType = errors.New("unknown message type")
	errAdminOnly   = errors.New("admin-only message from non-admin")
)

// decoded adapts a handler that takes a validated payload.
func decoded[T any](fn func(ctx context.Context, s Services, c service.Caller, req T)) handlerFunc {
	return func(ctx context.Context, s Services, c service.Caller, raw json.RawMessage) error {
		req, err := protocol.Decode[T](raw)
		if err != nil {
			return err
		}
		fn(ctx, s, c, req)
		return nil
	}
}

// bare adapts a handler that ignores its payload.
func bare(fn func(ctx context.Context, s Services, c service.Caller)) handlerFunc {
	return func(ctx context.Context, s Services, c service.Caller, _ json.RawMessage) error {
		fn(ctx, s, c)
		return nil
	}
}

var routes = map[string]route{
	protocol.InPixelUpdate: {handle: decoded(func(ctx context.Context, s Services, c service.Caller, req protocol.PixelUpdate) {
		s.Pixels.Submit(ctx, c, req)
	})},
	protocol.InCheckTimeout: {handle: bare(func(_ context.Context, s Services, c service.Caller) {
		s.Pixels.CheckTimeout(c)
	})},
	protocol.InCheckReadonly: {handle: bare(func(_ context.Context, s Services, c service.Caller) {
		s.Observer.CheckReadonly(c)
	})},
	protocol.InGetPublicConfigValue: {handle: decoded(func(_ context.Context, s Services, c service.Caller, req protocol.ConfigKey) {
		s.Observer.PublicConfigValue(c, req.Key)
	})},
	protocol.InSubmitComment: {handle: decoded(func(ctx context.Context, s Services, c service.Caller, req protocol.SubmitComment) {
		s.Comments.Submit(ctx, c, req)
	})},
	protocol.InJoinStats: {handle: bare(func(_ context.Context, s Services, c service.Caller) {
		s.Observer.JoinStats(c)
	})},

	protocol.InAdminBanUser: {adminOnly: true, handle: decoded(func(ctx context.Context, s Services, c service.Caller, req protocol.SubjectRef) {
		s.Admin.BanUser(ctx, c, req.SubjectID)
	})},
	protocol.InAdminUnbanUser: {adminOnly: true, handle: decoded(func(ctx context.Context, s Services, c service.Caller, req protocol.SubjectRef) {
		s.Admin.UnbanUser(ctx, c, req.SubjectID)
	})},
	protocol.InAdminSetConfigValue: {adminOnly: true, handle: decoded(func(ctx context.Context, s Services, c service.Caller, req protocol.SetConfigValue) {
		s.Admin.SetConfigValue(ctx, c, req)
	})},
	protocol.InAdminSetGridSize: {adminOnly: true, handle: decoded(func(ctx context.Context, s Services, c service.Caller, req protocol.GridSize) {
		s.Admin.SetGridSize(ctx, c, req)
	})},
	protocol.InAdminSetReadonly: {adminOnly: true, handle: func(ctx context.Context, s Services, c service.Caller, raw json.RawMessage) error {
		b, err := protocol.DecodeBool(raw)
		if err != nil {
			return err
		}
		s.Admin.SetReadonly(ctx, c, b)
		return nil
	}},
	protocol.InAdminRefreshGrid: {adminOnly: true, handle: bare(func(ctx context.Context, s Services, c service.Caller) {
		s.Admin.RefreshGrid(ctx, c)
	})},
	protocol.InAdminReloadBans: {adminOnly: true, handle: bare(func(ctx context.Context, s Services, c service.Caller) {
		s.Admin.ReloadBans(ctx, c)
	})},
	protocol.InAdminGetBannedUsers: {adminOnly: true, handle: bare(func(_ context.Context, s Services, c service.Caller) {
		s.Admin.GetBannedUsers(c)
	})},
	protocol.InAdminGetConfig: {adminOnly: true, handle: bare(func(_ context.Context, s Services, c service.Caller) {
		s.Admin.GetConfig(c)
	})},
	protocol.InAdminAnnounce: {adminOnly: true, handle: decoded(func(_ context.Context, s Services, c service.Caller, req protocol.Announce) {
		s.Admin.Announce(c, req.Message)
	})},
	protocol.InAdminForceReload: {adminOnly: true, handle: bare(func(_ context.Context, s Services, c service.Caller) {
		s.Admin.ForceReload(c)
	})},
	protocol.InAdminSetManualStat: {adminOnly: true, handle: decoded(func(ctx context.Context, s Services, c service.Caller, req protocol.ManualStat) {
		s.Admin.SetManualStat(ctx, c, req)
	})},
	protocol.InAdminDeleteManualStat: {adminOnly: true, handle: decoded(func(ctx context.Context, s Services, c service.Caller, req protocol.StatKey) {
		s.Admin.DeleteManualStat(ctx, c, req.Key)
	})},
}


// Router dispatches decoded envelopes.
type Router struct {
	services Services
	logger   *slog.Logger
}

func NewRouter(services Services, logger *slog.Logger) *Router {
	return &Router{services: services, logger: logger}
}

// Dispatch runs the handler for env. The returned error is for logging only;
// nothing is ever sent back to the caller for it.
func (r *Router) Dispatch(ctx context.Context, caller service.Caller, env protocol.Envelope) error {
	rt, ok := routes[env.Type]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownType, env.Type)
	}
	if rt.adminOnly && !caller.Admin {
		r.logger.Warn("admin message from non-admin dropped",
			slog.String("type", env.Type),
			slog.String("client_id", caller.ClientID),
			slog.String("user_id", caller.SubjectID()),
		)
		return errAdminOnly
	}
	return rt.handle(ctx, r.services, caller, env.Payload)
}
