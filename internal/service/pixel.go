package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/metrics"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/protocol"
	"github.com/sakif/pixelboard/internal/repository"
	"github.com/sakif/pixelboard/internal/store"
)

// DefaultPixelTimeout applies when pixel_timeout_ms is not configured.
const DefaultPixelTimeout = 30 * time.Second

// PixelOutcome is where a submission ended up. It is also the metrics label.
type PixelOutcome string

const (
	PixelInvalid         PixelOutcome = "invalid"
	PixelReadonly        PixelOutcome = "readonly"
	PixelUnauthenticated PixelOutcome = "unauthenticated"
	PixelBanned          PixelOutcome = "banned"
	PixelTimeout         PixelOutcome = "timeout"
	PixelCommitted       PixelOutcome = "committed"
	PixelReverted        PixelOutcome = "reverted"
)

// PixelService runs one pixel update through its state machine:
//
//	Validating → Authorizing → RateLimiting → Applying → Broadcasting → Persisting
//	                                                                    ├→ Committed
//	                                                                    └→ Reverting → Reverted
//
// Every rejection before Applying leaves all state untouched. Applying makes
// the change visible to every reader at once and Broadcasting tells every
// observer before the durable write has even started. Persisting decides
// whether the change sticks; if it fails, Reverting undoes the cell (unless
// someone has painted it since) and refunds the cooldown.
type PixelService struct {
	canvas  *canvas.Canvas
	hub     *broadcast.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewPixelService(deps Deps) *PixelService {
	return &PixelService{
		canvas:  deps.Canvas,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		logger:  deps.Logger.With(slog.String("protocol", "pixel")),
		now:     time.Now,
	}
}

// Submit handles one pixel_update. It returns only after persistence has
// resolved, but observers have already seen the change by then.
func (s *PixelService) Submit(ctx context.Context, caller Caller, req protocol.PixelUpdate) PixelOutcome {
	outcome := s.submit(ctx, caller, req)
	s.metrics.PixelOutcome(string(outcome))
	return outcome
}

func (s *PixelService) submit(ctx context.Context, caller Caller, req protocol.PixelUpdate) PixelOutcome {
	cv := s.canvas

	// Validating
	if req.X == nil || req.Y == nil {
		return PixelInvalid
	}
	x, y := *req.X, *req.Y
	if !cv.Grid.Size().Contains(x, y) || !model.ValidColor(req.Color) {
		s.logger.Debug("pixel update dropped",
			slog.String("client_id", caller.ClientID),
			slog.Int("x", x),
			slog.Int("y", y),
		)
		return PixelInvalid
	}

	// Authorizing
	if cv.Config.Readonly() && !caller.Admin {
		s.reject(caller, protocol.ReasonReadonly, nil)
		return PixelReadonly
	}
	if !caller.Identity.Complete() {
		s.reject(caller, protocol.ReasonUnauthenticated, nil)
		return PixelUnauthenticated
	}
	id := caller.Identity
	if cv.Bans.IsBanned(id.SubjectID) {
		s.reject(caller, protocol.ReasonBanned, nil)
		return PixelBanned
	}

	// RateLimiting, and the cooldown half of Applying, in one step so two
	// sockets of the same identity cannot both get through.
	cooldown := time.Duration(cv.Config.Int(model.KeyPixelTimeoutMS, int(DefaultPixelTimeout/time.Millisecond))) * time.Millisecond
	if st, ok := cv.Timeouts.TryBegin(store.CategoryPixel, id.SubjectID, cooldown); !ok {
		s.reject(caller, protocol.ReasonTimeout, protocol.WaitSeconds(st.RemainingMS))
		return PixelTimeout
	}

	// Applying
	author := id.Author()
	prev, version, ok := cv.Grid.Swap(x, y, req.Color, author)
	if !ok {
		// The grid shrank between validation and now.
		cv.Timeouts.Clear(store.CategoryPixel, id.SubjectID)
		return PixelInvalid
	}

	// Broadcasting
	s.hub.Global(message(protocol.OutPixelUpdate, protocol.PixelUpdatePayload{
		X: x, Y: y, Color: req.Color, Author: author,
	}))

	// Persisting. A disconnect must not abort the write.
	total, err := s.persist(context.WithoutCancel(ctx), id, x, y, req.Color)
	if err != nil {
		s.logger.Error("pixel persistence failed; reverting",
			slog.String("user_id", id.SubjectID),
			slog.Int("x", x),
			slog.Int("y", y),
			slog.String("error", err.Error()),
		)
		s.revert(caller, x, y, prev, version)
		return PixelReverted
	}

	// Committed
	if err := cv.Stats.Record(model.StatTotalPixelsPlaced, total); err != nil {
		s.logger.Warn("could not mirror pixel counter", slog.String("error", err.Error()))
	}
	s.hub.Room(broadcast.RoomStats, statsMessage(cv.Stats))
	return PixelCommitted
}

func (s *PixelService) persist(ctx context.Context, id *model.Identity, x, y int, color string) (int64, error) {
	details := &model.UserDetails{
		UserID:    id.SubjectID,
		Username:  id.DisplayName,
		AvatarURL: id.AvatarURL,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.canvas.Repo.UpsertDetails(ctx, details); err != nil {
		return 0, fmt.Errorf("service/pixel: upserting author: %w", err)
	}

	total, err := s.canvas.Repo.CommitPixel(ctx, repository.PixelCommit{
		X: x, Y: y, Color: color, AuthorID: id.SubjectID,
	})
	if err != nil {
		return 0, fmt.Errorf("service/pixel: committing: %w", err)
	}
	return total, nil
}

// revert undoes an optimistic write after its durable write failed.
func (s *PixelService) revert(caller Caller, x, y int, prev model.Cell, version uint64) {
	cv := s.canvas

	if cv.Grid.Revert(x, y, prev, version) {
		s.hub.Global(message(protocol.OutPixelUpdate, protocol.PixelUpdatePayload{
			X: x, Y: y, Color: prev.Color, Author: prev.Author,
		}))
	} else {
		s.logger.Info("revert skipped; cell was overwritten since",
			slog.Int("x", x),
			slog.Int("y", y),
		)
	}

	cv.Timeouts.Clear(store.CategoryPixel, caller.SubjectID())
	s.reject(caller, protocol.ReasonDatabaseError, nil)
}

func (s *PixelService) reject(caller Caller, reason string, wait *int64) {
	s.hub.Unicast(caller.ClientID, message(protocol.OutPixelUpdateRejected, protocol.RejectionPayload{
		Reason:   reason,
		WaitTime: wait,
	}))
}

// CheckTimeout unicasts timeout_info if the caller has an active pixel cooldown.
func (s *PixelService) CheckTimeout(caller Caller) bool {
	if caller.SubjectID() == "" {
		return false
	}
	st, ok := s.canvas.Timeouts.Status(store.CategoryPixel, caller.SubjectID())
	if !ok {
		return false
	}
	s.hub.Unicast(caller.ClientID, message(protocol.OutTimeoutInfo, protocol.TimeoutInfoPayload{
		Category:    string(store.CategoryPixel),
		RemainingMS: st.RemainingMS,
		ElapsedMS:   st.ElapsedMS,
		EndsAt:      st.EndsAt,
		CheckedAt:   st.CheckedAt,
	}))
	return true
}
