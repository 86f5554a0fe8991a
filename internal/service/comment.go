package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/pixelboard/internal/automod"
	"github.com/sakif/pixelboard/internal/broadcast"
	"github.com/sakif/pixelboard/internal/canvas"
	"github.com/sakif/pixelboard/internal/metrics"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/protocol"
	"github.com/sakif/pixelboard/internal/store"
)

// Defaults for comment settings that are not configured.
const (
	DefaultCommentTimeout   = 10 * time.Second
	DefaultCommentMaxLength = 100

	automodTimeout = 5 * time.Second
)

type CommentOutcome string

const (
	CommentInvalid         CommentOutcome = "invalid"
	CommentTooLong         CommentOutcome = "too_long"
	CommentDisabled        CommentOutcome = "disabled"
	CommentReadonly        CommentOutcome = "readonly"
	CommentUnauthenticated CommentOutcome = "unauthenticated"
	CommentBanned          CommentOutcome = "banned"
	CommentTimeout         CommentOutcome = "timeout"
	CommentAutomod         CommentOutcome = "automod"
	CommentPosted          CommentOutcome = "posted"
)

// CommentService posts ephemeral comments pinned to a cell. Comments are
// broadcast and counted but never stored.
type CommentService struct {
	canvas     *canvas.Canvas
	hub        *broadcast.Hub
	metrics    *metrics.Metrics
	classifier automod.Classifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewCommentService(deps Deps, classifier automod.Classifier) *CommentService {
	if classifier == nil {
		classifier = automod.Unavailable{}
	}
	return &CommentService{
		canvas:     deps.Canvas,
		hub:        deps.Hub,
		metrics:    deps.Metrics,
		classifier: classifier,
		logger:     deps.Logger.With(slog.String("protocol", "comment")),
		now:        time.Now,
	}
}

func (s *CommentService) Submit(ctx context.Context, caller Caller, req protocol.SubmitComment) CommentOutcome {
	outcome := s.submit(ctx, caller, req)
	s.metrics.CommentOutcome(string(outcome))
	return outcome
}

func (s *CommentService) submit(ctx context.Context, caller Caller, req protocol.SubmitComment) CommentOutcome {
	cv := s.canvas

	// Validating
	if req.X == nil || req.Y == nil {
		return CommentInvalid
	}
	x, y := *req.X, *req.Y
	text := strings.TrimSpace(req.Comment)
	if !cv.Grid.Size().Contains(x, y) || text == "" {
		return CommentInvalid
	}

	// Authorizing
	if !cv.Config.Bool(model.KeyCommentsEnabled, true) {
		s.reject(caller, protocol.ReasonCommentsDisabled, nil, nil)
		return CommentDisabled
	}
	if cv.Config.Readonly() && !caller.Admin {
		s.reject(caller, protocol.ReasonReadonly, nil, nil)
		return CommentReadonly
	}
	if !caller.Identity.Complete() {
		s.reject(caller, protocol.ReasonUnauthenticated, nil, nil)
		return CommentUnauthenticated
	}
	id := caller.Identity
	if cv.Bans.IsBanned(id.SubjectID) {
		s.reject(caller, protocol.ReasonBanned, nil, nil)
		return CommentBanned
	}

	// Length, reported only to callers allowed to post.
	if utf8.RuneCountInString(text) > cv.Config.Int(model.KeyCommentMaxLength, DefaultCommentMaxLength) {
		s.reject(caller, protocol.ReasonTooLong, nil, nil)
		return CommentTooLong
	}

	// RateLimiting: an early check so a timed-out caller costs no classifier call.
	if st, ok := cv.Timeouts.Status(store.CategoryComment, id.SubjectID); ok {
		s.reject(caller, protocol.ReasonTimeout, protocol.WaitSeconds(st.RemainingMS), nil)
		return CommentTimeout
	}

	// Automod
	if cv.Config.Bool(model.KeyAutomodEnabled, false) {
		if reason, labels, blocked := s.moderate(ctx, id, text); blocked {
			s.reject(caller, reason, nil, labels)
			return CommentAutomod
		}
	}

	cooldown := time.Duration(cv.Config.Int(model.KeyCommentTimeoutMS, int(DefaultCommentTimeout/time.Millisecond))) * time.Millisecond
	if st, ok := cv.Timeouts.TryBegin(store.CategoryComment, id.SubjectID, cooldown); !ok {
		s.reject(caller, protocol.ReasonTimeout, protocol.WaitSeconds(st.RemainingMS), nil)
		return CommentTimeout
	}

	s.hub.Global(message(protocol.OutComment, protocol.CommentPayload{
		X:        x,
		Y:        y,
		Comment:  text,
		Author:   id.Author(),
		PostedAt: s.now().UTC(),
	}))

	if _, err := cv.Stats.IncrementDurable(context.WithoutCancel(ctx), model.StatTotalCommentsPosted, 1, true); err != nil {
		s.logger.Warn("comment counter not incremented", slog.String("error", err.Error()))
		return CommentPosted
	}
	s.hub.Room(broadcast.RoomStats, statsMessage(cv.Stats))
	return CommentPosted
}

// moderate applies the automod policy. It reports whether the comment must be
// blocked, with the reason and any labels to send back.
func (s *CommentService) moderate(ctx context.Context, id *model.Identity, text string) (string, []string, bool) {
	strict := s.canvas.Config.Bool(model.KeyAutomodStrict, false)

	ctx, cancel := context.WithTimeout(ctx, automodTimeout)
	defer cancel()

	res, err := s.classifier.Classify(ctx, text)
	if err != nil {
		s.logger.Warn("automod call failed",
			slog.String("user_id", id.SubjectID),
			slog.Bool("strict", strict),
			slog.String("error", err.Error()),
		)
		return protocol.ReasonAutomodError, nil, strict
	}

	switch res.Verdict {
	case automod.Flagged:
		s.logger.Info("comment flagged",
			slog.String("user_id", id.SubjectID),
			slog.Any("labels", res.Labels),
		)
		return protocol.ReasonAutomod, res.Labels, true
	case automod.Unsupported:
		return protocol.ReasonAutomodUnsupported, nil, strict
	default:
		return "", nil, false
	}
}

func (s *CommentService) reject(caller Caller, reason string, wait *int64, labels []string) {
	s.hub.Unicast(caller.ClientID, message(protocol.OutCommentRejected, protocol.RejectionPayload{
		Reason:   reason,
		WaitTime: wait,
		Labels:   labels,
	}))
}
