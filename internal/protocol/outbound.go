package protocol

import (
	"time"

	"github.com/sakif/pixelboard/internal/model"
)

// Outbound message names.
const (
	OutPixelUpdate         = "pixel_update"
	OutFullGrid            = "full_grid"
	OutFullAuthorData      = "full_author_data"
	OutGridSize            = "grid_size"
	OutPixelUpdateRejected = "pixel_update_rejected"
	OutTimeoutInfo         = "timeout_info"
	OutReadonly            = "readonly"
	OutConfigValue         = "config_value"
	OutComment             = "comment"
	OutCommentRejected     = "comment_rejected"
	OutStats               = "stats"
	OutAnnouncement        = "announcement"
	OutReload              = "reload"
	OutBannedUsers         = "banned_users"
	OutConfigValues        = "config_values"
	OutAdminActionFailed   = "admin_action_failed"
	OutIdentity            = "identity"
)

// Rejection reasons.
const (
	ReasonReadonly        = "readonly"
	ReasonUnauthenticated = "unauthenticated"
	ReasonBanned          = "banned"
	ReasonTimeout         = "timeout"
	ReasonDatabaseError   = "database_error"

	ReasonCommentsDisabled   = "comments_disabled"
	ReasonTooLong            = "too_long"
	ReasonAutomod            = "automod"
	ReasonAutomodUnsupported = "automod_unsupported"
	ReasonAutomodError       = "automod_error"

	ReasonInvalid       = "invalid"
	ReasonNotFound      = "not_found"
	ReasonExists        = "exists"
	ReasonTypeViolation = "type_violation"
	ReasonReservedKey   = "reserved_key"
	ReasonInternal      = "internal"
)

type PixelUpdatePayload struct {
	X      int           `json:"x"`
	Y      int           `json:"y"`
	Color  string        `json:"color"`
	Author *model.Author `json:"author"`
}

type RejectionPayload struct {
	Reason   string   `json:"reason"`
	WaitTime *int64   `json:"wait_time,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

type FullGridPayload struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Colors [][]string `json:"colors"`
}

type FullAuthorPayload struct {
	Authors [][]*model.Author `json:"authors"`
}

type TimeoutInfoPayload struct {
	Category    string    `json:"category"`
	RemainingMS int64     `json:"remaining_ms"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	EndsAt      time.Time `json:"ends_at"`
	CheckedAt   time.Time `json:"checked_at"`
}

type ConfigValuePayload struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type ConfigEntryPayload struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Public bool   `json:"is_public"`
}

type CommentPayload struct {
	X        int           `json:"x"`
	Y        int           `json:"y"`
	Comment  string        `json:"comment"`
	Author   *model.Author `json:"author"`
	PostedAt time.Time     `json:"posted_at"`
}

type AnnouncementPayload struct {
	Message string `json:"message"`
}

type AdminActionFailedPayload struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// WaitSeconds rounds a remaining cooldown up to whole seconds.
func WaitSeconds(remainingMS int64) *int64 {
	s := (remainingMS + 999) / 1000
	return &s
}
