package model

// Visibility controls who may read a config value over the socket.
type Visibility int

const (
	Private Visibility = iota
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "public"
	}
	return "private"
}

// VisibilityOf converts the durable boolean column.
func VisibilityOf(public bool) Visibility {
	if public {
		return Public
	}
	return Private
}

// ConfigEntry is one live configuration key. Value holds the decoded JSON
// scalar or object (float64, bool, string, []any, map[string]any or nil).
type ConfigEntry struct {
	Key        string     `json:"key"`
	Value      any        `json:"value"`
	Visibility Visibility `json:"-"`
}

// Well-known configuration keys.
const (
	KeyGridWidth        = "grid_width"
	KeyGridHeight       = "grid_height"
	KeyReadonly         = "readonly"
	KeyPixelTimeoutMS   = "pixel_timeout_ms"
	KeyCommentTimeoutMS = "comment_timeout_ms"
	KeyCommentMaxLength = "comment_max_length"
	KeyCommentsEnabled  = "comments_enabled"
	KeyAutomodEnabled   = "automod_enabled"
	KeyAutomodStrict    = "automod_strict"
)

// BanEntry is one denylisted identity. UsernameAtBan is advisory only.
type BanEntry struct {
	UserID        string  `json:"user_id"`
	UsernameAtBan *string `json:"username_at_ban"`
}
