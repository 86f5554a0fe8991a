// Package protocol defines every message that crosses the socket.
//
// Each frame is an envelope {"type": ..., "payload": ...}. The type selects
// one payload struct below; the payload is decoded into it and checked with
// go-playground/validator before any handler sees it. A frame that fails
// either step never reaches business logic.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/pixelboard/internal/model"
)

// Inbound message names.
const (
	InPixelUpdate          = "pixel_update"
	InCheckTimeout         = "check_timeout"
	InCheckReadonly        = "check_readonly"
	InGetPublicConfigValue = "get_public_config_value"
	InSubmitComment        = "submit_comment"
	InJoinStats            = "join_stats"

	InAdminBanUser          = "admin_ban_user"
	InAdminUnbanUser        = "admin_unban_user"
	InAdminSetConfigValue   = "admin_set_config_value"
	InAdminSetGridSize      = "admin_set_grid_size"
	InAdminSetReadonly      = "admin_set_readonly"
	InAdminRefreshGrid      = "admin_refresh_grid"
	InAdminReloadBans       = "admin_reload_bans"
	InAdminGetBannedUsers   = "admin_get_banned_users"
	InAdminGetConfig        = "admin_get_config"
	InAdminAnnounce         = "admin_announce"
	InAdminForceReload      = "admin_force_reload"
	InAdminSetManualStat    = "admin_set_manual_stat"
	InAdminDeleteManualStat = "admin_delete_manual_stat"
)

// MaxGridDimension bounds each side of the grid.
const MaxGridDimension = 2000

// Envelope is an undecoded inbound frame.
type Envelope struct {
	Type    string          `json:"type" validate:"required,max=64"`
	Payload json.RawMessage `json:"payload"`
}

type PixelUpdate struct {
	X     *int   `json:"x"     validate:"required,min=0"`
	Y     *int   `json:"y"     validate:"required,min=0"`
	Color string `json:"color" validate:"required,hexcolor6"`
}

type SubmitComment struct {
	X       *int   `json:"x"       validate:"required,min=0"`
	Y       *int   `json:"y"       validate:"required,min=0"`
	Comment string `json:"comment" validate:"required,max=4096"`
}

type ConfigKey struct {
	Key string `json:"key" validate:"required,max=64"`
}

type SubjectRef struct {
	SubjectID string `json:"subject_id" validate:"required,max=128"`
}

type SetConfigValue struct {
	Key      string `json:"key"       validate:"required,max=64"`
	Value    any    `json:"value"`
	IsPublic bool   `json:"is_public"`
}

// GridSize carries no range tags: an out-of-range request still reaches the
// admin service, which answers it with the current dimensions.
type GridSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Announce struct {
	Message string `json:"message" validate:"required,max=500"`
}

type ManualStat struct {
	Key   string `json:"key"   validate:"required,max=64"`
	Value int64  `json:"value"`
}

type StatKey struct {
	Key string `json:"key" validate:"required,max=64"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("hexcolor6", func(fl validator.FieldLevel) bool {
		return model.ValidColor(fl.Field().String())
	})
	return v
}

// ErrMalformed marks a frame that could not be decoded or validated.
var ErrMalformed = errors.New("malformed message")

// ParseEnvelope decodes the outer frame.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, nil
}

// Decode unmarshals and validates a payload into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// DecodeBool reads a bare boolean payload such as admin_set_readonly's.
func DecodeBool(raw json.RawMessage) (bool, error) {
	var b *bool
	if err := json.Unmarshal(raw, &b); err != nil || b == nil {
		return false, fmt.Errorf("%w: expected a boolean payload", ErrMalformed)
	}
	return *b, nil
}
