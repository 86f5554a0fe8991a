// Package model defines the data structures used throughout the application.
package model

import "time"

// Identity is a verified participant as handed to us by the login flow.
//
// SubjectID is the identity provider's stable account id (a Discord snowflake
// for the default provider). It is the only field used for authorization:
// bans, cooldowns and the admin gate all key on it. DisplayName and AvatarURL
// are cosmetic and are only ever snapshotted into records.
type Identity struct {
	SubjectID   string  `json:"user_id"`
	DisplayName string  `json:"name"`
	AvatarURL   *string `json:"avatar_url"`
}

// Complete reports whether the identity carries everything a mutation needs.
// A nil receiver is an anonymous observer.
func (i *Identity) Complete() bool {
	return i != nil && i.SubjectID != "" && i.DisplayName != ""
}

// Author returns the snapshot stored alongside a cell this identity painted.
func (i *Identity) Author() *Author {
	if i == nil {
		return nil
	}
	a := Author{UserID: i.SubjectID, Name: i.DisplayName}
	if i.AvatarURL != nil {
		url := *i.AvatarURL
		a.AvatarURL = &url
	}
	return &a
}

// UserDetails is the durable display profile row (user_details table).
// It is upserted on every login and on every accepted pixel so that the
// author join on grid hydration always has a name to show.
type UserDetails struct {
	UserID    string    `json:"user_id"    db:"user_id"`
	Username  string    `json:"username"   db:"username"`
	AvatarURL *string   `json:"avatar_url" db:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
