package model

import "regexp"

// EmptyColor is the color of a cell nobody has painted yet.
const EmptyColor = "#FFFFFF"

// colorPattern is the only accepted color format: a hash and six hex digits.
var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidColor reports whether s is a strict 6-hex-digit color.
func ValidColor(s string) bool {
	return colorPattern.MatchString(s)
}

// Author is the identity snapshot stored with a painted cell.
type Author struct {
	UserID    string  `json:"user_id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

// Cell is the authoritative value of one grid position.
//
// Version is assigned from a grid-wide monotonic counter on every write; it
// lets a failed optimistic write undo itself only if nobody has written the
// cell since.
type Cell struct {
	Color   string  `json:"color"`
	Author  *Author `json:"author"`
	Version uint64  `json:"-"`
}

// Size is a grid's dimensions.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether (x, y) is addressable.
func (s Size) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.Width && y < s.Height
}

// PixelRow is one durable pixels row joined with its author's details.
type PixelRow struct {
	X      int
	Y      int
	Color  string
	Author *Author
}
