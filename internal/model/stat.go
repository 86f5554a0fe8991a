package model

import "slices"

// StatKind classifies a counter. A key's kind never changes once assigned.
type StatKind int

const (
	// Managed stats are durable and maintained by the server only.
	Managed StatKind = iota
	// Manual stats are durable and may be created, edited and deleted by the admin.
	Manual
	// Virtual stats live in memory only and are never written durably.
	Virtual
)

func (k StatKind) String() string {
	switch k {
	case Managed:
		return "managed"
	case Manual:
		return "manual"
	case Virtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// Stat is a single counter.
type Stat struct {
	Key   string   `json:"key"`
	Value int64    `json:"value"`
	Kind  StatKind `json:"-"`
}

// Well-known stat keys.
const (
	StatTotalPixelsPlaced   = "total_pixels_placed"
	StatTotalCommentsPosted = "total_comments_posted"
	StatConnectedUsers      = "connected_users"
)

// ServerCounters are the Managed stats the server itself increments. They
// exist from boot on, so no admin can claim their keys as Manual.
var ServerCounters = []string{StatTotalPixelsPlaced, StatTotalCommentsPosted}

// IsServerCounter reports whether key is one of ServerCounters.
func IsServerCounter(key string) bool {
	return slices.Contains(ServerCounters, key)
}
