// Package tempo contains the day-colour signal model and its cache.
// Time is always injected by the caller; nothing here reads the clock.
package tempo

import (
	"context"
	"time"
)

// Color is a normalised Tempo day colour.
type Color string

const (
	ColorBlue    Color = "BLUE"
	ColorWhite   Color = "WHITE"
	ColorRed     Color = "RED"
	ColorUnknown Color = "UNKNOWN"
)

// StatKey identifies a colour in the usage statistics.
type StatKey string

const (
	StatBlue  StatKey = "bleu"
	StatWhite StatKey = "blanc"
	StatRed   StatKey = "rouge"
)

// StatKeys lists every valid statistics key.
var StatKeys = []StatKey{StatBlue, StatWhite, StatRed}

// DayCount is the number of days of one colour used and left in the
// current period. Either side may be unknown.
type DayCount struct {
	Used *int
	Left *int
}

// Stats maps a colour key to its day counts.
type Stats map[StatKey]DayCount

// Clone returns a deep copy of s.
func (s Stats) Clone() Stats {
	if s == nil {
		return nil
	}
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = DayCount{Used: cloneInt(v.Used), Left: cloneInt(v.Left)}
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Snapshot is the cached view of the signal.
// It is a value type; Stats is deep-copied before leaving the cache.
type Snapshot struct {
	Today     Color
	Tomorrow  Color
	Yesterday Color
	Stats     Stats
	FetchedAt time.Time
	LastError string
}

// EmptySnapshot is the state before any fetch.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Today:     ColorUnknown,
		Tomorrow:  ColorUnknown,
		Yesterday: ColorUnknown,
		Stats:     Stats{},
	}
}

// Reading is a raw primary-source response, colours not yet normalised.
type Reading struct {
	Today     string
	Tomorrow  string
	Yesterday string
	Stats     Stats
	LastError string
}

// Source fetches the signal. Both calls may fail.
type Source interface {
	// FetchPrimary returns the colours and, optionally, the statistics.
	FetchPrimary(ctx context.Context) (Reading, error)

	// FetchSecondary returns the statistics only.
	FetchSecondary(ctx context.Context) (Stats, error)
}
