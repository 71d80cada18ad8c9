// Package surface keeps the registry of display surfaces and their
// rendering configuration.
package surface

import "strings"

// Kind is what a surface displays. It is fixed when the surface appears.
type Kind string

const (
	KindToday      Kind = "today"
	KindTomorrow   Kind = "tomorrow"
	KindYesterday  Kind = "yesterday"
	KindStatsBlue  Kind = "statsBlue"
	KindStatsWhite Kind = "statsWhite"
	KindStatsRed   Kind = "statsRed"
)

// ActionPrefix is the host action identifier namespace.
const ActionPrefix = "com.mynewit.edf-tempo.local.v2."

var actionKinds = map[string]Kind{
	"today":       KindToday,
	"tomorrow":    KindTomorrow,
	"yesterday":   KindYesterday,
	"stats.blue":  KindStatsBlue,
	"stats.white": KindStatsWhite,
	"stats.red":   KindStatsRed,
}

// KindForAction resolves a host action identifier. Unknown actions fall
// back to KindToday, matching how the host treats unrecognised day keys.
func KindForAction(action string) Kind {
	if k, ok := actionKinds[strings.TrimPrefix(action, ActionPrefix)]; ok {
		return k
	}
	return KindToday
}

// Action returns the host action identifier for k.
func (k Kind) Action() string {
	for suffix, kind := range actionKinds {
		if kind == k {
			return ActionPrefix + suffix
		}
	}
	return ""
}

// IsStats reports whether k is one of the statistics kinds.
func (k Kind) IsStats() bool {
	return k == KindStatsBlue || k == KindStatsWhite || k == KindStatsRed
}

// DayOffset is the calendar offset of a day kind relative to today.
func (k Kind) DayOffset() int {
	switch k {
	case KindTomorrow:
		return 1
	case KindYesterday:
		return -1
	}
	return 0
}
