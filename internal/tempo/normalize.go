package tempo

import "strings"

// Normalize maps a source colour string to a Color. Matching is by
// case-insensitive substring in French or English; anything else is
// ColorUnknown.
func Normalize(raw string) Color {
	v := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case v == "":
		return ColorUnknown
	case strings.Contains(v, "BLEU"), strings.Contains(v, "BLUE"):
		return ColorBlue
	case strings.Contains(v, "BLANC"), strings.Contains(v, "WHITE"):
		return ColorWhite
	case strings.Contains(v, "ROUGE"), strings.Contains(v, "RED"):
		return ColorRed
	}
	return ColorUnknown
}

// ColorFromCode maps the upstream numeric day code (1 blue, 2 white,
// 3 red) to a Color.
func ColorFromCode(code int) Color {
	switch code {
	case 1:
		return ColorBlue
	case 2:
		return ColorWhite
	case 3:
		return ColorRed
	}
	return ColorUnknown
}
