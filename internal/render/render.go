// Package render derives the visual of a surface from the cached signal,
// the surface configuration and the wall clock.
//
// Render is a pure function: the same inputs always produce the same
// DrawSpec. Calendar arithmetic uses the location of the now argument.
package render

import (
	"fmt"
	"time"

	"github.com/sweeney/tempo-deck/internal/surface"
	"github.com/sweeney/tempo-deck/internal/tempo"
)

// MaxLines is the most text lines a surface can show.
const MaxLines = 3

// RGB is an opaque 24-bit colour.
type RGB struct {
	R, G, B uint8
}

// Hex returns the colour as #RRGGBB.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// DrawSpec is an abstract icon: a background, a text colour choice and up
// to MaxLines lines of centred text.
type DrawSpec struct {
	Background RGB
	InvertText bool // dark text on a light background
	Lines      []string
}

var (
	bgBlue    = RGB{0x00, 0x5A, 0xC8}
	bgWhite   = RGB{0xE6, 0xE6, 0xE6}
	bgRed     = RGB{0xC8, 0x00, 0x00}
	bgUnknown = RGB{0x55, 0x55, 0x55}
)

// Background returns the fill for a colour.
func Background(c tempo.Color) RGB {
	switch c {
	case tempo.ColorBlue:
		return bgBlue
	case tempo.ColorWhite:
		return bgWhite
	case tempo.ColorRed:
		return bgRed
	}
	return bgUnknown
}

// Render builds the DrawSpec for one surface.
func Render(kind surface.Kind, snap tempo.Snapshot, cfg surface.Config, now time.Time) DrawSpec {
	if kind.IsStats() {
		return renderStats(kind, snap.Stats, cfg.Lang)
	}
	return renderDay(kind, snap, cfg, now)
}

func renderStats(kind surface.Kind, stats tempo.Stats, lang surface.Lang) DrawSpec {
	key, color := tempo.StatBlue, tempo.ColorBlue
	switch kind {
	case surface.KindStatsWhite:
		key, color = tempo.StatWhite, tempo.ColorWhite
	case surface.KindStatsRed:
		key, color = tempo.StatRed, tempo.ColorRed
	}

	count := stats[key]
	p := phrasesFor(lang)
	return DrawSpec{
		Background: Background(color),
		InvertText: color == tempo.ColorWhite,
		Lines: []string{
			ColorName(color, lang),
			p.left + " " + countOrUnknown(count.Left),
			p.used + " " + countOrUnknown(count.Used),
		},
	}
}

func countOrUnknown(n *int) string {
	if n == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *n)
}

func renderDay(kind surface.Kind, snap tempo.Snapshot, cfg surface.Config, now time.Time) DrawSpec {
	today := midnight(now)
	target := today.AddDate(0, 0, kind.DayOffset())

	color := snap.Today
	switch kind {
	case surface.KindTomorrow:
		color = snap.Tomorrow
	case surface.KindYesterday:
		color = snap.Yesterday
	}

	lines := make([]string, 0, MaxLines)
	if cfg.ShowLabel {
		lines = append(lines, Label(kind, cfg.Lang))
	}
	if cfg.ShowDate {
		lines = append(lines, FormatDate(target, cfg.DateFormat))
	}

	switch {
	case cfg.ShowTimer:
		base := today
		if cfg.TimerMode == surface.TimerEndOfTargetDay {
			base = target
		}
		lines = append(lines, Countdown(base.Add(24*time.Hour), now, cfg.Lang))
	case cfg.ShowColorText && (cfg.ShowDate || len(lines) < 2):
		lines = append(lines, ColorName(color, cfg.Lang))
	}

	if len(lines) > MaxLines {
		lines = lines[:MaxLines]
	}

	return DrawSpec{
		Background: Background(color),
		InvertText: color == tempo.ColorWhite,
		Lines:      lines,
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatDate renders d as DD/MM/YY or MM/DD/YY.
func FormatDate(d time.Time, format surface.DateFormat) string {
	if format == surface.DateMMDDYY {
		return d.Format("01/02/06")
	}
	return d.Format("02/01/06")
}

// Countdown renders the whole minutes left until deadline as a localised
// "HH:MM" string. Past deadlines show 00:00.
func Countdown(deadline, now time.Time, lang surface.Lang) string {
	remaining := deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	total := int(remaining / time.Minute)
	return fmt.Sprintf("%s %02d:%02d", phrasesFor(lang).left, total/60, total%60)
}
