package render

import (
	"github.com/sweeney/tempo-deck/internal/surface"
	"github.com/sweeney/tempo-deck/internal/tempo"
)

type phrases struct {
	left   string
	used   string
	labels map[surface.Kind]string
	colors map[tempo.Color]string
}

var french = phrases{
	left: "RESTE",
	used: "PASSÉ",
	labels: map[surface.Kind]string{
		surface.KindToday:     "AUJ",
		surface.KindTomorrow:  "DEMAIN",
		surface.KindYesterday: "HIER",
	},
	colors: map[tempo.Color]string{
		tempo.ColorBlue:  "BLEU",
		tempo.ColorWhite: "BLANC",
		tempo.ColorRed:   "ROUGE",
	},
}

var english = phrases{
	left: "LEFT",
	used: "USED",
	labels: map[surface.Kind]string{
		surface.KindToday:     "TODAY",
		surface.KindTomorrow:  "TOMORROW",
		surface.KindYesterday: "YESTERDAY",
	},
	colors: map[tempo.Color]string{
		tempo.ColorBlue:  "BLUE",
		tempo.ColorWhite: "WHITE",
		tempo.ColorRed:   "RED",
	},
}

// Anything other than English renders in French.
func phrasesFor(lang surface.Lang) phrases {
	if lang == surface.LangEN {
		return english
	}
	return french
}

// Label returns the short day label for a day kind, or "" for stats kinds.
func Label(kind surface.Kind, lang surface.Lang) string {
	return phrasesFor(lang).labels[kind]
}

// ColorName returns the localised colour name, N/A when unknown.
func ColorName(c tempo.Color, lang surface.Lang) string {
	if name, ok := phrasesFor(lang).colors[c]; ok {
		return name
	}
	return "N/A"
}
