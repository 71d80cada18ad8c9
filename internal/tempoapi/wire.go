// Package tempoapi is the HTTP boundary between the agent and the local
// Tempo helper: the JSON documents served on /tempo and /stats, and the
// client that fetches them.
package tempoapi

import (
	"encoding/json"

	"github.com/sweeney/tempo-deck/internal/tempo"
)

// Payload is the document served on /tempo.
type Payload struct {
	Today     string       `json:"today"`
	Tomorrow  string       `json:"tomorrow"`
	Yesterday string       `json:"yesterday"`
	Stats     StatsPayload `json:"stats"`
	UpdatedAt int64        `json:"updated_at"`
	LastError string       `json:"last_error"`
}

// StatsPayload is the document served on /stats. Every field is optional;
// an empty object means the helper has no statistics.
type StatsPayload struct {
	Period       *string `json:"periode,omitempty"`
	BlueUsed     *int    `json:"bleu_used,omitempty"`
	WhiteUsed    *int    `json:"blanc_used,omitempty"`
	RedUsed      *int    `json:"rouge_used,omitempty"`
	BlueLeft     *int    `json:"bleu_left,omitempty"`
	WhiteLeft    *int    `json:"blanc_left,omitempty"`
	RedLeft      *int    `json:"rouge_left,omitempty"`
	LastIncluded *string `json:"last_included,omitempty"`
	LeapYear     *bool   `json:"bissextile,omitempty"`

	// present records the keys of a decoded document, null values included.
	present map[string]bool
}

// UnmarshalJSON decodes the document and remembers which keys it carried.
func (p *StatsPayload) UnmarshalJSON(data []byte) error {
	type plain StatsPayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*p = StatsPayload(v)
	p.present = make(map[string]bool, len(keys))
	for k := range keys {
		p.present[k] = true
	}
	return nil
}

// ToStats converts the flat wire form. A colour is kept when either of its
// keys was sent, even as null, so {"bleu_used":null} is not empty. Colours
// with neither key are left out.
func (p StatsPayload) ToStats() tempo.Stats {
	out := tempo.Stats{}
	add := func(k tempo.StatKey, usedKey, leftKey string, used, left *int) {
		if used != nil || left != nil || p.present[usedKey] || p.present[leftKey] {
			out[k] = tempo.DayCount{Used: used, Left: left}
		}
	}
	add(tempo.StatBlue, "bleu_used", "bleu_left", p.BlueUsed, p.BlueLeft)
	add(tempo.StatWhite, "blanc_used", "blanc_left", p.WhiteUsed, p.WhiteLeft)
	add(tempo.StatRed, "rouge_used", "rouge_left", p.RedUsed, p.RedLeft)
	return out
}

// ToReading converts the /tempo document into a raw reading.
func (p Payload) ToReading() tempo.Reading {
	return tempo.Reading{
		Today:     p.Today,
		Tomorrow:  p.Tomorrow,
		Yesterday: p.Yesterday,
		Stats:     p.Stats.ToStats(),
		LastError: p.LastError,
	}
}
