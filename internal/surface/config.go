package surface

import "encoding/json"

// Lang selects the display language.
type Lang string

const (
	LangFR Lang = "fr"
	LangEN Lang = "en"
)

// DateFormat selects the date layout.
type DateFormat string

const (
	DateDDMMYY DateFormat = "ddmmyy"
	DateMMDDYY DateFormat = "mmddyy"
)

// TimerMode selects the countdown deadline.
type TimerMode string

const (
	TimerEndOfDay       TimerMode = "endOfDay"
	TimerEndOfTargetDay TimerMode = "endOfTargetDay"
)

// Config is the rendering configuration of one surface. The JSON field
// names are the ones used by the settings editor.
type Config struct {
	Lang          Lang       `json:"lang"`
	ShowLabel     bool       `json:"showLabel"`
	ShowDate      bool       `json:"showDate"`
	ShowColorText bool       `json:"showColorText"`
	ShowTimer     bool       `json:"showTimer"`
	DateFormat    DateFormat `json:"dateFormat"`
	TimerMode     TimerMode  `json:"timerMode"`
}

// DefaultConfig returns the configuration used for missing fields.
func DefaultConfig() Config {
	return Config{
		Lang:          LangFR,
		ShowLabel:     true,
		ShowDate:      true,
		ShowColorText: true,
		ShowTimer:     false,
		DateFormat:    DateDDMMYY,
		TimerMode:     TimerEndOfDay,
	}
}

// MergeConfig overlays the fields present in raw onto the defaults.
// It never fails: unknown fields are ignored, fields with the wrong type or
// an unsupported value keep their default, and a payload that is not a JSON
// object yields the defaults.
func MergeConfig(raw json.RawMessage) Config {
	cfg := DefaultConfig()
	if len(raw) == 0 {
		return cfg
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return cfg
	}

	switch l := Lang(stringField(fields, "lang")); l {
	case LangFR, LangEN:
		cfg.Lang = l
	}
	switch f := DateFormat(stringField(fields, "dateFormat")); f {
	case DateDDMMYY, DateMMDDYY:
		cfg.DateFormat = f
	}
	switch m := TimerMode(stringField(fields, "timerMode")); m {
	case TimerEndOfDay, TimerEndOfTargetDay:
		cfg.TimerMode = m
	}

	mergeBool(fields, "showLabel", &cfg.ShowLabel)
	mergeBool(fields, "showDate", &cfg.ShowDate)
	mergeBool(fields, "showColorText", &cfg.ShowColorText)
	mergeBool(fields, "showTimer", &cfg.ShowTimer)

	return cfg
}

func mergeBool(fields map[string]json.RawMessage, key string, dst *bool) {
	v, ok := fields[key]
	if !ok {
		return
	}
	var b *bool
	if err := json.Unmarshal(v, &b); err == nil && b != nil {
		*dst = *b
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if v, ok := fields[key]; ok {
		_ = json.Unmarshal(v, &s)
	}
	return s
}
