package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tempo-deck/internal/tempo"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                  `json:"event,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	Today         string                  `json:"today"`
	Tomorrow      string                  `json:"tomorrow"`
	Yesterday     string                  `json:"yesterday"`
	Stats         map[string]DayCountJSON `json:"stats"`
	FetchedAt     string                  `json:"fetched_at,omitempty"`
	LastError     string                  `json:"last_error,omitempty"`
	LastRefresh   *RefreshJSON            `json:"last_refresh,omitempty"`
	Refreshes     int                     `json:"refreshes"`
	Surfaces      []SurfaceJSON           `json:"surfaces"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	StartTime     string                  `json:"start_time"`
	Timestamp     string                  `json:"timestamp"`
	MQTT          MQTTStatus              `json:"mqtt"`
	Config        ConfigJSON              `json:"config"`
}

// DayCountJSON is one colour's counters; null means unknown.
type DayCountJSON struct {
	Used *int `json:"used"`
	Left *int `json:"left"`
}

// RefreshJSON describes the last refresh.
type RefreshJSON struct {
	At      string `json:"at"`
	Trigger string `json:"trigger"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// SurfaceJSON is one registered surface.
type SurfaceJSON struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Lang string `json:"lang"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of agent config.
type ConfigJSON struct {
	Broker       string `json:"broker"`
	TopicPrefix  string `json:"topic_prefix"`
	HelperURL    string `json:"helper_url"`
	HTTPAddr     string `json:"http_addr"`
	MinRefreshMs int64  `json:"min_refresh_ms"`
	RenderMs     int64  `json:"render_ms"`
	PollMs       int64  `json:"poll_ms"`
	ButtonPin    int    `json:"button_pin,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Today:         string(snap.Tempo.Today),
		Tomorrow:      string(snap.Tempo.Tomorrow),
		Yesterday:     string(snap.Tempo.Yesterday),
		Stats:         make(map[string]DayCountJSON, len(snap.Tempo.Stats)),
		LastError:     snap.Tempo.LastError,
		Refreshes:     snap.Refreshes,
		Surfaces:      make([]SurfaceJSON, 0, len(snap.Surfaces)),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Broker:       snap.Config.Broker,
			TopicPrefix:  snap.Config.TopicPrefix,
			HelperURL:    snap.Config.HelperURL,
			HTTPAddr:     snap.Config.HTTPAddr,
			MinRefreshMs: snap.Config.MinRefreshMs,
			RenderMs:     snap.Config.RenderMs,
			PollMs:       snap.Config.PollMs,
			ButtonPin:    snap.Config.ButtonPin,
		},
	}
	for _, c := range []*string{&inner.Today, &inner.Tomorrow, &inner.Yesterday} {
		if *c == "" {
			*c = string(tempo.ColorUnknown)
		}
	}
	for k, v := range snap.Tempo.Stats {
		inner.Stats[string(k)] = DayCountJSON{Used: v.Used, Left: v.Left}
	}
	if !snap.Tempo.FetchedAt.IsZero() {
		inner.FetchedAt = snap.Tempo.FetchedAt.UTC().Format(time.RFC3339)
	}
	if !snap.LastRefresh.At.IsZero() {
		inner.LastRefresh = &RefreshJSON{
			At:      snap.LastRefresh.At.UTC().Format(time.RFC3339),
			Trigger: snap.LastRefresh.Trigger,
			OK:      snap.LastRefresh.OK,
			Error:   snap.LastRefresh.Error,
		}
	}
	for _, s := range snap.Surfaces {
		inner.Surfaces = append(inner.Surfaces, SurfaceJSON{ID: s.ID, Kind: s.Kind, Lang: s.Lang})
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
