// Package status provides a thread-safe status tracker for the tempo-deck agent.
// It is read by the HTTP handlers and the lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tempo-deck/internal/tempo"
)

// Config contains agent configuration for display.
type Config struct {
	Broker       string
	TopicPrefix  string
	HelperURL    string
	HTTPAddr     string
	MinRefreshMs int64
	RenderMs     int64
	PollMs       int64
	ButtonPin    int // 0 = disabled
}

// SurfaceInfo describes one registered surface.
type SurfaceInfo struct {
	ID   string
	Kind string
	Lang string
}

// RefreshInfo describes the outcome of the most recent refresh.
type RefreshInfo struct {
	At      time.Time
	Trigger string // startup, poll, manual, button
	OK      bool
	Error   string
}

// Snapshot is a point-in-time view of agent state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Tempo         tempo.Snapshot
	Surfaces      []SurfaceInfo
	LastRefresh   RefreshInfo
	Refreshes     int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the agent started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable agent state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Tempo:     tempo.EmptySnapshot(),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetTempo stores the latest cached day data.
func (t *Tracker) SetTempo(s tempo.Snapshot) {
	t.mu.Lock()
	t.snap.Tempo = s
	t.mu.Unlock()
}

// SetSurfaces replaces the list of registered surfaces.
func (t *Tracker) SetSurfaces(surfaces []SurfaceInfo) {
	t.mu.Lock()
	t.snap.Surfaces = surfaces
	t.mu.Unlock()
}

// RecordRefresh stores the outcome of a refresh and bumps the counter.
func (t *Tracker) RecordRefresh(info RefreshInfo) {
	t.mu.Lock()
	t.snap.LastRefresh = info
	t.snap.Refreshes++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the agent state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Tempo.Stats = s.Tempo.Stats.Clone()
	s.Surfaces = append([]SurfaceInfo(nil), s.Surfaces...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
