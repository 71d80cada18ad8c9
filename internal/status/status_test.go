package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/tempo-deck/internal/tempo"
)

func intp(v int) *int { return &v }

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 60000, MinRefreshMs: 30000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PollMs != 60000 {
		t.Errorf("Config.PollMs: got %d, want 60000", snap.Config.PollMs)
	}
	if snap.Tempo.Today != tempo.ColorUnknown {
		t.Errorf("Today: got %q, want UNKNOWN", snap.Tempo.Today)
	}
	if snap.Refreshes != 0 {
		t.Error("expected no refreshes initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestSetTempoAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	fetched := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	tr.SetTempo(tempo.Snapshot{
		Today:     tempo.ColorRed,
		Tomorrow:  tempo.ColorWhite,
		Yesterday: tempo.ColorBlue,
		Stats:     tempo.Stats{tempo.StatRed: {Used: intp(4), Left: intp(18)}},
		FetchedAt: fetched,
	})

	snap := tr.Snapshot()
	if snap.Tempo.Today != tempo.ColorRed {
		t.Errorf("Today: got %q, want RED", snap.Tempo.Today)
	}
	if *snap.Tempo.Stats[tempo.StatRed].Left != 18 {
		t.Errorf("red left: got %d, want 18", *snap.Tempo.Stats[tempo.StatRed].Left)
	}
	if !snap.Tempo.FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt: got %v", snap.Tempo.FetchedAt)
	}
}

func TestRecordRefresh(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	tr.RecordRefresh(RefreshInfo{At: at, Trigger: "startup", OK: true})
	tr.RecordRefresh(RefreshInfo{At: at.Add(time.Minute), Trigger: "manual", Error: "helper down"})

	snap := tr.Snapshot()
	if snap.Refreshes != 2 {
		t.Errorf("Refreshes: got %d, want 2", snap.Refreshes)
	}
	if snap.LastRefresh.Trigger != "manual" || snap.LastRefresh.OK {
		t.Errorf("LastRefresh: got %+v", snap.LastRefresh)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetTempo(tempo.Snapshot{Today: tempo.ColorBlue, Stats: tempo.Stats{tempo.StatBlue: {Used: intp(1)}}})
	tr.SetSurfaces([]SurfaceInfo{{ID: "a", Kind: "today"}})

	snap1 := tr.Snapshot()
	snap1.Surfaces[0].ID = "mutated"
	snap1.Tempo.Stats[tempo.StatWhite] = tempo.DayCount{}

	tr.SetTempo(tempo.Snapshot{Today: tempo.ColorRed})

	if snap1.Tempo.Today != tempo.ColorBlue {
		t.Error("snapshot should be a copy; Today was modified")
	}
	snap2 := tr.Snapshot()
	if snap2.Surfaces[0].ID != "a" {
		t.Error("mutating a snapshot should not touch the tracker")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Tempo: tempo.Snapshot{
			Today:     tempo.ColorBlue,
			Tomorrow:  tempo.ColorRed,
			Yesterday: tempo.ColorUnknown,
			Stats:     tempo.Stats{tempo.StatBlue: {Used: intp(120), Left: intp(180)}, tempo.StatRed: {Left: intp(22)}},
			FetchedAt: start.Add(10 * time.Minute),
			LastError: "yesterday failed",
		},
		Surfaces:      []SurfaceInfo{{ID: "ctx-1", Kind: "today", Lang: "fr"}},
		LastRefresh:   RefreshInfo{At: start.Add(10 * time.Minute), Trigger: "poll", OK: true},
		Refreshes:     3,
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{PollMs: 60000, RenderMs: 5000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Today != "BLUE" || s.Tomorrow != "RED" || s.Yesterday != "UNKNOWN" {
		t.Errorf("colours: got %s/%s/%s", s.Today, s.Tomorrow, s.Yesterday)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if s.FetchedAt != "2026-01-01T00:10:00Z" {
		t.Errorf("FetchedAt: got %q", s.FetchedAt)
	}
	if s.LastError != "yesterday failed" {
		t.Errorf("LastError: got %q", s.LastError)
	}
	if s.Stats["bleu"].Used == nil || *s.Stats["bleu"].Used != 120 {
		t.Errorf("bleu used: got %+v", s.Stats["bleu"])
	}
	if s.Stats["rouge"].Used != nil {
		t.Error("rouge used should be null")
	}
	if _, ok := s.Stats["blanc"]; ok {
		t.Error("blanc should be absent")
	}
	if s.LastRefresh == nil || s.LastRefresh.Trigger != "poll" || !s.LastRefresh.OK {
		t.Errorf("LastRefresh: got %+v", s.LastRefresh)
	}
	if len(s.Surfaces) != 1 || s.Surfaces[0].ID != "ctx-1" {
		t.Errorf("Surfaces: got %+v", s.Surfaces)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Config.PollMs != 60000 {
		t.Errorf("Config.PollMs: got %d", s.Config.PollMs)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONBeforeFirstFetch(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatJSON(snap)

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	if status["today"] != "UNKNOWN" {
		t.Errorf("today: got %v, want UNKNOWN", status["today"])
	}
	for _, key := range []string{"fetched_at", "last_refresh", "last_error"} {
		if _, exists := status[key]; exists {
			t.Errorf("%s should be omitted before the first fetch", key)
		}
	}
	if surfaces, ok := status["surfaces"].([]interface{}); !ok || len(surfaces) != 0 {
		t.Errorf("surfaces should be an empty array, got %v", status["surfaces"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Tempo:     tempo.Snapshot{Today: tempo.ColorWhite},
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.Today != "WHITE" {
		t.Errorf("Today: got %q, want WHITE", parsed.Status.Today)
	}
	if parsed.Status.UptimeSeconds != 1800 {
		t.Errorf("UptimeSeconds: got %d, want 1800", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.SetTempo(tempo.Snapshot{Today: tempo.ColorBlue, Stats: tempo.Stats{tempo.StatBlue: {Used: intp(i)}}})
			tr.SetSurfaces([]SurfaceInfo{{ID: "a"}})
			tr.RecordRefresh(RefreshInfo{At: time.Now(), OK: true})
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
