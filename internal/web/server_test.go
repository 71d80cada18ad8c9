package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/tempo-deck/internal/status"
	"github.com/sweeney/tempo-deck/internal/tempo"
)

func intp(v int) *int { return &v }

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:       60000,
		RenderMs:     5000,
		MinRefreshMs: 30000,
		Broker:       "tcp://192.168.1.200:1883",
		HelperURL:    "http://127.0.0.1:9123",
		HTTPAddr:     ":8080",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getBody(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetTempo(tempo.Snapshot{
		Today:     tempo.ColorRed,
		Tomorrow:  tempo.ColorWhite,
		Yesterday: tempo.ColorBlue,
		Stats:     tempo.Stats{tempo.StatRed: {Used: intp(4), Left: intp(18)}},
		FetchedAt: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	})
	tr.SetMQTTConnected(true)

	resp, body := getBody(t, ts.URL+"/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Today != "RED" {
		t.Errorf("Today: got %q, want RED", sj.Status.Today)
	}
	if *sj.Status.Stats["rouge"].Left != 18 {
		t.Errorf("rouge left: got %d, want 18", *sj.Status.Stats["rouge"].Left)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Config.HelperURL != "http://127.0.0.1:9123" {
		t.Errorf("Config.HelperURL: got %q", sj.Status.Config.HelperURL)
	}
}

func TestJSONUnknownBeforeFirstFetch(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := getBody(t, ts.URL+"/index.json")
	var sj status.StatusJSON
	json.Unmarshal([]byte(body), &sj)

	if sj.Status.Today != "UNKNOWN" {
		t.Errorf("Today before fetch: got %q, want UNKNOWN", sj.Status.Today)
	}
	if sj.Status.FetchedAt != "" {
		t.Errorf("FetchedAt before fetch: got %q", sj.Status.FetchedAt)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetTempo(tempo.Snapshot{
		Today:     tempo.ColorBlue,
		Tomorrow:  tempo.ColorUnknown,
		Yesterday: tempo.ColorWhite,
		Stats:     tempo.Stats{tempo.StatBlue: {Used: intp(120), Left: intp(180)}},
		LastError: "tomorrow failed: timeout",
	})
	tr.SetSurfaces([]status.SurfaceInfo{{ID: "ctx-1", Kind: "statsBlue", Lang: "en"}})
	tr.RecordRefresh(status.RefreshInfo{At: time.Now().Add(-3 * time.Minute), Trigger: "poll", OK: true})

	resp, body := getBody(t, ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{
		"Tempo Deck",
		`id="today" class="blue"`,
		"#005AC8",
		"120 / 180",
		"? / ?",
		"tomorrow failed: timeout",
		"ctx-1",
		"3 minutes ago",
		"(poll)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLNeverRefreshed(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := getBody(t, ts.URL+"/index.html")
	if !strings.Contains(body, "never") {
		t.Error("expected 'never' before the first refresh")
	}
	if !strings.Contains(body, "none registered") {
		t.Error("expected empty surface list")
	}
	if !strings.Contains(body, "disabled") {
		t.Error("expected button shown as disabled")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := getBody(t, ts.URL+"/metrics")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected default Go collectors in /metrics")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := getBody(t, ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	_, body1 := getBody(t, ts.URL+"/index.json")
	var sj1 status.StatusJSON
	json.Unmarshal([]byte(body1), &sj1)
	if sj1.Status.Refreshes != 0 {
		t.Error("expected no refreshes initially")
	}

	tr.RecordRefresh(status.RefreshInfo{At: time.Now(), Trigger: "manual", Error: "helper down"})

	_, body2 := getBody(t, ts.URL+"/index.json")
	var sj2 status.StatusJSON
	json.Unmarshal([]byte(body2), &sj2)
	if sj2.Status.Refreshes != 1 {
		t.Errorf("Refreshes: got %d, want 1", sj2.Status.Refreshes)
	}
	if sj2.Status.LastRefresh == nil || sj2.Status.LastRefresh.Error != "helper down" {
		t.Errorf("LastRefresh: got %+v", sj2.Status.LastRefresh)
	}
}
