package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweeney/tempo-deck/internal/agent"
	"github.com/sweeney/tempo-deck/internal/gpio"
	"github.com/sweeney/tempo-deck/internal/helper"
	"github.com/sweeney/tempo-deck/internal/mqtt"
	"github.com/sweeney/tempo-deck/internal/protocol"
	"github.com/sweeney/tempo-deck/internal/render"
	"github.com/sweeney/tempo-deck/internal/status"
	"github.com/sweeney/tempo-deck/internal/surface"
	"github.com/sweeney/tempo-deck/internal/tempo"
	"github.com/sweeney/tempo-deck/internal/tempoapi"
	"github.com/sweeney/tempo-deck/internal/web"
)

// upstreamStub stands in for the public calendar services behind the helper.
type upstreamStub struct {
	mu              sync.Mutex
	today, tomorrow tempo.Color
	yesterday       tempo.Color
	stats           tempoapi.StatsPayload
}

func (u *upstreamStub) set(yesterday, today, tomorrow tempo.Color) {
	u.mu.Lock()
	u.yesterday, u.today, u.tomorrow = yesterday, today, tomorrow
	u.mu.Unlock()
}

func (u *upstreamStub) Days(ctx context.Context) (tempo.Color, tempo.Color, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.today, u.tomorrow, nil
}

func (u *upstreamStub) EDFDays(ctx context.Context, now time.Time) (tempo.Color, tempo.Color, error) {
	return tempo.ColorUnknown, tempo.ColorUnknown, errors.New("not used")
}

func (u *upstreamStub) Day(ctx context.Context, day time.Time) (tempo.Color, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.yesterday, nil
}

func (u *upstreamStub) Stats(ctx context.Context) (tempoapi.StatsPayload, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats, nil
}

func intp(v int) *int { return &v }

// deck wires a helper server, an agent and a fake host bus together.
type deck struct {
	t        *testing.T
	upstream *upstreamStub
	state    *helper.State
	bus      *mqtt.FakeBus
	tracker  *status.Tracker
	inbound  chan protocol.Inbound
	button   chan struct{}
	down     atomic.Bool
	cancel   context.CancelFunc
	done     chan error
}

func newDeck(t *testing.T) *deck {
	t.Helper()
	d := &deck{
		t: t,
		upstream: &upstreamStub{
			yesterday: tempo.ColorWhite, today: tempo.ColorBlue, tomorrow: tempo.ColorRed,
			stats: tempoapi.StatsPayload{RedUsed: intp(4), RedLeft: intp(18)},
		},
		state:   helper.NewState(),
		bus:     mqtt.NewFakeBus(),
		tracker: status.NewTracker(time.Now(), status.Config{}),
		inbound: make(chan protocol.Inbound),
		button:  make(chan struct{}),
		done:    make(chan error, 1),
	}
	d.state.Refresh(context.Background(), d.upstream, time.Now())

	h := helper.NewServer(helper.DefaultAddr, d.state).Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.down.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	a := agent.New(agent.Options{
		Bus:           d.bus,
		Source:        tempoapi.NewClient(ts.URL, time.Second),
		Cache:         tempo.NewCache(time.Hour),
		Tracker:       d.tracker,
		Connection:    d.bus,
		ButtonSurface: "today",
	})
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() {
		d.done <- a.Run(ctx, agent.Inputs{Inbound: d.inbound, Button: d.button})
	}()
	t.Cleanup(d.stop)

	d.waitFor("startup refresh", func() bool { return d.tracker.Snapshot().Refreshes == 1 })
	return d
}

func (d *deck) stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.cancel = nil
	if err := <-d.done; err != nil {
		d.t.Errorf("agent: %v", err)
	}
}

func (d *deck) waitFor(what string, cond func() bool) {
	d.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			d.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *deck) appear(id string, kind surface.Kind, settings string) {
	var raw json.RawMessage
	if settings != "" {
		raw = json.RawMessage(settings)
	}
	d.inbound <- protocol.SurfaceAppeared{ID: id, Kind: kind, Settings: raw}
	d.waitFor("visual for "+id, func() bool { return d.lastVisual(id) != nil })
}

func (d *deck) lastVisual(id string) *render.DrawSpec {
	var spec *render.DrawSpec
	for _, m := range d.bus.SentTo(id) {
		if v, ok := m.(protocol.SetVisual); ok {
			s := v.Spec
			spec = &s
		}
	}
	return spec
}

func (d *deck) hasAck(id string, want protocol.Outbound) bool {
	for _, m := range d.bus.SentTo(id) {
		if m == want {
			return true
		}
	}
	return false
}

func lastLine(spec *render.DrawSpec) string {
	if spec == nil || len(spec.Lines) == 0 {
		return ""
	}
	return spec.Lines[len(spec.Lines)-1]
}

// TestIntegrationFullFlow runs helper → agent → host with three surfaces.
func TestIntegrationFullFlow(t *testing.T) {
	d := newDeck(t)

	d.appear("today", surface.KindToday, "")
	d.appear("tomorrow", surface.KindTomorrow, `{"lang":"en"}`)
	d.appear("red", surface.KindStatsRed, "")

	if got := d.lastVisual("today"); got.Background != render.Background(tempo.ColorBlue) || lastLine(got) != "BLEU" {
		t.Errorf("today: got %+v", got)
	}
	if got := d.lastVisual("tomorrow"); got.Background != render.Background(tempo.ColorRed) || lastLine(got) != "RED" {
		t.Errorf("tomorrow: got %+v", got)
	}
	red := d.lastVisual("red")
	if red.Lines[1] != "RESTE 18" || red.Lines[2] != "PASSÉ 4" {
		t.Errorf("red stats: got %v", red.Lines)
	}

	for _, id := range []string{"today", "tomorrow", "red"} {
		sent := d.bus.SentTo(id)
		if _, ok := sent[0].(protocol.RequestSettings); !ok {
			t.Errorf("%s: first message should request settings, got %T", id, sent[0])
		}
	}

	if got := len(d.tracker.Snapshot().Surfaces); got != 3 {
		t.Errorf("tracked surfaces: got %d, want 3", got)
	}
}

// TestIntegrationManualRefreshAcksAfterNewVisual checks that the success
// mark follows a visual carrying the new colours.
func TestIntegrationManualRefreshAcksAfterNewVisual(t *testing.T) {
	d := newDeck(t)
	d.appear("today", surface.KindToday, `{"lang":"en"}`)

	d.upstream.set(tempo.ColorBlue, tempo.ColorWhite, tempo.ColorWhite)
	d.state.Refresh(context.Background(), d.upstream, time.Now())

	d.inbound <- protocol.ManualTrigger{ID: "today"}
	d.waitFor("ack", func() bool { return d.hasAck("today", protocol.AckSuccess{ID: "today"}) })

	sent := d.bus.SentTo("today")
	var before protocol.SetVisual
	for _, m := range sent {
		if _, ok := m.(protocol.AckSuccess); ok {
			break
		}
		if v, ok := m.(protocol.SetVisual); ok {
			before = v
		}
	}
	if lastLine(&before.Spec) != "WHITE" || !before.Spec.InvertText {
		t.Errorf("visual before ack: got %+v", before.Spec)
	}
}

// TestIntegrationHelperOutageKeepsLastColours checks stale-while-failing.
func TestIntegrationHelperOutageKeepsLastColours(t *testing.T) {
	d := newDeck(t)
	d.appear("today", surface.KindToday, "")

	d.down.Store(true)
	d.inbound <- protocol.ManualTrigger{ID: "today"}
	d.waitFor("alert", func() bool { return d.hasAck("today", protocol.AckFailure{ID: "today"}) })

	if got := lastLine(d.lastVisual("today")); got != "BLEU" {
		t.Errorf("today during outage: got %q, want BLEU", got)
	}
	snap := d.tracker.Snapshot()
	if snap.LastRefresh.OK || !strings.Contains(snap.LastRefresh.Error, "HTTP 502") {
		t.Errorf("last refresh: got %+v", snap.LastRefresh)
	}
	if snap.Tempo.Today != tempo.ColorBlue {
		t.Errorf("tracker today: got %s, want BLUE", snap.Tempo.Today)
	}

	d.down.Store(false)
	d.button <- struct{}{}
	d.waitFor("recovery ack", func() bool { return d.hasAck("today", protocol.AckSuccess{ID: "today"}) })
}

// TestIntegrationSettingsPush follows an editor push through the bus.
func TestIntegrationSettingsPush(t *testing.T) {
	d := newDeck(t)
	d.appear("today", surface.KindToday, "")

	d.inbound <- protocol.SettingsPush{ID: "today", Settings: json.RawMessage(`{"lang":"en","showDate":false}`)}
	d.waitFor("english visual", func() bool { return lastLine(d.lastVisual("today")) == "BLUE" })

	var pushed *protocol.PushSettings
	for _, m := range d.bus.SentTo("today") {
		if p, ok := m.(protocol.PushSettings); ok {
			pushed = &p
		}
	}
	if pushed == nil {
		t.Fatal("no setSettings sent")
	}
	if pushed.Config.Lang != surface.LangEN || pushed.Config.ShowDate {
		t.Errorf("pushed config: got %+v", pushed.Config)
	}

	data, err := protocol.Encode(*pushed)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), `"event":"setSettings"`) {
		t.Errorf("wire form: %s", data)
	}
	d.waitFor("flash cleared", func() bool {
		sent := d.bus.SentTo("today")
		last, ok := sent[len(sent)-1].(protocol.SetTitle)
		return ok && last.Title == ""
	})
}

// TestIntegrationStatusPage checks the status server sees agent state.
func TestIntegrationStatusPage(t *testing.T) {
	d := newDeck(t)
	d.appear("red", surface.KindStatsRed, "")

	ts := httptest.NewServer(web.New(":0", d.tracker).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var doc struct {
		Status struct {
			Today     string `json:"today"`
			Tomorrow  string `json:"tomorrow"`
			Yesterday string `json:"yesterday"`
			Stats     map[string]struct {
				Left *int `json:"left"`
			} `json:"stats"`
			Refreshes int `json:"refreshes"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if doc.Status.Today != "BLUE" || doc.Status.Tomorrow != "RED" || doc.Status.Yesterday != "WHITE" {
		t.Errorf("colours: got %+v", doc.Status)
	}
	if r := doc.Status.Stats["rouge"]; r.Left == nil || *r.Left != 18 {
		t.Errorf("rouge stats: got %+v", doc.Status.Stats)
	}
	if doc.Status.Refreshes != 1 {
		t.Errorf("refreshes: got %d, want 1", doc.Status.Refreshes)
	}
}

// TestIntegrationButtonDebounce drives a bouncing button through the
// debouncer into the agent.
func TestIntegrationButtonDebounce(t *testing.T) {
	d := newDeck(t)
	d.appear("today", surface.KindToday, "")

	// Released long enough to baseline, one bounce, then held.
	reader := gpio.NewFakeReader(false, false, false, true, false, true, true, true, true)
	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	presses := gpio.Watch(ctx, reader, tick, 20*time.Millisecond)

	base := time.Now()
	for i := 0; i < 9; i++ {
		tick <- base.Add(time.Duration(i) * 10 * time.Millisecond)
	}

	select {
	case <-presses:
	case <-time.After(time.Second):
		t.Fatal("no debounced press")
	}
	d.button <- struct{}{}
	d.waitFor("button ack", func() bool { return d.hasAck("today", protocol.AckSuccess{ID: "today"}) })

	if got := d.tracker.Snapshot().LastRefresh.Trigger; got != agent.TriggerButton {
		t.Errorf("trigger: got %q, want %q", got, agent.TriggerButton)
	}
}
