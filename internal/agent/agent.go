// Package agent runs the tempo-deck event loop: it owns the surface
// registrations, schedules cache refreshes and pushes rendered visuals to
// the host.
//
// All state is owned by the goroutine running Run. Fetches run on a worker
// goroutine and report back through a channel, so at most one refresh is
// in flight at any time.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/sweeney/tempo-deck/internal/log"
	"github.com/sweeney/tempo-deck/internal/metrics"
	"github.com/sweeney/tempo-deck/internal/mqtt"
	"github.com/sweeney/tempo-deck/internal/protocol"
	"github.com/sweeney/tempo-deck/internal/render"
	"github.com/sweeney/tempo-deck/internal/status"
	"github.com/sweeney/tempo-deck/internal/surface"
	"github.com/sweeney/tempo-deck/internal/tempo"
)

// Refresh triggers, as reported in logs, metrics and the status page.
const (
	TriggerStartup = "startup"
	TriggerPoll    = "poll"
	TriggerManual  = "manual"
	TriggerButton  = "button"
)

// DefaultFlash is how long the "OK" title stays up after an editor push.
const DefaultFlash = 900 * time.Millisecond

// Options configures an Agent. Bus, Source and Cache are required.
type Options struct {
	Bus    mqtt.Bus
	Source tempo.Source
	Cache  *tempo.Cache

	// Tracker, if set, mirrors agent state for the status server.
	Tracker *status.Tracker
	// Connection, if set, is copied into the tracker on every render tick.
	Connection mqtt.ConnectionStatus

	// ButtonSurface is acknowledged after a button-triggered refresh.
	// Empty means no acknowledgement.
	ButtonSurface string

	Flash time.Duration
	Now   func() time.Time
}

// Inputs are the event sources of the loop. Nil channels never fire.
type Inputs struct {
	Inbound    <-chan protocol.Inbound
	Button     <-chan struct{}
	RenderTick <-chan time.Time
	PollTick   <-chan time.Time
}

type flashTimer struct {
	id    string
	seq   uint64
	timer *time.Timer
}

type refreshRequest struct {
	trigger string
	force   bool
	acks    []string
}

type refreshResult struct {
	req  refreshRequest
	snap tempo.Snapshot
	err  error
}

// Agent is the refresh scheduler and surface dispatcher.
type Agent struct {
	bus           mqtt.Bus
	source        tempo.Source
	cache         *tempo.Cache
	tracker       *status.Tracker
	conn          mqtt.ConnectionStatus
	buttonSurface string
	flash         time.Duration
	now           func() time.Time
	logger        zerolog.Logger

	// loop-owned state
	store    *surface.Store
	snap     tempo.Snapshot
	inFlight bool
	pending  *refreshRequest
	flashes  map[string]flashTimer
	flashSeq uint64

	results chan refreshResult
	unflash chan flashTimer
	workers sync.WaitGroup
}

// New creates an Agent.
func New(opts Options) *Agent {
	if opts.Flash <= 0 {
		opts.Flash = DefaultFlash
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Agent{
		bus:           opts.Bus,
		source:        opts.Source,
		cache:         opts.Cache,
		tracker:       opts.Tracker,
		conn:          opts.Connection,
		buttonSurface: opts.ButtonSurface,
		flash:         opts.Flash,
		now:           opts.Now,
		logger:        xlog.WithComponent("agent"),
		store:         surface.NewStore(),
		snap:          opts.Cache.Snapshot(),
		flashes:       make(map[string]flashTimer),
		results:       make(chan refreshResult, 1),
		unflash:       make(chan flashTimer),
	}
}

// Run processes events until ctx is done. A forced refresh is issued on
// entry. Run waits for an in-flight fetch to return before exiting.
func (a *Agent) Run(ctx context.Context, in Inputs) error {
	defer a.stop()

	a.requestRefresh(ctx, refreshRequest{trigger: TriggerStartup, force: true})

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("agent stopping")
			return nil

		case msg := <-in.Inbound:
			a.handleInbound(ctx, msg)

		case _, ok := <-in.Button:
			if !ok {
				in.Button = nil // watcher stopped
				continue
			}
			req := refreshRequest{trigger: TriggerButton, force: true}
			if a.buttonSurface != "" {
				req.acks = []string{a.buttonSurface}
			}
			a.requestRefresh(ctx, req)

		case <-in.RenderTick:
			if a.tracker != nil && a.conn != nil {
				a.tracker.SetMQTTConnected(a.conn.IsConnected())
			}
			a.renderAll()

		case <-in.PollTick:
			a.requestRefresh(ctx, refreshRequest{trigger: TriggerPoll})

		case res := <-a.results:
			a.completeRefresh(ctx, res)

		case f := <-a.unflash:
			if cur, ok := a.flashes[f.id]; !ok || cur.seq != f.seq {
				continue // superseded
			}
			delete(a.flashes, f.id)
			if _, ok := a.store.Get(f.id); ok {
				a.send(protocol.SetTitle{ID: f.id})
			}
		}
	}
}

func (a *Agent) stop() {
	for id, f := range a.flashes {
		f.timer.Stop()
		delete(a.flashes, id)
	}
	a.workers.Wait()
}

func (a *Agent) handleInbound(ctx context.Context, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.SurfaceAppeared:
		reg := a.store.Appear(m.ID, m.Kind, m.Settings)
		a.logger.Debug().Str("surface", m.ID).Str("kind", string(m.Kind)).Msg("surface appeared")
		a.surfacesChanged()
		a.send(protocol.RequestSettings{ID: m.ID})
		a.renderOne(reg)

	case protocol.SurfaceDisappeared:
		a.store.Disappear(m.ID)
		if f, ok := a.flashes[m.ID]; ok {
			f.timer.Stop()
			delete(a.flashes, m.ID)
		}
		a.logger.Debug().Str("surface", m.ID).Msg("surface disappeared")
		a.surfacesChanged()

	case protocol.SettingsChanged:
		reg, ok := a.store.ChangeSettings(m.ID, m.Settings)
		if !ok {
			a.logger.Debug().Str("surface", m.ID).Msg("settings for unknown surface")
			return
		}
		a.surfacesChanged()
		a.renderOne(reg)

	case protocol.ManualTrigger:
		a.requestRefresh(ctx, refreshRequest{trigger: TriggerManual, force: true, acks: []string{m.ID}})

	case protocol.SettingsPush:
		a.handlePush(ctx, m)

	default:
		a.logger.Warn().Str("surface", msg.SurfaceID()).Msgf("unhandled inbound %T", msg)
	}
}

// handlePush persists editor settings through the host, flashes "OK" on
// the surface and re-renders it.
func (a *Agent) handlePush(ctx context.Context, m protocol.SettingsPush) {
	if m.Settings == nil {
		a.logger.Debug().Str("surface", m.ID).Msg("editor push without settings")
		return
	}
	reg, ok := a.store.ChangeSettings(m.ID, m.Settings)
	if !ok {
		a.logger.Debug().Str("surface", m.ID).Msg("editor push for unknown surface")
		return
	}
	a.surfacesChanged()
	a.send(protocol.PushSettings{ID: m.ID, Config: reg.Config})
	a.send(protocol.SetTitle{ID: m.ID, Title: "OK"})

	if f, ok := a.flashes[m.ID]; ok {
		f.timer.Stop()
	}
	a.flashSeq++
	id, seq := m.ID, a.flashSeq
	timer := time.AfterFunc(a.flash, func() {
		select {
		case a.unflash <- flashTimer{id: id, seq: seq}:
		case <-ctx.Done():
		}
	})
	a.flashes[id] = flashTimer{id: id, seq: seq, timer: timer}
	a.renderOne(reg)
}

// requestRefresh starts a refresh, or parks it while another is in flight.
// Parked forced requests merge into one; a poll that finds a fetch in
// flight is dropped.
func (a *Agent) requestRefresh(ctx context.Context, req refreshRequest) {
	if a.inFlight {
		if !req.force {
			a.logger.Debug().Str("trigger", req.trigger).Msg("refresh in flight, dropping poll")
			metrics.RecordRefresh(req.trigger, "dropped")
			return
		}
		if a.pending == nil {
			a.pending = &refreshRequest{trigger: req.trigger, force: true}
		}
		a.pending.acks = appendUnique(a.pending.acks, req.acks...)
		return
	}

	now := a.now()
	if !a.cache.ShouldRefresh(now, req.force) {
		metrics.RecordRefresh(req.trigger, "throttled")
		a.renderAll()
		return
	}

	a.inFlight = true
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		snap, err := a.cache.Refresh(ctx, now, req.force, a.source)
		a.results <- refreshResult{req: req, snap: snap, err: err}
	}()
}

func (a *Agent) completeRefresh(ctx context.Context, res refreshResult) {
	a.inFlight = false
	a.snap = res.snap

	outcome := "ok"
	var ev *zerolog.Event
	if res.err != nil {
		outcome = "error"
		ev = a.logger.Warn().Err(res.err)
	} else {
		ev = a.logger.Info()
	}
	ev.
		Str("trigger", res.req.trigger).
		Str("today", string(res.snap.Today)).
		Str("tomorrow", string(res.snap.Tomorrow)).
		Str("yesterday", string(res.snap.Yesterday)).
		Msg("refresh complete")

	metrics.RecordRefresh(res.req.trigger, outcome)
	metrics.SetLastFetch(res.snap.FetchedAt)
	if a.tracker != nil {
		a.tracker.SetTempo(res.snap)
		info := status.RefreshInfo{At: res.snap.FetchedAt, Trigger: res.req.trigger, OK: res.err == nil}
		if res.err != nil {
			info.Error = res.err.Error()
		}
		a.tracker.RecordRefresh(info)
	}

	a.renderAll()

	for _, id := range res.req.acks {
		if _, ok := a.store.Get(id); !ok {
			continue
		}
		if res.err != nil {
			a.send(protocol.AckFailure{ID: id})
		} else {
			a.send(protocol.AckSuccess{ID: id})
		}
	}

	if next := a.pending; next != nil {
		a.pending = nil
		a.requestRefresh(ctx, *next)
	}
}

func (a *Agent) renderAll() {
	now := a.now()
	for _, reg := range a.store.All() {
		a.renderAt(reg, now)
	}
}

func (a *Agent) renderOne(reg surface.Registration) {
	a.renderAt(reg, a.now())
}

func (a *Agent) renderAt(reg surface.Registration, now time.Time) {
	spec := render.Render(reg.Kind, a.snap, reg.Config, now)
	if a.send(protocol.SetVisual{ID: reg.ID, Spec: spec}) {
		metrics.IncRenders()
	}
}

func (a *Agent) send(msg protocol.Outbound) bool {
	if err := a.bus.Send(msg); err != nil {
		a.logger.Warn().Err(err).
			Str("surface", msg.SurfaceID()).
			Str("event", protocol.EventName(msg)).
			Msg("send failed")
		return false
	}
	return true
}

func (a *Agent) surfacesChanged() {
	metrics.SetSurfaces(a.store.Len())
	if a.tracker == nil {
		return
	}
	regs := a.store.All()
	infos := make([]status.SurfaceInfo, 0, len(regs))
	for _, r := range regs {
		infos = append(infos, status.SurfaceInfo{ID: r.ID, Kind: string(r.Kind), Lang: string(r.Config.Lang)})
	}
	a.tracker.SetSurfaces(infos)
}

func appendUnique(dst []string, ids ...string) []string {
	for _, id := range ids {
		found := false
		for _, d := range dst {
			if d == id {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, id)
		}
	}
	return dst
}
