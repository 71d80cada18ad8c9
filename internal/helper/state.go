package helper

import (
	"context"
	"strings"
	"sync"
	"time"

	xlog "github.com/sweeney/tempo-deck/internal/log"
	"github.com/sweeney/tempo-deck/internal/tempo"
	"github.com/sweeney/tempo-deck/internal/tempoapi"
)

// MinInterval is the shortest gap between two scheduled upstream refreshes.
const MinInterval = 60 * time.Second

// Interval clamps a configured refresh interval to MinInterval.
func Interval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// Fetcher is the upstream surface used by State. *Upstream implements it.
type Fetcher interface {
	Days(ctx context.Context) (today, tomorrow tempo.Color, err error)
	EDFDays(ctx context.Context, now time.Time) (today, tomorrow tempo.Color, err error)
	Day(ctx context.Context, day time.Time) (tempo.Color, error)
	Stats(ctx context.Context) (tempoapi.StatsPayload, error)
}

var _ Fetcher = (*Upstream)(nil)

// State is the helper's current view of the calendar.
type State struct {
	mu      sync.RWMutex
	payload tempoapi.Payload
}

// NewState creates a State with every colour UNKNOWN.
func NewState() *State {
	unknown := string(tempo.ColorUnknown)
	return &State{payload: tempoapi.Payload{Today: unknown, Tomorrow: unknown, Yesterday: unknown}}
}

// Payload returns a copy of the /tempo document.
func (s *State) Payload() tempoapi.Payload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payload
}

// Refresh queries every upstream source and replaces the state.
//
// Today and tomorrow come from the primary service, then the EDF calendar.
// Yesterday falls back to the previously held today. A failed stats call
// leaves the stats empty. Every failure is kept in LastError, joined
// with " | "; Refresh itself never fails.
func (s *State) Refresh(ctx context.Context, f Fetcher, now time.Time) {
	var errs []string

	today, tomorrow, err := f.Days(ctx)
	if err != nil {
		errs = append(errs, "primary failed: "+err.Error())
		today, tomorrow, err = f.EDFDays(ctx, now)
		if err != nil {
			errs = append(errs, "edf failed: "+err.Error())
			today, tomorrow = tempo.ColorUnknown, tempo.ColorUnknown
		}
	}

	yesterday, err := f.Day(ctx, now.AddDate(0, 0, -1))
	if err != nil {
		errs = append(errs, "yesterday failed: "+err.Error())
		yesterday = tempo.Normalize(s.Payload().Today)
	}

	stats, err := f.Stats(ctx)
	if err != nil {
		errs = append(errs, "stats failed: "+err.Error())
		stats = tempoapi.StatsPayload{}
	}

	p := tempoapi.Payload{
		Today:     string(today),
		Tomorrow:  string(tomorrow),
		Yesterday: string(yesterday),
		Stats:     stats,
		UpdatedAt: now.Unix(),
		LastError: strings.Join(errs, " | "),
	}
	s.mu.Lock()
	s.payload = p
	s.mu.Unlock()

	logger := xlog.WithComponent("helper")
	ev := logger.Info()
	if p.LastError != "" {
		ev = logger.Warn().Str("error", p.LastError)
	}
	ev.Str("today", p.Today).Str("tomorrow", p.Tomorrow).Str("yesterday", p.Yesterday).Msg("upstream refreshed")
}

// Run refreshes on every tick until ctx is done.
func (s *State) Run(ctx context.Context, f Fetcher, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			s.Refresh(ctx, f, now)
		}
	}
}
