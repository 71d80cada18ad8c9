package gpio

import (
	"context"
	"time"

	xlog "github.com/sweeney/tempo-deck/internal/log"
)

// Debouncer turns raw button samples into debounced presses.
// A state must hold for the debounce duration before it is accepted,
// and nothing is reported until the initial state has settled.
type Debouncer struct {
	debounce time.Duration

	stable       bool
	pending      *bool
	pendingSince time.Time
	baselined    bool
	presses      int
}

// NewDebouncer creates a Debouncer with the given debounce duration.
func NewDebouncer(debounce time.Duration) *Debouncer {
	return &Debouncer{debounce: debounce}
}

// Process takes a new sample and reports whether it completes a press
// (a debounced released → pressed transition).
func (d *Debouncer) Process(pressed bool, now time.Time) bool {
	if d.pending == nil || *d.pending != pressed {
		if d.baselined && pressed == d.stable {
			d.pending = nil
			return false
		}
		p := pressed
		d.pending = &p
		d.pendingSince = now
	}

	if now.Sub(d.pendingSince) < d.debounce {
		return false
	}

	d.pending = nil
	if !d.baselined {
		d.stable = pressed
		d.baselined = true
		return false
	}
	from := d.stable
	d.stable = pressed
	if !from && pressed {
		d.presses++
		return true
	}
	return false
}

// Presses returns the number of presses reported so far.
func (d *Debouncer) Presses() int {
	return d.presses
}

// Watch samples r on every tick and emits one value per debounced press.
// The returned channel is closed when ctx is done. Presses that arrive
// while the previous one is still unconsumed are dropped.
func Watch(ctx context.Context, r Reader, tick <-chan time.Time, debounce time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	d := NewDebouncer(debounce)
	logger := xlog.WithComponent("gpio")

	go func() {
		defer close(out)
		failing := false
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick:
				pressed, err := r.Read()
				if err != nil {
					if !failing {
						logger.Error().Err(err).Msg("button read failed")
						failing = true
					}
					continue
				}
				if failing {
					logger.Info().Msg("button readable again")
					failing = false
				}
				if !d.Process(pressed, now) {
					continue
				}
				logger.Debug().Int("presses", d.Presses()).Msg("button pressed")
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
