// Package helper implements the local Tempo helper: it polls the public
// Tempo calendar services and serves the result to the agent over HTTP.
package helper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/tempo-deck/internal/metrics"
	"github.com/sweeney/tempo-deck/internal/tempo"
	"github.com/sweeney/tempo-deck/internal/tempoapi"
)

// Upstream service defaults.
const (
	DefaultTempoURL = "https://www.api-couleur-tempo.fr"
	DefaultEDFURL   = "https://api-commerce.edf.fr"
	userAgent       = "tempo-deck-helper/1.0"
	maxBody         = 4 << 20
)

// UpstreamOptions configures an Upstream. Zero values select the defaults.
type UpstreamOptions struct {
	TempoURL string
	EDFURL   string
	Timeout  time.Duration
	// Limiter paces outgoing requests; nil allows 5 requests/s.
	Limiter *rate.Limiter
}

// Upstream fetches day colours and statistics from the public services.
type Upstream struct {
	tempoURL string
	edfURL   string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewUpstream creates an Upstream.
func NewUpstream(opts UpstreamOptions) *Upstream {
	if opts.TempoURL == "" {
		opts.TempoURL = DefaultTempoURL
	}
	if opts.EDFURL == "" {
		opts.EDFURL = DefaultEDFURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 2)
	}
	return &Upstream{
		tempoURL: strings.TrimRight(opts.TempoURL, "/"),
		edfURL:   strings.TrimRight(opts.EDFURL, "/"),
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  opts.Limiter,
	}
}

// jourTempo is one day from /api/jourTempo.
type jourTempo struct {
	DateJour   string `json:"dateJour"`
	CodeJour   *int   `json:"codeJour"`
	Periode    string `json:"periode"`
	LibCouleur string `json:"libCouleur"`
}

func (j jourTempo) color() tempo.Color {
	if j.LibCouleur != "" {
		return tempo.Normalize(j.LibCouleur)
	}
	if j.CodeJour != nil {
		return tempo.ColorFromCode(*j.CodeJour)
	}
	return tempo.ColorUnknown
}

// tempoStats is the /api/stats document.
type tempoStats struct {
	Periode              *string `json:"periode"`
	JoursBleusConsommes  *int    `json:"joursBleusConsommes"`
	JoursBlancsConsommes *int    `json:"joursBlancsConsommes"`
	JoursRougesConsommes *int    `json:"joursRougesConsommes"`
	JoursBleusRestants   *int    `json:"joursBleusRestants"`
	JoursBlancsRestants  *int    `json:"joursBlancsRestants"`
	JoursRougesRestants  *int    `json:"joursRougesRestants"`
	DernierJourInclus    *string `json:"dernierJourInclus"`
	Bissextile           *bool   `json:"bissextile"`
}

// Days returns today's and tomorrow's colours.
func (u *Upstream) Days(ctx context.Context) (today, tomorrow tempo.Color, err error) {
	var t, d jourTempo
	if err := u.getJSON(ctx, "tempo", u.tempoURL+"/api/jourTempo/today", &t); err != nil {
		return tempo.ColorUnknown, tempo.ColorUnknown, err
	}
	if err := u.getJSON(ctx, "tempo", u.tempoURL+"/api/jourTempo/tomorrow", &d); err != nil {
		return tempo.ColorUnknown, tempo.ColorUnknown, err
	}
	return t.color(), d.color(), nil
}

// Day returns the colour of one calendar day.
func (u *Upstream) Day(ctx context.Context, day time.Time) (tempo.Color, error) {
	var j jourTempo
	if err := u.getJSON(ctx, "tempo", u.tempoURL+"/api/jourTempo/"+day.Format("2006-01-02"), &j); err != nil {
		return tempo.ColorUnknown, err
	}
	return j.color(), nil
}

// Stats returns the season counters in the helper wire form.
func (u *Upstream) Stats(ctx context.Context) (tempoapi.StatsPayload, error) {
	var s tempoStats
	if err := u.getJSON(ctx, "tempo", u.tempoURL+"/api/stats", &s); err != nil {
		return tempoapi.StatsPayload{}, err
	}
	return tempoapi.StatsPayload{
		Period:       s.Periode,
		BlueUsed:     s.JoursBleusConsommes,
		WhiteUsed:    s.JoursBlancsConsommes,
		RedUsed:      s.JoursRougesConsommes,
		BlueLeft:     s.JoursBleusRestants,
		WhiteLeft:    s.JoursBlancsRestants,
		RedLeft:      s.JoursRougesRestants,
		LastIncluded: s.DernierJourInclus,
		LeapYear:     s.Bissextile,
	}, nil
}

// EDFDays reads today's and tomorrow's colours from the EDF commerce
// calendar, the fallback when the primary service is down.
func (u *Upstream) EDFDays(ctx context.Context, now time.Time) (today, tomorrow tempo.Color, err error) {
	day := func(t time.Time) string { return fmt.Sprintf("%d-%d-%d", t.Year(), t.Month(), t.Day()) }
	url := u.edfURL + "/commerce/activet/v1/calendrier-jours-effacement" +
		"?option=TEMPO" +
		"&dateApplicationBorneInf=" + day(now.AddDate(0, 0, -364)) +
		"&dateApplicationBorneSup=" + day(now.AddDate(0, 0, 2)) +
		"&identifiantConsommateur=src"

	var doc map[string]json.RawMessage
	if err := u.getJSON(ctx, "edf", url, &doc); err != nil {
		return tempo.ColorUnknown, tempo.ColorUnknown, err
	}

	byDate := make(map[string]tempo.Color)
	for _, entry := range firstList(doc, "content", "jours", "data") {
		date := firstString(entry, "dateApplication", "dateJour", "date", "dateApp")
		if date == "" {
			continue
		}
		if len(date) > 10 {
			date = date[:10]
		}
		byDate[date] = entryColor(entry)
	}

	lookup := func(t time.Time) tempo.Color {
		if c, ok := byDate[t.Format("2006-01-02")]; ok {
			return c
		}
		return tempo.ColorUnknown
	}
	return lookup(now), lookup(now.AddDate(0, 0, 1)), nil
}

func firstList(doc map[string]json.RawMessage, keys ...string) []map[string]any {
	for _, k := range keys {
		raw, ok := doc[k]
		if !ok {
			continue
		}
		var list []map[string]any
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list
		}
	}
	return nil
}

func firstString(entry map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := entry[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// entryColor accepts numeric codes (1-3, as number or digit string) and
// colour names.
func entryColor(entry map[string]any) tempo.Color {
	for _, k := range []string{"codeJour", "typeJourEffacement", "code", "couleur"} {
		switch v := entry[k].(type) {
		case float64:
			return tempo.ColorFromCode(int(v))
		case string:
			if v == "" {
				continue
			}
			if n, err := strconv.Atoi(v); err == nil {
				return tempo.ColorFromCode(n)
			}
			return tempo.Normalize(v)
		}
	}
	return tempo.ColorUnknown
}

func (u *Upstream) getJSON(ctx context.Context, source, url string, v any) (err error) {
	defer func() { metrics.RecordUpstream(source, err) }()

	if err := u.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return fmt.Errorf("get %s: HTTP %d", req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}
