package tempoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/sweeney/tempo-deck/internal/log"
	"github.com/sweeney/tempo-deck/internal/tempo"
)

// DefaultBaseURL is where the helper listens by default.
const DefaultBaseURL = "http://127.0.0.1:9123"

var (
	// ErrNetwork covers transport failures and non-2xx responses.
	ErrNetwork = errors.New("tempoapi: network failure")

	// ErrParse covers response bodies that are not the expected JSON.
	ErrParse = errors.New("tempoapi: parse failure")
)

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Client fetches the helper documents. It implements tempo.Source.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

var _ tempo.Source = (*Client)(nil)

// NewClient creates a client for the helper at baseURL. timeout bounds each
// request; zero means 8 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  xlog.WithComponent("tempoapi"),
	}
}

// FetchPrimary fetches /tempo.
func (c *Client) FetchPrimary(ctx context.Context) (tempo.Reading, error) {
	var p Payload
	if err := c.getJSON(ctx, "/tempo", &p); err != nil {
		return tempo.Reading{}, err
	}
	return p.ToReading(), nil
}

// FetchSecondary fetches /stats.
func (c *Client) FetchSecondary(ctx context.Context) (tempo.Stats, error) {
	var p StatsPayload
	if err := c.getJSON(ctx, "/stats", &p); err != nil {
		return nil, err
	}
	return p.ToStats(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request %s: %v", ErrNetwork, url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrNetwork, url, err)
	}
	defer resp.Body.Close()
	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("helper response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return fmt.Errorf("%w: HTTP %d %s", ErrNetwork, resp.StatusCode, url)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, url, err)
	}
	return nil
}
