// Command tempo-deck renders the EDF Tempo day colours onto control-surface
// keys, talking to the host over MQTT and to the local helper over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/tempo-deck/internal/agent"
	"github.com/sweeney/tempo-deck/internal/config"
	"github.com/sweeney/tempo-deck/internal/gpio"
	xlog "github.com/sweeney/tempo-deck/internal/log"
	"github.com/sweeney/tempo-deck/internal/mqtt"
	"github.com/sweeney/tempo-deck/internal/protocol"
	"github.com/sweeney/tempo-deck/internal/status"
	"github.com/sweeney/tempo-deck/internal/tempo"
	"github.com/sweeney/tempo-deck/internal/tempoapi"
	"github.com/sweeney/tempo-deck/internal/web"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults if empty)")
	broker := flag.String("broker", "", "MQTT broker address")
	helperURL := flag.String("helper", "", "Tempo helper base URL")
	httpAddr := flag.String("http", "", "HTTP status address (empty to disable)")
	logLevel := flag.String("log-level", "", "Log level")
	buttonPin := flag.Int("button-pin", 0, "GPIO line of the refresh button (0 to disable)")
	printState := flag.Bool("print-state", false, "Fetch the current colours, print them and exit")

	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(&cfg, set, overrides{
		broker:    *broker,
		helperURL: *helperURL,
		httpAddr:  *httpAddr,
		logLevel:  *logLevel,
		buttonPin: *buttonPin,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	xlog.Configure(xlog.Config{Level: cfg.LogLevel})
	logger := xlog.WithComponent("main")

	if *printState {
		if err := printColors(cfg); err != nil {
			logger.Error().Err(err).Msg("print state")
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

// overrides are command-line values that take precedence over the file.
type overrides struct {
	broker    string
	helperURL string
	httpAddr  string
	logLevel  string
	buttonPin int
}

// applyFlags copies the explicitly set flags into cfg.
func applyFlags(cfg *config.Config, set map[string]bool, o overrides) {
	if set["broker"] {
		cfg.Broker = o.broker
	}
	if set["helper"] {
		cfg.HelperURL = o.helperURL
	}
	if set["http"] {
		cfg.HTTPAddr = o.httpAddr
	}
	if set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if set["button-pin"] {
		cfg.Button.Pin = o.buttonPin
	}
}

func printColors(cfg config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	defer cancel()

	cache := tempo.NewCache(cfg.MinRefresh)
	snap, err := cache.Refresh(ctx, time.Now(), true, tempoapi.NewClient(cfg.HelperURL, cfg.FetchTimeout))
	if err != nil {
		return err
	}
	fmt.Printf("yesterday: %s, today: %s, tomorrow: %s\n", snap.Yesterday, snap.Today, snap.Tomorrow)
	return nil
}

func run(cfg config.Config) error {
	logger := xlog.WithComponent("main")

	bus, err := mqtt.NewRealBus(mqtt.Options{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Topics:   mqtt.TopicsFor(cfg.TopicPrefix),
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer bus.Close()

	var button gpio.Reader
	if cfg.Button.Pin > 0 {
		r, err := gpio.NewRealReader(cfg.Button.Chip, cfg.Button.Pin)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer r.Close()
		button = r
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info().
		Str("broker", cfg.Broker).
		Str("helper", cfg.HelperURL).
		Dur("min_refresh", cfg.MinRefresh).
		Dur("poll", cfg.PollInterval).
		Msg("started")

	return serve(context.Background(), cfg, deps{
		bus:     bus,
		conn:    bus,
		inbound: bus.Inbound(),
		source:  tempoapi.NewClient(cfg.HelperURL, cfg.FetchTimeout),
		button:  button,
		tracker: tracker,
		now:     time.Now,
	}, sigCh)
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Broker:       cfg.Broker,
		TopicPrefix:  cfg.TopicPrefix,
		HelperURL:    cfg.HelperURL,
		HTTPAddr:     cfg.HTTPAddr,
		MinRefreshMs: cfg.MinRefresh.Milliseconds(),
		RenderMs:     cfg.RenderInterval.Milliseconds(),
		PollMs:       cfg.PollInterval.Milliseconds(),
		ButtonPin:    cfg.Button.Pin,
	}
}

// deps are the collaborators of serve. conn and button may be nil.
type deps struct {
	bus     mqtt.Bus
	conn    mqtt.ConnectionStatus
	inbound <-chan protocol.Inbound
	source  tempo.Source
	button  gpio.Reader
	tracker *status.Tracker
	now     func() time.Time
}

// serve publishes STARTUP, runs the agent with its tickers, the status
// server and the button watcher until a signal arrives or ctx is done,
// then publishes SHUTDOWN.
func serve(ctx context.Context, cfg config.Config, d deps, sig <-chan os.Signal) error {
	logger := xlog.WithComponent("main")

	publishLifecycle(d, "STARTUP", "")

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	reason := ""
	g.Go(func() error {
		select {
		case s := <-sig:
			reason = signalName(s)
			logger.Info().Str("signal", reason).Msg("shutting down")
			cancel()
		case <-runCtx.Done():
		}
		return nil
	})

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, d.tracker)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var presses <-chan struct{}
	if d.button != nil {
		sample := time.NewTicker(cfg.Button.Sample)
		defer sample.Stop()
		presses = gpio.Watch(runCtx, d.button, sample.C, cfg.Button.Debounce)
	}

	renderTick := time.NewTicker(cfg.RenderInterval)
	defer renderTick.Stop()
	pollTick := time.NewTicker(cfg.PollInterval)
	defer pollTick.Stop()

	a := agent.New(agent.Options{
		Bus:           d.bus,
		Source:        d.source,
		Cache:         tempo.NewCache(cfg.MinRefresh),
		Tracker:       d.tracker,
		Connection:    d.conn,
		ButtonSurface: cfg.Button.Surface,
		Now:           d.now,
	})
	g.Go(func() error {
		defer cancel()
		return a.Run(runCtx, agent.Inputs{
			Inbound:    d.inbound,
			Button:     presses,
			RenderTick: renderTick.C,
			PollTick:   pollTick.C,
		})
	})

	err := g.Wait()
	publishLifecycle(d, "SHUTDOWN", reason)
	return err
}

func publishLifecycle(d deps, event, reason string) {
	logger := xlog.WithComponent("main")

	if d.tracker != nil && d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
	ev := mqtt.SystemEvent{
		Timestamp: d.now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if d.tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	if err := d.bus.PublishSystem(ev); err != nil {
		logger.Warn().Err(err).Str("event", event).Msg("failed to publish lifecycle event")
		return
	}
	logger.Info().Str("event", event).Msg("published lifecycle event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
