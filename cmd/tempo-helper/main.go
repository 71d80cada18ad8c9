// Command tempo-helper polls the public Tempo calendar services and serves
// today's, tomorrow's and yesterday's colours to the agent on localhost.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/tempo-deck/internal/helper"
	xlog "github.com/sweeney/tempo-deck/internal/log"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Listen address")
	port := flag.Int("port", 9123, "Listen port")
	interval := flag.Duration("interval", 30*time.Minute, "Upstream refresh interval (min 60s)")
	tempoURL := flag.String("tempo-url", helper.DefaultTempoURL, "Primary Tempo service")
	edfURL := flag.String("edf-url", helper.DefaultEDFURL, "EDF commerce service (fallback)")
	logLevel := flag.String("log-level", "", "Log level (default $LOG_LEVEL or info)")

	flag.Parse()

	xlog.Configure(xlog.Config{Level: *logLevel, Service: "tempo-helper"})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	upstream := helper.NewUpstream(helper.UpstreamOptions{TempoURL: *tempoURL, EDFURL: *edfURL})
	if err := run(ctx, addr, helper.Interval(*interval), upstream); err != nil {
		logger.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func run(ctx context.Context, addr string, interval time.Duration, upstream helper.Fetcher) error {
	logger := xlog.WithComponent("main")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	state := helper.NewState()
	srv := helper.NewServer(addr, state)

	// Serve straight away; the first refresh can take several seconds.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", addr).Dur("interval", interval).Msg("tempo helper listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		state.Refresh(gctx, upstream, time.Now())

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		state.Run(gctx, upstream, ticker.C)
		return nil
	})

	err = g.Wait()
	logger.Info().Msg("tempo helper stopped")
	return err
}
