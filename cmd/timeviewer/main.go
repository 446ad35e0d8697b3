package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timeviewer/backend/internal/config"
	"github.com/timeviewer/backend/internal/frontend"
	"github.com/timeviewer/backend/internal/logging"
	"github.com/timeviewer/backend/internal/mock"
	"github.com/timeviewer/backend/internal/session"
	"github.com/timeviewer/backend/internal/store"
	"github.com/timeviewer/backend/internal/tracker"
	"github.com/timeviewer/backend/internal/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type serveOptions struct {
	configPath string
	port       int
	dbPath     string
	mock       bool
	dev        bool
}

func newRootCmd() *cobra.Command {
	var opts serveOptions

	root := &cobra.Command{
		Use:           "timeviewer",
		Short:         "Record focused-window activity and stream it to viewers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	root.Flags().IntVar(&opts.port, "port", 0, "override server port")
	root.Flags().StringVar(&opts.dbPath, "db", "", "override segment database path")
	root.Flags().BoolVar(&opts.mock, "mock", false, "feed synthetic activity instead of waiting for a reporter")
	root.Flags().BoolVar(&opts.dev, "dev", false, "serve the dashboard from frontend_dir on disk")

	root.AddCommand(newTUICmd())
	root.AddCommand(newSummaryCmd(&opts.configPath))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	logging.Configure(cfg.Logging, os.Stderr)
	return cfg, nil
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if opts.dbPath != "" {
		cfg.Store.Path = opts.dbPath
	}
	log := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer shutdownStore(st)

	state := session.NewState()
	grace := cfg.Tracker.ReaperInterval + cfg.Tracker.StaleAfter
	if seg, ok, err := tracker.Recover(ctx, st, state, grace, time.Now()); err != nil {
		return err
	} else if ok {
		log.WithField("app", seg.App).Infof("Closed segment left open by previous run: %s-%s",
			seg.Start.Local().Format("15:04:05"), seg.End.Local().Format("15:04:05"))
	}

	broadcaster := ws.NewBroadcaster(cfg.Tracker.FanoutBuffer)

	var wg sync.WaitGroup
	reaper := tracker.NewReaper(st, state, broadcaster, cfg.Tracker.ReaperInterval, cfg.Tracker.StaleAfter)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	if opts.mock {
		log.Info("Starting in mock mode")
		gen := mock.NewGenerator(tracker.NewPipeline(st, state, broadcaster), cfg.Mock.Interval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Run(ctx)
		}()
	}

	server := ws.NewServer(cfg, st, state, broadcaster, opts.dev, frontend.Handler())
	err = server.ListenAndServe(ctx, cfg.Addr())
	stop()
	wg.Wait()
	log.Info("Shut down")
	return err
}

type shutdowner interface {
	Shutdown() error
}

// shutdownStore closes the segment database, logging a failed close since
// it may mean the last writes did not reach disk.
func shutdownStore(st shutdowner) {
	if err := st.Shutdown(); err != nil {
		logging.NewLogger("main").WithError(err).Warn("closing store")
	}
}
