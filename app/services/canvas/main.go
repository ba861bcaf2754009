package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/kaspixel/kaspixel/app/services/canvas/handlers"
	"github.com/kaspixel/kaspixel/business/core/credit"
	"github.com/kaspixel/kaspixel/business/sys/store"
	"github.com/kaspixel/kaspixel/foundation/canvas"
	"github.com/kaspixel/kaspixel/foundation/events"
	"github.com/kaspixel/kaspixel/foundation/ledger"
	"github.com/kaspixel/kaspixel/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("CANVAS")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		Canvas struct {
			Width         int    `conf:"default:1000"`
			Height        int    `conf:"default:1000"`
			PackCostSompi uint64 `conf:"default:20000000"`
			PackSize      uint   `conf:"default:10"`
		}
		Events struct {
			ReadTimeout time.Duration `conf:"default:30s"`
		}
		Ledger struct {
			APIURLs       []string      `conf:"default:https://api.kaspa.org"`
			MaxAttempts   int           `conf:"default:10"`
			RetryDelay    time.Duration `conf:"default:200ms"`
			SweepInterval time.Duration `conf:"default:30s"`
		}
		Store struct {
			DBPath string `conf:"default:zarea/canvas.db"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "CANVAS"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Store Support

	// The store provides the persistent record of pixels, purchases, and
	// balances across process restarts.
	db, err := store.New(store.Config{
		Dir: cfg.Store.DBPath,
	})
	if err != nil {
		return fmt.Errorf("unable to open store: %w", err)
	}
	defer func() {
		log.Infow("shutdown", "status", "stopping store")
		db.Close()
	}()

	// =========================================================================
	// Canvas Support

	// The in-memory canvas is the live board. Seed it from the store so a
	// restart comes back with every persisted pixel.
	cvs := canvas.New(cfg.Canvas.Width, cfg.Canvas.Height)

	pixels, err := db.AllPixels()
	if err != nil {
		return fmt.Errorf("unable to load pixels: %w", err)
	}
	for _, p := range pixels {
		if err := cvs.Set(p.X, p.Y, p.Color); err != nil {
			log.Infow("startup", "status", "skipping stored pixel out of bounds", "x", p.X, "y", p.Y)
		}
	}
	log.Infow("startup", "status", "canvas seeded", "pixels", cvs.Len())

	// The events system owns the websocket fan-out on top of the canvas.
	evts := events.New(log, cvs, cfg.Events.ReadTimeout)

	// =========================================================================
	// Ledger Support

	// The ledger client talks to the configured block explorer APIs with
	// per-request fallback across them.
	client, err := ledger.NewClient(log, cfg.Ledger.APIURLs)
	if err != nil {
		return fmt.Errorf("unable to construct ledger client: %w", err)
	}

	verifier := ledger.NewVerifier(log, client)

	// =========================================================================
	// Credit Core Support

	core := credit.NewCore(credit.Config{
		Log:           log,
		Store:         db,
		Verifier:      verifier,
		CanvasWidth:   cfg.Canvas.Width,
		CanvasHeight:  cfg.Canvas.Height,
		PackCostSompi: cfg.Canvas.PackCostSompi,
		PackSize:      cfg.Canvas.PackSize,
		MaxAttempts:   cfg.Ledger.MaxAttempts,
		RetryDelay:    cfg.Ledger.RetryDelay,
	})

	// The worker runs the verification drives in the background. It will
	// register itself with the core.
	worker := credit.RunWorker(core)
	defer func() {
		log.Infow("shutdown", "status", "stopping verification worker")
		worker.Shutdown()
	}()

	// The sweeper re-drives every pending purchase on an interval so
	// transactions that exhausted their attempt budget still settle.
	sweeper, err := credit.NewSweeper(core, cfg.Ledger.SweepInterval)
	if err != nil {
		return fmt.Errorf("unable to construct sweeper: %w", err)
	}
	sweeper.Start()
	defer func() {
		log.Infow("shutdown", "status", "stopping sweeper")
		sweeper.Stop()
	}()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:      shutdown,
		Log:           log,
		Core:          core,
		Canvas:        cvs,
		Evts:          evts,
		Verifier:      verifier,
		PackCostSompi: cfg.Canvas.PackCostSompi,
		PackSize:      cfg.Canvas.PackSize,
	})

	// Construct a server to service the requests against the mux. The
	// write timeout stays unset because websocket sessions outlive any
	// sane value for it.
	public := http.Server{
		Addr:        cfg.Web.PublicHost,
		Handler:     publicMux,
		ReadTimeout: cfg.Web.ReadTimeout,
		IdleTimeout: cfg.Web.IdleTimeout,
		ErrorLog:    zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Core:     core,
		Canvas:   cvs,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
