package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"invnorm/internal/codec"
	"invnorm/internal/config"
	"invnorm/internal/handler"
	"invnorm/internal/hub"
	"invnorm/internal/logger"
	"invnorm/internal/watcher"
)

const usage = `invnorm normalizes raw IP inventory exports.

Usage:
  invnorm [command] [flags]

Commands:
  run     normalize the input file once and write the artifacts (default)
  watch   re-run whenever the input file changes
  serve   start the HTTP API with live run events
  check   validate the configuration and the input header, or normalize
          one record given as field=value arguments
  runs    list recorded runs

Run "invnorm <command> -h" for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = cmdRun(ctx, args)
	case "watch":
		err = cmdWatch(ctx, args)
	case "serve":
		err = cmdServe(ctx, args)
	case "check":
		err = cmdCheck(ctx, args, os.Stdout)
	case "runs":
		err = cmdRuns(ctx, args, os.Stdout)
	case "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(os.Stderr, "\n"+usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "invnorm %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// commonFlags are accepted by every command and override the config file
type commonFlags struct {
	configPath string
	input      string
	outDir     string
	dbPath     string
	workers    int
	logLevel   string
	enrich     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (default: search "+config.ConfigFileName+")")
	fs.StringVar(&c.input, "input", "", "raw inventory CSV")
	fs.StringVar(&c.outDir, "out", "", "output directory")
	fs.StringVar(&c.dbPath, "db", "", "run history database; \"none\" disables it")
	fs.IntVar(&c.workers, "workers", 0, "row worker count")
	fs.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&c.enrich, "enrich", "", "enable enrichment: true or false")
}

// load reads the config and applies flag overrides
func (c *commonFlags) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, _, err = config.LoadFromPath(c.configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if c.input != "" {
		cfg.Input.Path = c.input
	}
	if c.outDir != "" {
		cfg.Output.Dir = c.outDir
	}
	switch c.dbPath {
	case "":
	case "none":
		cfg.Database.Path = ""
	default:
		cfg.Database.Path = c.dbPath
	}
	if c.workers > 0 {
		cfg.Normalizer.Workers = c.workers
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.enrich != "" {
		enabled, err := strconv.ParseBool(c.enrich)
		if err != nil {
			return nil, fmt.Errorf("-enrich: %w", err)
		}
		cfg.Enrichment.Enabled = enabled
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFlags(name string, args []string, extra func(fs *flag.FlagSet)) (*commonFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	common := &commonFlags{}
	common.register(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return common, nil
}

func cmdRun(ctx context.Context, args []string) error {
	flags, err := parseFlags("run", args, nil)
	if err != nil {
		return err
	}
	cfg, err := flags.load()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.runFile(ctx, cfg.Input.Path)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, result, a.artifactPaths())
	return nil
}

func cmdWatch(ctx context.Context, args []string) error {
	flags, err := parseFlags("watch", args, nil)
	if err != nil {
		return err
	}
	cfg, err := flags.load()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rerun := func(ctx context.Context) {
		result, err := a.runFile(ctx, cfg.Input.Path)
		if err != nil {
			a.log.Error().Err(err).Str("input", cfg.Input.Path).Msg("Run failed")
			return
		}
		printSummary(os.Stdout, result, a.artifactPaths())
	}

	// Initial pass, then one per change
	rerun(ctx)

	w := watcher.New(cfg.Input.Path, rerun, logger.WithComponent("watcher")).
		WithDebounce(cfg.Watch.Debounce.Duration())
	return w.Watch(ctx)
}

func cmdServe(ctx context.Context, args []string) error {
	var addr string
	flags, err := parseFlags("serve", args, func(fs *flag.FlagSet) {
		fs.StringVar(&addr, "addr", "", "HTTP listen address")
	})
	if err != nil {
		return err
	}
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if cfg.Database.Path == "" {
		return errors.New("serve needs a run history database (database.path)")
	}

	sseHub := hub.New(logger.WithComponent("hub"))
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.WithComponent("server")
	runHandler := handler.NewRunHandler(a.pipeline, a.ephemeral, a.store, log)

	mux := http.NewServeMux()
	runHandler.Register(mux)
	mux.Handle("GET /events", sseHub)

	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     finalHandler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sseHub.Run(gctx)
		return nil
	})
	sseHub.Bridge(gctx, a.bus)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("Server stopped")
	return err
}

func cmdCheck(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	flags := &commonFlags{}
	flags.register(fs)
	format := fs.String("format", "yaml", "record output format for a single record: yaml, json or csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.load()
	if err != nil {
		return err
	}

	if fs.NArg() > 0 {
		exporter, err := codec.ExporterFor(*format)
		if err != nil {
			return err
		}
		return checkRecord(ctx, cfg, fs.Args(), exporter, out)
	}

	fmt.Fprintln(out, cfg.Summary())

	f, err := os.Open(cfg.Input.Path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var importer codec.Importer = codec.NewCSVCodec()
	batch, err := importer.Parse(f, cfg.Input.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Input OK: %d rows (%d unparseable)\n", batch.Rows(), len(batch.Rejected))
	return nil
}

// checkRecord normalizes one record built from field=value arguments and
// prints it with its anomalies. Nothing is persisted.
func checkRecord(ctx context.Context, cfg *config.Config, pairs []string, exporter codec.RecordExporter, out io.Writer) error {
	row := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("argument %q is not field=value", p)
		}
		row[key] = value
	}

	batch, err := codec.ParseMaps([]map[string]string{row}, "check")
	if err != nil {
		return err
	}

	cfg.Database.Path = ""
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.ephemeral.Run(ctx, *batch)
	if err != nil {
		return err
	}
	if err := exporter.ExportRecords(result.Records, out); err != nil {
		return err
	}
	printAnomalies(out, result.Anomalies)
	return nil
}

func cmdRuns(ctx context.Context, args []string, out io.Writer) error {
	var limit int
	flags, err := parseFlags("runs", args, func(fs *flag.FlagSet) {
		fs.IntVar(&limit, "n", 20, "number of runs to show")
	})
	if err != nil {
		return err
	}
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return errors.New("run history is disabled (database.path is empty)")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	printRuns(out, runs)
	return nil
}
