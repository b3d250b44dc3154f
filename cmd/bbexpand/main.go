package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/engine"
	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/host/memory"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/config"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/blockforge/internal/logging"
	"github.com/GriffinCanCode/blockforge/internal/macro"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

type options struct {
	in        string
	defs      string
	fragments string
	model     string
	modelName string
	metaModel string
	stats     bool
	trace     bool
	list      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.in, "in", "", "View file to expand (default stdin)")
	flag.StringVar(&opts.defs, "defs", "", "Definitions directory (overrides BB_DEFINITIONS_DIR)")
	flag.StringVar(&opts.fragments, "fragments", "", "Fragment directory (*.fragment.xml)")
	flag.StringVar(&opts.model, "model", "", "JSON model file")
	flag.StringVar(&opts.modelName, "model-name", "data", "Name the JSON model is bound to")
	flag.StringVar(&opts.metaModel, "meta", "", "JSON metadata model file")
	flag.BoolVar(&opts.stats, "stats", false, "Print an expansion summary to stderr")
	flag.BoolVar(&opts.trace, "trace", false, "Log a span per expansion (debug level)")
	flag.BoolVar(&opts.list, "list", false, "List loaded definitions and fragments, then exit")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if opts.defs != "" {
		cfg.Registry.DefinitionsDir = opts.defs
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bbexpand: invalid log configuration: %v\n", err)
		logger = logging.NewNop()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger.Logger, os.Stdout); err != nil {
		logger.Error("Expansion failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log *zap.Logger, out io.Writer) error {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	engOpts := []engine.Option{
		engine.WithConfig(cfg.Engine),
		engine.WithLogger(log),
		engine.WithMetrics(metrics),
	}
	if opts.trace {
		tracer := tracing.New(log)
		defer tracer.Close()
		engOpts = append(engOpts, engine.WithTracer(tracer))
	}
	eng := engine.New(engOpts...)

	if dir := cfg.Registry.DefinitionsDir; dir != "" {
		loaded, failed, err := macro.NewLoader(eng.Registry(), log).LoadDir(dir, cfg.Registry.DefinitionsPattern)
		if err != nil {
			return fmt.Errorf("load definitions: %w", err)
		}
		metrics.SetRegisteredBlocks(eng.Registry().Len())
		log.Info("Definitions loaded", zap.Int("loaded", loaded), zap.Int("failed", failed))
	}

	library := memory.NewLibrary()
	if opts.fragments != "" {
		n, err := library.LoadDir(opts.fragments)
		if err != nil {
			return err
		}
		log.Info("Fragments loaded", zap.Int("count", n))
	}
	if opts.list {
		return listCatalog(out, eng.Registry(), library)
	}

	settings := host.NewSettings()
	if err := bindModel(settings, opts.modelName, opts.model); err != nil {
		return err
	}
	if err := bindModel(settings, host.MetaModel, opts.metaModel); err != nil {
		return err
	}

	doc, err := readView(opts.in)
	if err != nil {
		return err
	}

	v := memory.New(settings,
		memory.WithHandlers(eng),
		memory.WithFragments(library),
		memory.WithLogger(log))
	if err := v.VisitNode(ctx, doc); err != nil {
		return fmt.Errorf("visit view: %w", err)
	}

	if _, err := fmt.Fprintln(out, xmltree.Serialize(doc)); err != nil {
		return err
	}
	if opts.stats {
		fmt.Fprintln(os.Stderr, metrics.Snapshot().Summary())
	}
	return nil
}

// listCatalog prints one line per definition and fragment
func listCatalog(out io.Writer, registry *macro.Registry, library *memory.Library) error {
	for _, d := range registry.Definitions() {
		if _, err := fmt.Fprintf(out, "block\t{%s}%s\n", d.Namespace, d.Name); err != nil {
			return err
		}
	}
	for _, name := range library.Names() {
		if _, err := fmt.Fprintf(out, "fragment\t%s\n", name); err != nil {
			return err
		}
	}
	return nil
}

func bindModel(settings *host.Settings, name, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model %s: %w", path, err)
	}
	model, err := memory.LoadModel(name, data)
	if err != nil {
		return err
	}
	settings.Models[name] = model
	return nil
}

func readView(path string) (*xmltree.Node, error) {
	if path == "" {
		return xmltree.Parse(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open view: %w", err)
	}
	defer f.Close()

	doc, err := xmltree.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse view %s: %w", path, err)
	}
	return doc, nil
}
