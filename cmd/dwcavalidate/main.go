// Command dwcavalidate runs the set-membership and cross-stream integrity
// core against a newline-delimited JSON record stream, reporting every
// uniqueness and referential-integrity finding to a chosen accumulator
// backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dwcavalidate/internal/accum"
	"dwcavalidate/internal/intake"
	"dwcavalidate/internal/mcpserver"
	"dwcavalidate/internal/validate"
	"dwcavalidate/internal/watch"
)

type config struct {
	recordsPath   string
	workingFolder string

	coreUniqueTerm string
	extRefTerm     string
	extRefSep      string

	accumulatorKind string
	accumulatorDSN  string
	accumulatorPath string

	watchPath string
	cronExpr  string
	serveMCP  bool
}

func parseFlags() config {
	var c config
	flag.StringVar(&c.recordsPath, "records", "", "path to a newline-delimited JSON record stream (required)")
	flag.StringVar(&c.workingFolder, "work-dir", os.TempDir(), "directory for spill and sort temp files")
	flag.StringVar(&c.coreUniqueTerm, "unique-term", "", "short name of the core term checked for uniqueness (empty uses the record ID)")
	flag.StringVar(&c.extRefTerm, "ref-term", "", "short name of the extension term checked for referential integrity against the core uniqueness index")
	flag.StringVar(&c.extRefSep, "ref-separator", "", "multi-value separator for the reference term, if any")
	flag.StringVar(&c.accumulatorKind, "accumulator", "memory", "findings backend: memory, csv, sqlite, mysql, postgres, or mongo")
	flag.StringVar(&c.accumulatorDSN, "dsn", "", "DSN/URI for sqlite, mysql, postgres, or mongo accumulators")
	flag.StringVar(&c.accumulatorPath, "out", "findings.csv", "output path for the csv accumulator")
	flag.StringVar(&c.watchPath, "watch", "", "path to watch for changes; each change re-runs validation")
	flag.StringVar(&c.cronExpr, "schedule", "", "five-field cron expression; fires a revalidation run on schedule")
	flag.BoolVar(&c.serveMCP, "mcp", false, "serve an MCP tool server over stdio instead of running once")
	flag.Parse()
	return c
}

func main() {
	cfg := parseFlags()
	if cfg.recordsPath == "" && !cfg.serveMCP {
		fmt.Fprintln(os.Stderr, "dwcavalidate: -records is required unless -mcp is set")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runOnce := func(ctx context.Context) (*validate.MemoryAccumulator, error) {
		return runValidation(cfg)
	}

	switch {
	case cfg.serveMCP:
		srv := mcpserver.New(runOnce)
		if err := srv.ServeStdio(); err != nil {
			log.Fatalf("dwcavalidate: mcp server: %v", err)
		}
	case cfg.watchPath != "" || cfg.cronExpr != "":
		w := watch.New(func(ctx context.Context) error {
			_, err := runValidation(cfg)
			return err
		})
		defer w.Stop()

		if cfg.watchPath != "" {
			if err := w.WatchPath(ctx, cfg.watchPath); err != nil {
				log.Fatalf("dwcavalidate: %v", err)
			}
		}
		if cfg.cronExpr != "" {
			if err := w.Schedule(ctx, cfg.cronExpr); err != nil {
				log.Fatalf("dwcavalidate: %v", err)
			}
		}
		<-ctx.Done()
	default:
		mem, err := runOnce(ctx)
		if err != nil {
			log.Fatalf("dwcavalidate: %v", err)
		}
		fmt.Printf("dwcavalidate: %d finding(s)\n", len(mem.Findings))
	}
}

// runValidation builds a fresh evaluator set and intake source from cfg,
// runs one full pass, and returns the in-memory accumulator it collected
// findings into (even when the configured backend is a durable one,
// runValidation always keeps a MemoryAccumulator around so -mcp's
// list_findings tool has something to read back).
func runValidation(cfg config) (*validate.MemoryAccumulator, error) {
	src, err := intake.Open(cfg.recordsPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var uniqueTerm *validate.Term
	if cfg.coreUniqueTerm != "" {
		t := validate.NewTerm(cfg.coreUniqueTerm, "")
		uniqueTerm = &t
	}

	if !validate.KnownEvaluatorKey(validate.UniquenessKey) || !validate.KnownEvaluatorKey(validate.ReferentialKey) {
		return nil, fmt.Errorf("build evaluators: required evaluator keys are not registered")
	}

	uniq, err := validate.NewUniqueness(validate.UniquenessConfig{
		Context:       validate.Core,
		Term:          uniqueTerm,
		WorkingFolder: cfg.workingFolder,
	})
	if err != nil {
		return nil, fmt.Errorf("build uniqueness evaluator: %w", err)
	}

	stages := []validate.Stage{{Evaluators: []validate.StatefulEvaluator{uniq}}}

	if cfg.extRefTerm != "" {
		refTerm := validate.NewTerm(cfg.extRefTerm, "")
		ref, err := validate.NewReferential(validate.ReferentialConfig{
			SourceTerm:    refTerm,
			SourceContext: validate.Extension,
			Target:        validate.BindTarget(uniq),
			MultiValueSep: cfg.extRefSep,
			WorkingFolder: cfg.workingFolder,
		})
		if err != nil {
			return nil, fmt.Errorf("build referential evaluator: %w", err)
		}
		stages = append(stages, validate.Stage{Evaluators: []validate.StatefulEvaluator{ref}})
	}

	mem := validate.NewMemoryAccumulator()
	backend, err := buildBackend(cfg)
	if err != nil {
		return nil, err
	}
	var acc validate.Accumulator = mem
	if backend != nil {
		defer backend.Close()
		acc = fanOutAccumulator{mem, backend}
	}

	if err := validate.Run(src, acc, stages); err != nil {
		return mem, err
	}
	return mem, nil
}

// durableAccumulator is any accumulator backed by a resource that needs
// closing once the run completes.
type durableAccumulator interface {
	validate.Accumulator
	Close() error
}

func buildBackend(cfg config) (durableAccumulator, error) {
	switch strings.ToLower(cfg.accumulatorKind) {
	case "", "memory":
		return nil, nil
	case "csv":
		return accum.NewCSVAccumulator(cfg.accumulatorPath)
	case "sqlite", "mysql", "postgres":
		driver := strings.ToLower(cfg.accumulatorKind)
		return accum.NewSQLAccumulator(accum.SQLConfig{Driver: driver, DSN: cfg.accumulatorDSN})
	case "mongo":
		return accum.NewMongoAccumulator(accum.MongoConfig{URI: cfg.accumulatorDSN, Database: "dwcavalidate"})
	default:
		return nil, fmt.Errorf("unknown accumulator backend: %s", cfg.accumulatorKind)
	}
}

// fanOutAccumulator reports every finding to both the in-memory copy kept
// for -mcp's list_findings tool and the durable backend the user selected.
type fanOutAccumulator struct {
	mem     *validate.MemoryAccumulator
	backend durableAccumulator
}

func (f fanOutAccumulator) Accept(finding validate.Finding) {
	f.mem.Accept(finding)
	f.backend.Accept(finding)
}
