// grid-cwl-run executes CWL workflows against a grid replica catalog:
// logical file inputs resolve to physical replicas before each step, and
// replicas registered by a step propagate to the steps after it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/gridcwl/internal/config"
	"github.com/me/gridcwl/internal/controller"
	"github.com/me/gridcwl/internal/inputgen"
	"github.com/me/gridcwl/internal/logging"
	"github.com/me/gridcwl/internal/report"
	"github.com/me/gridcwl/internal/runner"
	"github.com/me/gridcwl/internal/sandbox"
	"github.com/me/gridcwl/internal/statusapi"
	"github.com/me/gridcwl/pkg/replica"
)

const version = "0.3.0-dev"

var (
	cfg             = config.DefaultRunConfig()
	verbose         bool
	quiet           bool
	nLFNs           int
	pickSmallest    bool
	forceRegenerate bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "grid-cwl-run [flags] <cwl-file> [job-file]",
		Short:   "CWL runner with grid replica catalog integration",
		Version: version,
		Long: `grid-cwl-run executes CWL tools and workflows on top of a replica catalog.

File inputs given as LFN: references are resolved to physical replicas
before each step runs, and catalog entries a step registers become visible
to every later step.

Examples:
  # Execute a workflow with inputs and a persisted catalog
  grid-cwl-run --catalog replicas.json workflow.cwl job.yml

  # Generate inputs from the workflow's production hint, then run
  grid-cwl-run --n-lfns 5 --pick-smallest-lfn production.cwl

  # Inspect a catalog document
  grid-cwl-run catalog show replicas.json
`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runExecute,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.OutDir, "outdir", cfg.OutDir, "Run output directory")
	rootCmd.PersistentFlags().StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Replica catalog to load and persist")
	rootCmd.PersistentFlags().StringVar(&cfg.ReportDB, "report-db", "", "SQLite status database (empty disables persistence)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text|json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output")

	rootCmd.Flags().BoolVar(&cfg.Parallel, "parallel", false, "Run independent steps concurrently")
	rootCmd.Flags().IntVarP(&cfg.Jobs, "jobs", "j", 0, "Maximum concurrent steps (0 = unlimited)")
	rootCmd.Flags().IntVar(&nLFNs, "n-lfns", 0, "Limit generated input datasets to N LFNs")
	rootCmd.Flags().BoolVar(&pickSmallest, "pick-smallest-lfn", false, "Select smallest files first when limiting LFNs")
	rootCmd.Flags().BoolVar(&forceRegenerate, "force-regenerate", false, "Regenerate inputs even when a job file is given")

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(sandboxCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := logging.LevelFromFlags(cfg.LogLevel, verbose, quiet)
	return logging.New(level, cfg.LogFormat)
}

func runExecute(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cwlPath := args[0]
	jobPath := ""
	if len(args) > 1 {
		jobPath = args[1]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt, cancelling...")
		cancel()
	}()

	doc, err := runner.LoadDocument(cwlPath)
	if err != nil {
		return err
	}

	ctrl := controller.New(logger)
	if err := ctrl.Init(cfg.CatalogPath); err != nil {
		return err
	}

	// Input generation from the workflow's production hint. Runs when no
	// job file is given, or when forced.
	if hint := inputgen.HintFromDocument(doc); hint != nil && (jobPath == "" || forceRegenerate) {
		reg := inputgen.NewRegistry(logger)
		result, err := reg.Generate(ctx, hint, inputgen.Request{
			WorkflowPath: cwlPath,
			OutputDir:    cfg.OutDir,
			NLFNs:        nLFNs,
			PickSmallest: pickSmallest,
		})
		if err != nil {
			return fmt.Errorf("input generation: %w", err)
		}
		if result.InputsPath != "" {
			jobPath = result.InputsPath
		}
		if result.CatalogPath != "" {
			generated, err := replica.Load(result.CatalogPath)
			if err != nil {
				return fmt.Errorf("load generated catalog: %w", err)
			}
			ctrl.MergeCatalog(generated)
		}
	}

	inputs, err := runner.LoadInputs(jobPath)
	if err != nil {
		return err
	}

	// Status reporting, persisted when a database is configured.
	var store report.Store
	if cfg.ReportDB != "" {
		st, err := report.NewSQLiteStore(cfg.ReportDB, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		store = st
	}
	rep, err := report.NewReport(ctx, store, filepath.Base(cwlPath), "grid-cwl-run", logger)
	if err != nil {
		return err
	}

	ctrl.SetMergeObserver(func(step string, result replica.MergeResult) {
		rep.RecordMerge(ctx, step, len(result.New), len(result.Updated))
	})

	r := runner.New(doc, filepath.Dir(cwlPath), ctrl, logger, runner.Options{
		OutDir:   cfg.OutDir,
		Parallel: cfg.Parallel,
		Jobs:     cfg.Jobs,
	})
	r.SetStepHook(func(step string, status runner.StepStatus, stepErr error) {
		switch status {
		case runner.StepRunning:
			rep.SetStatus(ctx, step, report.StatusRunning, report.MinorApplication, "")
		case runner.StepDone:
			rep.SetStatus(ctx, step, report.StatusDone, report.MinorExecComplete, "")
		case runner.StepFailed:
			app := ""
			if stepErr != nil {
				app = stepErr.Error()
			}
			rep.SetStatus(ctx, step, report.StatusFailed, report.MinorApplication, app)
		}
	})

	outputs, execErr := r.Execute(ctx, inputs)

	// The final catalog is persisted on success and failure alike; steps
	// that completed already registered their replicas.
	if cfg.CatalogPath != "" {
		if err := ctrl.Finalize(cfg.CatalogPath); err != nil && execErr == nil {
			execErr = err
		}
	}

	if execErr != nil {
		rep.Finish(ctx, report.StatusFailed)
		return execErr
	}
	rep.Finish(ctx, report.StatusDone)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(outputs)
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <cwl-file>",
		Short: "Validate a CWL document and its step graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := runner.LoadDocument(args[0])
			if err != nil {
				return err
			}
			switch doc.Class() {
			case "CommandLineTool":
			case "Workflow":
				steps, err := doc.Steps(filepath.Dir(args[0]))
				if err != nil {
					return err
				}
				if _, err := runner.BuildDAG(steps); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported document class %q", doc.Class())
			}

			if hint := inputgen.HintFromDocument(doc); hint != nil {
				logger := newLogger()
				reg := inputgen.NewRegistry(logger)
				p, err := reg.Lookup(hint.Plugin)
				if err != nil {
					return err
				}
				fmt.Printf("Production hint: %s (%s)\n", p.Name(), p.Description())
				for _, item := range p.FormatHintDisplay(hint.Config) {
					fmt.Printf("  %s: %s\n", item[0], item[1])
				}
			}
			fmt.Println("Document is valid")
			return nil
		},
	}
}

func catalogCmd() *cobra.Command {
	catalog := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and merge replica catalog documents",
	}

	catalog.AddCommand(&cobra.Command{
		Use:   "show <catalog-file>",
		Short: "Print a catalog document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := replica.Load(args[0])
			if err != nil {
				return err
			}
			data, err := cat.Marshal()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	})

	catalog.AddCommand(&cobra.Command{
		Use:   "merge <dst-file> <src-file>...",
		Short: "Merge catalog documents into the first one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := replica.Load(args[0])
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				dst = replica.New()
			}
			var added, updated int
			for _, src := range args[1:] {
				cat, err := replica.Load(src)
				if err != nil {
					return err
				}
				result := dst.MergeFrom(cat)
				added += len(result.New)
				updated += len(result.Updated)
			}
			if err := dst.Save(args[0]); err != nil {
				return err
			}
			fmt.Printf("Merged: %d new, %d updated, %d total\n", added, updated, len(dst))
			return nil
		},
	})

	return catalog
}

func statusCmd() *cobra.Command {
	status := &cobra.Command{
		Use:   "status",
		Short: "Run status inspection and serving",
	}

	serveCfg := config.DefaultServeConfig()
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			store, err := report.NewSQLiteStore(serveCfg.ReportDB, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}

			srv := statusapi.New(store, logger)
			logger.Info("serving status API", "addr", serveCfg.Addr, "db", serveCfg.ReportDB)
			return http.ListenAndServe(serveCfg.Addr, srv.Handler())
		},
	}
	serve.Flags().StringVar(&serveCfg.Addr, "addr", serveCfg.Addr, "Listen address")
	serve.Flags().StringVar(&serveCfg.ReportDB, "db", serveCfg.ReportDB, "SQLite status database")
	status.AddCommand(serve)

	var apiURL string
	runs := &cobra.Command{
		Use:   "runs",
		Short: "List runs tracked by a status API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := statusapi.NewClient(apiURL)
			runs, err := client.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Printf("%s  %-10s  %s\n", run.ID, run.Status, run.Workflow)
			}
			return nil
		},
	}
	runs.Flags().StringVar(&apiURL, "url", "http://localhost:8080", "Status API base URL")
	status.AddCommand(runs)

	return status
}

func sandboxCmd() *cobra.Command {
	sb := &cobra.Command{
		Use:   "sandbox",
		Short: "Upload and download job sandboxes",
	}

	sbCfg := config.DefaultSandboxConfig()
	addStoreFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&sbCfg.Backend, "backend", sbCfg.Backend, "Store backend (local|s3)")
		cmd.Flags().StringVar(&sbCfg.Dir, "store-dir", sbCfg.Dir, "Local store directory")
		cmd.Flags().StringVar(&sbCfg.Bucket, "s3-bucket", "", "S3 bucket")
		cmd.Flags().StringVar(&sbCfg.Region, "s3-region", "", "S3 region")
		cmd.Flags().StringVar(&sbCfg.Endpoint, "s3-endpoint", "", "Custom S3 endpoint")
		cmd.Flags().StringVar(&sbCfg.Prefix, "s3-prefix", "", "S3 key prefix")
	}
	newStore := func(ctx context.Context, logger *slog.Logger) (sandbox.Store, error) {
		switch sbCfg.Backend {
		case "s3":
			return sandbox.NewS3Store(ctx, sandbox.S3Config{
				Bucket:   sbCfg.Bucket,
				Region:   sbCfg.Region,
				Endpoint: sbCfg.Endpoint,
				Prefix:   sbCfg.Prefix,
			}, logger)
		case "local":
			return sandbox.NewLocalStore(sbCfg.Dir, logger), nil
		default:
			return nil, fmt.Errorf("unknown sandbox backend %q", sbCfg.Backend)
		}
	}

	upload := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files as one sandbox archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			store, err := newStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			ref, err := store.Upload(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Println(ref)
			return nil
		},
	}
	addStoreFlags(upload)
	sb.AddCommand(upload)

	download := &cobra.Command{
		Use:   "download <ref> <destination>",
		Short: "Download and extract a sandbox archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			store, err := newStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			return store.Download(cmd.Context(), args[0], args[1])
		},
	}
	addStoreFlags(download)
	sb.AddCommand(download)

	return sb
}
