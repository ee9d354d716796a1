package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"igaudience/pkg/checkpoint"
	"igaudience/pkg/config"
	"igaudience/pkg/logger"
	"igaudience/pkg/metrics"
	"igaudience/pkg/pipeline"
	"igaudience/pkg/report"
	"igaudience/pkg/ui"
)

var (
	// Brands command flags
	brandsFile   string
	resumeBatch  bool
	forceRestart bool
	metricsAddr  string
	batchNoLLM   bool
)

// brandsCmd represents the brands command
var brandsCmd = &cobra.Command{
	Use:   "brands",
	Short: "Work with the brands file",
	Long: `Run analyses for every account listed in a brands file.

The file is YAML or JSON. Entries are bare handles or objects with name, url,
instagram_handle and an optional type (brand or user). A sample file is
created on first use.`,
}

// brandsListCmd represents the brands list command
var brandsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the accounts in the brands file",
	RunE:  runBrandsList,
}

// brandsRunCmd represents the brands run command
var brandsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze every account in the brands file",
	Long: `Analyze every account in the brands file in order.

Progress is checkpointed after each account. With --resume, accounts that
completed in an earlier run are skipped and failed ones are retried.`,
	Example: `  # Run the default brands file
  igaudience brands run

  # Resume an interrupted batch and expose Prometheus metrics
  igaudience brands run --file brands.yaml --resume --metrics-addr :9090

  # Start over, discarding the checkpoint
  igaudience brands run --force-restart`,
	RunE: runBrandsRun,
}

func init() {
	rootCmd.AddCommand(brandsCmd)
	brandsCmd.AddCommand(brandsListCmd)
	brandsCmd.AddCommand(brandsRunCmd)

	brandsCmd.PersistentFlags().StringVarP(&brandsFile, "file", "f", "", "brands file (default from config)")
	brandsRunCmd.Flags().BoolVar(&resumeBatch, "resume", false, "resume from the last checkpoint")
	brandsRunCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard the existing checkpoint")
	brandsRunCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	brandsRunCmd.Flags().BoolVar(&batchNoLLM, "no-llm", false, "use rule-based analysis only")
}

// loadTargets reads the brands file, creating the sample when it is missing
func loadTargets(cfg *config.Config) (string, []report.Target, error) {
	path := brandsFile
	if path == "" {
		path = cfg.Output.BrandsFile
	}

	created, err := report.WriteSampleBrands(path)
	if err != nil {
		return path, nil, err
	}
	if created {
		ui.PrintWarning("Brands file not found, created a sample", path)
	}

	targets, err := report.LoadBrands(path)
	if err != nil {
		return path, nil, fmt.Errorf("failed to load brands file: %w", err)
	}
	return path, targets, nil
}

func runBrandsList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}
	path, targets, err := loadTargets(cfg)
	if err != nil {
		return err
	}

	ui.PrintInfo("Brands file", path)
	for i, t := range targets {
		kind := t.Type
		if kind == "" {
			kind = "auto"
		}
		ui.Println(fmt.Sprintf("%3d. %-28s @%-30s %s", i+1, t.DisplayName(), t.Handle, kind))
	}
	ui.PrintSuccess(fmt.Sprintf("%d accounts", len(targets)))
	return nil
}

func runBrandsRun(cmd *cobra.Command, args []string) error {
	if resumeBatch && forceRestart {
		return fmt.Errorf("--resume and --force-restart cannot be used together")
	}

	cfg, log, err := loadConfig(map[string]interface{}{"no-llm": batchNoLLM})
	if err != nil {
		return err
	}
	path, targets, err := loadTargets(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
		ui.PrintInfo("Metrics", "http://"+metricsAddr+"/metrics")
	}

	mgr, err := checkpoint.NewManager(checkpoint.BatchName(path), checkpoint.WithLogger(log))
	if err != nil {
		return err
	}
	batch := &batchRun{
		processor:   a.processor,
		checkpoints: mgr,
		threshold:   float64(cfg.Collector.QualityThreshold),
		clock:       clockwork.NewRealClock(),
		logger:      log,
	}

	ui.PrintInfo("Brands file", path)
	ui.PrintInfo("Analysis", a.analysisType())
	bt, err := batch.run(ctx, checkpoint.BatchName(path), targets, resumeBatch, forceRestart)
	if err != nil {
		return err
	}

	ui.PrintSuccess(bt.Summary())
	ui.NewNotifier().BatchFinished(checkpoint.BatchName(path), bt)
	return nil
}

// targetProcessor is the part of pipeline.Processor a batch needs
type targetProcessor interface {
	ProcessTarget(ctx context.Context, target report.Target, threshold float64) (*pipeline.Result, error)
}

// batchRun processes targets in order, recording each outcome in the
// checkpoint as soon as it is known.
type batchRun struct {
	processor   targetProcessor
	checkpoints *checkpoint.Manager
	threshold   float64
	clock       clockwork.Clock
	logger      logger.Logger
}

func (b *batchRun) run(ctx context.Context, name string, targets []report.Target, resume, restart bool) (*ui.BatchTracker, error) {
	if restart {
		if err := b.checkpoints.BackupCheckpoint(); err != nil {
			b.logger.WithError(err).Warn("Failed to back up checkpoint")
		}
		if err := b.checkpoints.Delete(); err != nil {
			return nil, err
		}
	}

	var cp *checkpoint.Checkpoint
	var err error
	if resume {
		var resumed bool
		cp, resumed, err = b.checkpoints.LoadOrCreate(name, len(targets))
		if err == nil && resumed {
			ui.PrintInfo("Resuming", fmt.Sprintf("%d completed, %d failed previously", len(cp.Completed), len(cp.Failed)))
		}
	} else {
		cp, err = b.checkpoints.Create(name, len(targets))
	}
	if err != nil {
		return nil, err
	}

	bt := ui.NewBatchTracker(len(targets), b.clock)
	for _, t := range targets {
		if ctx.Err() != nil {
			b.logger.Warn("Batch interrupted")
			break
		}
		if cp.IsCompleted(t.Handle) {
			bt.Skip()
			continue
		}

		ui.PrintHighlight(fmt.Sprintf("%s %s", bt.Bar(), t.DisplayName()))
		res, err := b.processor.ProcessTarget(ctx, t, b.threshold)
		if err != nil {
			ui.PrintError(fmt.Sprintf("@%s failed", t.Handle), err.Error())
			if cerr := b.checkpoints.RecordFailed(cp, t.Handle, err); cerr != nil {
				return bt, cerr
			}
			bt.Record(false)
			continue
		}

		ui.PrintInfo("Report", res.Path)
		if cerr := b.checkpoints.RecordCompleted(cp, t.Handle, res.Path); cerr != nil {
			return bt, cerr
		}
		bt.Record(true)
	}

	bt.PrintProgress()
	return bt, nil
}
