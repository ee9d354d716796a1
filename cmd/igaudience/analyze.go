package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igaudience/pkg/pipeline"
	"igaudience/pkg/report"
	"igaudience/pkg/ui"
)

var (
	// Analyze command flags
	analysisType     string
	noLLM            bool
	qualityThreshold int
	targetsFile      string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <handle>",
	Short: "Analyze a brand and its audience, or a single user",
	Long: `Analyze one Instagram account and save a JSON report.

Business accounts are analyzed as brands: profile and recent posts, the scored
audience pool, ICP analysis of a sample of public audience members and
aggregated audience insights. Other accounts get an influence analysis.

Use --type to skip the account type detection.`,
	Example: `  # Detect the account type
  igaudience analyze nike

  # Force a user analysis without the language model
  igaudience analyze jo_lifts --type user --no-llm

  # Keep only strong candidates in the audience pool
  igaudience analyze adidas --quality-threshold 50`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analysisType, "type", "t", "", "analysis type: brand or user (default: detect)")
	analyzeCmd.Flags().BoolVar(&noLLM, "no-llm", false, "use rule-based analysis only")
	analyzeCmd.Flags().IntVar(&qualityThreshold, "quality-threshold", -1, "minimum candidate score, 0-100 (default from config)")
	analyzeCmd.Flags().StringVarP(&targetsFile, "file", "f", "", "brands file used to look up the brand name and URL")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	kind, err := pipeline.ParseKind(analysisType)
	if err != nil {
		return err
	}

	flags := map[string]interface{}{"no-llm": noLLM}
	if qualityThreshold >= 0 {
		flags["quality-threshold"] = qualityThreshold
	}
	cfg, log, err := loadConfig(flags)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle := args[0]
	threshold := float64(cfg.Collector.QualityThreshold)
	ui.PrintInfo("Target", handle)
	ui.PrintInfo("Analysis", a.analysisType())

	var res *pipeline.Result
	if target, ok := lookupTarget(targetsFile, handle); ok && kind != pipeline.KindUser {
		if kind == pipeline.KindBrand {
			target.Type = string(pipeline.KindBrand)
		}
		res, err = a.processor.ProcessTarget(ctx, target, threshold)
	} else {
		res, err = a.processor.Analyze(ctx, handle, kind, threshold)
	}

	if err != nil {
		if !pipeline.IsFailure(err) {
			return err
		}
		reportFailure(err)
		return nil
	}

	printResult(res)
	return nil
}

// lookupTarget finds handle in the brands file when one is given
func lookupTarget(path, handle string) (report.Target, bool) {
	if path == "" {
		return report.Target{}, false
	}
	targets, err := report.LoadBrands(path)
	if err != nil {
		ui.PrintWarning("Could not read brands file", err.Error())
		return report.Target{}, false
	}
	return report.FindTarget(targets, handle)
}

func reportFailure(err error) {
	ui.PrintError("Analysis failed", err.Error())
	var f *pipeline.Failure
	if errors.As(err, &f) && f.Path != "" {
		ui.PrintInfo("Error record", f.Path)
	}
}

func printResult(res *pipeline.Result) {
	switch res.Kind {
	case pipeline.KindBrand:
		rep := res.Brand
		ui.PrintSuccess(fmt.Sprintf("Brand analysis of @%s complete", rep.Brand.Handle))
		ui.PrintInfo("Audience", fmt.Sprintf("%d candidates (%s)", rep.Audience.TotalUniqueUsers, rep.Audience.Origin))
		ui.PrintInfo("ICP analyses", fmt.Sprintf("%d", len(rep.Audience.ICPData)))
	case pipeline.KindUser:
		rep := res.User
		ui.PrintSuccess(fmt.Sprintf("User analysis of @%s complete", rep.Username))
		ui.PrintInfo("Influence", rep.UserAnalysis.InfluenceCategory)
	}
	ui.PrintInfo("Report", res.Path)
}
