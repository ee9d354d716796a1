package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igaudience/pkg/audience"
	"igaudience/pkg/instagram"
	"igaudience/pkg/ui"
)

var (
	// Collect command flags
	collectLimit     int
	collectThreshold int
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect <handle>",
	Short: "Collect and rank a brand's engaged audience",
	Long: `Collect the audience pool of a brand without running any analysis.

Commenters on the brand's recent posts are scored first. When too few pass the
quality threshold, posts under the brand's hashtags are searched. A cached
pool is used when scraping yields nothing.`,
	Example: `  igaudience collect nike
  igaudience collect adidas --limit 50 --quality-threshold 40`,
	Args: cobra.ExactArgs(1),
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().IntVarP(&collectLimit, "limit", "l", 0, "maximum pool size (default from config)")
	collectCmd.Flags().IntVar(&collectThreshold, "quality-threshold", -1, "minimum candidate score, 0-100 (default from config)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	handle := instagram.SanitizeUsername(args[0])
	if !instagram.IsValidUsername(handle) {
		return fmt.Errorf("invalid Instagram handle %q", args[0])
	}

	flags := map[string]interface{}{"no-llm": true}
	if collectLimit > 0 {
		flags["limit"] = collectLimit
	}
	if collectThreshold >= 0 {
		flags["quality-threshold"] = collectThreshold
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

	ui.PrintInfo("Brand", "@"+handle)
	res, err := a.collector.Collect(ctx, handle, cfg.Collector.AudienceLimit, float64(cfg.Collector.QualityThreshold))
	if err != nil {
		ui.PrintError("Collection failed", err.Error())
		return nil
	}

	printPool(res)
	return nil
}

func printPool(res *audience.Result) {
	ui.PrintInfo("Origin", string(res.Origin))
	ui.PrintInfo("Threshold", fmt.Sprintf("%.0f", res.EffectiveThreshold))
	if len(res.Candidates) == 0 {
		ui.PrintWarning("No audience members found")
		return
	}

	ui.Println(fmt.Sprintf("%-4s %-30s %6s  %-16s %s", "#", "USERNAME", "SCORE", "LABEL", "SOURCE"))
	for i, c := range res.Candidates {
		ui.Println(fmt.Sprintf("%-4d %-30s %6.1f  %-16s %s", i+1, c.Username, c.Score, c.Label, c.Source))
	}
	ui.PrintSuccess(fmt.Sprintf("%d candidates", len(res.Candidates)))
}
