package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igaudience/pkg/config"
	"igaudience/pkg/credentials"
	"igaudience/pkg/logger"
	"igaudience/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igaudience",
	Short: "Find and profile the engaged audience of Instagram brands",
	Long: `igaudience collects the people who engage with an Instagram brand, scores
them as likely real customers, and writes brand and user analysis reports.

Data is fetched through Apify actors. Analyses use an OpenAI model when an API
key is configured and fall back to rule-based heuristics otherwise.

Credentials are read from:
  - Stored secrets (igaudience auth set apify|openai)
  - Environment variables (APIFY_API_KEY, OPENAI_API_KEY)
  - Configuration file`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}

		switch cmd.Name() {
		case "version", "help", "completion", "show":
		default:
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ~/.config/igaudience/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`igaudience {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig merges the config sources, starts logging and fills missing
// tokens from the credential store.
func loadConfig(flags map[string]interface{}) (*config.Config, logger.Logger, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	if cfg.Apify.Token == "" || cfg.LLM.APIKey == "" {
		manager, err := credentials.NewManager()
		if err != nil {
			log.WithError(err).Warn("Credential store unavailable")
		} else {
			fillCredentials(cfg, manager, log)
		}
	}

	return cfg, log, nil
}

type tokenSource interface {
	Token(service string) string
}

func fillCredentials(cfg *config.Config, src tokenSource, log logger.Logger) {
	if cfg.Apify.Token == "" {
		if token := src.Token(credentials.ServiceApify); token != "" {
			cfg.Apify.Token = token
			log.Debug("Using stored Apify token")
		}
	}
	if cfg.LLM.APIKey == "" {
		if key := src.Token(credentials.ServiceOpenAI); key != "" {
			cfg.LLM.APIKey = key
			log.Debug("Using stored OpenAI key")
		}
	}
}
