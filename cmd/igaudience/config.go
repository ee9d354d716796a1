package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igaudience/pkg/config"
	"igaudience/pkg/credentials"
	"igaudience/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igaudience configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the defaults",
	Long: `Create a configuration file holding every option at its default value.

The file is written to ~/.config/igaudience/config.yaml unless a different
path is given with --config. Tokens are not written; store them with
'igaudience auth set'.`,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. Tokens are masked.`,
	RunE:  runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Configuration file already exists", path)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", path)
		return fmt.Errorf("configuration file already exists")
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your Apify token with 'igaudience auth set apify'")
	fmt.Println("2. Optionally store an OpenAI key with 'igaudience auth set openai'")
	fmt.Println("3. Run 'igaudience config validate' to check the configuration")
	fmt.Println("4. Start with 'igaudience analyze <handle>'")
	return nil
}

// maskedConfig returns a copy of cfg safe to print
func maskedConfig(cfg *config.Config) config.Config {
	display := *cfg
	if display.Apify.Token != "" {
		display.Apify.Token = credentials.Mask(display.Apify.Token)
	}
	if display.LLM.APIKey != "" {
		display.LLM.APIKey = credentials.Mask(display.LLM.APIKey)
	}
	if display.Cache.Redis.Password != "" {
		display.Cache.Redis.Password = "********"
	}
	return display
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := maskedConfig(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Print(string(data))
	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (IGAUDIENCE_*, APIFY_API_KEY, OPENAI_API_KEY)")
	fmt.Println("3. .env files")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (first found in search paths)")
	}
	fmt.Println("5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		for _, p := range config.SearchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		ui.PrintInfo("Validating configuration", path)
	} else {
		ui.PrintInfo("Validating configuration", "defaults and environment")
	}

	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}

	var warnings, problems []string
	if err := cfg.ValidateCredentials(); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.LLM.Enabled && cfg.LLM.APIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured, analyses will be rule-based")
	}
	if err := os.MkdirAll(cfg.Output.ResultsDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create results directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("configuration is invalid")
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Results directory: %s\n", cfg.Output.ResultsDirectory)
	fmt.Printf("  Brands file: %s\n", cfg.Output.BrandsFile)
	fmt.Printf("  Cache backend: %s (TTL %s)\n", cfg.Cache.Backend, cfg.Cache.TTL)
	fmt.Printf("  Quality threshold: %d\n", cfg.Collector.QualityThreshold)
	fmt.Printf("  Audience limit: %d\n", cfg.Collector.AudienceLimit)
	fmt.Printf("  LLM: %s (%v)\n", cfg.LLM.Model, cfg.LLMAvailable())
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
