package main

import (
	"fmt"

	"igaudience/pkg/analysis"
	"igaudience/pkg/apify"
	"igaudience/pkg/audience"
	"igaudience/pkg/cache"
	"igaudience/pkg/config"
	"igaudience/pkg/instagram"
	"igaudience/pkg/logger"
	"igaudience/pkg/metrics"
	"igaudience/pkg/pipeline"
	"igaudience/pkg/ratelimit"
	"igaudience/pkg/report"
	"igaudience/pkg/ui"
)

// app holds the wired components shared by the commands
type app struct {
	cfg       *config.Config
	log       logger.Logger
	cache     cache.Cache
	source    *instagram.Source
	collector *audience.Collector
	analyst   *analysis.Service
	store     *report.FileStore
	processor *pipeline.Processor
}

// newApp builds the scraper stack, the analysis service and the report
// store from cfg. The Apify token must be present.
func newApp(cfg *config.Config, log logger.Logger) (*app, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}

	c, err := cache.New(cfg.Cache, cache.Options{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	client := apify.NewClient(cfg.Apify, apify.WithLogger(log))
	limiter := ratelimit.NewEndpointLimiter(
		ratelimit.WithOverrides(cfg.RateLimit.Delays),
		ratelimit.WithWaitObserver(metrics.ObserveRateLimitWait),
	)
	source := instagram.NewSource(client, limiter, c, instagram.WithSourceLogger(log))
	collector := audience.NewCollector(source, c, audience.SettingsFromConfig(cfg.Collector), log)

	store, err := report.NewFileStore(cfg.Output.ResultsDirectory, report.WithLogger(log))
	if err != nil {
		return nil, err
	}

	analyst := newAnalyst(cfg, log)
	processor := pipeline.New(source, collector, analyst, store, cfg.Collector,
		pipeline.WithProgress(ui.StepPrinter{}),
		pipeline.WithLogger(log),
	)

	return &app{
		cfg:       cfg,
		log:       log,
		cache:     c,
		source:    source,
		collector: collector,
		analyst:   analyst,
		store:     store,
		processor: processor,
	}, nil
}

func newAnalyst(cfg *config.Config, log logger.Logger) *analysis.Service {
	opts := []analysis.ServiceOption{
		analysis.WithModel(cfg.LLM.Model),
		analysis.WithServiceLogger(log),
	}
	if !cfg.LLMAvailable() {
		log.Info("LLM unavailable, using rule-based analysis")
		return analysis.NewService(nil, opts...)
	}
	opts = append(opts, analysis.WithImages(instagram.NewImageFetcher(log)))
	analyzer := analysis.NewOpenAIAnalyzer(cfg.LLM, analysis.WithAnalyzerLogger(log))
	return analysis.NewService(analyzer, opts...)
}

// analysisType names the approach recorded in report metadata
func (a *app) analysisType() string {
	if a.analyst.UsesLLM() {
		return pipeline.AnalysisTypeLLM
	}
	return pipeline.AnalysisTypeRuleBased
}
