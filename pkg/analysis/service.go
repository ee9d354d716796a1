package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"igaudience/pkg/instagram"
	"igaudience/pkg/logger"
)

// Method names how an analysis result was produced
type Method string

const (
	MethodLLM       Method = "llm"
	MethodRuleBased Method = "rule-based"
	MethodFallback  Method = "fallback"
	MethodGeneral   Method = "general_recommendations"
)

// maxPromptImages caps how many post images go into a brand prompt
const maxPromptImages = 3

// ImageSource downloads post images for multimodal prompts
type ImageSource interface {
	Fetch(ctx context.Context, url string) (*instagram.Image, error)
}

// Meta is attached to every analysis result
type Meta struct {
	Method            Method    `json:"analysis_method"`
	AnalyzedAt        time.Time `json:"analysis_timestamp"`
	Error             string    `json:"error,omitempty"`
	FallbackGenerated bool      `json:"fallback_generated,omitempty"`
	// LLM holds the model's full answer when one was used
	LLM Response `json:"llm_response,omitempty"`
}

// Service runs brand and user analyses. With an analyzer it asks the language
// model and falls back to fixed structures on failure; without one every
// analysis is rule-based.
type Service struct {
	analyzer TextAnalyzer
	model    string
	images   ImageSource
	clock    clockwork.Clock
	logger   logger.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithModel sets the model name passed to the analyzer
func WithModel(model string) ServiceOption {
	return func(s *Service) { s.model = model }
}

// WithImages enables post images in brand prompts
func WithImages(images ImageSource) ServiceOption {
	return func(s *Service) { s.images = images }
}

// WithServiceClock sets the clock used for analysis timestamps
func WithServiceClock(clock clockwork.Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithServiceLogger sets the service logger
func WithServiceLogger(l logger.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates an analysis service. A nil analyzer selects rule-based
// analysis throughout.
func NewService(analyzer TextAnalyzer, opts ...ServiceOption) *Service {
	s := &Service{analyzer: analyzer}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	s.logger = logger.OrDefault(s.logger)
	return s
}

// UsesLLM reports whether analyses go through the language model
func (s *Service) UsesLLM() bool {
	return s.analyzer != nil
}

func (s *Service) meta(method Method) Meta {
	return Meta{Method: method, AnalyzedAt: s.clock.Now().UTC()}
}

func (s *Service) fallbackMeta(resp Response) Meta {
	m := s.meta(MethodFallback)
	m.Error = resp.ErrorMessage()
	m.FallbackGenerated = true
	return m
}

func (s *Service) ask(ctx context.Context, kind, subject string, parts []Part) Response {
	resp := s.analyzer.AnalyzeJSON(ctx, s.model, parts)
	if resp.Failed() {
		s.logger.WarnWithFields("Analysis fell back to default structure", map[string]interface{}{
			"kind":    kind,
			"subject": subject,
			"error":   resp.ErrorMessage(),
		})
	}
	return resp
}

func captionSample(posts []instagram.Post, n, maxRunes int) []string {
	var out []string
	for _, p := range posts {
		if len(out) == n {
			break
		}
		c := strings.TrimSpace(p.Caption)
		if c == "" {
			continue
		}
		if r := []rune(c); len(r) > maxRunes {
			c = string(r[:maxRunes]) + "..."
		}
		out = append(out, c)
	}
	return out
}

func writeCaptions(b *strings.Builder, captions []string) {
	b.WriteString("Sample post captions:\n")
	if len(captions) == 0 {
		b.WriteString("No captions available\n")
		return
	}
	for _, c := range captions {
		fmt.Fprintf(b, "- %s\n", c)
	}
}

func countOrUnknown(n int) string {
	if n == 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%d", n)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func listOrDefault(v []string, def ...string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

func containsAnyWord(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
