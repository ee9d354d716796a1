package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"igaudience/pkg/config"
	errs "igaudience/pkg/errors"
	"igaudience/pkg/logger"
	"igaudience/pkg/retry"
)

const (
	defaultRequestTimeout = 120 * time.Second
	jsonInstruction       = "Please respond with a valid JSON object only. Format your entire response as a valid JSON that can be parsed by JSON.parse()."
)

// Part is one piece of prompt content. Exactly one of Text or Image is set.
type Part struct {
	Text     string
	Image    []byte
	MIMEType string
}

// TextPart wraps a text prompt
func TextPart(text string) Part { return Part{Text: text} }

// ImagePart wraps inline image bytes
func ImagePart(data []byte, mimeType string) Part {
	return Part{Image: data, MIMEType: mimeType}
}

func (p Part) isImage() bool { return len(p.Image) > 0 }

// TextAnalyzer sends prompt parts to a language model and returns the JSON
// object it answered with. It never returns an error: failures come back as
// a Response carrying the error marker.
type TextAnalyzer interface {
	AnalyzeJSON(ctx context.Context, model string, parts []Part) Response
}

// OpenAIAnalyzer implements TextAnalyzer on the OpenAI chat completions API.
// Any OpenAI-compatible endpoint works through llm.base_url.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
	retry  *retry.Config
	logger logger.Logger
}

// AnalyzerOption configures an OpenAIAnalyzer
type AnalyzerOption func(*OpenAIAnalyzer)

// WithAnalyzerRetry replaces the retry policy
func WithAnalyzerRetry(cfg *retry.Config) AnalyzerOption {
	return func(a *OpenAIAnalyzer) { a.retry = cfg }
}

// WithAnalyzerLogger sets the analyzer logger
func WithAnalyzerLogger(l logger.Logger) AnalyzerOption {
	return func(a *OpenAIAnalyzer) { a.logger = l }
}

// NewOpenAIAnalyzer creates an analyzer from the llm configuration section
func NewOpenAIAnalyzer(cfg config.LLMConfig, opts ...AnalyzerOption) *OpenAIAnalyzer {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}

	attempts := cfg.Retries
	if attempts <= 0 {
		attempts = 1
	}

	a := &OpenAIAnalyzer{
		client: openai.NewClientWithConfig(cc),
		model:  cfg.Model,
		retry: &retry.Config{
			MaxAttempts: attempts,
			Backoff: &retry.ByErrorType{
				Network:   &retry.ConstantBackoff{Delay: 2 * time.Second},
				RateLimit: retry.DefaultByErrorType().RateLimit,
				Server:    &retry.ConstantBackoff{Delay: 2 * time.Second},
				Default:   &retry.ConstantBackoff{Delay: 2 * time.Second},
			},
			RetryIf: retryAnalysis,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logger.OrDefault(a.logger)
	if a.retry.Logger == nil {
		a.retry.Logger = a.logger
	}
	if a.retry.RetryIf == nil {
		a.retry.RetryIf = retryAnalysis
	}
	return a
}

// retryAnalysis retries transport failures and unparseable answers. Bad
// credentials and cancellation are final.
func retryAnalysis(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch errs.TypeOf(err) {
	case errs.ErrorTypeAuth, errs.ErrorTypeConfig, errs.ErrorTypeInvalidArgument, errs.ErrorTypeNotFound:
		return false
	}
	return true
}

// AnalyzeJSON implements TextAnalyzer
func (a *OpenAIAnalyzer) AnalyzeJSON(ctx context.Context, model string, parts []Part) Response {
	if model == "" {
		model = a.model
	}
	if model == "" {
		return failure(errs.New(errs.ErrorTypeConfig, "analysis.AnalyzeJSON", "no model configured"), "")
	}
	if len(parts) == 0 {
		return failure(errs.New(errs.ErrorTypeInvalidArgument, "analysis.AnalyzeJSON", "empty prompt"), "")
	}

	msg := buildMessage(parts)
	var raw string

	start := time.Now()
	obj, err := retry.DoWithResult(ctx, a.retry, func(ctx context.Context) (map[string]interface{}, error) {
		content, err := a.complete(ctx, model, msg)
		if err != nil {
			return nil, err
		}
		raw = content
		return ExtractJSON(content)
	})

	fields := map[string]interface{}{
		"model":       model,
		"parts":       len(parts),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		a.logger.WarnWithFields("Language model analysis failed", fields)
		return failure(err, raw)
	}
	a.logger.DebugWithFields("Language model analysis complete", fields)
	return Response(obj)
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, model string, msg openai.ChatCompletionMessage) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a social media analyst. " + jsonInstruction},
			msg,
		},
		Temperature: 0.2,
		TopP:        0.95,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errs.New(errs.ErrorTypeParsing, "analysis.complete", "model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// buildMessage turns prompt parts into one user message. Text-only prompts
// use plain content; prompts with images use multi-part content with base64
// data URLs.
func buildMessage(parts []Part) openai.ChatCompletionMessage {
	var texts []string
	hasImage := false
	for _, p := range parts {
		if p.isImage() {
			hasImage = true
			continue
		}
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}

	prompt := strings.Join(texts, "\n")
	lower := strings.ToLower(prompt)
	if !strings.Contains(lower, "return a json") && !strings.Contains(lower, "respond with json") {
		prompt += "\n\n" + jsonInstruction
	}

	if !hasImage {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}
	}

	multi := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, p := range parts {
		if !p.isImage() {
			continue
		}
		multi = append(multi, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL(p),
				Detail: openai.ImageURLDetailLow,
			},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: multi}
}

func dataURL(p Part) string {
	mime := p.MIMEType
	if mime == "" {
		mime = http.DetectContentType(p.Image)
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(p.Image))
}

func classifyOpenAIError(err error) error {
	const op = "analysis.complete"

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrorTypeTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := errs.FromStatusCode(op, apiErr.HTTPStatusCode, apiErr.Message)
		e.Err = err
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := errs.FromStatusCode(op, reqErr.HTTPStatusCode, reqErr.Error())
		e.Err = err
		return e
	}
	return errs.Wrap(errs.ErrorTypeNetwork, op, err)
}

// ExtractJSON parses the JSON object in a model answer. Markdown code fences
// are stripped first; if that still does not parse, the outermost {...} span
// is tried.
func ExtractJSON(text string) (map[string]interface{}, error) {
	const op = "analysis.ExtractJSON"

	body := strings.TrimSpace(text)
	if i := strings.Index(body, "```json"); i >= 0 {
		body = fenced(body[i+len("```json"):])
	} else if i := strings.Index(body, "```"); i >= 0 {
		body = fenced(body[i+len("```"):])
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(body), &obj); err == nil && obj != nil {
		return obj, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		obj = nil
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err == nil && obj != nil {
			return obj, nil
		}
	}

	return nil, errs.New(errs.ErrorTypeParsing, op, "response does not contain a JSON object")
}

func fenced(s string) string {
	if j := strings.Index(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}
