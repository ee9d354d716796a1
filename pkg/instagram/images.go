package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errs "igaudience/pkg/errors"
	"igaudience/pkg/logger"
	"igaudience/pkg/retry"
)

// MaxImageBytes caps a downloaded post image
const MaxImageBytes = 8 << 20

// Image is a downloaded post image ready to inline into an analysis prompt
type Image struct {
	URL      string
	MIMEType string
	Data     []byte
}

// ImageFetcher downloads post display images
type ImageFetcher struct {
	httpClient *http.Client
	retry      *retry.Config
	logger     logger.Logger
}

// NewImageFetcher creates a fetcher with a 15s per-request timeout
func NewImageFetcher(log logger.Logger) *ImageFetcher {
	log = logger.OrDefault(log)
	cfg := retry.DefaultConfig()
	cfg.Backoff = &retry.ByErrorType{
		Network:   &retry.ConstantBackoff{Delay: time.Second},
		RateLimit: &retry.ConstantBackoff{Delay: 2 * time.Second},
		Server:    &retry.ConstantBackoff{Delay: time.Second},
		Default:   &retry.ConstantBackoff{Delay: time.Second},
	}
	cfg.Logger = log
	return &ImageFetcher{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      cfg,
		logger:     log,
	}
}

// Fetch downloads url. Instagram CDNs sometimes mislabel content types, so a
// non-image type is logged and the body is still returned.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	op := "instagram.image"
	if url == "" {
		return nil, errs.New(errs.ErrorTypeInvalidArgument, op, "empty image url")
	}

	return retry.DoWithResult(ctx, f.retry, func(ctx context.Context) (*Image, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeInvalidArgument, op, err)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeNetwork, op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, errs.FromStatusCode(op, resp.StatusCode, fmt.Sprintf("image download returned %s", resp.Status))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeNetwork, op, err)
		}
		if len(data) > MaxImageBytes {
			return nil, errs.Newf(errs.ErrorTypeInvalidArgument, op, "image larger than %d bytes", MaxImageBytes)
		}

		mime := resp.Header.Get("Content-Type")
		if !strings.HasPrefix(mime, "image/") {
			f.logger.DebugWithFields("Image URL returned non-image content type", map[string]interface{}{
				"url":          url,
				"content_type": mime,
			})
			mime = http.DetectContentType(data)
			if !strings.HasPrefix(mime, "image/") {
				mime = "image/jpeg"
			}
		}
		return &Image{URL: url, MIMEType: mime, Data: data}, nil
	})
}
