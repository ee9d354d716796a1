package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"igaudience/pkg/apify"
	"igaudience/pkg/cache"
	errs "igaudience/pkg/errors"
	"igaudience/pkg/logger"
	"igaudience/pkg/ratelimit"
)

// Source fetches typed Instagram records through an actor runner. Every
// actor call waits on the endpoint's rate limit slot first; list results are
// cached per target so repeated requests within the TTL skip the scraper.
type Source struct {
	runner   apify.ActorRunner
	limiter  ratelimit.Limiter
	cache    cache.Cache
	timeouts Timeouts
	logger   logger.Logger
}

// SourceOption configures a Source
type SourceOption func(*Source)

// WithTimeouts overrides the per-call timeouts
func WithTimeouts(t Timeouts) SourceOption {
	return func(s *Source) { s.timeouts = t }
}

// WithSourceLogger sets the logger
func WithSourceLogger(l logger.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a Source. c may be nil to disable caching.
func NewSource(runner apify.ActorRunner, limiter ratelimit.Limiter, c cache.Cache, opts ...SourceOption) *Source {
	s := &Source{
		runner:   runner,
		limiter:  limiter,
		cache:    c,
		timeouts: DefaultTimeouts(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger)
	return s
}

// run waits for the endpoint's slot and invokes the actor. Retries inside
// the runner wait for a fresh slot on the same endpoint.
func (s *Source) run(ctx context.Context, endpoint, actor string, input map[string]interface{}, timeout time.Duration) ([]json.RawMessage, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}
		ctx = apify.WithRetryGate(ctx, func(ctx context.Context) error {
			return s.limiter.Wait(ctx, endpoint)
		})
	}
	return s.runner.Run(ctx, actor, input, timeout)
}

// decodeRecords decodes each item into T, skipping malformed records
func decodeRecords[T any](log logger.Logger, actor string, items []json.RawMessage) []T {
	out := make([]T, 0, len(items))
	skipped := 0
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	if skipped > 0 {
		log.DebugWithFields("Skipped malformed scraper records", map[string]interface{}{
			"actor":   actor,
			"skipped": skipped,
		})
	}
	return out
}

func (s *Source) loadList(ctx context.Context, key string, min int) ([]json.RawMessage, bool) {
	if s.cache == nil {
		return nil, false
	}
	items, _, ok := cache.Load[[]json.RawMessage](ctx, s.cache, key)
	if !ok || len(items) == 0 || len(items) < min {
		return nil, false
	}
	return items, true
}

func (s *Source) storeList(ctx context.Context, key, source string, items []json.RawMessage) {
	if s.cache == nil || len(items) == 0 {
		return
	}
	if err := cache.Store(ctx, s.cache, key, source, items); err != nil {
		s.logger.WithError(err).WarnWithFields("Failed to write cache entry", map[string]interface{}{
			"key": key,
		})
	}
}

func truncate[T any](items []T, limit int) []T {
	if limit >= 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// Profile fetches profile details for handle. A run that yields no record is
// a not_found error.
func (s *Source) Profile(ctx context.Context, handle string) (*Profile, error) {
	handle = SanitizeUsername(handle)
	op := "instagram.profile"
	if handle == "" {
		return nil, errs.New(errs.ErrorTypeInvalidArgument, op, "empty handle")
	}

	key := cache.Key("profile", handle)
	if s.cache != nil {
		if p, _, ok := cache.Load[Profile](ctx, s.cache, key); ok && p.Username != "" {
			return &p, nil
		}
	}

	items, err := s.run(ctx, EndpointProfile, ActorProfileScraper, profileDetailsInput(handle), s.timeouts.Profile)
	if err != nil {
		return nil, err
	}
	profiles := decodeRecords[Profile](s.logger, ActorProfileScraper, items)
	if len(profiles) == 0 || profiles[0].Username == "" {
		return nil, errs.Newf(errs.ErrorTypeNotFound, op, "no profile data found for @%s", handle)
	}

	p := profiles[0]
	if s.cache != nil {
		if err := cache.Store(ctx, s.cache, key, ActorProfileScraper, p); err != nil {
			s.logger.WithError(err).WarnWithFields("Failed to write cache entry", map[string]interface{}{"key": key})
		}
	}
	return &p, nil
}

// Posts returns up to limit recent posts for handle. The general scraper is
// tried first; when it fails or returns nothing the profile scraper is used.
func (s *Source) Posts(ctx context.Context, handle string, limit int) ([]Post, error) {
	handle = SanitizeUsername(handle)
	if handle == "" {
		return nil, errs.New(errs.ErrorTypeInvalidArgument, "instagram.posts", "empty handle")
	}
	fetch := max(limit, DefaultPostsFetch)
	key := cache.Key("posts", handle)

	if items, ok := s.loadList(ctx, key, min(limit, minCachedPosts)); ok {
		return truncate(decodeRecords[Post](s.logger, ActorScraper, items), limit), nil
	}

	actor := ActorScraper
	items, err := s.run(ctx, EndpointPosts, ActorScraper, scraperPostsInput(handle, fetch), s.timeouts.Posts)
	if err != nil || len(items) == 0 {
		fields := map[string]interface{}{"handle": handle}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.WarnWithFields("Primary posts scraper returned nothing, trying profile scraper", fields)

		actor = ActorProfileScraper
		var ferr error
		items, ferr = s.run(ctx, EndpointPosts, ActorProfileScraper, profilePostsInput(handle, fetch), s.timeouts.Posts)
		if ferr != nil {
			return nil, ferr
		}
	}

	s.storeList(ctx, key, actor, items)
	return truncate(decodeRecords[Post](s.logger, actor, items), limit), nil
}

// Comments returns up to limit comments on the post with shortcode
func (s *Source) Comments(ctx context.Context, shortcode string, limit int) ([]Comment, error) {
	shortcode = strings.TrimSpace(shortcode)
	if shortcode == "" {
		return nil, errs.New(errs.ErrorTypeInvalidArgument, "instagram.comments", "empty shortcode")
	}
	key := cache.Key("comments", shortcode)

	if items, ok := s.loadList(ctx, key, 1); ok {
		return truncate(decodeRecords[Comment](s.logger, ActorCommentScraper, items), limit), nil
	}

	items, err := s.run(ctx, EndpointComments, ActorCommentScraper, commentsInput(shortcode, max(limit, DefaultCommentsFetch)), s.timeouts.Comments)
	if err != nil {
		return nil, err
	}
	s.storeList(ctx, key, ActorCommentScraper, items)
	return truncate(decodeRecords[Comment](s.logger, ActorCommentScraper, items), limit), nil
}

// HashtagPosts returns up to limit recent posts tagged with tag
func (s *Source) HashtagPosts(ctx context.Context, tag string, limit int) ([]Post, error) {
	tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
	if tag == "" {
		return nil, errs.New(errs.ErrorTypeInvalidArgument, "instagram.hashtag", "empty hashtag")
	}
	key := cache.Key("hashtag", tag)

	if items, ok := s.loadList(ctx, key, 1); ok {
		return truncate(decodeRecords[Post](s.logger, ActorHashtagScraper, items), limit), nil
	}

	items, err := s.run(ctx, EndpointHashtags, ActorHashtagScraper, hashtagInput(tag, max(limit, DefaultHashtagFetch)), s.timeouts.Hashtags)
	if err != nil {
		return nil, err
	}
	s.storeList(ctx, key, ActorHashtagScraper, items)
	return truncate(decodeRecords[Post](s.logger, ActorHashtagScraper, items), limit), nil
}

// CheckVisibility decides whether username exists and is publicly viewable.
// Business accounts count as public. When the profile record is ambiguous a
// one-post probe settles it. Errors are folded into the result.
func (s *Source) CheckVisibility(ctx context.Context, username string) Visibility {
	username = SanitizeUsername(username)
	v := Visibility{Username: username, Exists: true, IsPrivate: true}

	profiles, err := s.visibilityProfile(ctx, username)
	if err != nil {
		s.logger.WithError(err).WarnWithFields("Visibility check failed, assuming private", map[string]interface{}{
			"username": username,
		})
		v.Error = err.Error()
		return v
	}
	if len(profiles) == 0 {
		v.Exists = false
		return v
	}

	p := profiles[0]
	v.Profile = &p
	v.IsBusiness = p.IsBusinessAccount
	explicitlyPrivate := p.IsPrivate != nil && *p.IsPrivate
	explicitlyPublic := p.IsPrivate != nil && !*p.IsPrivate

	switch {
	case p.IsBusinessAccount:
		v.IsPublic = true
	case explicitlyPublic:
		v.IsPublic = true
	case p.PostsCount > 0 && !explicitlyPrivate:
		v.IsPublic = true
	}
	v.IsPrivate = !explicitlyPublic

	if !v.IsPublic && !explicitlyPublic {
		items, perr := s.run(ctx, EndpointProfilePostsCheck, ActorProfileScraper, profilePostsInput(username, 1), s.timeouts.VisibilityPosts)
		if perr == nil && len(items) > 0 {
			v.IsPublic = true
			v.IsPrivate = false
		}
	}
	if v.IsPublic && !explicitlyPrivate {
		v.IsPrivate = false
	}
	return v
}

func (s *Source) visibilityProfile(ctx context.Context, username string) ([]Profile, error) {
	if username == "" {
		return nil, errs.New(errs.ErrorTypeInvalidArgument, "instagram.visibility", "empty username")
	}
	items, err := s.run(ctx, EndpointProfileCheck, ActorProfileScraper, profileDetailsInput(username), s.timeouts.Visibility)
	if err != nil {
		return nil, err
	}
	profiles := decodeRecords[Profile](s.logger, ActorProfileScraper, items)
	if len(profiles) > 0 {
		return profiles, nil
	}

	items, err = s.run(ctx, EndpointProfileCheck, ActorProfileScraper, map[string]interface{}{
		"usernames": []string{username},
	}, s.timeouts.Visibility)
	if err != nil {
		return nil, err
	}
	return decodeRecords[Profile](s.logger, ActorProfileScraper, items), nil
}

// UserProfilePosts fetches a profile and up to limit of its posts. A posts
// failure leaves Posts empty; a profile failure is returned.
func (s *Source) UserProfilePosts(ctx context.Context, username string, limit int) (*UserData, error) {
	profile, err := s.Profile(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("collect profile for @%s: %w", username, err)
	}

	posts, err := s.Posts(ctx, username, limit)
	if err != nil {
		s.logger.WithError(err).WarnWithFields("Could not collect posts", map[string]interface{}{
			"username": username,
		})
		posts = nil
	}

	return &UserData{
		Username: SanitizeUsername(username),
		Profile:  profile,
		Posts:    posts,
	}, nil
}
