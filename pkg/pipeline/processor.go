package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"igaudience/internal/probe"
	"igaudience/pkg/analysis"
	"igaudience/pkg/audience"
	"igaudience/pkg/config"
	errs "igaudience/pkg/errors"
	"igaudience/pkg/instagram"
	"igaudience/pkg/logger"
	"igaudience/pkg/metrics"
	"igaudience/pkg/report"
)

const (
	brandPosts   = 5
	icpUserPosts = 3
	userPosts    = 5
	samplePosts  = 3
)

// Kind selects brand or user analysis
type Kind string

const (
	KindAuto  Kind = ""
	KindBrand Kind = "brand"
	KindUser  Kind = "user"
)

// ParseKind accepts "", "auto", "brand" and "user"
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "brand":
		return KindBrand, nil
	case "user":
		return KindUser, nil
	}
	return KindAuto, errs.Newf(errs.ErrorTypeInvalidArgument, "pipeline.kind", "unknown analysis type %q (want brand or user)", s)
}

// Scraper is the part of instagram.Source the processor needs
type Scraper interface {
	Profile(ctx context.Context, handle string) (*instagram.Profile, error)
	Posts(ctx context.Context, handle string, limit int) ([]instagram.Post, error)
	Comments(ctx context.Context, shortcode string, limit int) ([]instagram.Comment, error)
	CheckVisibility(ctx context.Context, username string) instagram.Visibility
	UserProfilePosts(ctx context.Context, username string, limit int) (*instagram.UserData, error)
}

// AudienceCollector assembles a brand's audience pool
type AudienceCollector interface {
	Collect(ctx context.Context, handle string, limit int, threshold float64) (*audience.Result, error)
}

// Progress receives one call per pipeline step
type Progress interface {
	Step(handle string, n, total int, msg string)
}

type nopProgress struct{}

func (nopProgress) Step(string, int, int, string) {}

// Failure is returned when a handle could not be processed. The error record
// was saved at Path unless saving failed too.
type Failure struct {
	Handle string
	Kind   Kind
	Path   string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s analysis of @%s failed: %v", f.Kind, f.Handle, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Processor runs brand and user analyses end to end and saves the reports
type Processor struct {
	scraper   Scraper
	collector AudienceCollector
	analyst   *analysis.Service
	store     report.Store
	prober    *probe.Prober
	settings  config.CollectorConfig
	progress  Progress
	clock     clockwork.Clock
	logger    logger.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithProgress reports each step to p
func WithProgress(p Progress) Option {
	return func(pr *Processor) { pr.progress = p }
}

// WithClock sets the clock used for report timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(pr *Processor) { pr.clock = clock }
}

// WithLogger sets the processor logger
func WithLogger(l logger.Logger) Option {
	return func(pr *Processor) { pr.logger = l }
}

// New creates a Processor. Zero collector settings take the defaults.
func New(scraper Scraper, collector AudienceCollector, analyst *analysis.Service, store report.Store, settings config.CollectorConfig, opts ...Option) *Processor {
	defaults := config.DefaultConfig().Collector
	if settings.AudienceLimit <= 0 {
		settings.AudienceLimit = defaults.AudienceLimit
	}
	if settings.ICPSampleSize <= 0 {
		settings.ICPSampleSize = defaults.ICPSampleSize
	}
	if settings.CommentsPerPost <= 0 {
		settings.CommentsPerPost = defaults.CommentsPerPost
	}
	if settings.VisibilityConcurrency <= 0 {
		settings.VisibilityConcurrency = defaults.VisibilityConcurrency
	}

	p := &Processor{
		scraper:   scraper,
		collector: collector,
		analyst:   analyst,
		store:     store,
		settings:  settings,
		progress:  nopProgress{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	p.logger = logger.OrDefault(p.logger)
	p.prober = probe.New(scraper, settings.VisibilityConcurrency, p.logger)
	return p
}

// Analyze runs the analysis kind asks for. KindAuto treats business accounts
// as brands and everyone else as users; when detection fails it runs a user
// analysis.
func (p *Processor) Analyze(ctx context.Context, handle string, kind Kind, threshold float64) (*Result, error) {
	handle = instagram.SanitizeUsername(handle)
	if !instagram.IsValidUsername(handle) {
		return nil, errs.Newf(errs.ErrorTypeInvalidArgument, "pipeline.analyze", "invalid Instagram handle %q", handle)
	}

	var vis *instagram.Visibility
	if kind == KindAuto {
		v := p.scraper.CheckVisibility(ctx, handle)
		vis = &v
		switch {
		case v.Error != "":
			p.logger.WarnWithFields("Account type detection failed, using user analysis", map[string]interface{}{
				"handle": handle,
				"error":  v.Error,
			})
			kind = KindUser
			vis = nil
		case !v.Exists:
			kind = KindUser
		case v.IsBusiness:
			kind = KindBrand
		default:
			kind = KindUser
		}
		p.logger.InfoWithFields("Account type detected", map[string]interface{}{
			"handle": handle,
			"kind":   kind,
		})
	}

	if kind == KindBrand {
		target := report.Target{
			Name:   capitalize(handle),
			URL:    instagram.GetUserProfileURL(handle),
			Handle: handle,
		}
		rep, err := p.ProcessBrand(ctx, target, threshold)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindBrand, Path: rep.Path, Brand: rep}, nil
	}

	rep, err := p.processUser(ctx, handle, vis)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindUser, Path: rep.Path, User: rep}, nil
}

// ProcessTarget runs one brands file entry. An explicit type wins; otherwise
// the kind is detected as in Analyze. A brand target keeps its configured name.
func (p *Processor) ProcessTarget(ctx context.Context, target report.Target, threshold float64) (*Result, error) {
	kind, err := ParseKind(target.Type)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindBrand:
		rep, err := p.ProcessBrand(ctx, target, threshold)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindBrand, Path: rep.Path, Brand: rep}, nil
	case KindUser:
		rep, err := p.ProcessUser(ctx, target.Handle)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindUser, Path: rep.Path, User: rep}, nil
	}
	if target.Name != "" || target.URL != "" {
		rep, err := p.ProcessBrand(ctx, target, threshold)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindBrand, Path: rep.Path, Brand: rep}, nil
	}
	return p.Analyze(ctx, target.Handle, KindAuto, threshold)
}

// ProcessBrand analyzes a brand and its audience. A profile failure aborts;
// the other scraper failures only shrink the report.
func (p *Processor) ProcessBrand(ctx context.Context, target report.Target, threshold float64) (*BrandReport, error) {
	handle := instagram.SanitizeUsername(target.Handle)
	log := p.logger.WithField("handle", handle)
	name := target.DisplayName()
	const steps = 8

	meta := map[string]interface{}{
		"brand":                  BrandInfo{Name: name, URL: target.URL, Handle: handle},
		"quality_threshold_used": threshold,
	}

	p.progress.Step(handle, 1, steps, "Collecting brand profile")
	profile, err := p.scraper.Profile(ctx, handle)
	if err != nil {
		return nil, p.fail(KindBrand, handle, fmt.Errorf("collect brand profile: %w", err), meta)
	}
	if target.Name == "" && profile.FullName != "" {
		name = profile.FullName
	}

	p.progress.Step(handle, 2, steps, "Collecting brand posts")
	posts, err := p.scraper.Posts(ctx, handle, brandPosts)
	if err != nil {
		log.WithError(err).Warn("Could not collect brand posts")
		posts = nil
	}

	p.progress.Step(handle, 3, steps, "Analyzing brand profile")
	brandAnalysis := p.analyst.Brand(ctx, profile, posts)

	p.progress.Step(handle, 4, steps, "Collecting audience")
	collected, err := p.collector.Collect(ctx, handle, p.settings.AudienceLimit, threshold)
	if err != nil {
		return nil, p.fail(KindBrand, handle, fmt.Errorf("collect audience: %w", err), meta)
	}

	p.progress.Step(handle, 5, steps, fmt.Sprintf("Checking visibility of %d candidates", len(collected.Candidates)))
	public := p.prober.FirstPublic(ctx, collected.Usernames(), p.settings.ICPSampleSize)

	p.progress.Step(handle, 6, steps, fmt.Sprintf("Analyzing %d public users", len(public)))
	ref := analysis.BrandRef{Handle: handle, Name: name}
	icps := make([]analysis.ICPAnalysis, 0, len(public))
	for _, v := range public {
		user, err := p.scraper.UserProfilePosts(ctx, v.Username, icpUserPosts)
		if err != nil {
			log.WithError(err).WarnWithFields("Skipping sampled user", map[string]interface{}{
				"username": v.Username,
			})
			continue
		}
		icps = append(icps, p.analyst.ICP(ctx, *user, ref))
	}

	p.progress.Step(handle, 7, steps, "Generating audience insights")
	insights := p.analyst.Insights(ctx, icps, ref)

	analysisType := AnalysisTypeRuleBased
	if p.analyst.UsesLLM() {
		analysisType = AnalysisTypeLLM
	}

	rep := &BrandReport{
		Brand:       BrandInfo{Name: name, URL: target.URL, Handle: handle},
		Profile:     profile,
		Analysis:    brandAnalysis,
		PostsSample: sample(posts, samplePosts),
		Audience: AudienceData{
			EngagedUsers:       engagedUsers(collected.Candidates),
			ICPData:            icps,
			TotalUniqueUsers:   len(collected.Candidates),
			Origin:             collected.Origin,
			Stages:             collected.Stages,
			EffectiveThreshold: collected.EffectiveThreshold,
		},
		Insights: insights,
		Metadata: BrandMetadata{
			Timestamp:            p.clock.Now().UTC(),
			AnalysisType:         analysisType,
			QualityThresholdUsed: threshold,
			Status:               report.StatusCompleted,
			RunID:                uuid.NewString(),
		},
	}

	p.progress.Step(handle, 8, steps, "Saving report")
	path, err := p.store.Save(handle, rep)
	if err != nil {
		return nil, p.fail(KindBrand, handle, fmt.Errorf("save report: %w", err), meta)
	}
	rep.Path = path
	metrics.ReportsTotal.WithLabelValues(string(KindBrand), report.StatusCompleted).Inc()

	log.InfoWithFields("Brand analysis complete", map[string]interface{}{
		"engaged_users": len(collected.Candidates),
		"icp_sampled":   len(icps),
		"origin":        collected.Origin,
		"path":          path,
	})
	return rep, nil
}

// ProcessUser analyzes one account's influence. A missing profile is a
// failure; a private one is analyzed with whatever the scraper returns.
func (p *Processor) ProcessUser(ctx context.Context, username string) (*UserReport, error) {
	return p.processUser(ctx, instagram.SanitizeUsername(username), nil)
}

func (p *Processor) processUser(ctx context.Context, username string, vis *instagram.Visibility) (*UserReport, error) {
	log := p.logger.WithField("username", username)
	const steps = 4

	p.progress.Step(username, 1, steps, "Checking profile visibility")
	if vis == nil {
		v := p.scraper.CheckVisibility(ctx, username)
		vis = &v
	}
	if !vis.Exists {
		err := errs.Newf(errs.ErrorTypeNotFound, "pipeline.user", "profile @%s does not exist", username)
		return nil, p.fail(KindUser, username, err, nil)
	}
	if vis.IsPrivate && !vis.IsBusiness {
		log.Warn("Profile is private, analysis will use limited data")
	}

	p.progress.Step(username, 2, steps, "Collecting profile data")
	user, err := p.scraper.UserProfilePosts(ctx, username, userPosts)
	if err != nil {
		return nil, p.fail(KindUser, username, fmt.Errorf("collect profile data: %w", err), nil)
	}

	p.progress.Step(username, 3, steps, "Analyzing user profile")
	influence := p.analyst.Influence(ctx, *user)

	var commentInfluence *analysis.CommentInfluence
	if post, ok := mostCommented(user.Posts); ok {
		comments, err := p.scraper.Comments(ctx, post.ShortCode, p.settings.CommentsPerPost)
		if err != nil {
			log.WithError(err).Warn("Could not collect comments for influence analysis")
		} else if len(comments) > 0 {
			ci := p.analyst.CommentInfluence(comments, username)
			commentInfluence = &ci
		}
	}

	rep := &UserReport{
		Username:         username,
		ProfileData:      user.Profile,
		PostsSample:      sample(user.Posts, samplePosts),
		UserAnalysis:     influence,
		CommentInfluence: commentInfluence,
		Metadata: UserMetadata{
			Timestamp:         p.clock.Now().UTC(),
			AnalysisMethod:    influence.Method,
			IsPrivateProfile:  vis.IsPrivate,
			IsBusinessProfile: vis.IsBusiness,
			Status:            report.StatusCompleted,
			RunID:             uuid.NewString(),
		},
	}

	p.progress.Step(username, 4, steps, "Saving report")
	path, err := p.store.Save(username, rep)
	if err != nil {
		return nil, p.fail(KindUser, username, fmt.Errorf("save report: %w", err), nil)
	}
	rep.Path = path
	metrics.ReportsTotal.WithLabelValues(string(KindUser), report.StatusCompleted).Inc()

	log.InfoWithFields("User analysis complete", map[string]interface{}{
		"method": influence.Method,
		"posts":  len(user.Posts),
		"path":   path,
	})
	return rep, nil
}

// fail saves an error record and wraps err in a Failure
func (p *Processor) fail(kind Kind, handle string, err error, meta map[string]interface{}) error {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["analysis_type"] = string(kind)

	f := &Failure{Handle: handle, Kind: kind, Err: err}
	path, saveErr := p.store.SaveError(handle, err, meta)
	if saveErr != nil {
		p.logger.WithError(saveErr).WarnWithFields("Could not save error record", map[string]interface{}{
			"handle": handle,
		})
	}
	f.Path = path
	metrics.ReportsTotal.WithLabelValues(string(kind), report.StatusError).Inc()

	p.logger.WithError(err).ErrorWithFields("Analysis failed", map[string]interface{}{
		"handle":     handle,
		"kind":       kind,
		"error_type": errs.TypeOf(err),
	})
	return f
}

// IsFailure reports whether err is a per-handle Failure
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

func mostCommented(posts []instagram.Post) (instagram.Post, bool) {
	var best instagram.Post
	found := false
	for _, post := range posts {
		if post.ShortCode == "" || post.CommentsCount <= 0 {
			continue
		}
		if !found || post.CommentsCount > best.CommentsCount {
			best, found = post, true
		}
	}
	return best, found
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
