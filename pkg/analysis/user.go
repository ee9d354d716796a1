package analysis

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"igaudience/pkg/instagram"
	"igaudience/pkg/scoring"
)

// BrandRef identifies the brand a user is judged against
type BrandRef struct {
	Handle string
	Name   string
}

func (b BrandRef) display() string {
	return orDefault(b.Name, b.Handle)
}

// Demographics are the model's estimates; "Unknown" when not identifiable
type Demographics struct {
	AgeRange string `json:"age_range"`
	Gender   string `json:"gender"`
	Location string `json:"location"`
}

func unknownDemographics() Demographics {
	return Demographics{AgeRange: "Unknown", Gender: "Unknown", Location: "Unknown"}
}

// ICPAnalysis says whether a user fits a brand's ideal customer profile
type ICPAnalysis struct {
	Username              string       `json:"username"`
	BrandHandle           string       `json:"brand_handle"`
	ProfileSummary        string       `json:"profile_summary"`
	Demographics          Demographics `json:"demographics"`
	Interests             []string     `json:"interests"`
	RelevanceToBrand      string       `json:"relevance_to_brand"`
	Reasoning             string       `json:"reasoning"`
	IsSuitableICP         bool         `json:"is_suitable_icp"`
	RecommendedEngagement string       `json:"recommended_engagement,omitempty"`
	Meta
}

// ICP judges one user against a brand. When the language model fails the
// user is kept (is_suitable_icp true) so that analysis errors never shrink
// the sample.
func (s *Service) ICP(ctx context.Context, user instagram.UserData, brand BrandRef) ICPAnalysis {
	if !s.UsesLLM() {
		return s.icpRules(user, brand)
	}

	resp := s.ask(ctx, "icp", user.Username, []Part{TextPart(icpPrompt(user, brand))})
	if resp.Failed() {
		return ICPAnalysis{
			Username:              user.Username,
			BrandHandle:           brand.Handle,
			ProfileSummary:        "Instagram user @" + user.Username,
			Demographics:          unknownDemographics(),
			Interests:             []string{"Unable to determine due to API error"},
			RelevanceToBrand:      "medium",
			Reasoning:             "Error during analysis: " + resp.ErrorMessage(),
			IsSuitableICP:         true,
			RecommendedEngagement: "Standard engagement approach",
			Meta:                  s.fallbackMeta(resp),
		}
	}

	demo := unknownDemographics()
	if d := resp.Object("demographics"); d != nil {
		demo.AgeRange = orDefault(d.String("age_range"), demo.AgeRange)
		demo.Gender = orDefault(d.String("gender"), demo.Gender)
		demo.Location = orDefault(d.String("location"), demo.Location)
	}

	m := s.meta(MethodLLM)
	m.LLM = resp
	return ICPAnalysis{
		Username:              user.Username,
		BrandHandle:           brand.Handle,
		ProfileSummary:        resp.String("profile_summary"),
		Demographics:          demo,
		Interests:             resp.Strings("interests"),
		RelevanceToBrand:      strings.ToLower(resp.String("relevance_to_brand")),
		Reasoning:             resp.String("reasoning"),
		IsSuitableICP:         resp.Bool("is_suitable_icp", false),
		RecommendedEngagement: resp.String("recommended_engagement"),
		Meta:                  m,
	}
}

func (s *Service) icpRules(user instagram.UserData, brand BrandRef) ICPAnalysis {
	out := ICPAnalysis{
		Username:         user.Username,
		BrandHandle:      brand.Handle,
		ProfileSummary:   "Instagram user @" + user.Username,
		Demographics:     unknownDemographics(),
		Interests:        []string{},
		RelevanceToBrand: "low",
		Meta:             s.meta(MethodRuleBased),
	}

	if user.Profile == nil {
		out.Reasoning = "Profile is not found"
		return out
	}
	if user.Profile.IsPrivate != nil && *user.Profile.IsPrivate {
		out.Reasoning = "Profile is private"
		return out
	}

	captioned := 0
	for _, p := range user.Posts {
		if strings.TrimSpace(p.Caption) != "" {
			captioned++
		}
	}
	out.Reasoning = fmt.Sprintf("Profile has %d accessible posts", len(user.Posts))
	out.IsSuitableICP = len(user.Posts) > 0 && captioned > 0
	if out.IsSuitableICP {
		out.RelevanceToBrand = "medium"
		out.Interests = themesOf(user.Profile.Biography, user.Posts)
	}
	return out
}

func icpPrompt(user instagram.UserData, brand BrandRef) string {
	p := user.Profile
	if p == nil {
		p = &instagram.Profile{Username: user.Username}
	}
	name := brand.display()

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this Instagram user profile to determine if they fit the ideal customer profile (ICP) for %s.\n\n", name)
	fmt.Fprintf(&b, "User: %s\n", orDefault(p.FullName, user.Username))
	fmt.Fprintf(&b, "Instagram handle: @%s\n", user.Username)
	fmt.Fprintf(&b, "Bio: %s\n", p.Biography)
	fmt.Fprintf(&b, "Followers: %s\nFollowing: %s\nPosts: %s\n\n",
		countOrUnknown(p.FollowersCount), countOrUnknown(p.FollowingCount), countOrUnknown(p.PostsCount))
	writeCaptions(&b, captionSample(user.Posts, 3, 200))
	fmt.Fprintf(&b, "\nBrand context:\nBrand: %s\nInstagram: @%s\n", name, brand.Handle)
	fmt.Fprintf(&b, `
Return a JSON object with these keys:
- profile_summary (string)
- demographics (object with age_range, gender, location; "Unknown" when not identifiable)
- interests (list of strings) based on their content
- relevance_to_brand ("high", "medium" or "low") for %s
- reasoning (string) for the relevance score
- is_suitable_icp (boolean)
- recommended_engagement (string)
`, name)
	return b.String()
}

// Influence tiers by follower count
const (
	tierMega  = 1_000_000
	tierMacro = 100_000
	tierMid   = 10_000
	tierMicro = 1_000
)

var themeKeywords = []struct {
	theme    string
	keywords []string
}{
	{"fashion", []string{"fashion", "style", "outfit", "clothing", "model"}},
	{"fitness", []string{"fitness", "gym", "workout", "exercise", "training", "health"}},
	{"travel", []string{"travel", "adventure", "explore", "wanderlust", "destination"}},
	{"food", []string{"food", "recipe", "cooking", "chef", "restaurant", "meal"}},
	{"beauty", []string{"beauty", "makeup", "skincare", "cosmetics", "hair"}},
	{"lifestyle", []string{"lifestyle", "life", "everyday", "daily"}},
	{"technology", []string{"tech", "technology", "gadget", "digital", "app"}},
	{"business", []string{"entrepreneur", "business", "startup", "success", "career"}},
	{"art", []string{"art", "artist", "creative", "design", "illustration"}},
	{"photography", []string{"photo", "photography", "photographer", "camera", "picture"}},
}

// themesOf finds content themes in the bio first, then in captions
func themesOf(bio string, posts []instagram.Post) []string {
	var themes []string
	seen := map[string]bool{}

	bio = strings.ToLower(bio)
	for _, t := range themeKeywords {
		if containsAnyWord(bio, t.keywords) {
			themes = append(themes, t.theme)
			seen[t.theme] = true
		}
	}

	var captions []string
	for _, p := range posts {
		if p.Caption != "" {
			captions = append(captions, strings.ToLower(p.Caption))
		}
	}
	text := strings.Join(captions, " ")
	for _, t := range themeKeywords {
		if !seen[t.theme] && containsAnyWord(text, t.keywords) {
			themes = append(themes, t.theme)
		}
	}
	return themes
}

// InfluenceAnalysis describes a user's reach and authenticity
type InfluenceAnalysis struct {
	Username                string   `json:"username"`
	InfluenceCategory       string   `json:"influence_category"`
	AuthenticityScore       int      `json:"authenticity_score"`
	ContentThemes           []string `json:"content_themes"`
	EngagementPotential     string   `json:"engagement_potential"`
	EngagementRate          float64  `json:"engagement_rate,omitempty"`
	BrandAlignmentPotential []string `json:"brand_alignment_potential,omitempty"`
	Strengths               []string `json:"strengths,omitempty"`
	AreasForDevelopment     []string `json:"areas_for_development,omitempty"`
	Meta
}

// Influence analyzes a user's influence characteristics
func (s *Service) Influence(ctx context.Context, user instagram.UserData) InfluenceAnalysis {
	if !s.UsesLLM() {
		return s.influenceRules(user)
	}

	resp := s.ask(ctx, "influence", user.Username, []Part{TextPart(influencePrompt(user))})
	if resp.Failed() {
		return InfluenceAnalysis{
			Username:                user.Username,
			InfluenceCategory:       "casual user",
			AuthenticityScore:       50,
			ContentThemes:           []string{"Unable to determine due to API error"},
			EngagementPotential:     "medium",
			BrandAlignmentPotential: []string{"General consumer brands"},
			Strengths:               []string{"Instagram presence"},
			AreasForDevelopment:     []string{"More consistent content", "Enhanced engagement"},
			Meta:                    s.fallbackMeta(resp),
		}
	}

	m := s.meta(MethodLLM)
	m.LLM = resp
	return InfluenceAnalysis{
		Username:                user.Username,
		InfluenceCategory:       orDefault(resp.String("influence_category"), "casual user"),
		AuthenticityScore:       int(resp.Number("authenticity_score", 50)),
		ContentThemes:           resp.Strings("content_themes"),
		EngagementPotential:     orDefault(strings.ToLower(resp.String("engagement_potential")), "medium"),
		BrandAlignmentPotential: resp.Strings("brand_alignment_potential"),
		Strengths:               resp.Strings("strengths"),
		AreasForDevelopment:     resp.Strings("areas_for_development"),
		Meta:                    m,
	}
}

func (s *Service) influenceRules(user instagram.UserData) InfluenceAnalysis {
	out := InfluenceAnalysis{
		Username:            user.Username,
		InfluenceCategory:   "casual user",
		AuthenticityScore:   50,
		EngagementPotential: "medium",
		Meta:                s.meta(MethodRuleBased),
	}
	p := user.Profile
	if p == nil {
		p = &instagram.Profile{}
	}

	out.InfluenceCategory = influenceCategory(p.FollowersCount, p.IsBusinessAccount)
	if p.FollowersCount > 0 && p.FollowingCount > 0 {
		out.AuthenticityScore = authenticityScore(float64(p.FollowersCount) / float64(p.FollowingCount))
	}
	out.ContentThemes = listOrDefault(themesOf(p.Biography, user.Posts), "general content")

	if len(user.Posts) > 0 && p.FollowersCount > 0 {
		var likes, comments int
		for _, post := range user.Posts {
			likes += post.LikesCount
			comments += post.CommentsCount
		}
		n := float64(len(user.Posts))
		rate := (float64(likes)/n + float64(comments)/n) / float64(p.FollowersCount) * 100
		out.EngagementRate = rate
		switch {
		case rate > 5:
			out.EngagementPotential = "high"
		case rate > 2:
			out.EngagementPotential = "medium"
		default:
			out.EngagementPotential = "low"
		}
	}
	return out
}

func influenceCategory(followers int, business bool) string {
	switch {
	case followers > tierMega:
		return "mega-influencer"
	case followers > tierMacro:
		return "macro-influencer"
	case followers > tierMid:
		return "mid-tier influencer"
	case followers > tierMicro:
		return "micro-influencer"
	case business:
		return "business account"
	default:
		return "casual user"
	}
}

// authenticityScore maps the follower/following ratio to a score. A heavily
// skewed ratio suggests bought followers.
func authenticityScore(ratio float64) int {
	switch {
	case ratio > 20:
		return 30
	case ratio > 10:
		return 60
	case ratio > 2:
		return 80
	default:
		return 70
	}
}

func influencePrompt(user instagram.UserData) string {
	p := user.Profile
	if p == nil {
		p = &instagram.Profile{Username: user.Username}
	}

	var b strings.Builder
	b.WriteString("Analyze this Instagram user profile to determine their influence characteristics and audience:\n\n")
	fmt.Fprintf(&b, "User: %s\n", orDefault(p.FullName, user.Username))
	fmt.Fprintf(&b, "Instagram handle: @%s\n", user.Username)
	fmt.Fprintf(&b, "Bio: %s\n", p.Biography)
	fmt.Fprintf(&b, "Followers: %s\nFollowing: %s\nPosts: %s\n",
		countOrUnknown(p.FollowersCount), countOrUnknown(p.FollowingCount), countOrUnknown(p.PostsCount))
	business := "No"
	if p.IsBusinessAccount {
		business = "Yes"
	}
	fmt.Fprintf(&b, "Business account: %s\n", business)
	if p.BusinessCategory != "" {
		fmt.Fprintf(&b, "Business category: %s\n", p.BusinessCategory)
	}
	b.WriteString("\n")
	writeCaptions(&b, captionSample(user.Posts, 3, 200))
	b.WriteString(`
Return a JSON object with these keys:
- influence_category (string: micro-influencer, content creator, brand ambassador, casual user, ...)
- authenticity_score (number 0-100)
- content_themes (list of strings)
- engagement_potential ("high", "medium" or "low")
- audience_demographics (object)
- brand_alignment_potential (list of strings): brand types that would be a good fit
- strengths (list of strings)
- areas_for_development (list of strings)
`)
	return b.String()
}

// CommentInfluence summarizes how a user engages through their comments
type CommentInfluence struct {
	Username              string         `json:"username"`
	CommentCount          int            `json:"comment_count"`
	EngagementQuality     string         `json:"engagement_quality"`
	Sentiment             string         `json:"sentiment"`
	AvgEngagementScore    float64        `json:"avg_engagement_score"`
	SentimentDistribution map[string]int `json:"sentiment_distribution,omitempty"`
	Meta
}

// CommentInfluence scores a user's comments by sentiment and length.
// Empty comments count toward CommentCount but are not scored.
func (s *Service) CommentInfluence(comments []instagram.Comment, username string) CommentInfluence {
	out := CommentInfluence{
		Username:          username,
		CommentCount:      len(comments),
		EngagementQuality: "unknown",
		Sentiment:         string(scoring.SentimentNeutral),
		Meta:              s.meta(MethodRuleBased),
	}
	if len(comments) == 0 {
		return out
	}

	dist := map[string]int{
		string(scoring.SentimentPositive): 0,
		string(scoring.SentimentNeutral):  0,
		string(scoring.SentimentNegative): 0,
	}
	var total float64
	scored := 0
	for _, c := range comments {
		if c.Text == "" {
			continue
		}
		dist[string(scoring.SentimentOf(c.Text))]++
		score := float64(utf8.RuneCountInString(c.Text)) / 2
		if score > 100 {
			score = 100
		}
		total += score
		scored++
	}
	out.SentimentDistribution = dist

	pos := dist[string(scoring.SentimentPositive)]
	neu := dist[string(scoring.SentimentNeutral)]
	neg := dist[string(scoring.SentimentNegative)]
	switch {
	case pos > neg+neu:
		out.Sentiment = string(scoring.SentimentPositive)
	case neg > pos+neu:
		out.Sentiment = string(scoring.SentimentNegative)
	}

	if scored > 0 {
		out.AvgEngagementScore = total / float64(scored)
	}
	switch {
	case out.AvgEngagementScore > 70:
		out.EngagementQuality = "high"
	case out.AvgEngagementScore > 30:
		out.EngagementQuality = "medium"
	default:
		out.EngagementQuality = "low"
	}
	return out
}
