package analysis

import (
	"context"
	"fmt"
	"strings"

	"igaudience/pkg/instagram"
)

// BrandAnalysis describes a brand's identity on Instagram
type BrandAnalysis struct {
	Handle           string   `json:"instagram_handle"`
	BrandIdentity    string   `json:"brand_identity"`
	MessagingStyle   string   `json:"messaging_style"`
	VisualIdentity   string   `json:"visual_identity"`
	KeyTopics        []string `json:"key_topics"`
	TargetAudience   string   `json:"target_audience"`
	Strengths        []string `json:"strengths"`
	OpportunityAreas []string `json:"opportunity_areas"`
	Meta
}

var brandTopics = []struct {
	topic    string
	keywords []string
}{
	{"Sports/Fitness", []string{"sport", "athlete", "fitness", "train"}},
	{"Fashion/Style", []string{"style", "fashion", "design"}},
	{"Sustainability", []string{"sustainable", "eco", "planet"}},
	{"Technology", []string{"tech", "technology", "digital"}},
	{"Food/Culinary", []string{"food", "recipe", "cook", "restaurant"}},
	{"Travel/Adventure", []string{"travel", "adventure", "explore"}},
	{"Beauty/Cosmetics", []string{"beauty", "makeup", "skin"}},
}

// sportswearHandles get sportswear topics when the bio names none
var sportswearHandles = []string{"nike", "adidas"}

// Brand analyzes a brand profile and its recent posts
func (s *Service) Brand(ctx context.Context, profile *instagram.Profile, posts []instagram.Post) BrandAnalysis {
	if profile == nil {
		profile = &instagram.Profile{}
	}
	if !s.UsesLLM() {
		return s.brandRules(profile)
	}

	parts := []Part{TextPart(brandPrompt(profile, posts))}
	parts = append(parts, s.postImages(ctx, posts)...)

	resp := s.ask(ctx, "brand", profile.Username, parts)
	if resp.Failed() {
		return BrandAnalysis{
			Handle:           profile.Username,
			BrandIdentity:    "Instagram profile for @" + profile.Username,
			MessagingStyle:   "Visual-focused social media content",
			VisualIdentity:   "Professional photography and branded content",
			KeyTopics:        []string{"Products", "Lifestyle"},
			TargetAudience:   "Social media users interested in the brand's products",
			Strengths:        []string{"Brand presence on Instagram"},
			OpportunityAreas: []string{"Enhanced engagement strategy"},
			Meta:             s.fallbackMeta(resp),
		}
	}

	m := s.meta(MethodLLM)
	m.LLM = resp
	return BrandAnalysis{
		Handle:           profile.Username,
		BrandIdentity:    resp.String("brand_identity"),
		MessagingStyle:   resp.String("messaging_style"),
		VisualIdentity:   resp.String("visual_identity"),
		KeyTopics:        resp.Strings("key_topics"),
		TargetAudience:   resp.String("target_audience"),
		Strengths:        resp.Strings("strengths"),
		OpportunityAreas: resp.Strings("opportunity_areas"),
		Meta:             m,
	}
}

func (s *Service) brandRules(profile *instagram.Profile) BrandAnalysis {
	bio := strings.ToLower(profile.Biography)
	var topics []string
	for _, t := range brandTopics {
		if containsAnyWord(bio, t.keywords) {
			topics = append(topics, t.topic)
		}
	}
	if len(topics) == 0 {
		topics = []string{"Lifestyle", "Products", "Brand Content"}
		if containsAnyWord(strings.ToLower(profile.Username), sportswearHandles) {
			topics = []string{"Sports", "Lifestyle", "Fashion"}
		}
	}

	return BrandAnalysis{
		Handle:           profile.Username,
		BrandIdentity:    "Instagram profile for " + orDefault(profile.FullName, profile.Username),
		MessagingStyle:   "Visual-focused social media content",
		VisualIdentity:   "Professional photography and branded content",
		KeyTopics:        topics,
		TargetAudience:   "Social media users interested in the brand's products and lifestyle",
		Strengths:        []string{"Strong visual identity", "Consistent branding"},
		OpportunityAreas: []string{"More audience engagement", "Enhanced storytelling"},
		Meta:             s.meta(MethodRuleBased),
	}
}

// postImages downloads up to maxPromptImages display images. Failed
// downloads are skipped.
func (s *Service) postImages(ctx context.Context, posts []instagram.Post) []Part {
	if s.images == nil {
		return nil
	}
	var parts []Part
	for _, p := range posts {
		if len(parts) == maxPromptImages {
			break
		}
		if p.DisplayURL == "" {
			continue
		}
		img, err := s.images.Fetch(ctx, p.DisplayURL)
		if err != nil {
			s.logger.DebugWithFields("Skipping post image", map[string]interface{}{
				"url":   p.DisplayURL,
				"error": err.Error(),
			})
			continue
		}
		parts = append(parts, ImagePart(img.Data, img.MIMEType))
	}
	return parts
}

func brandPrompt(p *instagram.Profile, posts []instagram.Post) string {
	var b strings.Builder
	b.WriteString("Analyze this Instagram brand profile and posts to extract key identity elements.\n\n")
	fmt.Fprintf(&b, "Brand: %s\n", orDefault(p.FullName, p.Username))
	fmt.Fprintf(&b, "Instagram handle: @%s\n", p.Username)
	fmt.Fprintf(&b, "Bio: %s\n", p.Biography)
	fmt.Fprintf(&b, "Followers: %d\nFollowing: %d\nPosts: %d\n\n", p.FollowersCount, p.FollowingCount, p.PostsCount)
	writeCaptions(&b, captionSample(posts, 5, 300))
	b.WriteString(`
Return a JSON object with these keys:
- brand_identity (string): the core identity and positioning of the brand
- messaging_style (string): tone and language style
- visual_identity (string): visual elements that characterize the feed
- key_topics (list of strings): topics and themes the brand focuses on
- target_audience (string): the primary audience based on content
- strengths (list of strings): what the brand does well on Instagram
- opportunity_areas (list of strings): where the brand could improve
`)
	return b.String()
}
