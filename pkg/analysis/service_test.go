package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igaudience/pkg/instagram"
	"igaudience/pkg/logger"
)

type fakeAnalyzer struct {
	resp  Response
	calls [][]Part
}

func (f *fakeAnalyzer) AnalyzeJSON(_ context.Context, _ string, parts []Part) Response {
	f.calls = append(f.calls, parts)
	return f.resp
}

type fakeImages struct {
	fail map[string]bool
}

func (f *fakeImages) Fetch(_ context.Context, url string) (*instagram.Image, error) {
	if f.fail[url] {
		return nil, errors.New("boom")
	}
	return &instagram.Image{URL: url, MIMEType: "image/jpeg", Data: []byte(url)}, nil
}

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRuleService() *Service {
	return NewService(nil, WithServiceClock(clockwork.NewFakeClockAt(fixedTime)), WithServiceLogger(logger.NewNopLogger()))
}

func newLLMService(resp Response, opts ...ServiceOption) (*Service, *fakeAnalyzer) {
	fa := &fakeAnalyzer{resp: resp}
	opts = append([]ServiceOption{
		WithModel("gpt-4o-mini"),
		WithServiceClock(clockwork.NewFakeClockAt(fixedTime)),
		WithServiceLogger(logger.NewNopLogger()),
	}, opts...)
	return NewService(fa, opts...), fa
}

func failed(msg string) Response {
	return failure(errors.New(msg), "")
}

func boolPtr(b bool) *bool { return &b }

func TestBrandRules(t *testing.T) {
	s := newRuleService()

	t.Run("topics from bio", func(t *testing.T) {
		got := s.Brand(context.Background(), &instagram.Profile{
			Username:  "greenthreads",
			FullName:  "Green Threads",
			Biography: "Sustainable fashion for a better planet",
		}, nil)
		assert.Equal(t, []string{"Fashion/Style", "Sustainability"}, got.KeyTopics)
		assert.Equal(t, "Instagram profile for Green Threads", got.BrandIdentity)
		assert.Equal(t, MethodRuleBased, got.Method)
		assert.Equal(t, fixedTime, got.AnalyzedAt)
	})

	t.Run("sportswear default", func(t *testing.T) {
		got := s.Brand(context.Background(), &instagram.Profile{Username: "nike", Biography: "Just do it."}, nil)
		assert.Equal(t, []string{"Sports", "Lifestyle", "Fashion"}, got.KeyTopics)
	})

	t.Run("generic default", func(t *testing.T) {
		got := s.Brand(context.Background(), &instagram.Profile{Username: "acme"}, nil)
		assert.Equal(t, []string{"Lifestyle", "Products", "Brand Content"}, got.KeyTopics)
	})
}

func TestBrandWithModel(t *testing.T) {
	posts := []instagram.Post{
		{Caption: "New drop", DisplayURL: "https://cdn/1.jpg"},
		{Caption: "", DisplayURL: "https://cdn/broken.jpg"},
		{Caption: "Run club", DisplayURL: "https://cdn/2.jpg"},
		{DisplayURL: "https://cdn/3.jpg"},
		{DisplayURL: "https://cdn/4.jpg"},
	}

	t.Run("fills fields from the answer", func(t *testing.T) {
		s, fa := newLLMService(Response{
			"brand_identity":    "Performance sportswear",
			"key_topics":        []interface{}{"running", "training"},
			"strengths":         "Athlete storytelling",
			"opportunity_areas": []interface{}{"Community replies"},
		}, WithImages(&fakeImages{fail: map[string]bool{"https://cdn/broken.jpg": true}}))

		got := s.Brand(context.Background(), &instagram.Profile{Username: "nike", FullName: "Nike"}, posts)

		assert.Equal(t, MethodLLM, got.Method)
		assert.Equal(t, "Performance sportswear", got.BrandIdentity)
		assert.Equal(t, []string{"running", "training"}, got.KeyTopics)
		assert.Equal(t, []string{"Athlete storytelling"}, got.Strengths)
		assert.NotNil(t, got.LLM)

		require.Len(t, fa.calls, 1)
		parts := fa.calls[0]
		require.Len(t, parts, 1+maxPromptImages)
		assert.Contains(t, parts[0].Text, "Instagram handle: @nike")
		assert.Contains(t, parts[0].Text, "- New drop")
		assert.Equal(t, []byte("https://cdn/1.jpg"), parts[1].Image)
		assert.Equal(t, []byte("https://cdn/2.jpg"), parts[2].Image)
		assert.Equal(t, []byte("https://cdn/3.jpg"), parts[3].Image)
	})

	t.Run("falls back on failure", func(t *testing.T) {
		s, _ := newLLMService(failed("quota exceeded"))
		got := s.Brand(context.Background(), &instagram.Profile{Username: "nike"}, posts)

		assert.Equal(t, MethodFallback, got.Method)
		assert.True(t, got.FallbackGenerated)
		assert.Equal(t, "quota exceeded", got.Error)
		assert.Equal(t, "Instagram profile for @nike", got.BrandIdentity)
		assert.Equal(t, []string{"Products", "Lifestyle"}, got.KeyTopics)
	})
}

func TestICPRules(t *testing.T) {
	s := newRuleService()
	brand := BrandRef{Handle: "nike", Name: "Nike"}

	tests := []struct {
		name     string
		user     instagram.UserData
		suitable bool
		reason   string
	}{
		{
			name:   "missing profile",
			user:   instagram.UserData{Username: "ghost"},
			reason: "Profile is not found",
		},
		{
			name: "private profile",
			user: instagram.UserData{
				Username: "hidden",
				Profile:  &instagram.Profile{Username: "hidden", IsPrivate: boolPtr(true)},
				Posts:    []instagram.Post{{Caption: "hello"}},
			},
			reason: "Profile is private",
		},
		{
			name: "no captions",
			user: instagram.UserData{
				Username: "quiet",
				Profile:  &instagram.Profile{Username: "quiet"},
				Posts:    []instagram.Post{{Caption: "  "}},
			},
			reason: "Profile has 1 accessible posts",
		},
		{
			name: "public with captions",
			user: instagram.UserData{
				Username: "ann_runs",
				Profile:  &instagram.Profile{Username: "ann_runs", IsPrivate: boolPtr(false), Biography: "Marathon training"},
				Posts:    []instagram.Post{{Caption: "Morning workout"}, {Caption: ""}},
			},
			suitable: true,
			reason:   "Profile has 2 accessible posts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ICP(context.Background(), tt.user, brand)
			assert.Equal(t, tt.suitable, got.IsSuitableICP)
			assert.Equal(t, tt.reason, got.Reasoning)
			assert.Equal(t, "nike", got.BrandHandle)
			assert.Equal(t, MethodRuleBased, got.Method)
		})
	}

	got := s.ICP(context.Background(), tests[3].user, brand)
	assert.Equal(t, []string{"fitness"}, got.Interests)
}

func TestICPWithModel(t *testing.T) {
	user := instagram.UserData{
		Username: "ann_runs",
		Profile:  &instagram.Profile{Username: "ann_runs", FullName: "Ann", FollowersCount: 120},
		Posts:    []instagram.Post{{Caption: "Long run today"}},
	}

	t.Run("parses answer", func(t *testing.T) {
		s, fa := newLLMService(Response{
			"profile_summary":    "Amateur runner",
			"demographics":       map[string]interface{}{"age_range": "25-34", "location": "Oslo"},
			"interests":          []interface{}{"running", "nutrition"},
			"relevance_to_brand": "High",
			"is_suitable_icp":    true,
		})
		got := s.ICP(context.Background(), user, BrandRef{Handle: "nike", Name: "Nike"})

		assert.True(t, got.IsSuitableICP)
		assert.Equal(t, "high", got.RelevanceToBrand)
		assert.Equal(t, Demographics{AgeRange: "25-34", Gender: "Unknown", Location: "Oslo"}, got.Demographics)
		assert.Equal(t, []string{"running", "nutrition"}, got.Interests)

		prompt := fa.calls[0][0].Text
		assert.Contains(t, prompt, "ideal customer profile (ICP) for Nike")
		assert.Contains(t, prompt, "Followers: 120")
		assert.Contains(t, prompt, "Following: Unknown")
		assert.Contains(t, prompt, "- Long run today")
	})

	t.Run("missing flag means not suitable", func(t *testing.T) {
		s, _ := newLLMService(Response{"profile_summary": "Someone"})
		got := s.ICP(context.Background(), user, BrandRef{Handle: "nike"})
		assert.False(t, got.IsSuitableICP)
	})

	t.Run("failure keeps the user", func(t *testing.T) {
		s, _ := newLLMService(failed("timeout"))
		got := s.ICP(context.Background(), user, BrandRef{Handle: "nike"})

		assert.True(t, got.IsSuitableICP)
		assert.True(t, got.FallbackGenerated)
		assert.Equal(t, "medium", got.RelevanceToBrand)
		assert.Equal(t, "Error during analysis: timeout", got.Reasoning)
		assert.Equal(t, unknownDemographics(), got.Demographics)
	})
}

func TestInfluenceRules(t *testing.T) {
	s := newRuleService()

	t.Run("tiers ratio themes and engagement", func(t *testing.T) {
		user := instagram.UserData{
			Username: "fit_jo",
			Profile: &instagram.Profile{
				Username:       "fit_jo",
				Biography:      "Fitness coach | travel",
				FollowersCount: 50000,
				FollowingCount: 1000,
			},
			Posts: []instagram.Post{
				{Caption: "Healthy meal prep", LikesCount: 1200, CommentsCount: 100},
				{Caption: "Leg day", LikesCount: 800, CommentsCount: 100},
			},
		}
		got := s.Influence(context.Background(), user)

		assert.Equal(t, "mid-tier influencer", got.InfluenceCategory)
		assert.Equal(t, 30, got.AuthenticityScore)
		assert.Equal(t, []string{"fitness", "travel", "food"}, got.ContentThemes)
		assert.InDelta(t, 2.2, got.EngagementRate, 1e-9)
		assert.Equal(t, "medium", got.EngagementPotential)
	})

	t.Run("defaults without data", func(t *testing.T) {
		got := s.Influence(context.Background(), instagram.UserData{Username: "nobody"})
		assert.Equal(t, "casual user", got.InfluenceCategory)
		assert.Equal(t, 50, got.AuthenticityScore)
		assert.Equal(t, []string{"general content"}, got.ContentThemes)
		assert.Equal(t, "medium", got.EngagementPotential)
	})
}

func TestInfluenceCategory(t *testing.T) {
	tests := []struct {
		followers int
		business  bool
		want      string
	}{
		{2_000_000, false, "mega-influencer"},
		{1_000_000, false, "macro-influencer"},
		{100_001, false, "macro-influencer"},
		{10_001, true, "mid-tier influencer"},
		{1_001, false, "micro-influencer"},
		{1_000, true, "business account"},
		{1_000, false, "casual user"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, influenceCategory(tt.followers, tt.business), "%d followers", tt.followers)
	}
}

func TestAuthenticityScore(t *testing.T) {
	assert.Equal(t, 30, authenticityScore(21))
	assert.Equal(t, 60, authenticityScore(20))
	assert.Equal(t, 60, authenticityScore(10.5))
	assert.Equal(t, 80, authenticityScore(10))
	assert.Equal(t, 80, authenticityScore(2.1))
	assert.Equal(t, 70, authenticityScore(2))
	assert.Equal(t, 70, authenticityScore(0.5))
}

func TestInfluenceWithModelFailure(t *testing.T) {
	s, _ := newLLMService(failed("bad gateway"))
	got := s.Influence(context.Background(), instagram.UserData{Username: "x"})

	assert.Equal(t, "casual user", got.InfluenceCategory)
	assert.Equal(t, 50, got.AuthenticityScore)
	assert.True(t, got.FallbackGenerated)
	assert.Equal(t, []string{"General consumer brands"}, got.BrandAlignmentPotential)
}

func TestCommentInfluence(t *testing.T) {
	s := newRuleService()

	t.Run("no comments", func(t *testing.T) {
		got := s.CommentInfluence(nil, "ann")
		assert.Equal(t, 0, got.CommentCount)
		assert.Equal(t, "unknown", got.EngagementQuality)
		assert.Equal(t, "neutral", got.Sentiment)
	})

	t.Run("mostly positive short comments", func(t *testing.T) {
		got := s.CommentInfluence([]instagram.Comment{
			{Text: "I love this, amazing work!"},
			{Text: "great"},
			{Text: ""},
		}, "ann")

		assert.Equal(t, 3, got.CommentCount)
		assert.Equal(t, "positive", got.Sentiment)
		assert.Equal(t, map[string]int{"positive": 2, "neutral": 0, "negative": 0}, got.SentimentDistribution)
		assert.InDelta(t, 7.75, got.AvgEngagementScore, 1e-9)
		assert.Equal(t, "low", got.EngagementQuality)
	})

	t.Run("long mixed comments", func(t *testing.T) {
		long := strings.Repeat("solid thoughts on pacing ", 4)
		got := s.CommentInfluence([]instagram.Comment{
			{Text: long},
			{Text: long + "but the fit is terrible"},
		}, "bob")

		assert.Equal(t, "neutral", got.Sentiment)
		assert.Equal(t, "medium", got.EngagementQuality)
	})
}

func TestInsights(t *testing.T) {
	icps := []ICPAnalysis{
		{Username: "a", IsSuitableICP: true, Interests: []string{"Running", "travel"},
			Demographics: Demographics{AgeRange: "25-34", Gender: "Unknown", Location: "Oslo"}},
		{Username: "b", IsSuitableICP: true, Interests: []string{"running"}},
		{Username: "c", IsSuitableICP: false, Interests: []string{"gaming"}},
	}

	t.Run("no profiles", func(t *testing.T) {
		got := newRuleService().Insights(context.Background(), nil, BrandRef{Handle: "nike"})
		assert.Equal(t, MethodGeneral, got.Method)
		require.Len(t, got.AudienceSegments, 1)
		assert.Equal(t, 100.0, got.AudienceSegments[0].EstimatedPercentage)
		assert.Equal(t, "More audience data needed for detailed analysis", got.GeneralInsight)
	})

	t.Run("rule based aggregation", func(t *testing.T) {
		got := newRuleService().Insights(context.Background(), icps, BrandRef{Handle: "nike"})

		assert.Equal(t, MethodRuleBased, got.Method)
		assert.Equal(t, 2, got.AnalyzedProfiles)
		assert.Equal(t, "2 of 3 sampled profiles match the ideal customer profile", got.AudienceAlignment)
		require.Len(t, got.AudienceSegments, 2)
		assert.Equal(t, "Running", got.AudienceSegments[0].Name)
		assert.Equal(t, 100.0, got.AudienceSegments[0].EstimatedPercentage)
		assert.Equal(t, "Travel", got.AudienceSegments[1].Name)
		assert.Equal(t, 50.0, got.AudienceSegments[1].EstimatedPercentage)
	})

	t.Run("model prompt lists suitable facts only", func(t *testing.T) {
		s, fa := newLLMService(Response{
			"audience_alignment": "Strong",
			"audience_segments": []interface{}{
				map[string]interface{}{"name": "Runners", "description": "Road runners", "estimated_percentage": float64(60)},
			},
			"content_recommendations": []interface{}{"Race recaps"},
		})
		got := s.Insights(context.Background(), icps, BrandRef{Handle: "nike", Name: "Nike"})

		assert.Equal(t, "Strong", got.AudienceAlignment)
		assert.Equal(t, []Segment{{Name: "Runners", Description: "Road runners", EstimatedPercentage: 60}}, got.AudienceSegments)
		prompt := fa.calls[0][0].Text
		assert.Contains(t, prompt, "analysis of 2 identified")
		assert.Contains(t, prompt, "- Age: 25-34")
		assert.Contains(t, prompt, "- Location: Oslo")
		assert.NotContains(t, prompt, "Gender")
		assert.NotContains(t, prompt, "gaming")
	})

	t.Run("model failure", func(t *testing.T) {
		s, _ := newLLMService(failed("down"))
		got := s.Insights(context.Background(), icps, BrandRef{Handle: "nike"})
		assert.Equal(t, "Error occurred during audience analysis", got.AudienceAlignment)
		assert.True(t, got.FallbackGenerated)
	})
}
