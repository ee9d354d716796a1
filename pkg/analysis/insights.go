package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// maxPromptFacts caps the interests and demographics listed in a prompt
const maxPromptFacts = 20

// Segment is one slice of a brand's audience
type Segment struct {
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	EstimatedPercentage float64 `json:"estimated_percentage"`
}

// Insights summarizes a brand's audience from its analyzed ICP sample
type Insights struct {
	AudienceAlignment      string    `json:"audience_alignment"`
	AudienceSegments       []Segment `json:"audience_segments,omitempty"`
	ContentRecommendations []string  `json:"content_recommendations"`
	EngagementStrategies   []string  `json:"engagement_strategies"`
	KeyInsights            []string  `json:"key_insights,omitempty"`
	GeneralInsight         string    `json:"general_insight,omitempty"`
	AnalyzedProfiles       int       `json:"analyzed_profiles_count"`
	Meta
}

// Insights aggregates ICP analyses into audience-level recommendations
func (s *Service) Insights(ctx context.Context, icps []ICPAnalysis, brand BrandRef) Insights {
	if len(icps) == 0 {
		return s.generalInsights()
	}

	var suitable []ICPAnalysis
	for _, icp := range icps {
		if icp.IsSuitableICP {
			suitable = append(suitable, icp)
		}
	}
	interests, demographics := collectFacts(suitable)

	if !s.UsesLLM() {
		return s.insightRules(suitable, len(icps), interests)
	}

	resp := s.ask(ctx, "insights", brand.Handle, []Part{TextPart(insightsPrompt(brand, len(suitable), interests, demographics))})
	if resp.Failed() {
		return Insights{
			AudienceAlignment: "Error occurred during audience analysis",
			ContentRecommendations: []string{
				"Continue posting high-quality visual content",
				"Increase engagement through questions and calls to action",
			},
			EngagementStrategies: []string{
				"Respond to comments consistently",
				"Use Instagram Stories for behind-the-scenes content",
			},
			AnalyzedProfiles: len(suitable),
			Meta:             s.fallbackMeta(resp),
		}
	}

	m := s.meta(MethodLLM)
	m.LLM = resp
	return Insights{
		AudienceAlignment:      resp.String("audience_alignment"),
		AudienceSegments:       segmentsOf(resp),
		ContentRecommendations: resp.Strings("content_recommendations"),
		EngagementStrategies:   resp.Strings("engagement_strategies"),
		KeyInsights:            resp.Strings("key_insights"),
		AnalyzedProfiles:       len(suitable),
		Meta:                   m,
	}
}

func (s *Service) generalInsights() Insights {
	return Insights{
		AudienceAlignment: "Insufficient data to determine specific ICP alignment",
		AudienceSegments: []Segment{{
			Name:                "General Instagram Users",
			Description:         "Instagram users who engage with brand content",
			EstimatedPercentage: 100,
		}},
		ContentRecommendations: []string{
			"Post engaging visual content regularly",
			"Encourage user-generated content",
			"Use Instagram Stories for behind-the-scenes content",
		},
		EngagementStrategies: []string{
			"Respond to comments consistently",
			"Run Instagram contests or giveaways",
			"Collaborate with micro-influencers in your niche",
		},
		GeneralInsight: "More audience data needed for detailed analysis",
		Meta:           s.meta(MethodGeneral),
	}
}

// insightRules builds segments from the most common interests of the
// suitable profiles
func (s *Service) insightRules(suitable []ICPAnalysis, sampled int, interests []string) Insights {
	out := Insights{
		AudienceAlignment: fmt.Sprintf("%d of %d sampled profiles match the ideal customer profile", len(suitable), sampled),
		ContentRecommendations: []string{
			"Post engaging visual content regularly",
			"Encourage user-generated content",
		},
		EngagementStrategies: []string{
			"Respond to comments consistently",
			"Collaborate with micro-influencers in your niche",
		},
		AnalyzedProfiles: len(suitable),
		Meta:             s.meta(MethodRuleBased),
	}

	for _, tc := range rankInterests(interests, 3) {
		out.AudienceSegments = append(out.AudienceSegments, Segment{
			Name:                capitalize(tc.name),
			Description:         fmt.Sprintf("Profiles posting about %s", tc.name),
			EstimatedPercentage: float64(tc.count) / float64(len(suitable)) * 100,
		})
		out.ContentRecommendations = append(out.ContentRecommendations,
			fmt.Sprintf("Create content around %s", tc.name))
	}
	if len(out.AudienceSegments) > 0 {
		out.KeyInsights = append(out.KeyInsights,
			fmt.Sprintf("The most common interest in the sample is %s", out.AudienceSegments[0].Name))
	}
	if len(suitable) == 0 {
		out.GeneralInsight = "No sampled profile matched the ideal customer profile"
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

type termCount struct {
	name  string
	count int
}

func rankInterests(interests []string, n int) []termCount {
	counts := map[string]int{}
	var order []string
	for _, i := range interests {
		key := strings.ToLower(strings.TrimSpace(i))
		if key == "" {
			continue
		}
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	ranked := make([]termCount, 0, len(order))
	for _, k := range order {
		ranked = append(ranked, termCount{name: k, count: counts[k]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func collectFacts(icps []ICPAnalysis) (interests, demographics []string) {
	for _, icp := range icps {
		interests = append(interests, icp.Interests...)
		d := icp.Demographics
		if d.AgeRange != "" && d.AgeRange != "Unknown" {
			demographics = append(demographics, "Age: "+d.AgeRange)
		}
		if d.Gender != "" && d.Gender != "Unknown" {
			demographics = append(demographics, "Gender: "+d.Gender)
		}
		if d.Location != "" && d.Location != "Unknown" {
			demographics = append(demographics, "Location: "+d.Location)
		}
	}
	return interests, demographics
}

func segmentsOf(resp Response) []Segment {
	raw, ok := resp["audience_segments"].([]interface{})
	if !ok {
		return nil
	}
	var out []Segment
	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		r := Response(obj)
		out = append(out, Segment{
			Name:                r.String("name"),
			Description:         r.String("description"),
			EstimatedPercentage: r.Number("estimated_percentage", 0),
		})
	}
	return out
}

func insightsPrompt(brand BrandRef, suitable int, interests, demographics []string) string {
	name := brand.display()
	var b strings.Builder
	fmt.Fprintf(&b, "Generate detailed audience insights for %s based on analysis of %d identified ideal customer profiles.\n\n", name, suitable)
	fmt.Fprintf(&b, "Brand: %s\nInstagram handle: @%s\n\n", name, brand.Handle)
	b.WriteString("Key interests identified across profiles:\n")
	for i, v := range interests {
		if i == maxPromptFacts {
			break
		}
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString("\nDemographics identified:\n")
	for i, v := range demographics {
		if i == maxPromptFacts {
			break
		}
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString(`
Return a JSON object with these keys:
- audience_alignment (string): how well the brand's content aligns with this audience
- audience_segments (list of objects with name, description, estimated_percentage)
- content_recommendations (list of 3-5 strings)
- engagement_strategies (list of 3-5 strings)
- key_insights (list of 2-3 strings)
`)
	return b.String()
}
