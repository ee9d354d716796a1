package pipeline

import (
	"time"

	"igaudience/pkg/analysis"
	"igaudience/pkg/audience"
	"igaudience/pkg/instagram"
	"igaudience/pkg/pool"
	"igaudience/pkg/scoring"
)

// Analysis types recorded in brand report metadata
const (
	AnalysisTypeLLM       = "llm_enhanced_approach"
	AnalysisTypeRuleBased = "rule_based_approach"
)

// BrandInfo identifies the analyzed brand
type BrandInfo struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Handle string `json:"instagram_handle"`
}

// EngagedUser is one collected audience candidate
type EngagedUser struct {
	Username string        `json:"username"`
	Source   pool.Source   `json:"source"`
	Score    float64       `json:"score"`
	Label    scoring.Label `json:"label"`
}

// AudienceData is the collected audience and the sampled ICP analyses
type AudienceData struct {
	EngagedUsers       []EngagedUser          `json:"engaged_users"`
	ICPData            []analysis.ICPAnalysis `json:"icp_data"`
	TotalUniqueUsers   int                    `json:"total_unique_users"`
	Origin             audience.Origin        `json:"collection_origin"`
	Stages             []audience.State       `json:"collection_stages"`
	EffectiveThreshold float64                `json:"effective_threshold"`
}

// BrandMetadata describes how a brand report was produced
type BrandMetadata struct {
	Timestamp            time.Time `json:"timestamp"`
	AnalysisType         string    `json:"analysis_type"`
	QualityThresholdUsed float64   `json:"quality_threshold_used"`
	Status               string    `json:"status"`
	RunID                string    `json:"run_id"`
}

// BrandReport is the saved result of a brand analysis
type BrandReport struct {
	Brand       BrandInfo              `json:"brand"`
	Profile     *instagram.Profile     `json:"brand_profile"`
	Analysis    analysis.BrandAnalysis `json:"brand_analysis"`
	PostsSample []instagram.Post       `json:"posts_sample"`
	Audience    AudienceData           `json:"audience_data"`
	Insights    analysis.Insights      `json:"audience_insights"`
	Metadata    BrandMetadata          `json:"analysis_metadata"`

	// Path is where the report was saved
	Path string `json:"-"`
}

// UserMetadata describes how a user report was produced
type UserMetadata struct {
	Timestamp         time.Time       `json:"timestamp"`
	AnalysisMethod    analysis.Method `json:"analysis_method"`
	IsPrivateProfile  bool            `json:"is_private_profile"`
	IsBusinessProfile bool            `json:"is_business_profile"`
	Status            string          `json:"status"`
	RunID             string          `json:"run_id"`
}

// UserReport is the saved result of a user analysis
type UserReport struct {
	Username         string                     `json:"username"`
	ProfileData      *instagram.Profile         `json:"profile_data"`
	PostsSample      []instagram.Post           `json:"posts_sample"`
	UserAnalysis     analysis.InfluenceAnalysis `json:"user_analysis"`
	CommentInfluence *analysis.CommentInfluence `json:"comment_influence,omitempty"`
	Metadata         UserMetadata               `json:"analysis_metadata"`

	Path string `json:"-"`
}

// Result is what Analyze produced; exactly one of Brand and User is set
type Result struct {
	Kind  Kind
	Path  string
	Brand *BrandReport
	User  *UserReport
}

func engagedUsers(cs []pool.Candidate) []EngagedUser {
	out := make([]EngagedUser, len(cs))
	for i, c := range cs {
		out[i] = EngagedUser{Username: c.Username, Source: c.Source, Score: c.Score, Label: c.Label}
	}
	return out
}

func sample[T any](items []T, n int) []T {
	if len(items) <= n {
		if items == nil {
			return []T{}
		}
		return items
	}
	return items[:n]
}
