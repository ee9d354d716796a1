package instagram

import "encoding/json"

// Profile is one account as returned by the profile scraper. The scraper has
// shipped two field spellings over time; both decode into the same struct.
type Profile struct {
	Username          string `json:"username"`
	FullName          string `json:"fullName"`
	Biography         string `json:"biography"`
	FollowersCount    int    `json:"followersCount"`
	FollowingCount    int    `json:"followingCount"`
	PostsCount        int    `json:"postsCount"`
	ProfilePicURL     string `json:"profilePicUrl,omitempty"`
	IsBusinessAccount bool   `json:"isBusinessAccount"`
	BusinessCategory  string `json:"businessCategory,omitempty"`
	// IsPrivate is nil when the scraper did not say
	IsPrivate      *bool `json:"is_private,omitempty"`
	HasPublicStory bool  `json:"has_public_story,omitempty"`
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Username             string `json:"username"`
		FullName             string `json:"fullName"`
		Biography            string `json:"biography"`
		FollowersCount       int    `json:"followersCount"`
		FollowingCount       *int   `json:"followingCount"`
		FollowsCount         int    `json:"followsCount"`
		PostsCount           int    `json:"postsCount"`
		ProfilePicURL        string `json:"profilePicUrl"`
		ProfilePicURLHD      string `json:"profilePicUrlHD"`
		IsBusinessAccount    bool   `json:"isBusinessAccount"`
		BusinessCategory     string `json:"businessCategory"`
		BusinessCategoryName string `json:"businessCategoryName"`
		IsPrivate            *bool  `json:"is_private"`
		Private              *bool  `json:"private"`
		HasPublicStory       bool   `json:"has_public_story"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Profile{
		Username:          raw.Username,
		FullName:          raw.FullName,
		Biography:         raw.Biography,
		FollowersCount:    raw.FollowersCount,
		FollowingCount:    raw.FollowsCount,
		PostsCount:        raw.PostsCount,
		ProfilePicURL:     firstNonEmpty(raw.ProfilePicURLHD, raw.ProfilePicURL),
		IsBusinessAccount: raw.IsBusinessAccount,
		BusinessCategory:  firstNonEmpty(raw.BusinessCategory, raw.BusinessCategoryName),
		IsPrivate:         raw.IsPrivate,
		HasPublicStory:    raw.HasPublicStory,
	}
	if raw.FollowingCount != nil {
		p.FollowingCount = *raw.FollowingCount
	}
	if p.IsPrivate == nil {
		p.IsPrivate = raw.Private
	}
	return nil
}

// Post is one media item from a profile or hashtag feed
type Post struct {
	ID            string   `json:"id"`
	ShortCode     string   `json:"shortCode"`
	Caption       string   `json:"caption"`
	OwnerUsername string   `json:"ownerUsername,omitempty"`
	CommentsCount int      `json:"commentsCount"`
	LikesCount    int      `json:"likesCount"`
	DisplayURL    string   `json:"displayUrl,omitempty"`
	URL           string   `json:"url,omitempty"`
	Hashtags      []string `json:"hashtags,omitempty"`
	Type          string   `json:"type,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
}

func (p *Post) UnmarshalJSON(data []byte) error {
	type alias Post
	var raw struct {
		alias
		Shortcode json.RawMessage `json:"shortcode"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Post(raw.alias)
	if p.ShortCode == "" && len(raw.Shortcode) > 0 {
		_ = json.Unmarshal(raw.Shortcode, &p.ShortCode)
	}
	// Some actors emit unix seconds, others ISO 8601
	p.Timestamp = rawScalar(raw.Timestamp)
	return nil
}

// Comment is one comment on a post
type Comment struct {
	ID            string `json:"id,omitempty"`
	Text          string `json:"text"`
	OwnerUsername string `json:"ownerUsername"`
	LikesCount    int    `json:"likesCount,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// Visibility is the outcome of a public/private probe. It never carries a
// Go error; failures are reported in Error with the account assumed private.
type Visibility struct {
	Username   string   `json:"username"`
	Exists     bool     `json:"exists"`
	IsPrivate  bool     `json:"is_private"`
	IsPublic   bool     `json:"is_public"`
	IsBusiness bool     `json:"is_business"`
	Profile    *Profile `json:"profile_data,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// UserData bundles a profile with a few of its posts
type UserData struct {
	Username string   `json:"username"`
	Profile  *Profile `json:"profile_data"`
	Posts    []Post   `json:"posts"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
