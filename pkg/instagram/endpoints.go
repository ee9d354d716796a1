package instagram

import (
	"fmt"
	"strings"
	"time"

	"igaudience/pkg/ratelimit"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	ActorProfileScraper = "apify/instagram-profile-scraper"
	ActorScraper        = "apify/instagram-scraper"
	ActorCommentScraper = "apify/instagram-comment-scraper"
	ActorHashtagScraper = "apify/instagram-hashtag-scraper"

	// Minimum fetch sizes. Results are cached per target at this size and the
	// caller's limit is applied afterwards.
	DefaultPostsFetch    = 10
	DefaultCommentsFetch = 50
	DefaultHashtagFetch  = 10

	// minCachedPosts is the smallest cached post list trusted without a refetch
	minCachedPosts = 3
)

// Timeouts bounds each actor call kind
type Timeouts struct {
	Profile         time.Duration
	Posts           time.Duration
	Comments        time.Duration
	Hashtags        time.Duration
	Visibility      time.Duration
	VisibilityPosts time.Duration
}

// DefaultTimeouts returns the per-call timeouts used against Apify
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Profile:         120 * time.Second,
		Posts:           120 * time.Second,
		Comments:        60 * time.Second,
		Hashtags:        60 * time.Second,
		Visibility:      60 * time.Second,
		VisibilityPosts: 30 * time.Second,
	}
}

// Endpoint names shared with the rate limiter table
const (
	EndpointProfile           = ratelimit.EndpointProfile
	EndpointPosts             = ratelimit.EndpointPosts
	EndpointComments          = ratelimit.EndpointComments
	EndpointHashtags          = ratelimit.EndpointHashtags
	EndpointProfileCheck      = ratelimit.EndpointProfileCheck
	EndpointProfilePostsCheck = ratelimit.EndpointProfilePostsCheck
)

// GetPostURL constructs the URL for a specific post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// GetUserProfileURL constructs the public profile URL for a user
func GetUserProfileURL(username string) string {
	if username == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", BaseURL, username)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}
	return true
}

// SanitizeUsername strips a leading @, a profile URL prefix and trailing
// slashes, then lowercases the result
func SanitizeUsername(username string) string {
	u := strings.TrimSpace(username)
	u = strings.TrimPrefix(u, "@")
	for _, prefix := range []string{"https://www.instagram.com/", "http://www.instagram.com/", "https://instagram.com/", "www.instagram.com/", "instagram.com/"} {
		if strings.HasPrefix(strings.ToLower(u), prefix) {
			u = u[len(prefix):]
			break
		}
	}
	if i := strings.IndexAny(u, "/?"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(strings.TrimSpace(u))
}

func profileDetailsInput(username string) map[string]interface{} {
	return map[string]interface{}{
		"usernames":   []string{username},
		"resultsType": "details",
	}
}

func profilePostsInput(username string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"usernames":    []string{username},
		"resultsType":  "posts",
		"resultsLimit": limit,
	}
}

func scraperPostsInput(username string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"directUrls":    []string{GetUserProfileURL(username)},
		"resultsType":   "posts",
		"resultsLimit":  limit * 2,
		"addParentData": false,
		"searchType":    "user",
		"searchLimit":   1,
	}
}

func commentsInput(shortcode string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"directUrls":   []string{GetPostURL(shortcode)},
		"resultsLimit": limit,
	}
}

func hashtagInput(tag string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"hashtags":     []string{tag},
		"resultsLimit": limit,
	}
}
