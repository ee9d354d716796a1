// Package instagram turns Apify actor output into typed Instagram records.
//
// Source is the only entry point the rest of the module uses. Each method
// maps to one actor call kind and one rate limiter endpoint:
//
//	Profile          instagram_profile     apify/instagram-profile-scraper
//	Posts            instagram_posts       apify/instagram-scraper, then the profile scraper
//	Comments         instagram_comments    apify/instagram-comment-scraper
//	HashtagPosts     instagram_hashtags    apify/instagram-hashtag-scraper
//	CheckVisibility  profile_check         profile scraper, plus a one-post probe
//
// Lists are cached per target at a fixed fetch size; the caller's limit is
// applied to the cached list, so cache keys never depend on limits.
package instagram
