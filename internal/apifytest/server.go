// Package apifytest provides an in-memory Apify server for tests. It answers
// the run-sync-get-dataset-items endpoint for the Instagram actors from
// fixtures registered per account, post and hashtag.
package apifytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"igaudience/pkg/instagram"
)

// Token is the bearer token the server accepts
const Token = "apify_test_token"

// Account is one Instagram account known to the server
type Account struct {
	Profile  instagram.Profile
	Posts    []instagram.Post
	Comments map[string][]instagram.Comment // shortcode -> comments
}

// Server simulates the Apify actor API
type Server struct {
	server *httptest.Server

	mu       sync.RWMutex
	accounts map[string]Account
	hashtags map[string][]instagram.Post
	errors   map[string]int // actor -> status code
	runs     map[string]int

	requestCount int32
}

// NewServer starts a server. Close it when done.
func NewServer() *Server {
	s := &Server{
		accounts: make(map[string]Account),
		hashtags: make(map[string][]instagram.Post),
		errors:   make(map[string]int),
		runs:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/acts/", s.handleRun)
	s.server = httptest.NewServer(mux)
	return s
}

// URL is the base URL to configure the client with
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down
func (s *Server) Close() {
	s.server.Close()
}

// AddAccount registers an account with its posts and their comments
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(a.Profile.Username)] = a
}

// AddHashtag registers the posts returned for tag
func (s *Server) AddHashtag(tag string, posts ...instagram.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashtags[strings.ToLower(tag)] = posts
}

// FailActor makes every run of actor answer with status
func (s *Server) FailActor(actor string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[actor] = status
}

// Runs returns how many times actor was started
func (s *Server) Runs(actor string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[actor]
}

// RequestCount returns the total number of requests served
func (s *Server) RequestCount() int {
	return int(atomic.LoadInt32(&s.requestCount))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.requestCount, 1)

	rest := strings.TrimPrefix(r.URL.Path, "/v2/acts/")
	actorPath, ok := strings.CutSuffix(rest, "/run-sync-get-dataset-items")
	if !ok || r.Method != http.MethodPost {
		sendError(w, http.StatusNotFound, "page-not-found", "unknown endpoint")
		return
	}
	actor := strings.Replace(actorPath, "~", "/", 1)

	if r.Header.Get("Authorization") != "Bearer "+Token {
		sendError(w, http.StatusUnauthorized, "user-or-token-not-found", "authentication token is not valid")
		return
	}

	var input map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, http.StatusBadRequest, "invalid-input", err.Error())
		return
	}

	s.mu.Lock()
	s.runs[actor]++
	status := s.errors[actor]
	s.mu.Unlock()
	if status != 0 {
		sendError(w, status, "actor-failed", "simulated failure")
		return
	}

	var items interface{}
	switch actor {
	case instagram.ActorProfileScraper:
		items = s.profileScraper(input)
	case instagram.ActorScraper:
		items = s.postsByURL(input)
	case instagram.ActorCommentScraper:
		items = s.commentsByURL(input)
	case instagram.ActorHashtagScraper:
		items = s.hashtagPosts(input)
	default:
		sendError(w, http.StatusNotFound, "record-not-found", "actor "+actor+" was not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (s *Server) profileScraper(input map[string]interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []interface{}
	for _, name := range stringList(input["usernames"]) {
		a, ok := s.accounts[strings.ToLower(name)]
		if !ok {
			continue
		}
		if input["resultsType"] == "posts" {
			for _, p := range limitPosts(a.Posts, input) {
				out = append(out, p)
			}
			continue
		}
		out = append(out, profileRecord(a.Profile))
	}
	return nonNil(out)
}

func (s *Server) postsByURL(input map[string]interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []interface{}
	for _, u := range stringList(input["directUrls"]) {
		name := strings.Trim(strings.TrimPrefix(u, instagram.BaseURL), "/")
		if a, ok := s.accounts[strings.ToLower(name)]; ok {
			for _, p := range limitPosts(a.Posts, input) {
				out = append(out, p)
			}
		}
	}
	return nonNil(out)
}

func (s *Server) commentsByURL(input map[string]interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []interface{}
	for _, u := range stringList(input["directUrls"]) {
		shortcode := strings.Trim(strings.TrimPrefix(u, instagram.BaseURL+"/p/"), "/")
		for _, a := range s.accounts {
			for _, c := range a.Comments[shortcode] {
				out = append(out, c)
			}
		}
	}
	return nonNil(out)
}

func (s *Server) hashtagPosts(input map[string]interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []interface{}
	for _, tag := range stringList(input["hashtags"]) {
		for _, p := range limitPosts(s.hashtags[strings.ToLower(tag)], input) {
			out = append(out, p)
		}
	}
	return nonNil(out)
}

// profileRecord renders a profile with the scraper's current field names
func profileRecord(p instagram.Profile) map[string]interface{} {
	rec := map[string]interface{}{
		"username":          p.Username,
		"fullName":          p.FullName,
		"biography":         p.Biography,
		"followersCount":    p.FollowersCount,
		"followsCount":      p.FollowingCount,
		"postsCount":        p.PostsCount,
		"isBusinessAccount": p.IsBusinessAccount,
	}
	if p.BusinessCategory != "" {
		rec["businessCategoryName"] = p.BusinessCategory
	}
	if p.IsPrivate != nil {
		rec["private"] = *p.IsPrivate
	}
	return rec
}

func limitPosts(posts []instagram.Post, input map[string]interface{}) []instagram.Post {
	if n, ok := input["resultsLimit"].(float64); ok && int(n) < len(posts) {
		return posts[:int(n)]
	}
	return posts
}

func stringList(v interface{}) []string {
	list, _ := v.([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(items []interface{}) []interface{} {
	if items == nil {
		return []interface{}{}
	}
	return items
}

func sendError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"type": kind, "message": message},
	})
}
