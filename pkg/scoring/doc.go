// Package scoring holds the pure heuristics that rate comments, hashtags and
// usernames. Nothing here performs I/O.
package scoring
