// Package analysis turns scraped Instagram data into brand, ICP, influence
// and audience-insight reports.
//
// Language model calls go through the TextAnalyzer interface. OpenAIAnalyzer
// talks to any OpenAI-compatible chat completions endpoint, retries transient
// failures and unparseable answers, and reports total failure as a Response
// carrying an error marker instead of an error value. Service consumes those
// responses and substitutes a fixed fallback structure whenever the marker is
// present. Built with a nil analyzer, Service runs every analysis with
// keyword and threshold rules only.
package analysis
