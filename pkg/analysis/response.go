package analysis

import (
	"fmt"
	"strings"
)

// Response is the JSON object a language model answered with, or a failure
// marker built by failure.
type Response map[string]interface{}

func failure(err error, raw string) Response {
	r := Response{
		"error":              true,
		"error_message":      err.Error(),
		"fallback_generated": true,
	}
	if raw != "" {
		r["raw_response"] = raw
	}
	return r
}

// Failed reports whether r is a failure marker
func (r Response) Failed() bool {
	if r == nil {
		return true
	}
	if v, ok := r["error"].(bool); ok && v {
		return true
	}
	_, raw := r["raw_response"]
	return raw
}

// ErrorMessage returns the failure text, if any
func (r Response) ErrorMessage() string {
	if msg := r.String("error_message"); msg != "" {
		return msg
	}
	if r.Failed() {
		return "unparseable model response"
	}
	return ""
}

// String returns a string field. Non-string scalars are formatted.
func (r Response) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]interface{}, []interface{}:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Strings returns a list field. A single string becomes a one-element list.
func (r Response) Strings(key string) []string {
	switch v := r[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case map[string]interface{}:
				if name, ok := s["name"].(string); ok {
					out = append(out, name)
				}
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Bool returns a boolean field, accepting "true"/"yes" strings
func (r Response) Bool(key string, def bool) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	}
	return def
}

// Number returns a numeric field
func (r Response) Number(key string, def float64) float64 {
	if v, ok := r[key].(float64); ok {
		return v
	}
	return def
}

// Object returns a nested object field as a Response
func (r Response) Object(key string) Response {
	if v, ok := r[key].(map[string]interface{}); ok {
		return Response(v)
	}
	return nil
}
