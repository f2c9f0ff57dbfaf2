package llm

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrNoJSON = errors.New("llm: no JSON in response")

// ExtractJSON strips markdown code fences and surrounding prose and returns the
// outermost JSON object or array as a gjson.Result.
func ExtractJSON(text string) (gjson.Result, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:] // drop the language tag line
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	if gjson.Valid(s) {
		if r := gjson.Parse(s); r.IsObject() || r.IsArray() {
			return r, nil
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return gjson.Result{}, ErrNoJSON
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return gjson.Result{}, ErrNoJSON
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return gjson.Result{}, ErrNoJSON
	}
	return gjson.Parse(candidate), nil
}

// Strings reads an array of strings at path, skipping blanks.
func Strings(r gjson.Result, path string) []string {
	var out []string
	for _, v := range r.Get(path).Array() {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Str reads a trimmed string at path; missing keys read as "".
func Str(r gjson.Result, path string) string {
	return strings.TrimSpace(r.Get(path).String())
}
