// Package formatting extracts structured data from model responses.
package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed indicates the content held no parseable JSON, bare or
// inside a markdown code fence.
var ErrParseFailed = errors.New("failed to parse response")

var fencedJSON = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// Parse unmarshals content into T. Models often wrap their JSON in a
// markdown fence or surround it with prose, so after a direct attempt it
// tries the first code fence, then the outermost brace-delimited span.
func Parse[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	candidates := []string{content}
	if m := fencedJSON.FindStringSubmatch(content); len(m) >= 2 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if span := braceSpan(content); span != "" {
		candidates = append(candidates, span)
	}

	for _, candidate := range candidates {
		if err := json.Unmarshal([]byte(candidate), &result); err == nil {
			return result, nil
		}
	}
	return result, fmt.Errorf("%w: %s", ErrParseFailed, content)
}

// braceSpan returns the substring from the first '{' through the last
// '}', or "" when no such span exists.
func braceSpan(content string) string {
	open := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if open == -1 || end <= open {
		return ""
	}
	return content[open : end+1]
}
