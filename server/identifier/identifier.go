// Package identifier turns raw scanned or typed text into a share code or a
// username candidate. It has no side effects.
package identifier

import (
	"net/url"
	"regexp"
	"strings"
)

type Kind string

const (
	ShareCode Kind = "share_code"
	Username  Kind = "username"
	Invalid   Kind = "invalid"
)

var (
	shareCodePattern    = regexp.MustCompile(`^[a-fA-F0-9]{8}$`)
	shareCodeSubPattern = regexp.MustCompile(`[a-fA-F0-9]{8}`)
)

type Result struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value,omitempty"`
}

func (r Result) IsValid() bool {
	return r.Kind != Invalid
}

// Parse classifies text. Rules are tried in order & the first match wins:
// a /contact/ token, a /public/ token, a bare code, a full URL, then any
// 8 hex chars in the text. Codes are lowercased, usernames keep their case.
func Parse(text string) Result {
	if token, ok := tokenAfter(text, "/contact/"); ok && IsShareCode(token) {
		return shareCode(token)
	}

	if token, ok := tokenAfter(text, "/public/"); ok {
		if result := classifyPublicToken(token); result.IsValid() {
			return result
		}
	}

	trimmed := strings.TrimSpace(text)
	if IsShareCode(trimmed) {
		return shareCode(trimmed)
	}

	if strings.Contains(text, "http") {
		if result := parseURL(trimmed); result.IsValid() {
			return result
		}
	}

	if match := shareCodeSubPattern.FindString(text); match != "" {
		return shareCode(match)
	}

	return Result{Kind: Invalid}
}

// IsShareCode reports whether value is exactly 8 hex chars, in any case
func IsShareCode(value string) bool {
	return shareCodePattern.MatchString(value)
}

func shareCode(value string) Result {
	return Result{Kind: ShareCode, Value: strings.ToLower(value)}
}

func classifyPublicToken(token string) Result {
	if IsShareCode(token) {
		return shareCode(token)
	}

	if unescaped, err := url.PathUnescape(token); err == nil {
		token = unescaped
	}

	if strings.TrimSpace(token) == "" {
		return Result{Kind: Invalid}
	}

	return Result{Kind: Username, Value: token}
}

// tokenAfter returns the path token following marker, ending at '/', '?', '#' or whitespace
func tokenAfter(text, marker string) (string, bool) {
	idx := strings.Index(text, marker)
	if idx < 0 {
		return "", false
	}

	rest := text[idx+len(marker):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return r == '/' || r == '?' || r == '#' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if end >= 0 {
		rest = rest[:end]
	}

	return rest, rest != ""
}

func parseURL(raw string) Result {
	start := strings.Index(raw, "http")
	if fields := strings.Fields(raw[start:]); len(fields) > 0 {
		raw = fields[0]
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return Result{Kind: Invalid}
	}

	segments := strings.Split(strings.Trim(parsed.EscapedPath(), "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] != "public" && segments[i] != "contact" {
			continue
		}

		token := segments[i+1]
		if segments[i] == "contact" {
			if IsShareCode(token) {
				return shareCode(token)
			}
			continue
		}

		return classifyPublicToken(token)
	}

	return Result{Kind: Invalid}
}
