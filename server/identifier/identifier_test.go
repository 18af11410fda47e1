package identifier

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		description string
		input       string
		expected    Result
	}{
		{
			description: "Should accept a /contact/ url",
			input:       "https://app.example/contact/a1b2c3d4",
			expected:    Result{Kind: ShareCode, Value: "a1b2c3d4"},
		},
		{
			description: "Should lowercase a /contact/ code",
			input:       "https://app.example/contact/A1B2C3D4?src=qr",
			expected:    Result{Kind: ShareCode, Value: "a1b2c3d4"},
		},
		{
			description: "Should accept a code under /public/",
			input:       "https://app.example/public/a1b2c3d4",
			expected:    Result{Kind: ShareCode, Value: "a1b2c3d4"},
		},
		{
			description: "Should treat any other /public/ token as a username",
			input:       "https://app.example/public/Jane.Doe?ref=card",
			expected:    Result{Kind: Username, Value: "Jane.Doe"},
		},
		{
			description: "Should stop the /public/ token at a fragment",
			input:       "app.example/public/jane#top",
			expected:    Result{Kind: Username, Value: "jane"},
		},
		{
			description: "Should unescape a /public/ username",
			input:       "https://app.example/public/jane%20doe",
			expected:    Result{Kind: Username, Value: "jane doe"},
		},
		{
			description: "Should accept a bare code with surrounding whitespace",
			input:       "  DEADBEEF \n",
			expected:    Result{Kind: ShareCode, Value: "deadbeef"},
		},
		{
			description: "Should fall back to a code anywhere in the text",
			input:       "scanner:xyzA1B2C3D4",
			expected:    Result{Kind: ShareCode, Value: "a1b2c3d4"},
		},
		{
			description: "Should fall back when the /contact/ token is not a code",
			input:       "https://app.example/contact/nope/0badf00d",
			expected:    Result{Kind: ShareCode, Value: "0badf00d"},
		},
		{
			description: "Should reject text without any identifier",
			input:       "hello there",
			expected:    Result{Kind: Invalid},
		},
		{
			description: "Should reject a url without a card path",
			input:       "https://app.example/about",
			expected:    Result{Kind: Invalid},
		},
		{
			description: "Should reject empty input",
			input:       "",
			expected:    Result{Kind: Invalid},
		},
	}

	for _, tc := range cases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, Parse(tc.input))
		})
	}
}

func TestParseClassifiesEveryWrappingOfACode(t *testing.T) {
	codes := []string{"00000000", "a1b2c3d4", "ffffffff", "0A0b0C0d"}
	wrappers := []string{
		"%s",
		" %s ",
		"/contact/%s",
		"/public/%s",
		"https://app.example/contact/%s",
		"https://app.example/public/%s?utm=qr",
	}

	for _, code := range codes {
		for _, wrapper := range wrappers {
			input := fmt.Sprintf(wrapper, code)
			result := Parse(input)
			assert.Equal(t, ShareCode, result.Kind, input)
			assert.Equal(t, strings.ToLower(code), result.Value, input)
		}
	}
}

func TestIsShareCode(t *testing.T) {
	assert.True(t, IsShareCode("a1b2c3d4"))
	assert.True(t, IsShareCode("A1B2C3D4"))
	assert.False(t, IsShareCode("a1b2c3d"))
	assert.False(t, IsShareCode("a1b2c3d4e"))
	assert.False(t, IsShareCode("g1b2c3d4"))
}
