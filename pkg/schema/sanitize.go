package schema

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// Sanitize normalises user-entered text and strips any markup.
// Surrounding whitespace is preserved so typing is not disturbed.
func Sanitize(value string) string {
	if value == "" {
		return value
	}
	value = norm.NFC.String(value)
	if !strings.Contains(value, "<") {
		return value
	}
	return html.UnescapeString(textSanitizer().Sanitize(value))
}
