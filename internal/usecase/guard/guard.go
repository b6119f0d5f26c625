// Package guard screens user prompts and cleans model output before it is returned.
package guard

import (
	"regexp"
	"strings"

	"github.com/kira-labs/kira/internal/domain"
)

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ignore\s+all\s+previous\s+instructions`),
	regexp.MustCompile(`system\s+prompt`),
	regexp.MustCompile(`reveal\s+hidden`),
	regexp.MustCompile(`developer\s+message`),
	regexp.MustCompile(`bypass\s+safety`),
}

var controlChars = regexp.MustCompile("[\x01-\x08\x0B\x0C\x0E-\x1F]")

// ValidatePrompt rejects text containing known instruction-override phrases.
func ValidatePrompt(text string) error {
	lowered := strings.ToLower(text)
	for _, p := range injectionPatterns {
		if p.MatchString(lowered) {
			return domain.ErrPromptInjection
		}
	}
	return nil
}

// SanitizeOutput strips NUL and control characters (except tab, LF and CR) and trims.
func SanitizeOutput(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
	return controlChars.ReplaceAllString(text, "")
}
