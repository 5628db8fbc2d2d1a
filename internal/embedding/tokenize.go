package embedding

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z']+`)

// Tokenize lowercases text and returns its words: runs of ASCII letters and
// apostrophes that start with a letter and are at least two characters long.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}
