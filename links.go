package wikigraph

import (
	"regexp"
	"strings"
)

// An internal link is [[target]] or [[target|label]]. The target may
// not hold newlines, brackets, angle brackets or braces, and is at most
// 256 characters long.
var linkRE = regexp.MustCompile(`\[\[([^\n|\[\]<>{}]{1,256})(?:\|[^\[\]]*)?\]\]`)

// FindLinks finds all the link targets from within an article body, in
// order of appearance and with repeats.
func FindLinks(text string) []string {
	matches := linkRE.FindAllStringSubmatch(text, -1)

	rv := make([]string, 0, len(matches))
	for _, x := range matches {
		rv = append(rv, x[1])
	}

	return rv
}

// NormalizeTitle gives the key a title is matched by.
func NormalizeTitle(title string) string {
	return strings.ToLower(title)
}
