package normalizer

import (
	"regexp"
	"strings"
)

// urlPattern matches explicit http(s) URLs, www-prefixed hosts, and bare
// host/path tokens containing a dot followed by a slash.
var urlPattern = regexp.MustCompile(`(?i)(https?://[^\s]+|www\.[^\s]+|[^\s]+\.[^\s]{2,}/[^\s]*)`)

// ExtractLinks returns every URL-like token in text, in source order.
// Matches without an explicit scheme are prefixed with https://. Duplicates
// are preserved as found.
func ExtractLinks(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	links := make([]string, 0, len(matches))
	for _, link := range matches {
		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			link = "https://" + link
		}
		links = append(links, link)
	}
	return links
}
