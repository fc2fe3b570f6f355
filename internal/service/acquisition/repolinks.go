package acquisition

import "regexp"

// repoLinkPattern matches owner/repo URLs on the supported code hosts
var repoLinkPattern = regexp.MustCompile(`https?://(?:github\.com|gitlab\.com|bitbucket\.org)/[\w-]+/[\w-]+`)

// ExtractRepoLinks returns the code repository URLs found in text,
// deduplicated and ordered by first appearance
func ExtractRepoLinks(text string) []string {
	links := []string{}
	if text == "" {
		return links
	}

	seen := make(map[string]bool)
	for _, match := range repoLinkPattern.FindAllString(text, -1) {
		if seen[match] {
			continue
		}
		seen[match] = true
		links = append(links, match)
	}
	return links
}
