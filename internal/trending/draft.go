package trending

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	spacePattern    = regexp.MustCompile(`\s+`)
	nonSlugPattern  = regexp.MustCompile(`[^a-z0-9]+`)
	maxTitleRunes   = 90
	maxSnippetRunes = 200
	maxLeadRunes    = 180
)

// cleanText strips links and collapses whitespace.
func cleanText(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

func snippet(text string, max int) string {
	cleaned := cleanText(text)
	if cleaned == "" {
		cleaned = strings.TrimSpace(text)
	}
	return truncate(cleaned, max)
}

// truncate cuts on rune boundaries without adding an ellipsis.
func truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max]))
}

// Slugify lowercases and collapses every non-alphanumeric run into a single dash.
func Slugify(value string) string {
	slug := nonSlugPattern.ReplaceAllString(strings.ToLower(value), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "topic"
	}
	return slug
}

func singlePostTitle(post CandidatePost) string {
	title := truncate(cleanText(post.Text), maxTitleRunes)
	if title == "" {
		return "Update from @" + post.AuthorHandle
	}
	return title
}

func singlePostSummary(post CandidatePost) string {
	return fmt.Sprintf(
		"This high-signal post from @%s is trending now. Key update: \"%s\". Open to review the original source and monitor follow-up developments.",
		post.AuthorHandle, snippet(post.Text, maxSnippetRunes),
	)
}

func groupSummary(posts []CandidatePost) string {
	if len(posts) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, 3)
	handles := make([]string, 0, 3)
	for _, post := range posts {
		if _, ok := seen[post.AuthorHandle]; ok {
			continue
		}
		seen[post.AuthorHandle] = struct{}{}
		handles = append(handles, "@"+post.AuthorHandle)
		if len(handles) == 3 {
			break
		}
	}
	return fmt.Sprintf(
		"Posts from %s are converging on this event: \"%s\". Open the topic to review all related source posts.",
		strings.Join(handles, ", "), snippet(posts[0].Text, maxLeadRunes),
	)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
