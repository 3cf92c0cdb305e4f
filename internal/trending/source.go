package trending

import (
	"context"
	"strings"
)

// SearchClient runs one recent-search query restricted to the given account handles.
type SearchClient interface {
	Search(ctx context.Context, handles []string, maxResults int) (*SearchPage, error)
}

// DefaultAccounts is the curated roster of authoritative accounts.
func DefaultAccounts() []string {
	return []string{
		"Reuters", "AP", "BBCWorld", "cnnbrk", "nytimes", "FT",
		"WSJ", "NPR", "AlJazeera", "TheEconomist", "Bloomberg", "TechCrunch",
		"verge", "WIRED", "Nature", "sciencemagazine", "NASA", "WHO",
		"UN", "OpenAI", "google", "Microsoft", "Meta", "YouTube",
	}
}

// SearchQuery builds the recent-search query for a batch of handles.
func SearchQuery(handles []string) string {
	parts := make([]string, 0, len(handles))
	for _, h := range handles {
		parts = append(parts, "from:"+h)
	}
	return "(" + strings.Join(parts, " OR ") + ") -is:retweet -is:reply lang:en"
}

// chunkHandles splits the roster into batches of at most size handles, dropping blanks and duplicates.
func chunkHandles(handles []string, size int) [][]string {
	if size <= 0 {
		size = 8
	}
	seen := make(map[string]struct{}, len(handles))
	var clean []string
	for _, h := range handles {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h == "" {
			continue
		}
		key := strings.ToLower(h)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		clean = append(clean, h)
	}

	var batches [][]string
	for start := 0; start < len(clean); start += size {
		end := start + size
		if end > len(clean) {
			end = len(clean)
		}
		batches = append(batches, clean[start:end])
	}
	return batches
}
