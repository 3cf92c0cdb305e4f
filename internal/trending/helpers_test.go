package trending

import (
	"fmt"
	"time"
)

var testNow = time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)

func candidate(id, handle, text string, likes int) CandidatePost {
	return CandidatePost{
		PostID:             id,
		Text:               text,
		AuthorName:         handle,
		AuthorHandle:       handle,
		LikeCount:          likes,
		SourceQualityScore: 1.0,
		PublishedAt:        testNow,
	}
}

// pool builds n posts whose text maps to the given category keyword, with descending likes.
func pool(prefix, keyword string, n int) []CandidatePost {
	posts := make([]CandidatePost, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, candidate(
			fmt.Sprintf("%s-%d", prefix, i),
			"reuters",
			fmt.Sprintf("Story %d about the %s today", i, keyword),
			1000-i,
		))
	}
	return posts
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}
