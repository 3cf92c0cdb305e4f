package trending

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSourceQualityUnknownHandle(t *testing.T) {
	r := DefaultRanker()
	assert.InDelta(t, 0.5, r.SourceQuality("somebody", 0, false), 1e-9)
}

func TestSourceQualityCombinesSignals(t *testing.T) {
	r := DefaultRanker()

	got := r.SourceQuality("Reuters", 1000, true)
	want := 1.0 + math.Log1p(1000)/15 + 0.15
	assert.InDelta(t, want, got, 1e-9)
}

func TestSourceQualityIsClamped(t *testing.T) {
	r := DefaultRanker()

	assert.Equal(t, 2.0, r.SourceQuality("reuters", math.MaxInt32, true))

	r.DefaultWeight = 0
	assert.Equal(t, 0.2, r.SourceQuality("nobody", 0, false))
}

func TestRankingScore(t *testing.T) {
	p := CandidatePost{LikeCount: 10, RetweetCount: 5, ReplyCount: 2, SourceQualityScore: 0.5}
	assert.Equal(t, 22.0, p.EngagementScore())
	assert.Equal(t, 11.0, p.RankingScore())
}

func TestNormalizeResolvesLookups(t *testing.T) {
	page := SearchPage{
		Users: map[string]RawUser{
			"u1": {ID: "u1", Name: "Reuters", Username: "Reuters", ProfileImageURL: "https://img/r.png", Verified: true, FollowersCount: 100},
		},
		Media: map[string]RawMedia{
			"m1": {Key: "m1", Type: "video", PreviewImageURL: "https://img/preview.jpg"},
		},
	}
	raw := RawPost{ID: "1", Text: "hello", AuthorID: "u1", CreatedAt: "2025-10-03T10:00:00Z", LikeCount: 3, RetweetCount: -1, MediaKeys: []string{"m1"}}

	post := DefaultRanker().Normalize(raw, page, testNow)

	assert.Equal(t, "Reuters", post.AuthorHandle)
	assert.Equal(t, "https://img/preview.jpg", post.MediaURL)
	assert.Equal(t, 0, post.RetweetCount)
	assert.Equal(t, time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC), post.PublishedAt)
	assert.Greater(t, post.SourceQualityScore, 1.0)
}

func TestNormalizeDefaultsMissingAuthorAndTime(t *testing.T) {
	raw := RawPost{ID: "2", Text: "x", AuthorID: "missing", CreatedAt: "yesterday"}

	post := DefaultRanker().Normalize(raw, SearchPage{}, testNow)

	assert.Equal(t, "unknown", post.AuthorHandle)
	assert.Equal(t, "unknown", post.AuthorName)
	assert.Equal(t, testNow, post.PublishedAt)
	assert.InDelta(t, 0.5, post.SourceQualityScore, 1e-9)
}
