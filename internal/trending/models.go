package trending

import (
	"strings"
	"time"
)

// RawPost is a single post as returned by the search collaborator, before author and media resolution.
type RawPost struct {
	ID           string
	Text         string
	AuthorID     string
	CreatedAt    string
	LikeCount    int
	RetweetCount int
	ReplyCount   int
	MediaKeys    []string
}

// RawUser is an author entry from the search lookup table.
type RawUser struct {
	ID              string
	Name            string
	Username        string
	ProfileImageURL string
	Verified        bool
	FollowersCount  int
}

// RawMedia is a media entry from the search lookup table.
type RawMedia struct {
	Key             string
	Type            string
	URL             string
	PreviewImageURL string
}

// SearchPage bundles one search response: posts plus the lookup tables they reference.
type SearchPage struct {
	Posts []RawPost
	Users map[string]RawUser
	Media map[string]RawMedia
}

// CandidatePost is a normalized, ranked post eligible for clustering.
type CandidatePost struct {
	PostID             string    `json:"post_id"`
	Text               string    `json:"text"`
	AuthorName         string    `json:"author_name"`
	AuthorHandle       string    `json:"author_handle"`
	AuthorAvatarURL    string    `json:"author_avatar_url,omitempty"`
	MediaURL           string    `json:"media_url,omitempty"`
	LikeCount          int       `json:"like_count"`
	RetweetCount       int       `json:"retweet_count"`
	ReplyCount         int       `json:"reply_count"`
	SourceQualityScore float64   `json:"source_quality_score"`
	PublishedAt        time.Time `json:"published_at"`
}

// EngagementScore weighs retweets double.
func (p CandidatePost) EngagementScore() float64 {
	return float64(p.LikeCount + 2*p.RetweetCount + p.ReplyCount)
}

// RankingScore is engagement scaled by source quality.
func (p CandidatePost) RankingScore() float64 {
	return p.EngagementScore() * p.SourceQualityScore
}

// Sentiment is the tone label attached to a topic.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// ParseSentiment maps free-form labels onto the enum; anything unrecognized is neutral.
func ParseSentiment(raw string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(raw))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	case SentimentMixed:
		return SentimentMixed
	default:
		return SentimentNeutral
	}
}

// TopicCluster is a clusterer's proposal for one topic.
type TopicCluster struct {
	TopicKey      string
	Title         string
	Summary       string
	KeyPoints     []string
	Sentiment     Sentiment
	Category      string
	MemberPostIDs []string
}

// TrendingTopic is a persisted topic row.
type TrendingTopic struct {
	ID        string    `json:"id"`
	TrendName string    `json:"trend_name"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	KeyPoints []string  `json:"key_points"`
	Sentiment Sentiment `json:"sentiment"`
	Category  string    `json:"category"`
	PostCount int       `json:"post_count"`
	CachedAt  time.Time `json:"cached_at"`
}

// TrendingPost is a persisted post row belonging to exactly one topic of a snapshot.
type TrendingPost struct {
	ID              string    `json:"id"`
	PostID          string    `json:"post_id"`
	TopicID         string    `json:"topic_id"`
	AuthorName      string    `json:"author_name"`
	AuthorHandle    string    `json:"author_handle"`
	AuthorAvatarURL string    `json:"author_avatar_url,omitempty"`
	Text            string    `json:"text"`
	MediaURL        string    `json:"media_url,omitempty"`
	LikeCount       int       `json:"like_count"`
	RetweetCount    int       `json:"retweet_count"`
	ReplyCount      int       `json:"reply_count"`
	PostURL         string    `json:"post_url"`
	PublishedAt     time.Time `json:"published_at"`
	CachedAt        time.Time `json:"cached_at"`
}

// Snapshot is one consistent set of topics and posts stamped with a single CachedAt.
type Snapshot struct {
	Topics      []TrendingTopic
	Posts       []TrendingPost
	CachedAt    time.Time
	ReusedPosts int
}

// PostURL builds the canonical link for a post.
func PostURL(handle, postID string) string {
	return "https://twitter.com/" + handle + "/status/" + postID
}
