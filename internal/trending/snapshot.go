package trending

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTopicTitle   = "Trending Topic"
	defaultTopicSummary = "Top posts from authoritative X sources."
	extraTopicSummary   = "Additional high-signal topic extracted from authoritative X sources."
	maxKeyPoints        = 4
)

// SnapshotBuilder turns clusters plus the candidate pool into persistable rows.
type SnapshotBuilder struct {
	MaxTopics        int
	MinTopics        int
	MinPostsPerTopic int
	// AllowBackfillReuse lets the floor be reached by reusing already-assigned posts once every
	// unclaimed post has become its own topic.
	AllowBackfillReuse bool
	NewID              func() string
}

// NewSnapshotBuilder returns a builder with the default caps and floors.
func NewSnapshotBuilder() SnapshotBuilder {
	return SnapshotBuilder{
		MaxTopics:          40,
		MinTopics:          20,
		MinPostsPerTopic:   1,
		AllowBackfillReuse: true,
		NewID:              uuid.NewString,
	}
}

type resolvedTopic struct {
	cluster TopicCluster
	members []CandidatePost
}

// Build assembles a snapshot stamped with at. It returns nil when no topic survives.
func (b SnapshotBuilder) Build(candidates []CandidatePost, clusters []TopicCluster, at time.Time) *Snapshot {
	b = b.withDefaults()

	byID := make(map[string]CandidatePost, len(candidates))
	for _, post := range candidates {
		if _, ok := byID[post.PostID]; !ok {
			byID[post.PostID] = post
		}
	}

	topics := b.resolveClusters(clusters, byID)

	claimed := make(map[string]struct{})
	for _, topic := range topics {
		for _, m := range topic.members {
			claimed[m.PostID] = struct{}{}
		}
	}

	ranked := make([]CandidatePost, len(candidates))
	copy(ranked, candidates)
	sortByRanking(ranked)

	if len(topics) < b.MinTopics {
		for idx, post := range ranked {
			if len(topics) >= b.MinTopics {
				break
			}
			if _, ok := claimed[post.PostID]; ok {
				continue
			}
			claimed[post.PostID] = struct{}{}
			topics = append(topics, resolvedTopic{
				cluster: TopicCluster{
					TopicKey:  fmt.Sprintf("single-%s-%d", post.PostID, idx+1),
					Title:     singlePostTitle(post),
					Summary:   singlePostSummary(post),
					KeyPoints: []string{"Source: @" + post.AuthorHandle, "High-signal update from authoritative account"},
					Sentiment: SentimentNeutral,
					Category:  InferCategory(post.Text),
				},
				members: []CandidatePost{post},
			})
		}
	}

	reused := 0
	if b.AllowBackfillReuse && len(topics) < b.MinTopics && len(ranked) > 0 {
		for idx := 0; len(topics) < b.MinTopics && len(topics) < b.MaxTopics; idx++ {
			post := ranked[idx%len(ranked)]
			topics = append(topics, resolvedTopic{
				cluster: TopicCluster{
					TopicKey:  fmt.Sprintf("extra-%s-%d", post.PostID, idx+1),
					Title:     singlePostTitle(post),
					Summary:   extraTopicSummary,
					KeyPoints: []string{"Source: @" + post.AuthorHandle},
					Sentiment: SentimentNeutral,
					Category:  InferCategory(post.Text),
				},
				members: []CandidatePost{post},
			})
			reused++
		}
	}

	if len(topics) == 0 {
		return nil
	}

	at = at.UTC()
	snap := &Snapshot{CachedAt: at, ReusedPosts: reused}
	for _, topic := range topics {
		topicID := b.NewID()
		snap.Topics = append(snap.Topics, toTrendingTopic(topicID, topic, at))
		for _, post := range topic.members {
			snap.Posts = append(snap.Posts, toTrendingPost(b.NewID(), topicID, post, at))
		}
	}
	return snap
}

func (b SnapshotBuilder) withDefaults() SnapshotBuilder {
	if b.MaxTopics <= 0 {
		b.MaxTopics = 40
	}
	if b.MinTopics < 0 {
		b.MinTopics = 0
	}
	if b.MinTopics > b.MaxTopics {
		b.MinTopics = b.MaxTopics
	}
	if b.MinPostsPerTopic <= 0 {
		b.MinPostsPerTopic = 1
	}
	if b.NewID == nil {
		b.NewID = uuid.NewString
	}
	return b
}

// resolveClusters normalizes keys, keeps the first MaxTopics distinct keys and then enforces
// first-claim-wins on posts. A key counts toward the cap even when its cluster ends up empty.
func (b SnapshotBuilder) resolveClusters(clusters []TopicCluster, byID map[string]CandidatePost) []resolvedTopic {
	seenKeys := make(map[string]struct{}, len(clusters))
	claimed := make(map[string]struct{})
	var out []resolvedTopic

	for idx, cluster := range clusters {
		cluster.TopicKey = normalizeTopicKey(cluster.TopicKey, cluster.Title, idx)
		if _, dup := seenKeys[cluster.TopicKey]; dup {
			continue
		}
		if len(seenKeys) >= b.MaxTopics {
			break
		}
		seenKeys[cluster.TopicKey] = struct{}{}

		var members []CandidatePost
		inCluster := make(map[string]struct{}, len(cluster.MemberPostIDs))
		for _, id := range cluster.MemberPostIDs {
			post, ok := byID[id]
			if !ok {
				continue
			}
			if _, dup := inCluster[id]; dup {
				continue
			}
			inCluster[id] = struct{}{}
			if _, taken := claimed[id]; taken {
				continue
			}
			members = append(members, post)
		}
		if len(members) < b.MinPostsPerTopic {
			continue
		}
		sortByRanking(members)

		for _, m := range members {
			claimed[m.PostID] = struct{}{}
		}
		out = append(out, resolvedTopic{cluster: sanitizeCluster(cluster), members: members})
	}
	return out
}

func sanitizeCluster(c TopicCluster) TopicCluster {
	c.Title = firstNonBlank(c.Title, defaultTopicTitle)
	c.Summary = firstNonBlank(c.Summary, defaultTopicSummary)
	if strings.TrimSpace(c.Category) == "" {
		c.Category = InferCategory(c.Title + " " + c.Summary)
	} else {
		c.Category = strings.TrimSpace(c.Category)
	}
	c.KeyPoints = nonBlank(c.KeyPoints)
	if len(c.KeyPoints) > maxKeyPoints {
		c.KeyPoints = c.KeyPoints[:maxKeyPoints]
	}
	c.Sentiment = ParseSentiment(string(c.Sentiment))
	return c
}

func normalizeTopicKey(raw, title string, index int) string {
	if strings.TrimSpace(raw) != "" {
		return Slugify(raw)
	}
	return fmt.Sprintf("topic-%d-%s", index+1, Slugify(title))
}

func toTrendingTopic(id string, topic resolvedTopic, at time.Time) TrendingTopic {
	c := topic.cluster
	keyPoints := c.KeyPoints
	if keyPoints == nil {
		keyPoints = []string{}
	}
	return TrendingTopic{
		ID:        id,
		TrendName: c.TopicKey,
		Title:     c.Title,
		Summary:   c.Summary,
		KeyPoints: keyPoints,
		Sentiment: c.Sentiment,
		Category:  c.Category,
		PostCount: len(topic.members),
		CachedAt:  at,
	}
}

func toTrendingPost(id, topicID string, post CandidatePost, at time.Time) TrendingPost {
	return TrendingPost{
		ID:              id,
		PostID:          post.PostID,
		TopicID:         topicID,
		AuthorName:      post.AuthorName,
		AuthorHandle:    post.AuthorHandle,
		AuthorAvatarURL: post.AuthorAvatarURL,
		Text:            post.Text,
		MediaURL:        post.MediaURL,
		LikeCount:       post.LikeCount,
		RetweetCount:    post.RetweetCount,
		ReplyCount:      post.ReplyCount,
		PostURL:         PostURL(post.AuthorHandle, post.PostID),
		PublishedAt:     post.PublishedAt,
		CachedAt:        at,
	}
}
