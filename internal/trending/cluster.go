package trending

import (
	"context"
	"sort"
)

// ClusterEngine abstracts the strategy used to group candidate posts into topic clusters.
type ClusterEngine interface {
	BuildClusters(ctx context.Context, posts []CandidatePost) ([]TopicCluster, error)
}

// HeuristicClusterer groups posts by keyword category. It never fails and never returns an empty
// result for a non-empty pool.
type HeuristicClusterer struct {
	MaxTopics        int
	MaxPostsPerGroup int
	FallbackPosts    int
}

// NewHeuristicClusterer constructs a HeuristicClusterer with sane defaults when fields are unset.
func NewHeuristicClusterer(maxTopics, maxPostsPerGroup int) HeuristicClusterer {
	if maxTopics <= 0 {
		maxTopics = 40
	}
	if maxPostsPerGroup <= 0 {
		maxPostsPerGroup = 8
	}
	return HeuristicClusterer{MaxTopics: maxTopics, MaxPostsPerGroup: maxPostsPerGroup, FallbackPosts: 10}
}

func (c HeuristicClusterer) withDefaults() HeuristicClusterer {
	d := NewHeuristicClusterer(c.MaxTopics, c.MaxPostsPerGroup)
	if c.FallbackPosts > 0 {
		d.FallbackPosts = c.FallbackPosts
	}
	return d
}

var heuristicKeyPoints = []string{
	"Cluster built from high-engagement posts",
	"Sources are curated authoritative accounts",
	"Topic should be reviewed as updates continue",
}

type categoryGroup struct {
	category string
	posts    []CandidatePost
	total    float64
}

// BuildClusters returns one cluster per inferred category, strongest categories first.
func (c HeuristicClusterer) BuildClusters(_ context.Context, posts []CandidatePost) ([]TopicCluster, error) {
	if len(posts) == 0 {
		return nil, nil
	}
	c = c.withDefaults()

	ranked := make([]CandidatePost, len(posts))
	copy(ranked, posts)
	sortByRanking(ranked)

	index := make(map[string]int)
	var groups []*categoryGroup
	for _, post := range ranked {
		category := InferCategory(post.Text)
		idx, ok := index[category]
		if !ok {
			idx = len(groups)
			index[category] = idx
			groups = append(groups, &categoryGroup{category: category})
		}
		groups[idx].posts = append(groups[idx].posts, post)
		groups[idx].total += post.RankingScore()
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].total > groups[j].total
	})

	clusters := make([]TopicCluster, 0, len(groups))
	for _, group := range groups {
		members := group.posts
		if len(members) > c.MaxPostsPerGroup {
			members = members[:c.MaxPostsPerGroup]
		}
		if len(members) == 0 {
			continue
		}
		clusters = append(clusters, TopicCluster{
			TopicKey:      "fallback-" + Slugify(group.category),
			Title:         singlePostTitle(members[0]),
			Summary:       groupSummary(members),
			KeyPoints:     append([]string(nil), heuristicKeyPoints...),
			Sentiment:     SentimentNeutral,
			Category:      group.category,
			MemberPostIDs: postIDs(members),
		})
		if len(clusters) == c.MaxTopics {
			break
		}
	}

	if len(clusters) > 0 {
		return clusters, nil
	}

	top := ranked
	if len(top) > c.FallbackPosts {
		top = top[:c.FallbackPosts]
	}
	return []TopicCluster{{
		TopicKey:      "fallback-general",
		Title:         "Top Updates from Authoritative X Accounts",
		Summary:       "This is a broad snapshot of the most engaged recent posts from trusted sources.",
		KeyPoints:     []string{"High-engagement authoritative posts", "Refresh to update topic grouping"},
		Sentiment:     SentimentNeutral,
		Category:      CategoryGeneral,
		MemberPostIDs: postIDs(top),
	}}, nil
}

// sortByRanking orders posts by ranking score descending, breaking ties by post id.
func sortByRanking(posts []CandidatePost) {
	sort.SliceStable(posts, func(i, j int) bool {
		si, sj := posts[i].RankingScore(), posts[j].RankingScore()
		if si != sj {
			return si > sj
		}
		return posts[i].PostID < posts[j].PostID
	})
}

func postIDs(posts []CandidatePost) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PostID)
	}
	return ids
}
