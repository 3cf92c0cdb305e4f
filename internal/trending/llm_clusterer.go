package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trendradar/internal/llm"
	"trendradar/internal/metrics"
)

// LLMClusterer delegates clustering to a large language model. It never returns an error: any
// failure is logged and reported as an empty result.
type LLMClusterer struct {
	Client           llm.Completer
	Temperature      float64
	MaxTokens        int
	MaxItems         int
	MinPostsPerTopic int
	Logger           zerolog.Logger
}

var genericTitles = []string{
	"technology update",
	"technology updates",
	"product updates",
	"tech updates",
	"world update",
	"world updates",
	"world news",
	"global updates",
	"business update",
	"business updates",
	"market updates",
	"science updates",
	"health updates",
	"general updates",
	"top updates",
}

// BuildClusters asks the model to group the highest-ranked posts into topics.
func (c LLMClusterer) BuildClusters(ctx context.Context, posts []CandidatePost) ([]TopicCluster, error) {
	if len(posts) == 0 {
		return nil, nil
	}
	if c.Client == nil {
		return c.fail(errors.New("llm clusterer has no client"))
	}

	limited := make([]CandidatePost, len(posts))
	copy(limited, posts)
	sortByRanking(limited)
	if c.MaxItems > 0 && len(limited) > c.MaxItems {
		limited = limited[:c.MaxItems]
	}

	prompt, err := buildClusterPrompt(limited)
	if err != nil {
		return c.fail(err)
	}

	c.Logger.Debug().Int("posts", len(limited)).Msg("requesting llm clustering")

	text, err := c.Client.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		return c.fail(err)
	}

	batch, err := parseClusterResponse(text)
	if err != nil {
		return c.fail(err)
	}

	clusters := validateTopics(batch, limited, c.minPosts(), c.Logger)
	if len(clusters) == 0 {
		return c.fail(errors.New("llm response contained no usable topics"))
	}

	metrics.RecordLLM("ok")
	return clusters, nil
}

func (c LLMClusterer) minPosts() int {
	if c.MinPostsPerTopic <= 0 {
		return 1
	}
	return c.MinPostsPerTopic
}

func (c LLMClusterer) fail(cause error) ([]TopicCluster, error) {
	metrics.RecordLLM("failed")
	c.Logger.Warn().Err(cause).Msg("llm clustering unavailable")
	return nil, nil
}

type promptPost struct {
	TweetID            string  `json:"tweet_id"`
	AuthorHandle       string  `json:"author_handle"`
	AuthorName         string  `json:"author_name"`
	PublishedAt        string  `json:"published_at"`
	LikeCount          int     `json:"like_count"`
	RetweetCount       int     `json:"retweet_count"`
	ReplyCount         int     `json:"reply_count"`
	SourceQualityScore float64 `json:"source_quality_score"`
	Text               string  `json:"text"`
}

const clusterInstructions = `You are a breaking-news analyst. Group the posts below into distinct real-world news events.

Return ONLY valid JSON using this schema:
{
  "topics": [
    {
      "topic_id": "short-stable-slug",
      "title": "Concrete event headline",
      "summary": "Two or three sentences describing what happened",
      "key_points": ["fact", "fact"],
      "sentiment": "positive|negative|neutral|mixed",
      "category": "World|Technology|Business|Science|Health|Politics|Sports|General",
      "tweet_ids": ["id", "id"]
    }
  ]
}

Rules:
- Use only tweet_ids that appear in the input.
- Group posts by the event they describe, not by the account that posted them.
- Titles must name a concrete event with an identifier: a person, company, place, product or number.
  Bad: "Technology updates". Good: "OpenAI ships GPT-5 to free ChatGPT users".
- Never use generic titles such as "World news", "Market updates" or "Top updates".
- Produce between 20 and 30 topics when the input allows it.
- Each topic lists between 1 and 8 tweet_ids.
- A tweet_id may appear in at most one topic.

Posts (one JSON object per line):
`

func buildClusterPrompt(posts []CandidatePost) (string, error) {
	var b strings.Builder
	b.WriteString(clusterInstructions)
	for _, post := range posts {
		line, err := json.Marshal(promptPost{
			TweetID:            post.PostID,
			AuthorHandle:       post.AuthorHandle,
			AuthorName:         post.AuthorName,
			PublishedAt:        post.PublishedAt.UTC().Format(time.RFC3339),
			LikeCount:          post.LikeCount,
			RetweetCount:       post.RetweetCount,
			ReplyCount:         post.ReplyCount,
			SourceQualityScore: roundTo(post.SourceQualityScore, 3),
			Text:               cleanText(post.Text),
		})
		if err != nil {
			return "", fmt.Errorf("llm prompt marshal: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// llmTopic mirrors one topic exactly as the model produced it; every field is optional.
type llmTopic struct {
	TopicID   *string  `json:"topic_id"`
	Title     *string  `json:"title"`
	Summary   *string  `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Sentiment *string  `json:"sentiment"`
	Category  *string  `json:"category"`
	TweetIDs  []flexID `json:"tweet_ids"`
}

type llmTopicBatch struct {
	Topics []llmTopic
	// Skipped counts topics whose JSON shape did not match llmTopic.
	Skipped int
}

// flexID accepts ids encoded either as strings or as bare numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func parseClusterResponse(content string) (llmTopicBatch, error) {
	payload := extractJSON(content)
	if payload == "" {
		return llmTopicBatch{}, errors.New("llm response missing json payload")
	}

	var envelope struct {
		Topics []json.RawMessage `json:"topics"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return llmTopicBatch{}, fmt.Errorf("llm response decode: %w", err)
	}

	var batch llmTopicBatch
	for _, raw := range envelope.Topics {
		var topic llmTopic
		if err := json.Unmarshal(raw, &topic); err != nil {
			batch.Skipped++
			continue
		}
		batch.Topics = append(batch.Topics, topic)
	}
	return batch, nil
}

// validateTopics keeps only well-formed, specific topics whose ids reference the input pool.
func validateTopics(batch llmTopicBatch, pool []CandidatePost, minPosts int, logger zerolog.Logger) []TopicCluster {
	valid := make(map[string]struct{}, len(pool))
	for _, post := range pool {
		valid[post.PostID] = struct{}{}
	}

	var dropped int
	clusters := make([]TopicCluster, 0, len(batch.Topics))
	for _, topic := range batch.Topics {
		title := strings.TrimSpace(deref(topic.Title))
		if isGenericTitle(title) {
			dropped++
			continue
		}
		summary := strings.TrimSpace(deref(topic.Summary))
		if summary == "" {
			dropped++
			continue
		}

		seen := make(map[string]struct{}, len(topic.TweetIDs))
		ids := make([]string, 0, len(topic.TweetIDs))
		for _, raw := range topic.TweetIDs {
			id := strings.TrimSpace(string(raw))
			if id == "" {
				continue
			}
			if _, ok := valid[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if len(ids) < minPosts {
			dropped++
			continue
		}

		clusters = append(clusters, TopicCluster{
			TopicKey:      strings.TrimSpace(deref(topic.TopicID)),
			Title:         title,
			Summary:       summary,
			KeyPoints:     nonBlank(topic.KeyPoints),
			Sentiment:     ParseSentiment(deref(topic.Sentiment)),
			Category:      strings.TrimSpace(deref(topic.Category)),
			MemberPostIDs: ids,
		})
	}

	if dropped > 0 || batch.Skipped > 0 {
		logger.Debug().Int("dropped", dropped).Int("malformed", batch.Skipped).Msg("llm topics rejected")
	}
	return clusters
}

func isGenericTitle(title string) bool {
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	if normalized == "" {
		return true
	}
	for _, generic := range genericTitles {
		if strings.Contains(normalized, generic) {
			return true
		}
	}
	return false
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func roundTo(v float64, prec int) float64 {
	p := math.Pow10(prec)
	return math.Round(v*p) / p
}

func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}
