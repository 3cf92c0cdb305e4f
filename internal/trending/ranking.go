package trending

import (
	"math"
	"strings"
	"time"
)

const unknownHandle = "unknown"

// Ranker assigns a source-quality score to authors based on a curated trust table and audience signals.
type Ranker struct {
	TrustWeights  map[string]float64
	DefaultWeight float64
	FollowerCap   float64
	VerifiedBonus float64
	MinScore      float64
	MaxScore      float64
}

// DefaultTrustWeights is the curated per-handle trust table keyed by lowercase handle.
func DefaultTrustWeights() map[string]float64 {
	return map[string]float64{
		"reuters":         1.0,
		"ap":              1.0,
		"bbcworld":        0.95,
		"cnnbrk":          0.9,
		"nytimes":         0.9,
		"ft":              0.9,
		"wsj":             0.9,
		"bloomberg":       0.9,
		"npr":             0.85,
		"aljazeera":       0.85,
		"theeconomist":    0.85,
		"openai":          0.85,
		"nature":          0.95,
		"sciencemagazine": 0.95,
		"nasa":            0.95,
		"who":             0.95,
		"un":              0.95,
		"google":          0.8,
		"microsoft":       0.8,
		"meta":            0.8,
		"techcrunch":      0.8,
		"youtube":         0.75,
		"verge":           0.75,
		"wired":           0.75,
	}
}

// DefaultRanker returns a Ranker preloaded with the curated trust table.
func DefaultRanker() Ranker {
	return Ranker{
		TrustWeights:  DefaultTrustWeights(),
		DefaultWeight: 0.5,
		FollowerCap:   15,
		VerifiedBonus: 0.15,
		MinScore:      0.2,
		MaxScore:      2.0,
	}
}

// SourceQuality scores an author: trust weight plus a log-scaled follower signal plus a verification bonus.
func (r Ranker) SourceQuality(handle string, followers int, verified bool) float64 {
	weight, ok := r.TrustWeights[strings.ToLower(strings.TrimSpace(handle))]
	if !ok {
		weight = r.DefaultWeight
	}

	var followerSignal float64
	if followers > 0 && r.FollowerCap > 0 {
		followerSignal = math.Min(math.Log1p(float64(followers)), r.FollowerCap) / r.FollowerCap
	}

	var bonus float64
	if verified {
		bonus = r.VerifiedBonus
	}

	return clamp(weight+followerSignal+bonus, r.MinScore, r.MaxScore)
}

// Normalize resolves a raw post against its page lookup tables into a ranked candidate.
func (r Ranker) Normalize(raw RawPost, page SearchPage, now time.Time) CandidatePost {
	user, hasUser := page.Users[raw.AuthorID]

	handle := strings.TrimSpace(user.Username)
	if !hasUser || handle == "" {
		handle = unknownHandle
	}
	name := firstNonBlank(user.Name, handle)

	var mediaURL string
	for _, key := range raw.MediaKeys {
		media, ok := page.Media[key]
		if !ok {
			continue
		}
		mediaURL = firstNonBlank(media.URL, media.PreviewImageURL)
		if mediaURL != "" {
			break
		}
	}

	published, err := time.Parse(time.RFC3339, raw.CreatedAt)
	if err != nil {
		published = now
	}

	return CandidatePost{
		PostID:             raw.ID,
		Text:               raw.Text,
		AuthorName:         name,
		AuthorHandle:       handle,
		AuthorAvatarURL:    user.ProfileImageURL,
		MediaURL:           mediaURL,
		LikeCount:          nonNegative(raw.LikeCount),
		RetweetCount:       nonNegative(raw.RetweetCount),
		ReplyCount:         nonNegative(raw.ReplyCount),
		SourceQualityScore: r.SourceQuality(handle, user.FollowersCount, user.Verified),
		PublishedAt:        published.UTC(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
