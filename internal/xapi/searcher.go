package xapi

import (
	"context"

	"trendradar/internal/trending"
)

// Searcher adapts Client to trending.SearchClient.
type Searcher struct {
	client *Client
}

// NewSearcher wraps a client.
func NewSearcher(client *Client) *Searcher {
	return &Searcher{client: client}
}

// Search queries recent original English posts from the given handles.
func (s *Searcher) Search(ctx context.Context, handles []string, maxResults int) (*trending.SearchPage, error) {
	resp, err := s.client.SearchRecent(ctx, trending.SearchQuery(handles), maxResults)
	if err != nil {
		return nil, err
	}
	return toPage(resp), nil
}

func toPage(resp *SearchResponse) *trending.SearchPage {
	page := &trending.SearchPage{
		Posts: make([]trending.RawPost, 0, len(resp.Data)),
		Users: make(map[string]trending.RawUser, len(resp.Includes.Users)),
		Media: make(map[string]trending.RawMedia, len(resp.Includes.Media)),
	}
	for _, u := range resp.Includes.Users {
		page.Users[u.ID] = trending.RawUser{
			ID:              u.ID,
			Name:            u.Name,
			Username:        u.Username,
			ProfileImageURL: u.ProfileImageURL,
			Verified:        u.Verified,
			FollowersCount:  u.PublicMetrics.FollowersCount,
		}
	}
	for _, m := range resp.Includes.Media {
		page.Media[m.MediaKey] = trending.RawMedia{
			Key:             m.MediaKey,
			Type:            m.Type,
			URL:             m.URL,
			PreviewImageURL: m.PreviewImageURL,
		}
	}
	for _, t := range resp.Data {
		var keys []string
		if t.Attachments != nil {
			keys = t.Attachments.MediaKeys
		}
		page.Posts = append(page.Posts, trending.RawPost{
			ID:           t.ID,
			Text:         t.Text,
			AuthorID:     t.AuthorID,
			CreatedAt:    t.CreatedAt,
			LikeCount:    t.PublicMetrics.LikeCount,
			RetweetCount: t.PublicMetrics.RetweetCount,
			ReplyCount:   t.PublicMetrics.ReplyCount,
			MediaKeys:    keys,
		})
	}
	return page
}
