package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"trendradar/internal/trending"
)

// FileSearcher serves recorded recent-search responses from a JSON file. The file holds either a
// single response object or an array of them.
type FileSearcher struct {
	path string
}

// NewFileSearcher returns a FileSearcher referencing the given file.
func NewFileSearcher(path string) (*FileSearcher, error) {
	if path == "" {
		return nil, errors.New("file searcher requires a path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file searcher: %w", err)
	}
	return &FileSearcher{path: path}, nil
}

// Search returns recorded posts authored by one of the handles, at most maxResults of them.
func (s *FileSearcher) Search(ctx context.Context, handles []string, maxResults int) (*trending.SearchPage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read search fixture %s: %w", s.path, err)
	}

	responses, err := decodeResponses(raw)
	if err != nil {
		return nil, fmt.Errorf("decode search fixture %s: %w", s.path, err)
	}

	wanted := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		wanted[strings.ToLower(h)] = struct{}{}
	}

	merged := &SearchResponse{}
	for _, resp := range responses {
		merged.Includes.Users = append(merged.Includes.Users, resp.Includes.Users...)
		merged.Includes.Media = append(merged.Includes.Media, resp.Includes.Media...)
	}
	usernames := make(map[string]string, len(merged.Includes.Users))
	for _, u := range merged.Includes.Users {
		usernames[u.ID] = strings.ToLower(u.Username)
	}

	for _, resp := range responses {
		for _, t := range resp.Data {
			if maxResults > 0 && len(merged.Data) >= maxResults {
				break
			}
			if _, ok := wanted[usernames[t.AuthorID]]; !ok {
				continue
			}
			merged.Data = append(merged.Data, t)
		}
	}

	return toPage(merged), nil
}

func decodeResponses(data []byte) ([]SearchResponse, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty file")
	}

	if trimmed[0] == '[' {
		var many []SearchResponse
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
		return many, nil
	}

	var one SearchResponse
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return []SearchResponse{one}, nil
}
