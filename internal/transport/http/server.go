package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"trendradar/internal/trending"
)

// Refresher is the orchestrator surface the API drives.
type Refresher interface {
	Refresh(ctx context.Context) (trending.RefreshResult, error)
	RefreshIfStale(ctx context.Context) (trending.RefreshResult, bool, error)
	IsStale(ctx context.Context) (bool, error)
	Status() trending.Status
}

// TopicReader serves persisted snapshots.
type TopicReader interface {
	AllTopics(ctx context.Context) ([]trending.TrendingTopic, error)
	TopicByID(ctx context.Context, id string) (trending.TrendingTopic, error)
	PostsForTopic(ctx context.Context, topicID string) ([]trending.TrendingPost, error)
	LatestCachedAt(ctx context.Context) (time.Time, bool, error)
}

type Server struct {
	refresher      Refresher
	topics         TopicReader
	logger         zerolog.Logger
	readTimeout    time.Duration
	refreshTimeout time.Duration
}

func NewServer(refresher Refresher, topics TopicReader, logger zerolog.Logger) *Server {
	return &Server{
		refresher:      refresher,
		topics:         topics,
		logger:         logger,
		readTimeout:    10 * time.Second,
		refreshTimeout: 2 * time.Minute,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /trending", s.handleTopics)
	mux.HandleFunc("GET /trending/status", s.handleStatus)
	mux.HandleFunc("GET /trending/{id}", s.handleTopic)
	mux.HandleFunc("POST /trending/refresh", s.handleRefresh)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET "+swaggerYAMLPath, serveSwaggerYAML)
	mux.HandleFunc("GET /swagger", serveSwaggerUI)
	mux.HandleFunc("GET /swagger/", serveSwaggerUI)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readTimeout)
	defer cancel()

	topics, err := s.topics.AllTopics(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list topics")
		s.writeError(w, http.StatusInternalServerError, "failed to load topics")
		return
	}
	if topics == nil {
		topics = []trending.TrendingTopic{}
	}

	response := map[string]any{
		"topics": topics,
		"count":  len(topics),
	}
	if latest, ok, err := s.topics.LatestCachedAt(ctx); err == nil && ok {
		response["cached_at"] = latest
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readTimeout)
	defer cancel()

	id := r.PathValue("id")
	topic, err := s.topics.TopicByID(ctx, id)
	if errors.Is(err, trending.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "topic not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("topic_id", id).Msg("load topic")
		s.writeError(w, http.StatusInternalServerError, "failed to load topic")
		return
	}

	posts, err := s.topics.PostsForTopic(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("topic_id", id).Msg("load posts")
		s.writeError(w, http.StatusInternalServerError, "failed to load posts")
		return
	}
	if posts == nil {
		posts = []trending.TrendingPost{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"topic": topic,
		"posts": posts,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.refreshTimeout)
	defer cancel()

	var (
		result    trending.RefreshResult
		refreshed = true
		err       error
	)
	switch r.URL.Query().Get("if_stale") {
	case "1", "true":
		result, refreshed, err = s.refresher.RefreshIfStale(ctx)
	default:
		result, err = s.refresher.Refresh(ctx)
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, trending.ErrNoPosts) || errors.Is(err, trending.ErrNoClusters) {
			status = http.StatusBadGateway
		}
		s.logger.Warn().Err(err).Msg("refresh request failed")
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"refreshed": refreshed,
		"result":    result,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readTimeout)
	defer cancel()

	stale, err := s.refresher.IsStale(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("staleness check")
		s.writeError(w, http.StatusInternalServerError, "failed to check staleness")
		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		trending.Status
		Stale bool `json:"stale"`
	}{s.refresher.Status(), stale})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
