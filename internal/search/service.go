package search

import (
	"context"

	"go.uber.org/zap"
)

// Service tries Meilisearch first and falls back to the data layer.
type Service struct {
	meili    *Meili
	fallback Fallback
	logger   *zap.Logger
}

// NewService creates a search facade. meili may be nil when not configured.
func NewService(meili *Meili, fallback Fallback, logger *zap.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, logger: logger.With(zap.String("component", "search"))}
}

// Search executes q and never fails the request: an empty result set stands in
// for any backend error.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, err := s.fallback.SearchFallback(ctx, q)
	if err != nil {
		s.logger.Warn("fallback search error", zap.Error(err))
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: len(results), Query: q.Text}
}

// IndexRecords pushes records to Meilisearch, fire-and-forget.
func (s *Service) IndexRecords(records []Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexRecords(records); err != nil {
			s.logger.Warn("index records", zap.Error(err))
		}
	}()
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
