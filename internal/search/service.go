package search

import (
	"go.uber.org/zap"
)

// Indexer is the primary search backend. It reports its own health and is
// skipped entirely while unhealthy.
type Indexer interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexEntry(rec EntryRecord) error
	DeleteEntry(id string) error
	DeleteUserEntries(userID string) error
}

// Searcher serves queries when the primary backend cannot.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
}

// Service is the facade that tries Meilisearch first and falls back to the
// Postgres ILIKE scan.
type Service struct {
	meili  Indexer
	pg     Searcher
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili Indexer, pg Searcher, logger *zap.Logger) *Service {
	return &Service{meili: meili, pg: pg, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	results, total, err := s.pg.Search(q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexEntry pushes one entry into Meilisearch, fire-and-forget.
func (s *Service) IndexEntry(rec EntryRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEntry(rec); err != nil {
			s.logger.Warn("index entry", zap.String("id", rec.ID), zap.Error(err))
		}
	}()
}

// DeleteEntry removes one entry from the index, fire-and-forget.
func (s *Service) DeleteEntry(userID, day string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	id := RecordID(userID, day)
	go func() {
		if err := s.meili.DeleteEntry(id); err != nil {
			s.logger.Warn("delete entry from index", zap.String("id", id), zap.Error(err))
		}
	}()
}

// DeleteUserEntries removes a user's entries from the index, fire-and-forget.
func (s *Service) DeleteUserEntries(userID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteUserEntries(userID); err != nil {
			s.logger.Warn("delete user entries from index", zap.String("userId", userID), zap.Error(err))
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
