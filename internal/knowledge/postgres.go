package knowledge

import (
	"context"
	"fmt"

	"github.com/nidhogg/agri-assist/internal/store"
)

type passageSearcher interface {
	ListBuckets(ctx context.Context) ([]string, error)
	SearchPassages(ctx context.Context, bucket, text string, limit int) ([]store.Passage, error)
}

// PostgresSource serves passage buckets stored in PostgreSQL, ranked by
// full-text search. It needs no embedding service.
type PostgresSource struct {
	db passageSearcher
}

// NewPostgresSource wraps a store as a knowledge source.
func NewPostgresSource(db passageSearcher) *PostgresSource {
	return &PostgresSource{db: db}
}

// Sources lists the buckets that hold at least one passage.
func (s *PostgresSource) Sources(ctx context.Context) ([]string, error) {
	return s.db.ListBuckets(ctx)
}

// Query returns up to k passages from source. An empty bucket yields no
// passages rather than ErrSourceNotFound.
func (s *PostgresSource) Query(ctx context.Context, source, text string, k int) ([]Passage, error) {
	rows, err := s.db.SearchPassages(ctx, source, text, k)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", source, err)
	}
	out := make([]Passage, 0, len(rows))
	for _, r := range rows {
		body, meta := r.Content, r.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		out = append(out, Passage{
			ID:       r.ID,
			Text:     body,
			Metadata: meta,
			Distance: clampDistance(1 - r.Rank),
		})
	}
	return out, nil
}
