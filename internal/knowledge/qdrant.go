package knowledge

import (
	"context"
	"fmt"

	"github.com/nidhogg/agri-assist/internal/embedding"
	"github.com/nidhogg/agri-assist/internal/vectorstore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type vectorSearcher interface {
	ListCollections(ctx context.Context) ([]string, error)
	Search(ctx context.Context, collection string, vector []float32, topK uint64) ([]*vectorstore.SearchResult, error)
}

// QdrantSource serves each Qdrant collection as a knowledge source. Queries
// are embedded first, then searched by cosine similarity.
type QdrantSource struct {
	embedder embedding.Provider
	index    vectorSearcher
	logger   *zap.Logger
}

// NewQdrantSource creates a Qdrant-backed source.
func NewQdrantSource(embedder embedding.Provider, index vectorSearcher, logger *zap.Logger) *QdrantSource {
	return &QdrantSource{embedder: embedder, index: index, logger: logger}
}

// Sources lists the collection names.
func (s *QdrantSource) Sources(ctx context.Context) ([]string, error) {
	return s.index.ListCollections(ctx)
}

// Query embeds text and returns the k nearest passages in source.
func (s *QdrantSource) Query(ctx context.Context, source, text string, k int) ([]Passage, error) {
	if k <= 0 {
		return nil, nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	hits, err := s.index.Search(ctx, source, vectors[0], uint64(k))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return nil, err
	}

	out := make([]Passage, 0, len(hits))
	for _, h := range hits {
		if h == nil {
			continue
		}
		body, meta := splitPayload(h.Payload)
		out = append(out, Passage{
			ID:       h.ID,
			Text:     body,
			Metadata: meta,
			Distance: clampDistance(1 - float64(h.Score)),
		})
	}
	s.logger.Debug("qdrant query",
		zap.String("source", source), zap.Int("hits", len(out)))
	return out, nil
}
