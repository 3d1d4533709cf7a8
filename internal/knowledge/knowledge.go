package knowledge

import (
	"context"
	"errors"
)

// ErrSourceNotFound is returned when a query names a source that does not exist.
var ErrSourceNotFound = errors.New("knowledge source not found")

// Passage is one ranked hit from a knowledge source. Distance is in [0,1]
// where 0 is an exact match.
type Passage struct {
	ID       string
	Text     string
	Metadata map[string]string
	Distance float64
}

// Source is a collection of named, independently queryable passage buckets.
type Source interface {
	Sources(ctx context.Context) ([]string, error)
	Query(ctx context.Context, source, text string, k int) ([]Passage, error)
}

// textKeys are the payload keys that may carry a passage's body, in order
// of preference.
var textKeys = []string{"document", "content", "text"}

// splitPayload pulls the passage body out of a flat payload and returns the
// remaining keys as metadata.
func splitPayload(payload map[string]string) (string, map[string]string) {
	var text string
	found := ""
	for _, k := range textKeys {
		if v, ok := payload[k]; ok {
			text, found = v, k
			break
		}
	}
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		if k != found {
			meta[k] = v
		}
	}
	return text, meta
}

func clampDistance(d float64) float64 {
	switch {
	case d < 0:
		return 0
	case d > 1:
		return 1
	}
	return d
}
