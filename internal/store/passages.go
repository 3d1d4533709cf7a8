package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Passage is one stored knowledge passage with its text-search rank.
type Passage struct {
	ID       string
	Bucket   string
	Content  string
	Metadata map[string]string
	Rank     float64
}

var termRe = regexp.MustCompile(`[a-z0-9]+`)

// orQuery turns free text into a to_tsquery expression that matches any
// term. Returns "" when nothing searchable remains.
func orQuery(text string) string {
	terms := termRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if len(t) < 2 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return strings.Join(out, " | ")
}

// SearchPassages ranks passages in bucket against text. Rank is normalized
// into [0,1) by ts_rank_cd's rank/(rank+1) option.
func (s *Store) SearchPassages(ctx context.Context, bucket, text string, limit int) ([]Passage, error) {
	q := orQuery(text)
	if q == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT p.id::text, p.bucket, p.content, p.metadata, ts_rank_cd(p.tsv, q, 32) AS rank
		 FROM passages p, to_tsquery('english', $2) q
		 WHERE p.bucket = $1 AND p.tsv @@ q
		 ORDER BY rank DESC
		 LIMIT $3`, bucket, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search passages %s: %w", bucket, err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		var p Passage
		var meta map[string]interface{}
		if err := rows.Scan(&p.ID, &p.Bucket, &p.Content, &meta, &p.Rank); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			p.Metadata[k] = fmt.Sprint(v)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListBuckets returns the distinct bucket names in sorted order.
func (s *Store) ListBuckets(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT bucket FROM passages ORDER BY bucket`)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertPassage stores one passage and returns its ID.
func (s *Store) InsertPassage(ctx context.Context, bucket, content string, metadata map[string]string) (string, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	id := uuid.NewString()
	_, err := s.db.Exec(ctx,
		`INSERT INTO passages (id, bucket, content, metadata) VALUES ($1, $2, $3, $4)`,
		id, bucket, content, metadata)
	if err != nil {
		return "", fmt.Errorf("insert passage: %w", err)
	}
	return id, nil
}
