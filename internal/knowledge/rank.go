package knowledge

import (
	"context"

	"github.com/jaakkos/gwp/internal/domain"
)

// Rank orders docs by relevance to question. Matching documents come first
// by rank; the rest keep their original order. It never drops documents.
func (s *Store) Rank(ctx context.Context, question string, docs []domain.Record) ([]domain.Record, error) {
	if len(docs) < 2 {
		return docs, nil
	}
	// Rank across the whole index; hits outside docs are ignored.
	hits, err := s.QueryAny(ctx, question, 1000)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return docs, nil
	}

	pos := make(map[int]int, len(hits))
	for i, h := range hits {
		if id, ok := IDFromPath(h.Path); ok {
			if _, dup := pos[id]; !dup {
				pos[id] = i
			}
		}
	}

	ranked := make([]domain.Record, 0, len(docs))
	var rest []domain.Record
	byHit := make(map[int][]domain.Record)
	for _, d := range docs {
		if i, ok := pos[d.ID()]; ok {
			byHit[i] = append(byHit[i], d)
			continue
		}
		rest = append(rest, d)
	}
	for i := range hits {
		ranked = append(ranked, byHit[i]...)
	}
	return append(ranked, rest...), nil
}
