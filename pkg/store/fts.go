package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// BuildFTSExpression turns a free-text query into a safe FTS5 MATCH
// expression: each term is lowercased and stripped, rune by rune, of
// everything but letters, digits, and apostrophes, then wrapped as a
// quoted prefix match and joined with AND. Stripping the whole term
// rather than just its ends keeps user input from being interpreted
// as FTS5 query syntax even when the punctuation is interior (a stray
// `"` breaking out of the quoted phrase, say).
func BuildFTSExpression(query string) string {
	words := strings.Fields(query)
	terms := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' {
				return r
			}
			return -1
		}, strings.ToLower(word))
		if cleaned == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf(`"%s"*`, cleaned))
	}

	return strings.Join(terms, " AND ")
}

// FTSQuery returns up to k (chunk_id, bm25_raw) pairs matching
// ftsExpression, ranked by BM25 (raw scores are ≤ 0, more negative is
// a better match). filter, if non-nil, narrows by agent/source/role;
// this join is safe here (unlike the vector index) since the FTS
// virtual table is a normal content-backed table, not the vec0 index.
func (s *Store) FTSQuery(ctx context.Context, ftsExpression string, k int, filter *Filter) ([]FTSHit, error) {
	if ftsExpression == "" {
		return nil, nil
	}

	query := `
		SELECT c.id, bm25(chunks_fts) as score
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		WHERE chunks_fts MATCH ?
	`
	args := []interface{}{ftsExpression}

	if filter != nil {
		if filter.AgentID != "" {
			query += " AND c.agent_id = ?"
			args = append(args, filter.AgentID)
		}
		if filter.SourceType != "" {
			query += " AND c.source_type = ?"
			args = append(args, filter.SourceType)
		}
		if filter.Role != "" {
			query += " AND c.role = ?"
			args = append(args, filter.Role)
		}
	}

	query += " ORDER BY score ASC LIMIT ?"
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fts query: %w", err)
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.ChunkID, &h.BM25Raw); err != nil {
			return nil, fmt.Errorf("store: fts query: scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
