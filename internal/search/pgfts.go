package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries published projects with plainto_tsquery and ts_rank, using
// ts_headline for snippets. The tsvector expression matches the GIN index on
// the projects table.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := `published AND to_tsvector('english', title || ' ' || description) @@ plainto_tsquery('english', $1)`
	args := []any{q.Text}
	if q.FilterGenre != "" {
		where += ` AND genres @> to_jsonb($2::text)`
		args = append(args, q.FilterGenre)
	}

	ctx := context.Background()

	var total int
	countSQL := `SELECT count(*) FROM projects WHERE ` + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT project_id, title, author, genres, image, url,
			ts_headline('english', coalesce(description, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM projects
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', title || ' ' || description), plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var genresRaw []byte
		if err := rows.Scan(&r.ProjectID, &r.Title, &r.Author, &genresRaw, &r.Image, &r.URL, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if err := json.Unmarshal(genresRaw, &r.Genres); err != nil {
			return nil, 0, fmt.Errorf("pgfts decode genres: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every published project for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ProjectRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT project_id, title, author, genres, description, image, url
		FROM projects
		WHERE published
	`)
	if err != nil {
		return nil, fmt.Errorf("load published projects: %w", err)
	}
	defer rows.Close()

	projects := make([]ProjectRecord, 0)
	for rows.Next() {
		var record ProjectRecord
		var genresRaw []byte
		if err := rows.Scan(&record.ProjectID, &record.Title, &record.Author, &genresRaw, &record.Description, &record.Image, &record.URL); err != nil {
			return nil, fmt.Errorf("scan published project: %w", err)
		}
		if err := json.Unmarshal(genresRaw, &record.Genres); err != nil {
			return nil, fmt.Errorf("decode genres: %w", err)
		}
		projects = append(projects, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate published projects: %w", err)
	}
	return projects, nil
}
