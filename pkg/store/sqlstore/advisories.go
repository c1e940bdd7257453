package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matzehuels/depscanner/pkg/store"
)

func (c conn) ensureAdvisoryKey(ctx context.Context, advisoryID string) (int64, error) {
	if _, err := c.exec(ctx, `INSERT INTO advisory_keys (advisory_id) VALUES (?) ON CONFLICT (advisory_id) DO NOTHING`, advisoryID); err != nil {
		return 0, fmt.Errorf("insert advisory key: %w", err)
	}
	var id int64
	if err := c.queryRow(ctx, `SELECT id FROM advisory_keys WHERE advisory_id = ?`, advisoryID).Scan(&id); err != nil {
		return 0, fmt.Errorf("select advisory key: %w", err)
	}
	return id, nil
}

func (s *Store) FindAdvisory(ctx context.Context, id string) (*store.Advisory, error) {
	var (
		detailID sql.NullInt64
		url      sql.NullString
		title    sql.NullString
		aliases  sql.NullString
		score    sql.NullFloat64
		vector   sql.NullString
	)
	err := s.conn().queryRow(ctx, `
		SELECT d.id, d.url, d.title, d.aliases, d.cvss3_score, d.cvss3_vector
		FROM advisory_keys k LEFT JOIN advisory_details d ON d.id = k.detail_id
		WHERE k.advisory_id = ?`, id).Scan(&detailID, &url, &title, &aliases, &score, &vector)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find advisory %s: %w", id, err)
	}

	a := &store.Advisory{ID: id}
	if detailID.Valid {
		d := &store.AdvisoryDetail{
			ID:          detailID.Int64,
			URL:         url.String,
			Title:       title.String,
			CVSS3Score:  score.Float64,
			CVSS3Vector: vector.String,
		}
		if aliases.String != "" {
			if err := json.Unmarshal([]byte(aliases.String), &d.Aliases); err != nil {
				return nil, fmt.Errorf("decode aliases of %s: %w", id, err)
			}
		}
		a.Detail = d
	}
	return a, nil
}

func (s *Store) SaveAdvisory(ctx context.Context, a store.Advisory) error {
	return s.inTx(ctx, func(c conn) error {
		if _, err := c.ensureAdvisoryKey(ctx, a.ID); err != nil {
			return err
		}
		if a.Detail == nil {
			return nil
		}
		aliases, err := json.Marshal(store.Dedup(a.Detail.Aliases))
		if err != nil {
			return fmt.Errorf("encode aliases: %w", err)
		}
		if _, err := c.exec(ctx, `
			INSERT INTO advisory_details (url, title, aliases, cvss3_score, cvss3_vector) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (url) DO NOTHING`,
			a.Detail.URL, a.Detail.Title, string(aliases), a.Detail.CVSS3Score, a.Detail.CVSS3Vector); err != nil {
			return fmt.Errorf("insert advisory detail: %w", err)
		}
		var detailID int64
		if err := c.queryRow(ctx, `SELECT id FROM advisory_details WHERE url = ?`, a.Detail.URL).Scan(&detailID); err != nil {
			return fmt.Errorf("select advisory detail: %w", err)
		}
		if _, err := c.exec(ctx, `UPDATE advisory_keys SET detail_id = ? WHERE advisory_id = ?`, detailID, a.ID); err != nil {
			return fmt.Errorf("link advisory detail: %w", err)
		}
		return nil
	})
}
