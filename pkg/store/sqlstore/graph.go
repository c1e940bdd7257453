package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/depscanner/pkg/store"
)

func (s *Store) Graph(ctx context.Context, versionID int64) (*store.Graph, error) {
	c := s.conn()
	g := &store.Graph{}

	var captured sql.NullString
	err := c.queryRow(ctx, `SELECT graph_captured_at FROM versions WHERE id = ?`, versionID).Scan(&captured)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load graph header: %w", err)
	}
	g.CapturedAt = parseTime(captured)

	rows, err := c.query(ctx, `
		SELECT n.related_version_id, n.bundled, n.relation, n.errors, s.name, d.name, v.version
		FROM graph_nodes n
		JOIN versions v ON v.id = n.related_version_id
		JOIN dependencies d ON d.id = v.dependency_id
		JOIN systems s ON s.id = d.system_id
		WHERE n.version_id = ?
		ORDER BY n.position`, versionID)
	if err != nil {
		return nil, fmt.Errorf("load graph nodes: %w", err)
	}
	for rows.Next() {
		var (
			n      store.GraphNode
			errs   string
			system string
		)
		if err := rows.Scan(&n.VersionID, &n.Bundled, &n.Relation, &errs, &system, &n.Key.Name, &n.Key.Version); err != nil {
			rows.Close()
			return nil, err
		}
		n.Key.System = system
		if errs != "" {
			if err := json.Unmarshal([]byte(errs), &n.Errors); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decode node errors: %w", err)
			}
		}
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = c.query(ctx, `
		SELECT from_node, to_node, requirement FROM graph_edges
		WHERE version_id = ? ORDER BY position`, versionID)
	if err != nil {
		return nil, fmt.Errorf("load graph edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e store.GraphEdge
		if err := rows.Scan(&e.FromNode, &e.ToNode, &e.Requirement); err != nil {
			return nil, err
		}
		g.Edges = append(g.Edges, e)
	}
	return g, rows.Err()
}

func (s *Store) SaveGraph(ctx context.Context, versionID int64, g store.Graph, replace bool) (bool, error) {
	saved := false
	err := s.inTx(ctx, func(c conn) error {
		var id int64
		err := c.queryRow(ctx, `SELECT id FROM versions WHERE id = ?`+c.d.forUpdate, versionID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock version: %w", err)
		}

		var count int
		if err := c.queryRow(ctx, `SELECT COUNT(*) FROM graph_nodes WHERE version_id = ?`, versionID).Scan(&count); err != nil {
			return fmt.Errorf("count graph nodes: %w", err)
		}
		if count > 0 {
			if !replace {
				return nil
			}
			if _, err := c.exec(ctx, `DELETE FROM graph_edges WHERE version_id = ?`, versionID); err != nil {
				return fmt.Errorf("clear graph edges: %w", err)
			}
			if _, err := c.exec(ctx, `DELETE FROM graph_nodes WHERE version_id = ?`, versionID); err != nil {
				return fmt.Errorf("clear graph nodes: %w", err)
			}
		}

		for i, n := range g.Nodes {
			errs, err := json.Marshal(n.Errors)
			if err != nil {
				return fmt.Errorf("encode node errors: %w", err)
			}
			if _, err := c.exec(ctx, `
				INSERT INTO graph_nodes (version_id, position, related_version_id, bundled, relation, errors)
				VALUES (?, ?, ?, ?, ?, ?)`,
				versionID, i, n.VersionID, n.Bundled, n.Relation, string(errs)); err != nil {
				return fmt.Errorf("insert graph node %d: %w", i, err)
			}
		}
		for i, e := range g.Edges {
			if _, err := c.exec(ctx, `
				INSERT INTO graph_edges (version_id, position, from_node, to_node, requirement)
				VALUES (?, ?, ?, ?, ?)`,
				versionID, i, e.FromNode, e.ToNode, e.Requirement); err != nil {
				return fmt.Errorf("insert graph edge %d: %w", i, err)
			}
		}

		captured := g.CapturedAt
		if captured.IsZero() {
			captured = time.Now().UTC()
		}
		if _, err := c.exec(ctx, `UPDATE versions SET graph_captured_at = ? WHERE id = ?`, formatTime(captured), versionID); err != nil {
			return fmt.Errorf("stamp graph: %w", err)
		}
		saved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return saved, nil
}
