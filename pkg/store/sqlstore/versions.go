package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/depscanner/pkg/store"
)

func (c conn) ensureSystem(ctx context.Context, name string) (int64, error) {
	if _, err := c.exec(ctx, `INSERT INTO systems (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("insert system: %w", err)
	}
	var id int64
	if err := c.queryRow(ctx, `SELECT id FROM systems WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select system: %w", err)
	}
	return id, nil
}

func (c conn) ensureDependency(ctx context.Context, key store.PackageKey) (*store.Dependency, error) {
	sysID, err := c.ensureSystem(ctx, key.System)
	if err != nil {
		return nil, err
	}
	if _, err := c.exec(ctx,
		`INSERT INTO dependencies (system_id, name) VALUES (?, ?) ON CONFLICT (system_id, name) DO NOTHING`,
		sysID, key.Name); err != nil {
		return nil, fmt.Errorf("insert dependency: %w", err)
	}
	d := &store.Dependency{SystemID: sysID, Key: key}
	if err := c.queryRow(ctx, `SELECT id FROM dependencies WHERE system_id = ? AND name = ?`, sysID, key.Name).Scan(&d.ID); err != nil {
		return nil, fmt.Errorf("select dependency: %w", err)
	}
	return d, nil
}

func (s *Store) FindDependency(ctx context.Context, key store.PackageKey) (*store.Dependency, error) {
	d := &store.Dependency{Key: key}
	err := s.conn().queryRow(ctx, `
		SELECT d.id, d.system_id FROM dependencies d
		JOIN systems s ON s.id = d.system_id
		WHERE s.name = ? AND d.name = ?`, key.System, key.Name).Scan(&d.ID, &d.SystemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find dependency %s: %w", key, err)
	}
	return d, nil
}

func (s *Store) EnsureDependency(ctx context.Context, key store.PackageKey) (*store.Dependency, error) {
	return s.conn().ensureDependency(ctx, key)
}

func (s *Store) ListVersions(ctx context.Context, key store.PackageKey) ([]store.Version, error) {
	c := s.conn()
	rows, err := c.query(ctx, `
		SELECT v.id, v.dependency_id, v.version FROM versions v
		JOIN dependencies d ON d.id = v.dependency_id
		JOIN systems s ON s.id = d.system_id
		WHERE s.name = ? AND d.name = ?
		ORDER BY v.version`, key.System, key.Name)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", key, err)
	}
	var out []store.Version
	for rows.Next() {
		v := store.Version{Key: store.VersionKey{System: key.System, Name: key.Name}}
		if err := rows.Scan(&v.ID, &v.DependencyID, &v.Key.Version); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if err := c.loadAssociations(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) FindVersion(ctx context.Context, key store.VersionKey) (*store.Version, error) {
	c := s.conn()
	v, err := c.findVersion(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := c.loadAssociations(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c conn) findVersion(ctx context.Context, key store.VersionKey) (*store.Version, error) {
	v := &store.Version{Key: key}
	err := c.queryRow(ctx, `
		SELECT v.id, v.dependency_id FROM versions v
		JOIN dependencies d ON d.id = v.dependency_id
		JOIN systems s ON s.id = d.system_id
		WHERE s.name = ? AND d.name = ? AND v.version = ?`,
		key.System, key.Name, key.Version).Scan(&v.ID, &v.DependencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find version %s: %w", key, err)
	}
	return v, nil
}

func (c conn) loadAssociations(ctx context.Context, v *store.Version) error {
	var (
		published sql.NullString
		isDefault bool
	)
	err := c.queryRow(ctx, `SELECT published_at, is_default FROM version_details WHERE version_id = ?`, v.ID).
		Scan(&published, &isDefault)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("load detail: %w", err)
	default:
		v.Detail = &store.VersionDetail{PublishedAt: parseTime(published), IsDefault: isDefault}
	}

	if v.Licenses, err = c.strings(ctx, `
		SELECT l.name FROM version_licenses vl JOIN licenses l ON l.id = vl.license_id
		WHERE vl.version_id = ? ORDER BY l.name`, v.ID); err != nil {
		return fmt.Errorf("load licenses: %w", err)
	}
	if v.AdvisoryKeys, err = c.strings(ctx, `
		SELECT k.advisory_id FROM version_advisory_keys vk JOIN advisory_keys k ON k.id = vk.advisory_key_id
		WHERE vk.version_id = ? ORDER BY k.advisory_id`, v.ID); err != nil {
		return fmt.Errorf("load advisory keys: %w", err)
	}

	rows, err := c.query(ctx, `
		SELECT l.label, l.url FROM version_links vl JOIN links l ON l.id = vl.link_id
		WHERE vl.version_id = ? ORDER BY vl.position`, v.ID)
	if err != nil {
		return fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()
	v.Links = nil
	for rows.Next() {
		var l store.Link
		if err := rows.Scan(&l.Label, &l.URL); err != nil {
			return err
		}
		v.Links = append(v.Links, l)
	}
	return rows.Err()
}

func (c conn) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *Store) EnsureVersion(ctx context.Context, key store.VersionKey) (*store.Version, bool, error) {
	c := s.conn()
	d, err := c.ensureDependency(ctx, key.Package())
	if err != nil {
		return nil, false, err
	}
	res, err := c.exec(ctx,
		`INSERT INTO versions (dependency_id, version) VALUES (?, ?) ON CONFLICT (dependency_id, version) DO NOTHING`,
		d.ID, key.Version)
	if err != nil {
		return nil, false, fmt.Errorf("insert version %s: %w", key, err)
	}
	n, _ := res.RowsAffected()

	v := &store.Version{DependencyID: d.ID, Key: key}
	if err := c.queryRow(ctx, `SELECT id FROM versions WHERE dependency_id = ? AND version = ?`, d.ID, key.Version).Scan(&v.ID); err != nil {
		return nil, false, fmt.Errorf("select version %s: %w", key, err)
	}
	if n == 0 {
		if err := c.loadAssociations(ctx, v); err != nil {
			return nil, false, err
		}
	}
	return v, n > 0, nil
}

func (s *Store) SaveVersionDetail(ctx context.Context, versionID int64, d store.VersionDetail) error {
	_, err := s.conn().exec(ctx, `
		INSERT INTO version_details (version_id, published_at, is_default) VALUES (?, ?, ?)
		ON CONFLICT (version_id) DO UPDATE SET published_at = excluded.published_at, is_default = excluded.is_default`,
		versionID, formatTime(d.PublishedAt), d.IsDefault)
	if err != nil {
		return fmt.Errorf("save version detail: %w", err)
	}
	return nil
}

func (s *Store) SetLicenses(ctx context.Context, versionID int64, licenses []string) error {
	return s.inTx(ctx, func(c conn) error {
		if _, err := c.exec(ctx, `DELETE FROM version_licenses WHERE version_id = ?`, versionID); err != nil {
			return fmt.Errorf("clear licenses: %w", err)
		}
		for _, name := range store.Dedup(licenses) {
			if _, err := c.exec(ctx, `INSERT INTO licenses (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
				return fmt.Errorf("insert license: %w", err)
			}
			var id int64
			if err := c.queryRow(ctx, `SELECT id FROM licenses WHERE name = ?`, name).Scan(&id); err != nil {
				return fmt.Errorf("select license: %w", err)
			}
			if _, err := c.exec(ctx, `INSERT INTO version_licenses (version_id, license_id) VALUES (?, ?)`, versionID, id); err != nil {
				return fmt.Errorf("link license: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) SetLinks(ctx context.Context, versionID int64, links []store.Link) error {
	return s.inTx(ctx, func(c conn) error {
		if _, err := c.exec(ctx, `DELETE FROM version_links WHERE version_id = ?`, versionID); err != nil {
			return fmt.Errorf("clear links: %w", err)
		}
		for i, l := range store.DedupLinks(links) {
			if _, err := c.exec(ctx, `INSERT INTO links (label, url) VALUES (?, ?) ON CONFLICT (label, url) DO NOTHING`, l.Label, l.URL); err != nil {
				return fmt.Errorf("insert link: %w", err)
			}
			var id int64
			if err := c.queryRow(ctx, `SELECT id FROM links WHERE label = ? AND url = ?`, l.Label, l.URL).Scan(&id); err != nil {
				return fmt.Errorf("select link: %w", err)
			}
			if _, err := c.exec(ctx, `INSERT INTO version_links (version_id, link_id, position) VALUES (?, ?, ?)`, versionID, id, i); err != nil {
				return fmt.Errorf("attach link: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) SetAdvisoryKeys(ctx context.Context, versionID int64, ids []string) error {
	return s.inTx(ctx, func(c conn) error {
		if _, err := c.exec(ctx, `DELETE FROM version_advisory_keys WHERE version_id = ?`, versionID); err != nil {
			return fmt.Errorf("clear advisory keys: %w", err)
		}
		for _, advisoryID := range store.Dedup(ids) {
			keyID, err := c.ensureAdvisoryKey(ctx, advisoryID)
			if err != nil {
				return err
			}
			if _, err := c.exec(ctx, `INSERT INTO version_advisory_keys (version_id, advisory_key_id) VALUES (?, ?)`, versionID, keyID); err != nil {
				return fmt.Errorf("attach advisory key: %w", err)
			}
		}
		return nil
	})
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
