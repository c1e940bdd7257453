package sqlstore

// schema is applied in order on Open. Type placeholders are filled per dialect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS systems (
		id {{pk}},
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS dependencies (
		id {{pk}},
		system_id BIGINT NOT NULL REFERENCES systems(id),
		name TEXT NOT NULL,
		UNIQUE (system_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS versions (
		id {{pk}},
		dependency_id BIGINT NOT NULL REFERENCES dependencies(id),
		version TEXT NOT NULL,
		graph_captured_at TEXT,
		UNIQUE (dependency_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS version_details (
		version_id BIGINT PRIMARY KEY REFERENCES versions(id),
		published_at TEXT,
		is_default {{bool}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS licenses (
		id {{pk}},
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS version_licenses (
		version_id BIGINT NOT NULL REFERENCES versions(id),
		license_id BIGINT NOT NULL REFERENCES licenses(id),
		PRIMARY KEY (version_id, license_id)
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		id {{pk}},
		label TEXT NOT NULL,
		url TEXT NOT NULL,
		UNIQUE (label, url)
	)`,
	`CREATE TABLE IF NOT EXISTS version_links (
		version_id BIGINT NOT NULL REFERENCES versions(id),
		link_id BIGINT NOT NULL REFERENCES links(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (version_id, link_id)
	)`,
	`CREATE TABLE IF NOT EXISTS advisory_details (
		id {{pk}},
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		aliases TEXT NOT NULL,
		cvss3_score {{float}} NOT NULL,
		cvss3_vector TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS advisory_keys (
		id {{pk}},
		advisory_id TEXT NOT NULL UNIQUE,
		detail_id BIGINT REFERENCES advisory_details(id)
	)`,
	`CREATE TABLE IF NOT EXISTS version_advisory_keys (
		version_id BIGINT NOT NULL REFERENCES versions(id),
		advisory_key_id BIGINT NOT NULL REFERENCES advisory_keys(id),
		PRIMARY KEY (version_id, advisory_key_id)
	)`,
	`CREATE TABLE IF NOT EXISTS graph_nodes (
		version_id BIGINT NOT NULL REFERENCES versions(id),
		position INTEGER NOT NULL,
		related_version_id BIGINT NOT NULL REFERENCES versions(id),
		bundled {{bool}} NOT NULL,
		relation TEXT NOT NULL,
		errors TEXT NOT NULL,
		PRIMARY KEY (version_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS graph_edges (
		version_id BIGINT NOT NULL REFERENCES versions(id),
		position INTEGER NOT NULL,
		from_node INTEGER NOT NULL,
		to_node INTEGER NOT NULL,
		requirement TEXT NOT NULL,
		PRIMARY KEY (version_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_nodes_related ON graph_nodes (related_version_id)`,
}
