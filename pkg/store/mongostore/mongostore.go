// Package mongostore implements [store.Store] on MongoDB.
//
// Versions are stored as one document each, embedding their detail, licenses,
// links, advisory key ids and captured graph; a graph is therefore written by
// a single conditional document update. Systems, dependencies, advisory keys
// and advisory details live in their own collections with unique indexes on
// their natural keys. Integer ids come from a counters collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/depscanner/pkg/store"
)

const (
	colSystems         = "systems"
	colDependencies    = "dependencies"
	colVersions        = "versions"
	colAdvisories      = "advisories"
	colAdvisoryDetails = "advisory_details"
	colCounters        = "counters"
)

// Store is a MongoDB-backed store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri, pings the server and creates the indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo: connection uri is required")
	}
	if database == "" {
		database = "depscanner"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

// Close disconnects from the server.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes every collection of the database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}
	indexes := map[string][]mongo.IndexModel{
		colSystems:         {unique(bson.D{{Key: "name", Value: 1}})},
		colDependencies:    {unique(bson.D{{Key: "system", Value: 1}, {Key: "name", Value: 1}})},
		colVersions:        {unique(bson.D{{Key: "system", Value: 1}, {Key: "name", Value: 1}, {Key: "version", Value: 1}}), {Keys: bson.D{{Key: "dependency_id", Value: 1}}}},
		colAdvisoryDetails: {unique(bson.D{{Key: "url", Value: 1}})},
	}
	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", col, err)
		}
	}
	return nil
}

// nextID atomically increments the counter for a collection.
func (s *Store) nextID(ctx context.Context, col string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": col},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next id for %s: %w", col, err)
	}
	return doc.Seq, nil
}

// insertOrFind inserts doc (after assigning a fresh _id via setID) unless a
// document matching filter exists, then decodes the stored document into out.
func (s *Store) insertOrFind(ctx context.Context, col string, filter bson.M, out any, build func(id int64) any) (bool, error) {
	c := s.db.Collection(col)
	err := c.FindOne(ctx, filter).Decode(out)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, err
	}

	id, err := s.nextID(ctx, col)
	if err != nil {
		return false, err
	}
	created := true
	if _, err := c.InsertOne(ctx, build(id)); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return false, err
		}
		created = false
	}
	if err := c.FindOne(ctx, filter).Decode(out); err != nil {
		return false, err
	}
	return created, nil
}

// =============================================================================
// Documents
// =============================================================================

type systemDoc struct {
	ID   int64  `bson:"_id"`
	Name string `bson:"name"`
}

type dependencyDoc struct {
	ID       int64  `bson:"_id"`
	SystemID int64  `bson:"system_id"`
	System   string `bson:"system"`
	Name     string `bson:"name"`
}

type versionDoc struct {
	ID           int64                `bson:"_id"`
	DependencyID int64                `bson:"dependency_id"`
	System       string               `bson:"system"`
	Name         string               `bson:"name"`
	Version      string               `bson:"version"`
	Detail       *store.VersionDetail `bson:"detail,omitempty"`
	Licenses     []string             `bson:"licenses,omitempty"`
	AdvisoryKeys []string             `bson:"advisory_keys,omitempty"`
	Links        []store.Link         `bson:"links,omitempty"`
	Graph        *graphDoc            `bson:"graph,omitempty"`
}

type graphDoc struct {
	CapturedAt time.Time      `bson:"captured_at"`
	Nodes      []graphNodeDoc `bson:"nodes"`
	Edges      []graphEdgeDoc `bson:"edges"`
}

type graphNodeDoc struct {
	VersionID int64            `bson:"version_id"`
	Key       store.VersionKey `bson:"key"`
	Bundled   bool             `bson:"bundled"`
	Relation  string           `bson:"relation"`
	Errors    []string         `bson:"errors,omitempty"`
}

type graphEdgeDoc struct {
	FromNode    int    `bson:"from_node"`
	ToNode      int    `bson:"to_node"`
	Requirement string `bson:"requirement"`
}

type advisoryDoc struct {
	ID       string `bson:"_id"`
	DetailID *int64 `bson:"detail_id,omitempty"`
}

type advisoryDetailDoc struct {
	ID                   int64 `bson:"_id"`
	store.AdvisoryDetail `bson:",inline"`
}

func (d *versionDoc) toVersion() store.Version {
	v := store.Version{
		ID:           d.ID,
		DependencyID: d.DependencyID,
		Key:          store.VersionKey{System: d.System, Name: d.Name, Version: d.Version},
		Licenses:     d.Licenses,
		AdvisoryKeys: d.AdvisoryKeys,
		Links:        d.Links,
	}
	if d.Detail != nil {
		det := *d.Detail
		if !det.PublishedAt.IsZero() {
			det.PublishedAt = det.PublishedAt.UTC()
		}
		v.Detail = &det
	}
	return v
}

// =============================================================================
// VersionStore
// =============================================================================

func (s *Store) ensureDependency(ctx context.Context, key store.PackageKey) (*dependencyDoc, error) {
	var sys systemDoc
	if _, err := s.insertOrFind(ctx, colSystems, bson.M{"name": key.System}, &sys, func(id int64) any {
		return systemDoc{ID: id, Name: key.System}
	}); err != nil {
		return nil, fmt.Errorf("ensure system %s: %w", key.System, err)
	}
	var dep dependencyDoc
	if _, err := s.insertOrFind(ctx, colDependencies, bson.M{"system": key.System, "name": key.Name}, &dep, func(id int64) any {
		return dependencyDoc{ID: id, SystemID: sys.ID, System: key.System, Name: key.Name}
	}); err != nil {
		return nil, fmt.Errorf("ensure dependency %s: %w", key, err)
	}
	return &dep, nil
}

func (s *Store) FindDependency(ctx context.Context, key store.PackageKey) (*store.Dependency, error) {
	var dep dependencyDoc
	err := s.db.Collection(colDependencies).FindOne(ctx, bson.M{"system": key.System, "name": key.Name}).Decode(&dep)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find dependency %s: %w", key, err)
	}
	return &store.Dependency{ID: dep.ID, SystemID: dep.SystemID, Key: key}, nil
}

func (s *Store) EnsureDependency(ctx context.Context, key store.PackageKey) (*store.Dependency, error) {
	dep, err := s.ensureDependency(ctx, key)
	if err != nil {
		return nil, err
	}
	return &store.Dependency{ID: dep.ID, SystemID: dep.SystemID, Key: key}, nil
}

func (s *Store) ListVersions(ctx context.Context, key store.PackageKey) ([]store.Version, error) {
	cur, err := s.db.Collection(colVersions).Find(ctx,
		bson.M{"system": key.System, "name": key.Name},
		options.Find().SetSort(bson.D{{Key: "version", Value: 1}}).SetProjection(bson.M{"graph": 0}),
	)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", key, err)
	}
	var docs []versionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode versions %s: %w", key, err)
	}
	out := make([]store.Version, len(docs))
	for i := range docs {
		out[i] = docs[i].toVersion()
	}
	return out, nil
}

func versionFilter(key store.VersionKey) bson.M {
	return bson.M{"system": key.System, "name": key.Name, "version": key.Version}
}

func (s *Store) FindVersion(ctx context.Context, key store.VersionKey) (*store.Version, error) {
	var doc versionDoc
	err := s.db.Collection(colVersions).FindOne(ctx, versionFilter(key),
		options.FindOne().SetProjection(bson.M{"graph": 0})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find version %s: %w", key, err)
	}
	v := doc.toVersion()
	return &v, nil
}

func (s *Store) EnsureVersion(ctx context.Context, key store.VersionKey) (*store.Version, bool, error) {
	dep, err := s.ensureDependency(ctx, key.Package())
	if err != nil {
		return nil, false, err
	}
	var doc versionDoc
	created, err := s.insertOrFind(ctx, colVersions, versionFilter(key), &doc, func(id int64) any {
		return versionDoc{ID: id, DependencyID: dep.ID, System: key.System, Name: key.Name, Version: key.Version}
	})
	if err != nil {
		return nil, false, fmt.Errorf("ensure version %s: %w", key, err)
	}
	v := doc.toVersion()
	return &v, created, nil
}

func (s *Store) setField(ctx context.Context, versionID int64, field string, value any) error {
	res, err := s.db.Collection(colVersions).UpdateOne(ctx, bson.M{"_id": versionID}, bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return fmt.Errorf("update %s: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveVersionDetail(ctx context.Context, versionID int64, d store.VersionDetail) error {
	if !d.PublishedAt.IsZero() {
		d.PublishedAt = d.PublishedAt.UTC()
	}
	return s.setField(ctx, versionID, "detail", d)
}

func (s *Store) SetLicenses(ctx context.Context, versionID int64, licenses []string) error {
	return s.setField(ctx, versionID, "licenses", store.Dedup(licenses))
}

func (s *Store) SetLinks(ctx context.Context, versionID int64, links []store.Link) error {
	return s.setField(ctx, versionID, "links", store.DedupLinks(links))
}

func (s *Store) SetAdvisoryKeys(ctx context.Context, versionID int64, ids []string) error {
	ids = store.Dedup(ids)
	for _, id := range ids {
		if err := s.ensureAdvisory(ctx, id); err != nil {
			return err
		}
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return s.setField(ctx, versionID, "advisory_keys", sorted)
}

// =============================================================================
// AdvisoryStore
// =============================================================================

func (s *Store) ensureAdvisory(ctx context.Context, id string) error {
	_, err := s.db.Collection(colAdvisories).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": bson.M{"_id": id}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("ensure advisory %s: %w", id, err)
	}
	return nil
}

func (s *Store) FindAdvisory(ctx context.Context, id string) (*store.Advisory, error) {
	var doc advisoryDoc
	err := s.db.Collection(colAdvisories).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find advisory %s: %w", id, err)
	}
	a := &store.Advisory{ID: id}
	if doc.DetailID == nil {
		return a, nil
	}
	var det advisoryDetailDoc
	err = s.db.Collection(colAdvisoryDetails).FindOne(ctx, bson.M{"_id": *doc.DetailID}).Decode(&det)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find advisory detail %s: %w", id, err)
	}
	d := det.AdvisoryDetail
	d.ID = det.ID
	a.Detail = &d
	return a, nil
}

func (s *Store) SaveAdvisory(ctx context.Context, a store.Advisory) error {
	if err := s.ensureAdvisory(ctx, a.ID); err != nil {
		return err
	}
	if a.Detail == nil {
		return nil
	}
	var det advisoryDetailDoc
	if _, err := s.insertOrFind(ctx, colAdvisoryDetails, bson.M{"url": a.Detail.URL}, &det, func(id int64) any {
		d := *a.Detail
		d.Aliases = store.Dedup(d.Aliases)
		return advisoryDetailDoc{ID: id, AdvisoryDetail: d}
	}); err != nil {
		return fmt.Errorf("ensure advisory detail %s: %w", a.Detail.URL, err)
	}
	if _, err := s.db.Collection(colAdvisories).UpdateOne(ctx,
		bson.M{"_id": a.ID}, bson.M{"$set": bson.M{"detail_id": det.ID}}); err != nil {
		return fmt.Errorf("link advisory detail %s: %w", a.ID, err)
	}
	return nil
}

// =============================================================================
// GraphStore
// =============================================================================

func (s *Store) Graph(ctx context.Context, versionID int64) (*store.Graph, error) {
	var doc struct {
		Graph *graphDoc `bson:"graph"`
	}
	err := s.db.Collection(colVersions).FindOne(ctx, bson.M{"_id": versionID},
		options.FindOne().SetProjection(bson.M{"graph": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	g := &store.Graph{}
	if doc.Graph == nil {
		return g, nil
	}
	g.CapturedAt = doc.Graph.CapturedAt.UTC()
	for _, n := range doc.Graph.Nodes {
		g.Nodes = append(g.Nodes, store.GraphNode{
			VersionID: n.VersionID,
			Key:       n.Key,
			Bundled:   n.Bundled,
			Relation:  n.Relation,
			Errors:    n.Errors,
		})
	}
	for _, e := range doc.Graph.Edges {
		g.Edges = append(g.Edges, store.GraphEdge{FromNode: e.FromNode, ToNode: e.ToNode, Requirement: e.Requirement})
	}
	return g, nil
}

func (s *Store) SaveGraph(ctx context.Context, versionID int64, g store.Graph, replace bool) (bool, error) {
	doc := graphDoc{CapturedAt: g.CapturedAt, Nodes: []graphNodeDoc{}, Edges: []graphEdgeDoc{}}
	if doc.CapturedAt.IsZero() {
		doc.CapturedAt = time.Now().UTC()
	}
	for _, n := range g.Nodes {
		key := n.Key
		if key == (store.VersionKey{}) {
			var err error
			if key, err = s.keyOf(ctx, n.VersionID); err != nil {
				return false, err
			}
		}
		doc.Nodes = append(doc.Nodes, graphNodeDoc{
			VersionID: n.VersionID,
			Key:       key,
			Bundled:   n.Bundled,
			Relation:  n.Relation,
			Errors:    n.Errors,
		})
	}
	for _, e := range g.Edges {
		doc.Edges = append(doc.Edges, graphEdgeDoc{FromNode: e.FromNode, ToNode: e.ToNode, Requirement: e.Requirement})
	}

	filter := bson.M{"_id": versionID}
	if !replace {
		filter["graph.nodes.0"] = bson.M{"$exists": false}
	}
	res, err := s.db.Collection(colVersions).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"graph": doc}})
	if err != nil {
		return false, fmt.Errorf("save graph: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	if _, err := s.keyOf(ctx, versionID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) keyOf(ctx context.Context, versionID int64) (store.VersionKey, error) {
	var doc versionDoc
	err := s.db.Collection(colVersions).FindOne(ctx, bson.M{"_id": versionID},
		options.FindOne().SetProjection(bson.M{"system": 1, "name": 1, "version": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.VersionKey{}, store.ErrNotFound
	}
	if err != nil {
		return store.VersionKey{}, fmt.Errorf("load version %d: %w", versionID, err)
	}
	return store.VersionKey{System: doc.System, Name: doc.Name, Version: doc.Version}, nil
}

// DatabaseName extracts the database name from a mongodb:// URI path, if any.
func DatabaseName(uri string) string {
	rest, ok := strings.CutPrefix(uri, "mongodb://")
	if !ok {
		rest, ok = strings.CutPrefix(uri, "mongodb+srv://")
	}
	if !ok {
		return ""
	}
	_, path, found := strings.Cut(rest, "/")
	if !found {
		return ""
	}
	name, _, _ := strings.Cut(path, "?")
	return name
}

var _ store.Store = (*Store)(nil)
