package rag

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// catalogCollection holds one point per physical collection describing its
// logical name, language and embedder version.
const catalogCollection = "icrag_catalog"

// Payload keys used for chunk points.
const (
	payloadText      = "text"
	payloadSource    = "source"
	payloadPageStart = "page_start"
	payloadPageEnd   = "page_end"
	payloadSequence  = "sequence"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore on Qdrant. Each ingestion generation is
// its own physical collection; the logical name is a Qdrant alias, so
// Publish is a single UpdateAliases call.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
}

// NewQdrantStore connects to Qdrant and ensures the catalog collection exists.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg == nil {
		cfg = &QdrantConfig{}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	s := &QdrantStore{client: client}
	if err := s.ensureCatalog(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// Client exposes the gRPC client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// ensureCatalog creates the catalog collection if it does not already exist.
func (s *QdrantStore) ensureCatalog(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, catalogCollection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check catalog existence: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: catalogCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     1,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create catalog: %w", err)
	}
	return nil
}

// catalogID derives a stable point ID from a physical collection name.
func catalogID(physical string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(physical)).String())
}

// CreateCollection creates a new physical generation and records it in the
// catalog. Unpublished generations left behind by earlier runs are dropped.
func (s *QdrantStore) CreateCollection(ctx context.Context, spec CollectionSpec) (*Collection, error) {
	if spec.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be positive, got %d", spec.Dimension)
	}
	if err := s.dropStale(ctx, spec.Name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &Collection{
		Name:            spec.Name,
		Language:        spec.Language,
		Physical:        spec.Name + "__" + strconv.FormatInt(now.UnixNano(), 10),
		EmbedderVersion: spec.EmbedderVersion,
		Dimension:       spec.Dimension,
		CreatedAt:       now,
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.Physical,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(c.Dimension), //nolint:gosec // validated positive above
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", c.Physical, err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: catalogCollection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      catalogID(c.Physical),
			Vectors: qdrant.NewVectors(1),
			Payload: qdrant.NewValueMap(map[string]any{
				"name":             c.Name,
				"language":         c.Language,
				"physical":         c.Physical,
				"embedder_version": c.EmbedderVersion,
				"dimension":        int64(c.Dimension),
				"created_at":       c.CreatedAt.Unix(),
			}),
		}},
	})
	if err != nil {
		_ = s.client.DeleteCollection(ctx, c.Physical)
		return nil, fmt.Errorf("qdrant: failed to record %q in catalog: %w", c.Physical, err)
	}
	return c, nil
}

// dropStale removes catalog generations of name that are not the alias target.
func (s *QdrantStore) dropStale(ctx context.Context, name string) error {
	live, err := s.aliasTarget(ctx, name)
	if err != nil {
		return err
	}
	entries, err := s.catalogEntries(ctx, name)
	if err != nil {
		return err
	}
	for _, c := range entries {
		if c.Physical == live {
			continue
		}
		if err := s.drop(ctx, c.Physical); err != nil {
			return err
		}
	}
	return nil
}

// Add upserts one batch. Qdrant applies a single upsert request atomically.
func (s *QdrantStore) Add(ctx context.Context, c *Collection, chunks []Chunk, embeddings [][]float32) error {
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	fail := func(err error) error {
		return &BatchError{Collection: c.Physical, FailedIDs: ids, Err: err}
	}
	if len(chunks) != len(embeddings) {
		return fail(fmt.Errorf("%d chunks but %d embeddings", len(chunks), len(embeddings)))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, ch := range chunks {
		if len(embeddings[i]) != c.Dimension {
			return fail(fmt.Errorf("chunk %s: embedding has %d dimensions, collection expects %d", ch.ID, len(embeddings[i]), c.Dimension))
		}
		if _, err := uuid.Parse(ch.ID); err != nil {
			return fail(fmt.Errorf("chunk id %q is not a UUID: %w", ch.ID, err))
		}
		payload := map[string]any{
			payloadText:      ch.Text,
			payloadSource:    ch.Source,
			payloadPageStart: int64(ch.PageStart),
			payloadPageEnd:   int64(ch.PageEnd),
			payloadSequence:  int64(ch.Sequence),
		}
		for k, v := range ch.Metadata {
			if _, reserved := payload[k]; !reserved {
				payload[k] = v
			}
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(ch.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.Physical,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fail(fmt.Errorf("qdrant: upsert failed: %w", err))
	}
	return nil
}

// Publish repoints the logical alias at c and drops the previous generation.
func (s *QdrantStore) Publish(ctx context.Context, c *Collection) error {
	old, err := s.aliasTarget(ctx, c.Name)
	if err != nil {
		return err
	}

	ops := make([]*qdrant.AliasOperations, 0, 2)
	if old != "" {
		ops = append(ops, qdrant.NewAliasDelete(c.Name))
	}
	ops = append(ops, qdrant.NewAliasCreate(c.Name, c.Physical))
	if err := s.client.UpdateAliases(ctx, ops); err != nil {
		return fmt.Errorf("qdrant: failed to swap alias %q to %q: %w", c.Name, c.Physical, err)
	}

	if old != "" && old != c.Physical {
		if err := s.drop(ctx, old); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops an unpublished generation.
func (s *QdrantStore) Discard(ctx context.Context, c *Collection) error {
	live, err := s.aliasTarget(ctx, c.Name)
	if err != nil {
		return err
	}
	if live == c.Physical {
		return fmt.Errorf("qdrant: refusing to discard live collection %q", c.Physical)
	}
	return s.drop(ctx, c.Physical)
}

// drop deletes a physical collection and its catalog entry.
func (s *QdrantStore) drop(ctx context.Context, physical string) error {
	if err := s.client.DeleteCollection(ctx, physical); err != nil {
		return fmt.Errorf("qdrant: failed to delete collection %q: %w", physical, err)
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: catalogCollection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(catalogID(physical)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to remove %q from catalog: %w", physical, err)
	}
	return nil
}

// GetCollection resolves the alias for name and loads its catalog entry.
func (s *QdrantStore) GetCollection(ctx context.Context, name string) (*Collection, error) {
	physical, err := s.aliasTarget(ctx, name)
	if err != nil {
		return nil, err
	}
	if physical == "" {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return s.describe(ctx, physical)
}

// describe loads the catalog entry and point count for a physical collection.
func (s *QdrantStore) describe(ctx context.Context, physical string) (*Collection, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: catalogCollection,
		Ids:            []*qdrant.PointId{catalogID(physical)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: catalog lookup for %q failed: %w", physical, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s has no catalog entry", ErrCollectionNotFound, physical)
	}
	c := collectionFromPayload(points[0].GetPayload())

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: physical,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: count %q failed: %w", physical, err)
	}
	c.Count = int(n) //nolint:gosec // collection sizes fit in int
	return c, nil
}

// catalogEntries returns every catalog generation recorded for name.
func (s *QdrantStore) catalogEntries(ctx context.Context, name string) ([]*Collection, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: catalogCollection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("name", name)},
		},
		Limit:       qdrant.PtrOf(uint32(100)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: catalog scroll for %q failed: %w", name, err)
	}
	out := make([]*Collection, 0, len(points))
	for _, p := range points {
		out = append(out, collectionFromPayload(p.GetPayload()))
	}
	return out, nil
}

// aliasTarget returns the physical collection an alias points at, or "".
func (s *QdrantStore) aliasTarget(ctx context.Context, name string) (string, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("qdrant: list aliases failed: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == name {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// Search performs a cosine similarity search; scores are converted to
// distances so results match the SQLite backend.
func (s *QdrantStore) Search(ctx context.Context, c *Collection, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k) //nolint:gosec // k > 0
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.Physical,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Chunk:    chunkFromPayload(r.GetId().GetUuid(), r.GetPayload()),
			Distance: 1 - r.GetScore(),
		})
	}
	SortHits(hits)
	return hits, nil
}

// ListCollections returns every aliased collection that has a catalog entry.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]Collection, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("qdrant: list aliases failed: %w", err)
	}
	out := make([]Collection, 0, len(aliases))
	for _, a := range aliases {
		c, err := s.describe(ctx, a.GetCollectionName())
		if err != nil {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// collectionFromPayload decodes a catalog point payload.
func collectionFromPayload(p map[string]*qdrant.Value) *Collection {
	return &Collection{
		Name:            p["name"].GetStringValue(),
		Language:        p["language"].GetStringValue(),
		Physical:        p["physical"].GetStringValue(),
		EmbedderVersion: p["embedder_version"].GetStringValue(),
		Dimension:       int(p["dimension"].GetIntegerValue()),
		CreatedAt:       time.Unix(p["created_at"].GetIntegerValue(), 0).UTC(),
	}
}

// chunkFromPayload decodes a chunk point payload.
func chunkFromPayload(id string, p map[string]*qdrant.Value) Chunk {
	ch := Chunk{
		ID:        id,
		Text:      p[payloadText].GetStringValue(),
		Source:    p[payloadSource].GetStringValue(),
		PageStart: int(p[payloadPageStart].GetIntegerValue()),
		PageEnd:   int(p[payloadPageEnd].GetIntegerValue()),
		Sequence:  int(p[payloadSequence].GetIntegerValue()),
		Metadata:  make(map[string]string),
	}
	for k, v := range p {
		switch k {
		case payloadText, payloadSource, payloadPageStart, payloadPageEnd, payloadSequence:
		default:
			ch.Metadata[k] = v.GetStringValue()
		}
	}
	return ch
}
