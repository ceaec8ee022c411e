// Package store provides the default, directory-backed index store: a
// SQLite database holding every collection generation, its chunks and their
// embeddings. Search is an exact cosine scan over one generation, which is
// fast enough for a corpus of a few thousand chunks per language.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/icrag-go/internal/rag"
)

// DBFile is the database file name created inside the index directory.
const DBFile = "index.db"

// SQLiteStore implements rag.VectorStore on a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// path is the database file path, reported by Name.
	path string
}

// OpenDir opens (or creates) the index database inside dir.
func OpenDir(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return Open(filepath.Join(dir, DBFile))
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS collections (
    physical         TEXT    PRIMARY KEY,
    name             TEXT    NOT NULL,
    language         TEXT    NOT NULL,
    embedder_version TEXT    NOT NULL,
    dimension        INTEGER NOT NULL,
    created_at       INTEGER NOT NULL  -- Unix timestamp (nanoseconds)
);
CREATE INDEX IF NOT EXISTS idx_collections_name ON collections (name);
CREATE TABLE IF NOT EXISTS live (
    name     TEXT PRIMARY KEY,
    physical TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
    physical   TEXT    NOT NULL,
    id         TEXT    NOT NULL,
    seq        INTEGER NOT NULL,
    text       TEXT    NOT NULL,
    source     TEXT    NOT NULL,
    page_start INTEGER NOT NULL,
    page_end   INTEGER NOT NULL,
    metadata   TEXT    NOT NULL,
    embedding  BLOB    NOT NULL,
    PRIMARY KEY (physical, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_physical_seq ON chunks (physical, seq);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Name returns the database path for readiness reporting.
func (s *SQLiteStore) Name() string { return s.path }

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// CreateCollection records a new unpublished generation for spec.Name and
// removes any earlier unpublished generations of the same name.
func (s *SQLiteStore) CreateCollection(ctx context.Context, spec rag.CollectionSpec) (*rag.Collection, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("store: collection name is required")
	}
	if spec.Dimension <= 0 {
		return nil, fmt.Errorf("store: dimension must be positive, got %d", spec.Dimension)
	}

	now := time.Now().UTC()
	c := &rag.Collection{
		Name:            spec.Name,
		Language:        spec.Language,
		Physical:        spec.Name + "__" + uuid.NewString()[:8],
		EmbedderVersion: spec.EmbedderVersion,
		Dimension:       spec.Dimension,
		CreatedAt:       now,
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		const stale = `
SELECT physical FROM collections
WHERE  name = ? AND physical NOT IN (SELECT physical FROM live WHERE name = ?)`
		rows, err := tx.QueryContext(ctx, stale, spec.Name, spec.Name)
		if err != nil {
			return fmt.Errorf("find stale generations: %w", err)
		}
		var drop []string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan stale generation: %w", err)
			}
			drop = append(drop, p)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("stale rows: %w", err)
		}
		for _, p := range drop {
			if err := dropPhysical(ctx, tx, p); err != nil {
				return err
			}
		}

		const ins = `INSERT INTO collections (physical, name, language, embedder_version, dimension, created_at) VALUES (?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, ins, c.Physical, c.Name, c.Language, c.EmbedderVersion, c.Dimension, now.UnixNano()); err != nil {
			return fmt.Errorf("insert collection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: create collection %s: %w", spec.Name, err)
	}
	return c, nil
}

// Add inserts one batch inside a single transaction.
func (s *SQLiteStore) Add(ctx context.Context, c *rag.Collection, chunks []rag.Chunk, embeddings [][]float32) error {
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	fail := func(err error) error {
		return &rag.BatchError{Collection: c.Physical, FailedIDs: ids, Err: err}
	}
	if len(chunks) != len(embeddings) {
		return fail(fmt.Errorf("%d chunks but %d embeddings", len(chunks), len(embeddings)))
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		const ins = `
INSERT INTO chunks (physical, id, seq, text, source, page_start, page_end, metadata, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		stmt, err := tx.PrepareContext(ctx, ins)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, ch := range chunks {
			if len(embeddings[i]) != c.Dimension {
				return fmt.Errorf("chunk %s: embedding has %d dimensions, collection expects %d", ch.ID, len(embeddings[i]), c.Dimension)
			}
			meta, err := json.Marshal(ch.Metadata)
			if err != nil {
				return fmt.Errorf("chunk %s: marshal metadata: %w", ch.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, c.Physical, ch.ID, ch.Sequence, ch.Text, ch.Source,
				ch.PageStart, ch.PageEnd, string(meta), encodeVector(embeddings[i])); err != nil {
				return fmt.Errorf("chunk %s: insert: %w", ch.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fail(fmt.Errorf("store: add: %w", err))
	}
	return nil
}

// Publish makes c the live generation for its name and drops the generation
// it replaces, in one transaction.
func (s *SQLiteStore) Publish(ctx context.Context, c *rag.Collection) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE physical = ?`, c.Physical).Scan(&exists); err != nil {
			return fmt.Errorf("lookup generation: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("generation %s: %w", c.Physical, rag.ErrCollectionNotFound)
		}

		var old string
		err := tx.QueryRowContext(ctx, `SELECT physical FROM live WHERE name = ?`, c.Name).Scan(&old)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup live: %w", err)
		}

		const upsert = `INSERT INTO live (name, physical) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET physical = excluded.physical`
		if _, err := tx.ExecContext(ctx, upsert, c.Name, c.Physical); err != nil {
			return fmt.Errorf("swap live: %w", err)
		}
		if old != "" && old != c.Physical {
			return dropPhysical(ctx, tx, old)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: publish %s: %w", c.Name, err)
	}
	return nil
}

// Discard removes an unpublished generation. Live generations are refused.
func (s *SQLiteStore) Discard(ctx context.Context, c *rag.Collection) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var live int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM live WHERE physical = ?`, c.Physical).Scan(&live); err != nil {
			return fmt.Errorf("lookup live: %w", err)
		}
		if live > 0 {
			return fmt.Errorf("refusing to discard live generation %s", c.Physical)
		}
		return dropPhysical(ctx, tx, c.Physical)
	})
	if err != nil {
		return fmt.Errorf("store: discard %s: %w", c.Physical, err)
	}
	return nil
}

// GetCollection returns the live generation for name.
func (s *SQLiteStore) GetCollection(ctx context.Context, name string) (*rag.Collection, error) {
	const q = `
SELECT c.physical, c.name, c.language, c.embedder_version, c.dimension, c.created_at,
       (SELECT COUNT(*) FROM chunks k WHERE k.physical = c.physical)
FROM   live l JOIN collections c ON c.physical = l.physical
WHERE  l.name = ?`
	c, err := scanCollection(s.db.QueryRowContext(ctx, q, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", rag.ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get collection %s: %w", name, err)
	}
	return c, nil
}

// ListCollections returns every live generation ordered by name.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]rag.Collection, error) {
	const q = `
SELECT c.physical, c.name, c.language, c.embedder_version, c.dimension, c.created_at,
       (SELECT COUNT(*) FROM chunks k WHERE k.physical = c.physical)
FROM   live l JOIN collections c ON c.physical = l.physical
ORDER  BY c.name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list collections: %w", err)
	}
	defer rows.Close()

	var out []rag.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list collections scan: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list collections rows: %w", err)
	}
	return out, nil
}

// Search scans every chunk of c and returns the k nearest by cosine distance.
func (s *SQLiteStore) Search(ctx context.Context, c *rag.Collection, vector []float32, k int) ([]rag.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != c.Dimension {
		return nil, fmt.Errorf("store: query vector has %d dimensions, collection expects %d", len(vector), c.Dimension)
	}

	const q = `
SELECT id, seq, text, source, page_start, page_end, metadata, embedding
FROM   chunks
WHERE  physical = ?
ORDER  BY seq`
	rows, err := s.db.QueryContext(ctx, q, c.Physical)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var hits []rag.Hit
	for rows.Next() {
		var (
			ch   rag.Chunk
			meta string
			blob []byte
		)
		if err := rows.Scan(&ch.ID, &ch.Sequence, &ch.Text, &ch.Source, &ch.PageStart, &ch.PageEnd, &meta, &blob); err != nil {
			return nil, fmt.Errorf("store: search scan: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &ch.Metadata); err != nil {
			return nil, fmt.Errorf("store: chunk %s metadata: %w", ch.ID, err)
		}
		hits = append(hits, rag.Hit{Chunk: ch, Distance: rag.CosineDistance(vector, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search rows: %w", err)
	}

	rag.SortHits(hits)
	return rag.Limit(hits, k), nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// inTx runs fn inside a transaction, committing on success.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// dropPhysical deletes a generation and its chunks.
func dropPhysical(ctx context.Context, tx *sql.Tx, physical string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE physical = ?`, physical); err != nil {
		return fmt.Errorf("drop chunks of %s: %w", physical, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE physical = ?`, physical); err != nil {
		return fmt.Errorf("drop generation %s: %w", physical, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCollection reads one collection row with its chunk count.
func scanCollection(r rowScanner) (*rag.Collection, error) {
	var (
		c  rag.Collection
		ts int64
	)
	if err := r.Scan(&c.Physical, &c.Name, &c.Language, &c.EmbedderVersion, &c.Dimension, &ts, &c.Count); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	c.CreatedAt = time.Unix(0, ts).UTC()
	return &c, nil
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
