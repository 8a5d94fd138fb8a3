// Package sqlitevec provides the default SQLite-backed storage driver,
// using sqlite-vec for the server-side ranked similarity tier.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
)

// knnOverfetch is the multiple of the requested limit fetched from the KNN
// stage. The vec0 MATCH runs before the owner/type filters, so the KNN pool
// must be wide enough to survive filtering.
const knnOverfetch = 8

// Driver implements storage.Driver using SQLite with sqlite-vec.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewDriver creates a new SQLite storage driver backed by sqlite-vec.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: :memory: databases are per-connection, and writes
	// serialize through SQLite anyway.
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// The records table. vec0 virtual tables use integer rowids, so the
	// embedding sidecar is keyed by this table's rowid.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'generic',
			tags TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating memories table: %w", err)
	}

	if _, err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id)`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating owner index: %w", err)
	}

	// The vec0 virtual table for vector storage and KNN queries. Cosine
	// distance so similarity maps as 1 - distance.
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec storage driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{
		db:     db,
		logger: logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Insert persists a record and, when an embedding is present, mirrors it
// into the vec0 sidecar in the same transaction.
func (d *Driver) Insert(ctx context.Context, mem *record.Memory) (*record.Memory, error) {
	if mem == nil {
		return nil, fmt.Errorf("cannot store nil record")
	}
	if mem.OwnerID == "" {
		return nil, fmt.Errorf("record owner id is required")
	}

	stored := *mem
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	if stored.Type == "" {
		stored.Type = record.TypeGeneric
	}

	tagsJSON, err := json.Marshal(orEmptyTags(stored.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshaling tags for record %s: %w", stored.ID, err)
	}
	metaJSON, err := json.Marshal(orEmptyMeta(stored.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata for record %s: %w", stored.ID, err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO memories(id, owner_id, title, content, context, type, tags, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.OwnerID, stored.Title, stored.Content, stored.Context,
		string(stored.Type), string(tagsJSON), string(metaJSON),
		stored.CreatedAt, stored.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting record %s: %w", stored.ID, err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting rowid for record %s: %w", stored.ID, err)
	}

	if stored.Embedding != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
			rowID, serializeFloat32(stored.Embedding),
		); err != nil {
			return nil, fmt.Errorf("inserting embedding for record %s: %w", stored.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("inserted record",
		zap.String("id", stored.ID),
		zap.String("owner_id", stored.OwnerID),
		zap.Bool("embedded", stored.Embedding != nil),
	)

	return &stored, nil
}

// Get retrieves one record by owner and id, with its embedding hydrated.
func (d *Driver) Get(ctx context.Context, ownerID, id string) (*record.Memory, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT rowid, id, owner_id, title, content, context, type, tags, metadata, created_at, updated_at
		FROM memories
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)

	mem, rowID, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("querying record %s: %w", id, err)
	}

	if err := d.hydrateEmbedding(ctx, mem, rowID); err != nil {
		return nil, err
	}

	return mem, nil
}

// RankedSearch runs a KNN query against the vec0 sidecar, joins back to the
// records table, and applies the owner/type/threshold filters.
func (d *Driver) RankedSearch(ctx context.Context, q storage.RankedQuery) ([]record.SearchResult, error) {
	if q.OwnerID == "" {
		return nil, fmt.Errorf("ranked search requires an owner id")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("ranked search requires a positive limit")
	}

	// The KNN pool is filtered after the MATCH, so over-fetch to keep
	// q.Limit reachable once other owners' records are dropped.
	k := q.Limit * knnOverfetch

	query := `
		SELECT m.id, m.content, m.metadata, e.distance
		FROM memory_embeddings e
		INNER JOIN memories m ON m.rowid = e.rowid
		WHERE e.embedding MATCH ?
			AND e.k = ?
			AND m.owner_id = ?
	`
	args := []any{serializeFloat32(q.Embedding), k, q.OwnerID}

	if q.Type != "" {
		query += ` AND m.type = ?`
		args = append(args, string(q.Type))
	}
	query += ` ORDER BY e.distance`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	results := make([]record.SearchResult, 0, q.Limit)
	for rows.Next() {
		var id, content, metaJSON string
		var distance float64
		if err := rows.Scan(&id, &content, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		sim := clampSimilarity(1.0 - distance)
		if sim < q.Threshold {
			continue
		}

		meta, err := unmarshalMeta(metaJSON)
		if err != nil {
			return nil, fmt.Errorf("decoding metadata for record %s: %w", id, err)
		}

		results = append(results, record.SearchResult{
			ID:         id,
			Content:    content,
			Metadata:   meta,
			Similarity: sim,
		})
		if len(results) == q.Limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("ranked search",
		zap.String("owner_id", q.OwnerID),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// SubstringSearch matches the query text against titles and content with
// LIKE, newest first, tagging results with the sentinel score.
func (d *Driver) SubstringSearch(ctx context.Context, ownerID, query string, limit int) ([]record.SearchResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("substring search requires an owner id")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("substring search requires a positive limit")
	}

	pattern := "%" + escapeLike(query) + "%"

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, content, metadata
		FROM memories
		WHERE owner_id = ?
			AND (title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')
		ORDER BY created_at DESC, id
		LIMIT ?
	`, ownerID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("querying substring matches: %w", err)
	}
	defer rows.Close()

	results := make([]record.SearchResult, 0, limit)
	for rows.Next() {
		var id, content, metaJSON string
		if err := rows.Scan(&id, &content, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning substring result: %w", err)
		}

		meta, err := unmarshalMeta(metaJSON)
		if err != nil {
			return nil, fmt.Errorf("decoding metadata for record %s: %w", id, err)
		}

		results = append(results, record.SearchResult{
			ID:         id,
			Content:    content,
			Metadata:   meta,
			Similarity: storage.SubstringScore,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating substring results: %w", err)
	}

	return results, nil
}

// ListByOwner returns all of one owner's records with embeddings hydrated.
func (d *Driver) ListByOwner(ctx context.Context, ownerID string) ([]*record.Memory, error) {
	return d.list(ctx, `WHERE owner_id = ?`, ownerID)
}

// ListAll returns every stored record with embeddings hydrated.
func (d *Driver) ListAll(ctx context.Context) ([]*record.Memory, error) {
	return d.list(ctx, ``)
}

func (d *Driver) list(ctx context.Context, where string, args ...any) ([]*record.Memory, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT rowid, id, owner_id, title, content, context, type, tags, metadata, created_at, updated_at
		FROM memories `+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	// Collect results first so the rows cursor is closed before issuing
	// the embedding lookups (SQLite uses a single connection).
	type memRow struct {
		mem   *record.Memory
		rowID int64
	}
	var memRows []memRow

	for rows.Next() {
		mem, rowID, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		memRows = append(memRows, memRow{mem: mem, rowID: rowID})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	rows.Close()

	out := make([]*record.Memory, 0, len(memRows))
	for _, mr := range memRows {
		if err := d.hydrateEmbedding(ctx, mr.mem, mr.rowID); err != nil {
			return nil, err
		}
		out = append(out, mr.mem)
	}

	return out, nil
}

// hydrateEmbedding loads a record's embedding from the vec0 sidecar, if any.
func (d *Driver) hydrateEmbedding(ctx context.Context, mem *record.Memory, rowID int64) error {
	var embBlob []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT embedding FROM memory_embeddings WHERE rowid = ?`, rowID,
	).Scan(&embBlob)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("querying embedding for record %s: %w", mem.ID, err)
	}

	if len(embBlob) > 0 {
		vec, err := deserializeFloat32(embBlob)
		if err != nil {
			return fmt.Errorf("decoding embedding for record %s: %w", mem.ID, err)
		}
		mem.Embedding = vec
	}

	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*record.Memory, int64, error) {
	var (
		mem      record.Memory
		rowID    int64
		typ      string
		tagsJSON string
		metaJSON string
	)

	err := row.Scan(&rowID, &mem.ID, &mem.OwnerID, &mem.Title, &mem.Content,
		&mem.Context, &typ, &tagsJSON, &metaJSON, &mem.CreatedAt, &mem.UpdatedAt)
	if err != nil {
		return nil, 0, err
	}

	mem.Type = record.Type(typ)

	if err := json.Unmarshal([]byte(tagsJSON), &mem.Tags); err != nil {
		return nil, 0, fmt.Errorf("decoding tags: %w", err)
	}
	meta, err := unmarshalMeta(metaJSON)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding metadata: %w", err)
	}
	mem.Metadata = meta

	return &mem, rowID, nil
}

func unmarshalMeta(metaJSON string) (map[string]any, error) {
	var meta map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func orEmptyTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func orEmptyMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}

func clampSimilarity(sim float64) float32 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return float32(sim)
}

// escapeLike escapes LIKE wildcards in user-supplied query text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

var _ storage.Driver = (*Driver)(nil)
