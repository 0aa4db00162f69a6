package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sync"

	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/aitutor/internal/pkg/timeutil"
	"github.com/xxxsen/aitutor/internal/rag"
)

type pgvectorConfig struct {
	Table     string `json:"table"`
	HNSWIndex *bool  `json:"hnsw_index"`
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func init() {
	Register("pgvector", func(args interface{}, deps Deps) (rag.VectorIndex, error) {
		cfg := &pgvectorConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		if deps.DB == nil {
			return nil, fmt.Errorf("pgvector index requires a database")
		}
		idx, err := NewPGVector(deps.DB, cfg.Table)
		if err != nil {
			return nil, err
		}
		if cfg.HNSWIndex != nil {
			idx.hnswIndex = *cfg.HNSWIndex
		}
		return idx, nil
	})
}

// PGVectorIndex stores every namespace in one Postgres table keyed by
// (namespace, chunk_id).
type PGVectorIndex struct {
	db        *sql.DB
	table     string
	hnswIndex bool

	mu  sync.RWMutex
	dim int
}

func NewPGVector(db *sql.DB, table string) (*PGVectorIndex, error) {
	if table == "" {
		table = "rag_chunks"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", rag.ErrConfig, table)
	}
	return &PGVectorIndex{db: db, table: table, hnswIndex: true}, nil
}

func (p *PGVectorIndex) EnsureReady(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", rag.ErrConfig, dim)
	}
	if _, err := p.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	existing, err := p.columnDimension(ctx)
	if err != nil {
		return err
	}
	if existing > 0 && existing != dim {
		return fmt.Errorf("%w: table %s stores %d dimensions, embedder produces %d", rag.ErrConfig, p.table, existing, dim)
	}
	if existing == 0 {
		createTable := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				namespace TEXT NOT NULL,
				chunk_id TEXT NOT NULL,
				embedding vector(%d) NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
				ctime BIGINT NOT NULL,
				PRIMARY KEY (namespace, chunk_id)
			)`, p.table, dim)
		if _, err := p.db.ExecContext(ctx, createTable); err != nil {
			return fmt.Errorf("create table %s: %w", p.table, err)
		}
	}
	if p.hnswIndex {
		createIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, p.table, p.table)
		if _, err := p.db.ExecContext(ctx, createIndex); err != nil {
			return fmt.Errorf("create hnsw index on %s: %w", p.table, err)
		}
	}
	p.mu.Lock()
	p.dim = dim
	p.mu.Unlock()
	return nil
}

// columnDimension returns 0 when the table does not exist yet.
func (p *PGVectorIndex) columnDimension(ctx context.Context) (int, error) {
	const query = `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = to_regclass($1) AND attname = 'embedding' AND NOT attisdropped
	`
	var typmod int
	err := p.db.QueryRowContext(ctx, query, p.table).Scan(&typmod)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inspect table %s: %w", p.table, err)
	}
	if typmod <= 0 {
		return 0, fmt.Errorf("%w: column %s.embedding has no fixed dimension", rag.ErrConfig, p.table)
	}
	return typmod, nil
}

func (p *PGVectorIndex) dimension() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dim
}

func (p *PGVectorIndex) Upsert(ctx context.Context, ns string, vectors []rag.Vector) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	dim := p.dimension()
	for _, v := range vectors {
		if err := checkDim(len(v.Values), dim); err != nil {
			return err
		}
	}
	if len(vectors) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (namespace, chunk_id, embedding, metadata, ctime)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (namespace, chunk_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			ctime = EXCLUDED.ctime
	`, p.table))
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := timeutil.NowUnix()
	for _, v := range vectors {
		meta, err := json.Marshal(copyMetadata(v.Metadata))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, ns, v.ID, pgvector.NewVector(v.Values), string(meta), now); err != nil {
			return fmt.Errorf("upsert %s: %w", v.ID, err)
		}
	}
	return tx.Commit()
}

func (p *PGVectorIndex) Query(ctx context.Context, ns string, vec []float32, topK int) ([]rag.Match, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	if err := checkDim(len(vec), p.dimension()); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT chunk_id, metadata, 1 - (embedding <=> $2) AS score
		FROM %s
		WHERE namespace = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, p.table)
	rows, err := p.db.QueryContext(ctx, query, ns, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []rag.Match
	for rows.Next() {
		var (
			m     rag.Match
			meta  []byte
			score float64
		)
		if err := rows.Scan(&m.ID, &meta, &score); err != nil {
			return nil, err
		}
		m.Metadata = map[string]string{}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
			}
		}
		// cosine distance against a zero vector is NaN
		if math.IsNaN(score) {
			score = 0
		}
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PGVectorIndex) DeleteNamespace(ctx context.Context, ns string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1`, p.table), ns)
	return err
}
