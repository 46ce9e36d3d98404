// Package vectorstore holds the VectorIndex backends: pgvector tables in the
// metadata database, or a MongoDB collection shared with the answering
// service.
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/core"
	db "github.com/fayaebeb/mirai-mod/internal/core/database"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

var _ core.VectorIndex = (*PgvectorIndex)(nil)

type PgvectorIndex struct {
	db *sql.DB
}

// NewPgvectorIndex applies the chunk-table migrations and returns an index on
// the given pool.
func NewPgvectorIndex(pool *sql.DB, dsn string, logger *zap.Logger) (*PgvectorIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgvector index: nil pool")
	}
	if err := db.RunMigrations(dsn, db.PgvectorMigrations, logger); err != nil {
		return nil, err
	}
	return &PgvectorIndex{db: pool}, nil
}

// UpsertChunks inserts chunks in a single transaction.
func (p *PgvectorIndex) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return p.fail("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO document_chunks
			(id, file_id, filename, session_id, correlation_id, position, text, embedding, token_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET text = EXCLUDED.text, embedding = EXCLUDED.embedding, token_count = EXCLUDED.token_count
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return p.fail("prepare", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.FileID, ch.Filename, ch.SessionID, ch.CorrelationID, ch.Position, ch.Text,
			pgvector.NewVector(ch.Embedding), ch.TokenCount,
		); err != nil {
			return p.fail("insert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return p.fail("commit", err)
	}
	return nil
}

// Search finds the top-k chunks nearest to queryVec by cosine distance.
func (p *PgvectorIndex) Search(ctx context.Context, queryVec []float32, limit int) ([]models.Chunk, error) {
	const q = `
		SELECT id, file_id, filename, session_id, correlation_id, position, text, embedding, token_count, created_at
		FROM document_chunks
		WHERE vector_dims(embedding) = $3
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, q, pgvector.NewVector(queryVec), limit, len(queryVec))
	if err != nil {
		return nil, p.fail("search", err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var (
			ch  models.Chunk
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&ch.ID, &ch.FileID, &ch.Filename, &ch.SessionID, &ch.CorrelationID, &ch.Position, &ch.Text, &emb, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (p *PgvectorIndex) DeleteByFilename(ctx context.Context, filename string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE filename = $1`, filename); err != nil {
		return p.fail("delete by filename", err)
	}
	return nil
}

func (p *PgvectorIndex) DeleteByFileID(ctx context.Context, fileID int64) error {
	if fileID <= 0 {
		return fmt.Errorf("%w: file id %d", core.ErrInvalidInput, fileID)
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE file_id = $1`, fileID); err != nil {
		return p.fail("delete by file id", err)
	}
	return nil
}

// DeleteByCorrelationID refuses an empty id: document chunks store '' there.
func (p *PgvectorIndex) DeleteByCorrelationID(ctx context.Context, correlationID string) error {
	if correlationID == "" {
		return fmt.Errorf("%w: empty correlation id", core.ErrInvalidInput)
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE correlation_id = $1`, correlationID); err != nil {
		return p.fail("delete by correlation id", err)
	}
	return nil
}

func (p *PgvectorIndex) fail(op string, err error) error {
	return &core.RemoteServiceError{Service: "pgvector", Err: fmt.Errorf("%s: %w", op, err)}
}
