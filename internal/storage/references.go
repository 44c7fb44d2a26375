package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facecheck/internal/face"
)

// --- Face references ---

// InsertReferences stores every embedding of identity in one transaction.
func (s *PostgresStore) InsertReferences(ctx context.Context, identity string, embeddings []face.Embedding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert references: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, e := range embeddings {
		batch.Queue(`INSERT INTO face_references (id, identity, embedding) VALUES ($1, $2, $3)`,
			uuid.New(), identity, pgvector.NewVector(e))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert references: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit references: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReferencesByIdentity(ctx context.Context, identity string) ([]face.Embedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT embedding FROM face_references WHERE identity = $1 ORDER BY created_at, id`, identity)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	var out []face.Embedding
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		out = append(out, face.Embedding(vec.Slice()))
	}
	return out, rows.Err()
}

// AllReferences returns every identity with its embeddings.
func (s *PostgresStore) AllReferences(ctx context.Context) ([]face.Reference, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT identity, embedding FROM face_references ORDER BY identity, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	var refs []face.Reference
	for rows.Next() {
		var identity string
		var vec pgvector.Vector
		if err := rows.Scan(&identity, &vec); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		if n := len(refs); n == 0 || refs[n-1].Identity != identity {
			refs = append(refs, face.Reference{Identity: identity})
		}
		last := &refs[len(refs)-1]
		last.Embeddings = append(last.Embeddings, face.Embedding(vec.Slice()))
	}
	return refs, rows.Err()
}

func (s *PostgresStore) DeleteReferences(ctx context.Context, identity string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM face_references WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("delete references: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearReferences(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE face_references`); err != nil {
		return fmt.Errorf("clear references: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountReferences(ctx context.Context, identity string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_references WHERE identity = $1`, identity,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return n, nil
}
