package refstore

import (
	"context"

	"github.com/your-org/facecheck/internal/face"
)

// PGReferences is the reference table of the shared Postgres database,
// implemented by storage.PostgresStore.
type PGReferences interface {
	InsertReferences(ctx context.Context, identity string, embeddings []face.Embedding) error
	ReferencesByIdentity(ctx context.Context, identity string) ([]face.Embedding, error)
	AllReferences(ctx context.Context) ([]face.Reference, error)
	DeleteReferences(ctx context.Context, identity string) error
	ClearReferences(ctx context.Context) error
	CountReferences(ctx context.Context, identity string) (int, error)
}

// Postgres adapts the pgvector reference table to Store. The pool is owned
// by the caller, so Close does nothing.
type Postgres struct {
	pg PGReferences
}

func NewPostgres(pg PGReferences) *Postgres {
	return &Postgres{pg: pg}
}

func (p *Postgres) Insert(ctx context.Context, identity string, embeddings []face.Embedding) error {
	if err := validate(identity, embeddings); err != nil {
		return err
	}
	return p.pg.InsertReferences(ctx, identity, embeddings)
}

func (p *Postgres) ByIdentity(ctx context.Context, identity string) ([]face.Embedding, error) {
	embs, err := p.pg.ReferencesByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if embs == nil {
		embs = []face.Embedding{}
	}
	return embs, nil
}

func (p *Postgres) All(ctx context.Context) ([]face.Reference, error) {
	return p.pg.AllReferences(ctx)
}

func (p *Postgres) DeleteByIdentity(ctx context.Context, identity string) error {
	return p.pg.DeleteReferences(ctx, identity)
}

func (p *Postgres) Clear(ctx context.Context) error {
	return p.pg.ClearReferences(ctx)
}

func (p *Postgres) Count(ctx context.Context, identity string) (int, error) {
	return p.pg.CountReferences(ctx, identity)
}

func (p *Postgres) Close() error { return nil }
