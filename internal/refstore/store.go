// Package refstore persists the enrolled reference embeddings per identity.
package refstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/face"
)

var (
	ErrEmptyIdentity   = errors.New("reference identity is empty")
	ErrNoEmbeddings    = errors.New("no embeddings to store")
	ErrEmptyEmbedding  = errors.New("reference embedding is empty")
	ErrUnknownBackend  = errors.New("unknown reference backend")
	ErrBackendRequired = errors.New("reference backend dependency missing")
)

// Store holds zero or more embeddings per identity. Enumeration order is
// unspecified.
type Store interface {
	Insert(ctx context.Context, identity string, embeddings []face.Embedding) error
	// ByIdentity returns an empty slice for unknown identities.
	ByIdentity(ctx context.Context, identity string) ([]face.Embedding, error)
	All(ctx context.Context) ([]face.Reference, error)
	DeleteByIdentity(ctx context.Context, identity string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context, identity string) (int, error)
	Close() error
}

// Open returns the backend selected by cfg. pg is only used by the postgres
// backend and may be nil otherwise.
func Open(cfg config.ReferencesConfig, pg PGReferences) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("postgres references: %w", ErrBackendRequired)
		}
		return NewPostgres(pg), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func validate(identity string, embeddings []face.Embedding) error {
	if identity == "" {
		return ErrEmptyIdentity
	}
	if len(embeddings) == 0 {
		return ErrNoEmbeddings
	}
	for _, e := range embeddings {
		if len(e) == 0 {
			return ErrEmptyEmbedding
		}
	}
	return nil
}
