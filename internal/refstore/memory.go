package refstore

import (
	"context"
	"sync"

	"github.com/your-org/facecheck/internal/face"
)

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	refs map[string][]face.Embedding
}

func NewMemory() *Memory {
	return &Memory{refs: make(map[string][]face.Embedding)}
}

func (m *Memory) Insert(_ context.Context, identity string, embeddings []face.Embedding) error {
	if err := validate(identity, embeddings); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range embeddings {
		m.refs[identity] = append(m.refs[identity], e.Clone())
	}
	return nil
}

func (m *Memory) ByIdentity(_ context.Context, identity string) ([]face.Embedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]face.Embedding, 0, len(m.refs[identity]))
	for _, e := range m.refs[identity] {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (m *Memory) All(_ context.Context) ([]face.Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]face.Reference, 0, len(m.refs))
	for id, embs := range m.refs {
		ref := face.Reference{Identity: id, Embeddings: make([]face.Embedding, len(embs))}
		for i, e := range embs {
			ref.Embeddings[i] = e.Clone()
		}
		out = append(out, ref)
	}
	return out, nil
}

func (m *Memory) DeleteByIdentity(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refs, identity)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = make(map[string][]face.Embedding)
	return nil
}

func (m *Memory) Count(_ context.Context, identity string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs[identity]), nil
}

func (m *Memory) Close() error { return nil }
