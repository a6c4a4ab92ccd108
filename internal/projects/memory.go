package projects

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps copies of projects so callers cannot mutate stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]Project
}

func NewMemoryStore(seed ...*Project) *MemoryStore {
	s := &MemoryStore{projects: make(map[string]Project)}
	for _, p := range seed {
		s.projects[p.ID] = *p
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Save(ctx context.Context, project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects[project.ID] = *project
	return nil
}

func (s *MemoryStore) ListWithTokens(ctx context.Context) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Project
	for _, p := range s.projects {
		if p.HasToken() {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
