package studio

import (
	"context"
	"sync"
)

// StudioManager hands out the one Studio per user, materializing it from
// the durable store on first access.
type StudioManager struct {
	mu      sync.Mutex
	studios map[uint]*Studio
	deps    Deps
}

func NewManager(deps Deps) *StudioManager {
	return &StudioManager{
		studios: make(map[uint]*Studio),
		deps:    deps,
	}
}

func (m *StudioManager) StudioFor(ctx context.Context, userId uint) (*Studio, error) {
	m.mu.Lock()
	if existing, ok := m.studios[userId]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	// hydrate outside the manager lock, it hits the database
	fresh := NewStudio(userId, m.deps)
	if err := fresh.hydrate(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.studios[userId]; ok {
		// lost the race, the winner's hydration stands
		return existing, nil
	}
	m.studios[userId] = fresh
	return fresh, nil
}
