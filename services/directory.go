package services

import (
	"context"
	"errors"
	"sync"

	"tripsplit-backend/models"
)

var ErrUserNotFound = errors.New("user not found")

// Directory resolves participant ids to display metadata.
type Directory interface {
	Lookup(ctx context.Context, userID string) (models.Profile, error)
}

// StaticDirectory is an in-memory directory, used by the memory backend and tests.
type StaticDirectory struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

func NewStaticDirectory(profiles ...models.Profile) *StaticDirectory {
	d := &StaticDirectory{profiles: make(map[string]models.Profile)}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

func (d *StaticDirectory) Lookup(_ context.Context, userID string) (models.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[userID]
	if !ok {
		return models.Profile{}, ErrUserNotFound
	}
	return p, nil
}

func (d *StaticDirectory) Set(p models.Profile) {
	d.mu.Lock()
	d.profiles[p.ID] = p
	d.mu.Unlock()
}
