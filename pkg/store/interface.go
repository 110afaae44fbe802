package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcclellann/kasbon/pkg/migrate"
	"github.com/mcclellann/kasbon/pkg/models"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("state not found")

// Storage persists the whole application state as one JSON blob. Every
// Save replaces the stored blob; there are no partial updates.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// LoadState loads and migrates the stored snapshot. It returns ErrNotFound
// when the store is empty.
func LoadState(ctx context.Context, s Storage) (models.State, error) {
	data, err := s.Load(ctx)
	if err != nil {
		return models.State{}, err
	}
	state, err := migrate.Migrate(data)
	if err != nil {
		return models.State{}, fmt.Errorf("failed to migrate stored state: %w", err)
	}
	return state, nil
}
