// Package storage persists the store profile and catalog items behind one
// capability interface with interchangeable backends.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/config"
)

const (
	EngineLocal  = config.BackendLocal
	EngineRemote = config.BackendRemote
	EngineSQLite = "sqlite"
)

// Backend is the persistence capability. Implementations are chosen once at
// startup; callers never branch on which one they hold.
type Backend interface {
	// Name identifies the engine for logs.
	Name() string

	// GetProfile returns nil, nil when no profile has been saved.
	GetProfile(ctx context.Context) (*catalog.Profile, error)

	// SaveProfile fully replaces the singleton profile.
	SaveProfile(ctx context.Context, p catalog.Profile) error

	// GetItems returns every item, newest CreatedAt first.
	GetItems(ctx context.Context) ([]catalog.Item, error)

	// SaveItem inserts the item or fully replaces the one with the same id.
	SaveItem(ctx context.Context, item catalog.Item) error

	// DeleteItem removes the item; unknown ids are not an error.
	DeleteItem(ctx context.Context, id string) error
}

// ItemFinder is implemented by backends that fetch one item without
// listing the catalog.
type ItemFinder interface {
	// FindItem reports false when no item has the id.
	FindItem(ctx context.Context, id string) (catalog.Item, bool, error)
}

// ItemCounter is implemented by backends that count items without loading
// them.
type ItemCounter interface {
	CountItems(ctx context.Context) (int, error)
}

// Open builds the backend selected by cfg.Backend.
func Open(cfg *config.Config, baseDir string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case EngineLocal:
		return NewLocalBackend(cfg.LocalStorePath(baseDir))
	case EngineRemote:
		return NewRemoteBackend(cfg.RemoteBaseURL(), cfg.APIToken, nil), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
