package storage

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/metrics"
)

// Facade is the single entry point the rest of the application uses for
// persistence. It holds no cache: every read goes to the backend.
//
// Concurrent writers are last-write-wins. Two admin sessions editing the
// same item will silently overwrite each other.
type Facade struct {
	backend Backend
	logger  *slog.Logger
}

// NewFacade wraps backend. A nil logger discards logs.
func NewFacade(backend Backend, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Facade{backend: backend, logger: logger}
}

// Engine returns the name of the underlying backend.
func (f *Facade) Engine() string {
	return f.backend.Name()
}

// GetProfile returns the store profile, or nil if setup never ran.
func (f *Facade) GetProfile(ctx context.Context) (*catalog.Profile, error) {
	p, err := f.backend.GetProfile(ctx)
	if err != nil {
		return nil, f.fail("get profile", err)
	}
	return p, nil
}

// SaveProfile replaces the store profile.
func (f *Facade) SaveProfile(ctx context.Context, p catalog.Profile) error {
	if err := f.backend.SaveProfile(ctx, p); err != nil {
		return f.fail("save profile", err)
	}
	f.logger.Info("profile saved", "backend", f.backend.Name())
	return nil
}

// GetItems returns all items newest first, each with a defined status.
func (f *Facade) GetItems(ctx context.Context) ([]catalog.Item, error) {
	items, err := f.backend.GetItems(ctx)
	if err != nil {
		return nil, f.fail("get items", err)
	}
	for i := range items {
		if !items[i].Type.Valid() {
			f.logger.Warn("item has unknown type", "id", items[i].ID, "backend", f.backend.Name())
		}
		items[i] = items[i].Normalized()
	}
	return items, nil
}

// FindItem looks an item up by id. Backends that can fetch a single record
// do so; the others are searched in a fresh listing.
func (f *Facade) FindItem(ctx context.Context, id string) (catalog.Item, bool, error) {
	if finder, ok := f.backend.(ItemFinder); ok {
		item, found, err := finder.FindItem(ctx, id)
		if err != nil {
			return catalog.Item{}, false, f.fail("find item", err)
		}
		if !found {
			return catalog.Item{}, false, nil
		}
		return item.Normalized(), true, nil
	}

	items, err := f.GetItems(ctx)
	if err != nil {
		return catalog.Item{}, false, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, true, nil
		}
	}
	return catalog.Item{}, false, nil
}

// CountItems returns the number of stored items.
func (f *Facade) CountItems(ctx context.Context) (int, error) {
	if counter, ok := f.backend.(ItemCounter); ok {
		n, err := counter.CountItems(ctx)
		if err != nil {
			return 0, f.fail("count items", err)
		}
		return n, nil
	}
	items, err := f.GetItems(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// SaveItem inserts or fully replaces an item.
func (f *Facade) SaveItem(ctx context.Context, item catalog.Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return errors.NewInvalidRequest("item id is required")
	}
	if !item.Type.Valid() {
		return errors.NewInvalidRequest("item type must be COIN or STAMP")
	}
	item = item.Normalized()
	if item.CreatedAt == 0 {
		item.CreatedAt = catalog.NowMillis()
	}

	if err := f.backend.SaveItem(ctx, item); err != nil {
		return f.fail("save item", err)
	}
	f.logger.Info("item saved", "id", item.ID, "status", item.Status, "backend", f.backend.Name())
	return nil
}

// DeleteItem removes an item. Deleting an unknown id succeeds.
func (f *Facade) DeleteItem(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.NewInvalidRequest("item id is required")
	}
	if err := f.backend.DeleteItem(ctx, id); err != nil {
		return f.fail("delete item", err)
	}
	f.logger.Info("item deleted", "id", id, "backend", f.backend.Name())
	return nil
}

// ToggleStatus flips an item between available and sold and returns the
// stored result.
func (f *Facade) ToggleStatus(ctx context.Context, id string) (catalog.Item, error) {
	item, ok, err := f.FindItem(ctx, id)
	if err != nil {
		return catalog.Item{}, err
	}
	if !ok {
		return catalog.Item{}, errors.NewNotFound(id)
	}
	item.Status = item.Status.Toggle()
	if err := f.SaveItem(ctx, item); err != nil {
		return catalog.Item{}, err
	}
	return item, nil
}

// fail converts a backend error into a storage failure, keeping client
// errors (bad input, missing item, bad token) as they are.
func (f *Facade) fail(op string, err error) error {
	if vErr, ok := errors.As(err); ok && vErr.Status < 500 {
		return vErr
	}
	metrics.RecordStorageFailure(f.backend.Name(), op)
	f.logger.Error("storage operation failed", "op", op, "backend", f.backend.Name(), "error", err)
	return errors.NewStorageFailure(op, err)
}
