package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
)

func newLocalFacade(t *testing.T) *Facade {
	t.Helper()
	b, err := NewLocalBackend(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	return NewFacade(b, nil)
}

// failingBackend fails every call with err.
type failingBackend struct{ err error }

func (f failingBackend) Name() string { return "failing" }
func (f failingBackend) GetProfile(context.Context) (*catalog.Profile, error) {
	return nil, f.err
}
func (f failingBackend) SaveProfile(context.Context, catalog.Profile) error { return f.err }
func (f failingBackend) GetItems(context.Context) ([]catalog.Item, error) { return nil, f.err }
func (f failingBackend) SaveItem(context.Context, catalog.Item) error { return f.err }
func (f failingBackend) DeleteItem(context.Context, string) error { return f.err }

func TestFacade_GetItemsResolvesStatus(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)

	// Written straight to the backend, as an older client would.
	require.NoError(t, b.SaveItem(ctx, catalog.Item{ID: "old", Type: catalog.ItemTypeCoin, CreatedAt: 1}))

	items, err := NewFacade(b, nil).GetItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, catalog.StatusAvailable, items[0].Status)
}

func TestFacade_SaveItemValidation(t *testing.T) {
	ctx := context.Background()
	f := newLocalFacade(t)

	err := f.SaveItem(ctx, catalog.Item{Type: catalog.ItemTypeCoin})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "missing id: %v", err)

	err = f.SaveItem(ctx, catalog.Item{ID: "x", Type: "BANKNOTE"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "bad type: %v", err)

	err = f.DeleteItem(ctx, " ")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "blank delete id: %v", err)
}

func TestFacade_SaveItemStampsCreatedAt(t *testing.T) {
	ctx := context.Background()
	f := newLocalFacade(t)

	require.NoError(t, f.SaveItem(ctx, catalog.Item{ID: "x", Type: catalog.ItemTypeStamp}))

	item, ok, err := f.FindItem(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotZero(t, item.CreatedAt)
	assert.Equal(t, catalog.StatusAvailable, item.Status)
}

func TestFacade_ToggleStatusTwiceRestores(t *testing.T) {
	ctx := context.Background()
	f := newLocalFacade(t)
	require.NoError(t, f.SaveItem(ctx, catalog.Item{ID: "x", Type: catalog.ItemTypeCoin, CreatedAt: 5}))

	sold, err := f.ToggleStatus(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusSold, sold.Status)

	back, err := f.ToggleStatus(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusAvailable, back.Status)

	stored, ok, err := f.FindItem(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, catalog.StatusAvailable, stored.Status)
	assert.Equal(t, int64(5), stored.CreatedAt)
}

func TestFacade_ToggleStatusUnknown(t *testing.T) {
	_, err := newLocalFacade(t).ToggleStatus(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestFacade_BackendFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	cause := fmt.Errorf("connection refused")
	f := NewFacade(failingBackend{err: cause}, nil)

	checks := map[string]error{}
	_, checks["get profile"] = f.GetProfile(ctx)
	checks["save profile"] = f.SaveProfile(ctx, catalog.Profile{})
	_, checks["get items"] = f.GetItems(ctx)
	checks["save item"] = f.SaveItem(ctx, catalog.Item{ID: "x", Type: catalog.ItemTypeCoin})
	checks["delete item"] = f.DeleteItem(ctx, "x")

	for op, err := range checks {
		assert.True(t, errors.Is(err, errors.ErrStorageFailure), "%s: %v", op, err)
		assert.True(t, stderrors.Is(err, cause), "%s should wrap cause", op)
	}
}

func TestFacade_ClientErrorsPassThrough(t *testing.T) {
	f := NewFacade(failingBackend{err: errors.NewUnauthorized("bad token")}, nil)

	_, err := f.GetItems(context.Background())
	assert.True(t, errors.Is(err, errors.ErrUnauthorized), "got %v", err)
}

func TestRemoteBackend_ErrorMessageAndToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL","message":"database is locked","status":500}}`))
	}))
	defer srv.Close()

	b := NewRemoteBackend(srv.URL+"/", "s3cret", srv.Client())
	_, err := b.GetItems(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, "Bearer s3cret", gotAuth)
}

func TestRemoteBackend_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRemoteBackend(srv.URL, "", srv.Client()).SaveItem(context.Background(), catalog.Item{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestRemoteBackend_DeleteEscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	require.NoError(t, NewRemoteBackend(srv.URL, "", srv.Client()).DeleteItem(context.Background(), "a/b"))
	assert.Equal(t, "/items/a%2Fb", gotPath)
}

func TestRemoteBackend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewFacade(NewRemoteBackend(url, "", nil), nil)
	_, err := f.GetProfile(context.Background())
	assert.True(t, errors.Is(err, errors.ErrStorageFailure), "got %v", err)
}

func TestRemoteBackend_ClientErrorKeepsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"invalid API token","status":401}}`))
	}))
	defer srv.Close()

	f := NewFacade(NewRemoteBackend(srv.URL, "wrong", srv.Client()), nil)
	_, err := f.GetItems(context.Background())
	assert.True(t, errors.Is(err, errors.ErrUnauthorized), "got %v", err)
}
