package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vitrine-shop/vitrine/internal/catalog"
)

const profileKey = "profile"

// localState is the on-disk document: a settings partition holding the
// profile under a fixed key and an items partition keyed by id.
type localState struct {
	Settings map[string]json.RawMessage `json:"settings"`
	Items    map[string]catalog.Item    `json:"items"`
}

// LocalBackend keeps the store in a single JSON document on this machine.
// Every operation re-reads the document, so several processes sharing the
// file see each other's writes; within one process operations are
// serialized.
type LocalBackend struct {
	filePath string
	mu       sync.Mutex
}

// NewLocalBackend opens (or prepares to create) the document at filePath.
func NewLocalBackend(filePath string) (*LocalBackend, error) {
	b := &LocalBackend{filePath: filePath}
	if _, err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *LocalBackend) Name() string { return EngineLocal }

func (b *LocalBackend) GetProfile(ctx context.Context) (*catalog.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := b.load()
	if err != nil {
		return nil, err
	}
	raw, ok := state.Settings[profileKey]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var p catalog.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func (b *LocalBackend) SaveProfile(ctx context.Context, p catalog.Profile) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := b.load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	state.Settings[profileKey] = raw
	return b.persistLocked(state)
}

func (b *LocalBackend) GetItems(ctx context.Context) ([]catalog.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := b.load()
	if err != nil {
		return nil, err
	}
	result := make([]catalog.Item, 0, len(state.Items))
	for id, item := range state.Items {
		if item.ID == "" {
			item.ID = id
		}
		result = append(result, item)
	}
	catalog.SortNewestFirst(result)
	return result, nil
}

func (b *LocalBackend) SaveItem(ctx context.Context, item catalog.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := b.load()
	if err != nil {
		return err
	}
	state.Items[item.ID] = item
	return b.persistLocked(state)
}

func (b *LocalBackend) DeleteItem(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, err := b.load()
	if err != nil {
		return err
	}
	if _, ok := state.Items[id]; !ok {
		return nil
	}
	delete(state.Items, id)
	return b.persistLocked(state)
}

func (b *LocalBackend) load() (localState, error) {
	state := localState{
		Settings: make(map[string]json.RawMessage),
		Items:    make(map[string]catalog.Item),
	}
	data, err := os.ReadFile(b.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode %s: %w", b.filePath, err)
	}
	if state.Settings == nil {
		state.Settings = make(map[string]json.RawMessage)
	}
	if state.Items == nil {
		state.Items = make(map[string]catalog.Item)
	}
	return state, nil
}

func (b *LocalBackend) persistLocked(state localState) error {
	if err := os.MkdirAll(filepath.Dir(b.filePath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := b.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, b.filePath)
}
