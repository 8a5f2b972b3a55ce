package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/infrastructure/cache"
)

type fakeSource struct {
	mu            sync.Mutex
	settings      map[string]any
	settingsErr   error
	settingsCalls int
	schemas       map[string]map[string]string
	schemaCalls   int
	apps          map[string]json.RawMessage
}

func (f *fakeSource) Settings(context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settingsCalls++
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	return f.settings, nil
}

func (f *fakeSource) ListSchemas(_ context.Context, version string) ([]string, error) {
	var names []string
	for name := range f.schemas[version] {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeSource) Schema(_ context.Context, version, name string) ([]byte, error) {
	f.mu.Lock()
	f.schemaCalls++
	f.mu.Unlock()
	raw, ok := f.schemas[version][name]
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", name, version, ErrNotFound)
	}
	return []byte(raw), nil
}

func (f *fakeSource) App(_ context.Context, alias, version, lang string) (json.RawMessage, error) {
	raw, ok := f.apps[alias+"/"+version+"/"+lang]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

func newSource() *fakeSource {
	return &fakeSource{
		settings: map[string]any{"defaultVersion": "0.0.42", "defaultAppUuid": "app-1"},
		schemas: map[string]map[string]string{
			"0.0.42": {"batch": batchSchema, "stock": `{"type":"record","name":"stock","fields":[{"name":"uuid","type":"string"}]}`},
			"0.0.41": {"batch": `{"type":"record","name":"batch","fields":[{"name":"uuid","type":"string"},{"name":"quantity","type":"string"}]}`},
		},
		apps: map[string]json.RawMessage{"app-1/0.0.42/en": json.RawMessage(`{"title":"LoMIS"}`)},
	}
}

func newRegistry(t *testing.T, src Source) *Registry {
	t.Helper()
	defs := cache.NewLRU[*Definition]("test_definitions", 32)
	settings := cache.NewLRU[map[string]any]("test_settings", 4)
	t.Cleanup(func() {
		defs.Stop()
		settings.Stop()
	})
	return NewRegistry(src, Caches{Definitions: defs, Settings: settings}, time.Minute)
}

func TestRegistry_DefaultAppAliasResolvedOnce(t *testing.T) {
	src := newSource()
	src.settingsErr = errors.New("unavailable")
	r := NewRegistry(src, Caches{}, time.Minute)
	ctx := context.Background()

	_, err := r.DefaultAppAlias(ctx)
	require.Error(t, err, "failures are not remembered")

	src.settingsErr = nil
	alias, err := r.DefaultAppAlias(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app-1", alias)

	src.settings = map[string]any{"defaultAppUuid": "app-2"}
	calls := src.settingsCalls
	alias, err = r.DefaultAppAlias(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app-1", alias)
	assert.Equal(t, calls, src.settingsCalls)
}

func TestRegistry_DefaultAppAliasConcurrent(t *testing.T) {
	r := NewRegistry(newSource(), Caches{}, time.Minute)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.DefaultAppAlias(context.Background())
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, "app-1", got)
	}
}

func TestRegistry_ListSchemasSorted(t *testing.T) {
	r := newRegistry(t, newSource())
	names, err := r.ListSchemas(context.Background(), "0.0.42")
	require.NoError(t, err)
	assert.Equal(t, []string{"batch", "stock"}, names)

	_, err = r.ListSchemas(context.Background(), "9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_DefinitionCached(t *testing.T) {
	src := newSource()
	r := newRegistry(t, src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Definition(ctx, "0.0.42", "batch")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.schemaCalls)

	r.Invalidate("0.0.42", "batch")
	_, err := r.Definition(ctx, "0.0.42", "batch")
	require.NoError(t, err)
	assert.Equal(t, 2, src.schemaCalls)
}

func TestRegistry_ReadTransform(t *testing.T) {
	r := newRegistry(t, newSource())
	ctx := context.Background()

	_, err := r.ReadTransform(ctx, "missing-type")
	require.ErrorIs(t, err, ErrNotFound)

	transform, err := r.ReadTransform(ctx, "batch")
	require.NoError(t, err)

	current, err := transform(map[string]any{
		"uuid": "id1", "quantity": "1.5", "email": "x@example.org", "version_modified": "0.0.42",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"uuid": "id1", "quantity": 1.5, "version_modified": "0.0.42"}, current)

	old, err := transform(map[string]any{"uuid": "id2", "quantity": 7.0, "version_modified": "0.0.41"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"uuid": "id2", "quantity": "7"}, old, "older schema types quantity as string")

	unknown, err := transform(map[string]any{"uuid": "id3", "quantity": "2", "version_modified": "0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, unknown["quantity"], "unknown versions fall back to the default schema")
}

func TestRegistry_App(t *testing.T) {
	r := newRegistry(t, newSource())
	app, err := r.App(context.Background(), "0.0.42", "en")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"LoMIS"}`, string(app))

	_, err = r.App(context.Background(), "0.0.42", "fr")
	assert.ErrorIs(t, err, ErrNotFound)
}
