// Package schema resolves document schemas and applies them to documents:
// read masking and casting, write validation and the meta views clients use
// to render forms.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"docgate/internal/core/cache"
	"docgate/pkg/logger"
)

// ErrNotFound is returned when a version, schema or app definition does not
// exist.
var ErrNotFound = errors.New("schema not found")

// Source is the schema storage collaborator.
type Source interface {
	// Settings returns the application settings object. It carries at least
	// defaultVersion and defaultAppUuid.
	Settings(ctx context.Context) (map[string]any, error)
	// ListSchemas returns the schema names stored for version.
	ListSchemas(ctx context.Context, version string) ([]string, error)
	// Schema returns the raw Avro schema of name at version.
	Schema(ctx context.Context, version, name string) ([]byte, error)
	// App returns the application definition for alias at version in lang.
	App(ctx context.Context, alias, version, lang string) (json.RawMessage, error)
}

// Caches are the bounded caches a Registry reads through. Nil members
// disable caching for that lookup.
type Caches struct {
	Settings    cache.Cache[map[string]any]
	Lists       cache.Cache[[]string]
	Definitions cache.Cache[*Definition]
	Apps        cache.Cache[json.RawMessage]
}

const settingsKey = "settings"

// Registry resolves and caches schemas. Safe for concurrent use.
type Registry struct {
	source Source
	caches Caches
	ttl    time.Duration

	// alias is written once, after the first successful settings load.
	alias   atomic.Pointer[string]
	aliasMu sync.Mutex
}

// NewRegistry creates a Registry over source.
func NewRegistry(source Source, caches Caches, ttl time.Duration) *Registry {
	if caches.Settings == nil {
		caches.Settings = cache.Passthrough[map[string]any]{}
	}
	if caches.Lists == nil {
		caches.Lists = cache.Passthrough[[]string]{}
	}
	if caches.Definitions == nil {
		caches.Definitions = cache.Passthrough[*Definition]{}
	}
	if caches.Apps == nil {
		caches.Apps = cache.Passthrough[json.RawMessage]{}
	}
	return &Registry{source: source, caches: caches, ttl: ttl}
}

// Settings returns the application settings.
func (r *Registry) Settings(ctx context.Context) (map[string]any, error) {
	return r.caches.Settings.Fetch(settingsKey, r.ttl, func() (map[string]any, error) {
		return r.source.Settings(ctx)
	})
}

// DefaultVersion returns the application's current schema version.
func (r *Registry) DefaultVersion(ctx context.Context) (string, error) {
	return r.setting(ctx, "defaultVersion")
}

// DefaultAppAlias returns the default application uuid. It is resolved on
// first use and then fixed for the life of the process; failed resolutions
// are retried on the next call.
func (r *Registry) DefaultAppAlias(ctx context.Context) (string, error) {
	if alias := r.alias.Load(); alias != nil {
		return *alias, nil
	}

	r.aliasMu.Lock()
	defer r.aliasMu.Unlock()
	if alias := r.alias.Load(); alias != nil {
		return *alias, nil
	}

	alias, err := r.setting(ctx, "defaultAppUuid")
	if err != nil {
		return "", err
	}
	r.alias.Store(&alias)
	return alias, nil
}

func (r *Registry) setting(ctx context.Context, key string) (string, error) {
	settings, err := r.Settings(ctx)
	if err != nil {
		return "", err
	}
	v, _ := settings[key].(string)
	if v == "" {
		return "", fmt.Errorf("application settings have no %s: %w", key, ErrNotFound)
	}
	return v, nil
}

// ListSchemas returns the sorted schema names of version.
func (r *Registry) ListSchemas(ctx context.Context, version string) ([]string, error) {
	return r.caches.Lists.Fetch(version, r.ttl, func() ([]string, error) {
		names, err := r.source.ListSchemas(ctx, version)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("version %s: %w", version, ErrNotFound)
		}
		sorted := append([]string(nil), names...)
		sort.Strings(sorted)
		return sorted, nil
	})
}

// Definition returns the parsed schema of name at version.
func (r *Registry) Definition(ctx context.Context, version, name string) (*Definition, error) {
	return r.caches.Definitions.Fetch(definitionKey(version, name), r.ttl, func() (*Definition, error) {
		raw, err := r.source.Schema(ctx, version, name)
		if err != nil {
			return nil, err
		}
		return ParseDefinition(version, name, raw)
	})
}

// Current returns the schema of name at the default version.
func (r *Registry) Current(ctx context.Context, name string) (*Definition, error) {
	version, err := r.DefaultVersion(ctx)
	if err != nil {
		return nil, err
	}
	return r.Definition(ctx, version, name)
}

// Resolve returns the schema of name at version, falling back to the
// default version when version is empty or unknown.
func (r *Registry) Resolve(ctx context.Context, version, name string) (*Definition, error) {
	if version != "" {
		def, err := r.Definition(ctx, version, name)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return r.Current(ctx, name)
}

// App returns the application definition of the default app at version in
// lang.
func (r *Registry) App(ctx context.Context, version, lang string) (json.RawMessage, error) {
	alias, err := r.DefaultAppAlias(ctx)
	if err != nil {
		return nil, err
	}
	return r.caches.Apps.Fetch(alias+"/"+version+"/"+lang, r.ttl, func() (json.RawMessage, error) {
		return r.source.App(ctx, alias, version, lang)
	})
}

// Transform is applied to every record before it leaves the service.
type Transform func(doc map[string]any) (map[string]any, error)

// ReadTransform returns the read transform for documents of name: banned
// internal fields are stripped, then each field is cast by the schema
// version that last modified the document. It fails with ErrNotFound when
// name has no schema at the default version.
func (r *Registry) ReadTransform(ctx context.Context, name string) (Transform, error) {
	current, err := r.Current(ctx, name)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	byVersion := map[string]*Definition{current.Version: current}

	return func(doc map[string]any) (map[string]any, error) {
		version, _ := doc["version_modified"].(string)

		mu.Lock()
		def, ok := byVersion[version]
		mu.Unlock()
		if !ok {
			resolved, err := r.Resolve(ctx, version, name)
			if err != nil {
				return nil, err
			}
			def = resolved
			if def.Version != version {
				logger.Debug(ctx, "schema version unknown, casting with default",
					"schema", name, "version", version, "default", def.Version)
			}
			mu.Lock()
			byVersion[version] = def
			mu.Unlock()
		}
		return def.Cast(MaskRead.Strip(doc)), nil
	}, nil
}

// Invalidate drops the cached schema of name at version and the version's
// listing. An empty name drops every schema of the version.
func (r *Registry) Invalidate(version, name string) {
	r.caches.Lists.Delete(version)
	if name == "" {
		r.caches.Definitions.DeletePrefix(version + "/")
		return
	}
	r.caches.Definitions.Delete(definitionKey(version, name))
}

// InvalidateSettings drops the cached settings. The app alias stays fixed.
func (r *Registry) InvalidateSettings() {
	r.caches.Settings.Delete(settingsKey)
}

func definitionKey(version, name string) string {
	return version + "/" + name
}
