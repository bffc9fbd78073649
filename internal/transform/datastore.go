package transform

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"flowload/internal/core"
	"flowload/internal/log"
)

func dataStore(ctx core.Context) (core.DataStore, error) {
	ds, ok := ctx.DataStore()
	if !ok {
		return nil, ErrStoreUnavailable
	}
	return ds, nil
}

// storeData copies the context variables listed in config.values into the
// store entry config.key. With config.refresh it returns the merged entry,
// otherwise the input passes through.
func storeData(input any, cfg Config, ctx core.Context) (any, error) {
	ds, err := dataStore(ctx)
	if err != nil {
		return nil, err
	}
	key, err := cfg.Require("key")
	if err != nil {
		return nil, err
	}

	names := cfg.List("values")
	attrs := make(map[string]any, len(names))
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			continue
		}
		if v, ok := ctx[name]; ok {
			attrs[name] = v
		}
	}

	if len(attrs) > 0 {
		ds.Store(key, attrs)
		log.L().Info("stored data", log.StoreKey(key), zap.Int("store_size", ds.Count()))
	} else {
		log.L().Warn("no context values to store", log.StoreKey(key), zap.Any("values", names))
	}

	if cfg.Bool("refresh", false) {
		if entry, ok := ds.Get(key); ok && len(entry) > 0 {
			return entry, nil
		}
		log.L().Warn("nothing stored to refresh from", log.StoreKey(key))
	}
	return input, nil
}

// lookup returns config.field from the store entry config.store_key.
func lookup(_ any, cfg Config, ctx core.Context) (any, error) {
	ds, err := dataStore(ctx)
	if err != nil {
		return nil, err
	}
	key, err := cfg.Require("store_key")
	if err != nil {
		return nil, err
	}
	field, err := cfg.Require("field")
	if err != nil {
		return nil, err
	}

	entry, ok := ds.Get(key)
	if !ok || len(entry) == 0 {
		return nil, fmt.Errorf("no data in store for key %q, available keys: %v", key, ds.Identifiers())
	}
	v, ok := entry[field]
	if !ok {
		return nil, fmt.Errorf("field %q not found for key %q, available fields: %v", field, key, fieldNames(entry))
	}
	return v, nil
}

// lookupAll returns the whole store entry config.store_key.
func lookupAll(_ any, cfg Config, ctx core.Context) (any, error) {
	ds, err := dataStore(ctx)
	if err != nil {
		return nil, err
	}
	key, err := cfg.Require("store_key")
	if err != nil {
		return nil, err
	}
	entry, ok := ds.Get(key)
	if !ok || len(entry) == 0 {
		return nil, fmt.Errorf("no data in store for key %q", key)
	}
	return entry, nil
}

func getStoreKeys(_ any, _ Config, ctx core.Context) (any, error) {
	ds, err := dataStore(ctx)
	if err != nil {
		return nil, err
	}
	keys := ds.Identifiers()
	log.L().Debug("read store keys", zap.Int("count", len(keys)))
	return keys, nil
}

func fieldNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
