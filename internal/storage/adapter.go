// internal/storage/adapter.go
//
// Persistence strategies for form values.
//
// Context
// -------
// A form declares how its values are stored:
//
//	options    – one site option per field, name = Prefix + id + Suffix.
//	post_meta  – one meta row per field on a given entity.
//	settings   – the whole form as one blob option named after the group;
//	             the group schema is registered the first time it is saved.
//	custom     – caller-supplied load and save functions.
//
// The per-key adapters attempt every key on Save and return the failures
// joined with errors.Join.  Partial writes are possible and are not rolled
// back.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Adapter loads and saves one form's values keyed by field id.
type Adapter interface {
	Load(ctx context.Context, ids []string) (map[string]any, error)
	Save(ctx context.Context, values map[string]any) error
}

// Strategy names as they appear in form definitions.
const (
	StrategyOptions  = "options"
	StrategyPostMeta = "post_meta"
	StrategySettings = "settings"
	StrategyCustom   = "custom"
)

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

/*──────────────────────────────── options ────────────────────────────────*/

// Options stores each field as a named site option.
type Options struct {
	Store  KV
	Prefix string
	Suffix string
}

func (a *Options) name(id string) string { return a.Prefix + id + a.Suffix }

func (a *Options) Load(ctx context.Context, ids []string) (map[string]any, error) {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = a.name(id)
	}
	raw, err := a.Store.GetOptions(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for i, id := range ids {
		if v, ok := raw[names[i]]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (a *Options) Save(ctx context.Context, values map[string]any) error {
	var errs []error
	for _, id := range sortedKeys(values) {
		if err := a.Store.SetOption(ctx, a.name(id), values[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

/*─────────────────────────────── post_meta ───────────────────────────────*/

// PostMeta stores each field as meta on EntityID.  KeyPrefix is optional.
type PostMeta struct {
	Store     MetaStore
	EntityID  int64
	KeyPrefix string
}

func (a *PostMeta) Load(ctx context.Context, ids []string) (map[string]any, error) {
	if a.EntityID <= 0 {
		return map[string]any{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = a.KeyPrefix + id
	}
	raw, err := a.Store.GetMetas(ctx, a.EntityID, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for i, id := range ids {
		if v, ok := raw[keys[i]]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (a *PostMeta) Save(ctx context.Context, values map[string]any) error {
	if a.EntityID <= 0 {
		return fmt.Errorf("post_meta: no entity id")
	}
	var errs []error
	for _, id := range sortedKeys(values) {
		if err := a.Store.SetMeta(ctx, a.EntityID, a.KeyPrefix+id, values[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

/*──────────────────────────────── settings ───────────────────────────────*/

// Settings stores the whole form as one blob option named Group.  The group
// is registered with its field names the first time it is saved; concurrent
// first saves share one registration.  Save overlays values onto the stored
// blob, so keys absent from values keep their stored value.
type Settings struct {
	Store    KV
	Registry GroupRegistrar
	Group    string

	sf   singleflight.Group
	seen sync.Map // field id → struct{}
}

func (a *Settings) blob(ctx context.Context) (map[string]any, error) {
	raw, err := a.Store.GetOptions(ctx, []string{a.Group})
	if err != nil {
		return nil, err
	}
	m, _ := raw[a.Group].(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func (a *Settings) Load(ctx context.Context, ids []string) (map[string]any, error) {
	m, err := a.blob(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(ids))
	for _, id := range ids {
		if v, ok := m[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (a *Settings) Save(ctx context.Context, values map[string]any) error {
	if a.Group == "" {
		return errors.New("settings: no group")
	}
	if err := a.register(ctx, sortedKeys(values)); err != nil {
		return fmt.Errorf("settings %s: %w", a.Group, err)
	}
	m, err := a.blob(ctx)
	if err != nil {
		return fmt.Errorf("settings %s: %w", a.Group, err)
	}
	merged := make(map[string]any, len(m)+len(values))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return a.Store.SetOption(ctx, a.Group, merged)
}

// register loops because a shared singleflight call may have carried another
// caller's names rather than ours.
func (a *Settings) register(ctx context.Context, names []string) error {
	if a.Registry == nil {
		return nil
	}
	for {
		var missing []string
		for _, n := range names {
			if _, ok := a.seen.Load(n); !ok {
				missing = append(missing, n)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		_, err, _ := a.sf.Do(a.Group, func() (any, error) {
			if err := a.Registry.RegisterGroup(ctx, a.Group, missing); err != nil {
				return nil, err
			}
			for _, n := range missing {
				a.seen.Store(n, struct{}{})
			}
			return nil, nil
		})
		if err != nil {
			return err
		}
	}
}

/*───────────────────────────────── custom ────────────────────────────────*/

// Custom delegates to caller functions.  A nil LoadFunc loads nothing; a
// nil SaveFunc is a configuration error reported on Save.
type Custom struct {
	LoadFunc func(ctx context.Context, ids []string) (map[string]any, error)
	SaveFunc func(ctx context.Context, values map[string]any) error
}

func (a *Custom) Load(ctx context.Context, ids []string) (map[string]any, error) {
	if a.LoadFunc == nil {
		return map[string]any{}, nil
	}
	return a.LoadFunc(ctx, ids)
}

func (a *Custom) Save(ctx context.Context, values map[string]any) error {
	if a.SaveFunc == nil {
		return errors.New("custom: no save function")
	}
	return a.SaveFunc(ctx, values)
}
