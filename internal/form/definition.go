// internal/form/definition.go
//
// Adept – Forms subsystem: form registry and YAML definitions.
//
// Context
//   Forms come from two places: YAML files under the configured form
//   directories, and Go code using the fluent builder.  Both paths end in
//   prepare, which fills defaults and enforces the structural rules, and
//   both land in one in-memory registry keyed by form id.  Handlers and the
//   renderer fetch forms from the registry, so there is a single source of
//   truth.
//
// Workflow
//   •  LoadFormDef parses a single YAML file into a *Form and prepares it.
//   •  RegisterForms walks directories in precedence order (first wins) and
//      registers every “*.yaml” it finds.
//   •  GetForm offers read-only access by id.
//
// Style
//   Comments follow Adept’s guide: full sentences, two spaces after periods,
//   Oxford commas, and clear roles.  Helper comments use short noun phrases.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/adept-forms/internal/storage"
)

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Form)
)

// Register adds or replaces form.  The form must already be prepared.
func Register(f *Form) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f.ID] = f
}

// GetForm returns a registered form by id.
func GetForm(id string) (*Form, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[id]
	return f, ok
}

// FormIDs lists registered ids, sorted.
func FormIDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// LoadFormDef parses one YAML file and returns a prepared Form.  It never
// touches the registry.
func LoadFormDef(path string, kinds *Registry) (*Form, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	var f Form
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", path, err)
	}
	if err := prepare(&f, kinds); err != nil {
		return nil, fmt.Errorf("form definition %s: %w", path, err)
	}
	return &f, nil
}

// RegisterForms loads every “*.yaml” under dirs.  Directories are ordered
// by precedence: a form id found in an earlier directory shadows the same
// id in later ones.  Missing directories are skipped.
func RegisterForms(dirs []string, kinds *Registry) error {
	if len(dirs) == 0 {
		return errors.New("RegisterForms: no directories provided")
	}
	seen := make(map[string]string)
	for _, base := range dirs {
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !(strings.HasSuffix(d.Name(), ".yaml") || strings.HasSuffix(d.Name(), ".yml")) {
				return nil
			}
			f, err := LoadFormDef(path, kinds)
			if err != nil {
				return err
			}
			if prev, dup := seen[f.ID]; dup {
				zap.S().Debugw("form shadowed", "form", f.ID, "by", prev, "skipped", path)
				return nil
			}
			seen[f.ID] = path
			Register(f)
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Storage binding
// -----------------------------------------------------------------------------

// Stores are the backends adapters are built over.
type Stores struct {
	KV     storage.KV
	Meta   storage.MetaStore
	Groups storage.GroupRegistrar
}

// Bind sets f.Adapter from f.Storage unless an adapter is already set.  The
// custom strategy cannot be built from configuration and must be supplied
// by code.
func (s Stores) Bind(f *Form) error {
	if f.Adapter != nil {
		return nil
	}
	cfg := f.Storage
	switch cfg.Strategy {
	case "", storage.StrategyOptions:
		if s.KV == nil {
			return fmt.Errorf("form %s: options storage needs a KV store", f.ID)
		}
		f.Adapter = &storage.Options{Store: s.KV, Prefix: cfg.Prefix, Suffix: cfg.Suffix}
	case storage.StrategyPostMeta:
		if s.Meta == nil {
			return fmt.Errorf("form %s: post_meta storage needs a meta store", f.ID)
		}
		f.Adapter = &storage.PostMeta{Store: s.Meta, EntityID: cfg.EntityID, KeyPrefix: cfg.Prefix}
	case storage.StrategySettings:
		if s.KV == nil {
			return fmt.Errorf("form %s: settings storage needs a KV store", f.ID)
		}
		group := cfg.Group
		if group == "" {
			group = f.ID
		}
		f.Adapter = &storage.Settings{Store: s.KV, Registry: s.Groups, Group: group}
	case storage.StrategyCustom:
		return fmt.Errorf("form %s: custom storage must be set in code", f.ID)
	default:
		return fmt.Errorf("form %s: unknown storage strategy %q", f.ID, cfg.Strategy)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

// prepare fills defaults and checks structure.  All problems are reported
// together.
func prepare(f *Form, kinds *Registry) error {
	if kinds == nil {
		kinds = DefaultKinds()
	}
	if f.ID == "" {
		return errors.New("missing required 'id'")
	}
	if strings.ContainsAny(f.ID, "[]") {
		return fmt.Errorf("form id %q must not contain brackets", f.ID)
	}
	f.applyDefaults(kinds)

	var errs []error
	if f.Layout != LayoutTable && f.Layout != LayoutDiv {
		errs = append(errs, fmt.Errorf("unknown layout %q", f.Layout))
	}
	if len(f.Fields) == 0 {
		errs = append(errs, errors.New("no fields"))
	}

	ids := make(map[string]bool, len(f.Fields))
	for _, fld := range f.Fields {
		if ids[fld.ID] {
			errs = append(errs, fmt.Errorf("duplicate field id %q", fld.ID))
		}
		ids[fld.ID] = true
	}
	for _, fld := range f.Fields {
		if err := validateField(fld, kinds, ids); err != nil {
			errs = append(errs, err)
		}
	}
	for _, ac := range f.Actions {
		if !knownActions[ac.Type] {
			zap.S().Warnw("unrecognized form action", "form", f.ID, "action", ac.Type)
		}
	}
	return errors.Join(errs...)
}

var validOperators = map[string]bool{
	OpEquals: true, OpNotEquals: true, OpIsChecked: true, OpNotChecked: true,
	OpContains: true, OpGreaterThan: true, OpLessThan: true,
}

// validateField confirms that essential attributes are present and sane.
func validateField(f *Field, kinds *Registry, ids map[string]bool) error {
	if f.ID == "" {
		return errors.New("field missing 'id'")
	}
	if strings.Contains(f.ID, RepeatSep) || strings.ContainsAny(f.ID, "[],") || f.ID == renderedKey {
		return fmt.Errorf("field %q: id contains a reserved sequence", f.ID)
	}
	if _, ok := kinds.Lookup(f.Type); !ok {
		return fmt.Errorf("field %q: unknown type %q", f.ID, f.Type)
	}
	if f.Repeat && len(f.Options) == 0 {
		return fmt.Errorf("field %q: repeater needs options", f.ID)
	}
	if (f.Type == "select" || f.Type == "radio") && len(f.Options) == 0 {
		return fmt.Errorf("field %q: %s needs options", f.ID, f.Type)
	}
	if p, ok := f.Rules["pattern"].(string); ok {
		if _, err := compilePattern(p); err != nil {
			return fmt.Errorf("field %q: invalid pattern: %v", f.ID, err)
		}
	}
	if c := f.Conditional; c != nil {
		switch c.Kind {
		case ShowWhen, HideWhen, RequiredWhen:
		default:
			return fmt.Errorf("field %q: unknown conditional kind %q", f.ID, c.Kind)
		}
		for _, cond := range c.Conditions {
			if !ids[cond.Field] {
				return fmt.Errorf("field %q: condition references unknown field %q", f.ID, cond.Field)
			}
			if !validOperators[cond.Operator] {
				return fmt.Errorf("field %q: unknown operator %q", f.ID, cond.Operator)
			}
		}
	}
	return nil
}
