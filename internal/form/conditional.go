// internal/form/conditional.go
//
// Adept – Forms subsystem: conditional visibility engine.
//
// Context
//   Answers "is field F visible?" and "is field F required?" for one form
//   and one snapshot of form data.  Visibility cascades: a field whose
//   conditions reference a hidden field is hidden too, whatever its own
//   conditions say.
//
//   Evaluation walks the condition graph depth-first:
//
//   1.  Fields without a Conditional are visible.
//   2.  Every field a condition references must itself be visible.  A field
//       already on the current path is a cycle; the branch fails.  A path
//       deeper than MaxDepth fails.  Both are logged at WARN.
//   3.  The field's own conditions are AND-ed.  show_when → visible iff
//       true, hide_when → visible iff false, required_when → always visible.
//
//   Top-level answers are memoised in an LRU keyed by field id and a SHA-256
//   of the JSON-encoded snapshot.  WithFormData replaces the snapshot and
//   purges the cache.  Nested answers are never cached, since they are
//   computed under a partial path.
//
//   An engine is request-scoped and not safe for concurrent use.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/yanizio/adept-forms/internal/cache"
	"github.com/yanizio/adept-forms/internal/metrics"
)

// DefaultMaxDepth bounds the dependency chain walked for one field.
const DefaultMaxDepth = 10

const cacheSize = 256

// Conditions is the visibility engine for one form.
type Conditions struct {
	fields   map[string]*Field
	order    []string
	data     map[string]any
	dataKey  string
	hashable bool

	cache    *cache.LRU[string, bool]
	cacheOff bool
	maxDepth int
	log      *zap.SugaredLogger

	hits, misses int
}

// ConditionOption configures NewConditions.
type ConditionOption func(*Conditions)

// WithLogger sets the warning sink.  Default zap.S().
func WithLogger(l *zap.SugaredLogger) ConditionOption {
	return func(c *Conditions) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) ConditionOption {
	return func(c *Conditions) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithCacheDisabled turns memoisation off, for chasing stale-cache bugs.
func WithCacheDisabled(off bool) ConditionOption {
	return func(c *Conditions) { c.cacheOff = off }
}

// NewConditions builds an engine over fields with an empty snapshot.
func NewConditions(fields []*Field, opts ...ConditionOption) *Conditions {
	c := &Conditions{
		fields:   make(map[string]*Field, len(fields)),
		order:    make([]string, 0, len(fields)),
		cache:    cache.New[string, bool](cacheSize),
		maxDepth: DefaultMaxDepth,
		log:      zap.S(),
	}
	for _, f := range fields {
		c.fields[f.ID] = f
		c.order = append(c.order, f.ID)
	}
	for _, o := range opts {
		o(c)
	}
	c.WithFormData(nil)
	return c
}

// WithFormData binds a new snapshot and drops every cached answer.  The map
// is not copied; callers must not mutate it afterwards.
func (c *Conditions) WithFormData(data map[string]any) *Conditions {
	if data == nil {
		data = map[string]any{}
	}
	c.data = data
	c.cache.Purge()

	// json.Marshal sorts map keys, so equal snapshots hash equally.
	b, err := json.Marshal(data)
	if err != nil {
		c.hashable = false
		c.dataKey = ""
		return c
	}
	sum := sha256.Sum256(b)
	c.hashable = true
	c.dataKey = hex.EncodeToString(sum[:])
	return c
}

// Data returns the bound snapshot.
func (c *Conditions) Data() map[string]any { return c.data }

// ShouldShowField reports whether id is visible under the bound snapshot.
// Unknown ids are visible.
func (c *Conditions) ShouldShowField(id string) bool {
	useCache := !c.cacheOff && c.hashable
	key := id + "|" + c.dataKey
	if useCache {
		if v, ok := c.cache.Get(key); ok {
			c.hits++
			metrics.ConditionalCache.WithLabelValues("hit").Inc()
			return v
		}
		c.misses++
		metrics.ConditionalCache.WithLabelValues("miss").Inc()
	}

	v := c.visible(id, map[string]struct{}{}, 0)
	if useCache {
		c.cache.Add(key, v)
	}
	return v
}

// ShouldRequireField reports whether id must be filled.  Hidden fields are
// never required.  A required_when conditional replaces the static flag.
func (c *Conditions) ShouldRequireField(id string) bool {
	if !c.ShouldShowField(id) {
		return false
	}
	f, ok := c.fields[id]
	if !ok {
		return false
	}
	if f.Conditional != nil && f.Conditional.Kind == RequiredWhen {
		return allMet(f.Conditional.Conditions, c.data)
	}
	return f.Required
}

// VisibleFields returns the visible field ids in form order.
func (c *Conditions) VisibleFields() []string {
	out := make([]string, 0, len(c.order))
	for _, id := range c.order {
		if c.ShouldShowField(id) {
			out = append(out, id)
		}
	}
	return out
}

// ConditionalResult is the outcome of ValidateConditionalFields.
type ConditionalResult struct {
	Valid  bool
	Errors map[string]string
}

// ValidateConditionalFields binds data and reports every visible field whose
// required_when conditions hold but whose value is empty.
func (c *Conditions) ValidateConditionalFields(data map[string]any) ConditionalResult {
	c.WithFormData(data)
	res := ConditionalResult{Valid: true, Errors: map[string]string{}}
	for _, id := range c.order {
		f := c.fields[id]
		if f.Conditional == nil || f.Conditional.Kind != RequiredWhen {
			continue
		}
		if c.ShouldRequireField(id) && isEmpty(c.data[id]) {
			res.Valid = false
			res.Errors[id] = labelOf(f) + " is required."
		}
	}
	return res
}

// FilterHidden returns a copy of data without configured fields that are
// hidden under the bound snapshot.  Unconfigured keys pass through.
func (c *Conditions) FilterHidden(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, configured := c.fields[k]; configured && !c.ShouldShowField(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// CacheStats reports cache hits and misses since construction.
func (c *Conditions) CacheStats() (hits, misses int) { return c.hits, c.misses }

/*──────────────────────────────── recursion ────────────────────────────────*/

func (c *Conditions) visible(id string, path map[string]struct{}, depth int) bool {
	if depth > c.maxDepth {
		c.log.Warnw("conditional depth exceeded", "field", id, "depth", depth)
		metrics.ConditionalDepth.Inc()
		return false
	}
	f, ok := c.fields[id]
	if !ok || f.Conditional == nil || len(f.Conditional.Conditions) == 0 {
		return true
	}

	path[id] = struct{}{}
	defer delete(path, id)

	if !c.parentsVisible(f, path, depth) {
		return false
	}

	met := allMet(f.Conditional.Conditions, c.data)
	switch f.Conditional.Kind {
	case ShowWhen:
		return met
	case HideWhen:
		return !met
	default:
		return true
	}
}

func (c *Conditions) parentsVisible(f *Field, path map[string]struct{}, depth int) bool {
	for _, cond := range f.Conditional.Conditions {
		if cond.Field == "" {
			continue
		}
		if _, onPath := path[cond.Field]; onPath {
			c.log.Warnw("circular conditional dependency", "field", f.ID, "parent", cond.Field, "depth", depth)
			metrics.ConditionalCycles.Inc()
			return false
		}
		if !c.visible(cond.Field, path, depth+1) {
			return false
		}
	}
	return true
}
