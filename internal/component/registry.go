// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web hands every
// component the shared Deps through InitAll, then lets each one add its
// endpoints to the admin router with Mount.  Components register their forms during Init,
// so Init must finish before the first request is served.

package component

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Initializer is optional.  If a Component implements it, InitAll calls
// Init(deps) once at startup.
type Initializer interface {
	Init(Deps) error
}

// Component contract.
//
// Migrations() may return nil if the component has no schema changes.
// Routes(r) adds every endpoint the component owns to the shared router.
// Paths must not collide with another component's, e.g:
//
//	r.Get("/admin/forms/{id}", c.show)
//	r.Post("/admin/forms/{id}", c.submit)
type Component interface {
	Name() string
	Routes(r chi.Router)
	Migrations() []string
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.  A second component
// with the same name replaces the first.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component sorted by name, so startup order
// is stable.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// InitAll runs Init on every component that implements Initializer and
// stops at the first failure.
func InitAll(deps Deps) error {
	for _, c := range All() {
		in, ok := c.(Initializer)
		if !ok {
			continue
		}
		if err := in.Init(deps); err != nil {
			return fmt.Errorf("component %s: %w", c.Name(), err)
		}
		if deps.Log != nil {
			deps.Log.Debugw("component initialised", "component", c.Name())
		}
	}
	return nil
}

// Mount lets every component add its routes to r.
func Mount(r chi.Router) {
	for _, c := range All() {
		c.Routes(r)
	}
}

// Migrations collects schema statements from every component, in All order.
func Migrations() []string {
	var out []string
	for _, c := range All() {
		out = append(out, c.Migrations()...)
	}
	return out
}
