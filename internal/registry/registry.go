// Package registry is the catalog of component schemas and systems.
//
// The registry enforces name uniqueness per kind and the dependency rule that
// a system may only be registered once every component it requires exists.
// Registration is atomic: a rejected definition leaves no trace.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/simloom/internal/ir"
)

// Kind distinguishes the two definition kinds held by a Registry.
type Kind string

const (
	KindComponent Kind = "component"
	KindSystem    Kind = "system"
)

// Registry holds component and system definitions in registration order.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	components map[string]ir.ComponentDef
	compOrder  []string
	systems    map[string]*ir.SystemDef
	sysOrder   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		components: make(map[string]ir.ComponentDef),
		systems:    make(map[string]*ir.SystemDef),
	}
}

// RegisterComponent validates and stores a component schema.
func (r *Registry) RegisterComponent(def ir.ComponentDef) (ir.ComponentDef, error) {
	if err := checkComponent(def); err != nil {
		return ir.ComponentDef{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[def.Name]; exists {
		return ir.ComponentDef{}, ir.DuplicateName(string(KindComponent), def.Name)
	}
	stored := def.Clone()
	r.components[def.Name] = stored
	r.compOrder = append(r.compOrder, def.Name)

	slog.Debug("component registered", "name", def.Name, "properties", len(def.Properties))
	return stored.Clone(), nil
}

// checkComponent applies the registration rules for a component schema.
// Repeated property names are tolerated (the first declaration wins) and
// surface as a diagnostics issue instead.
func checkComponent(def ir.ComponentDef) error {
	if def.Name == "" {
		return ir.SchemaErrorf("component", "name must not be empty")
	}
	if len(def.Properties) == 0 {
		return ir.SchemaErrorf(def.Name, "component must declare at least one property")
	}
	for i, p := range def.Properties {
		if p.Name == "" {
			return ir.SchemaErrorf(def.Name, "property %d has no name", i)
		}
		if !ir.ValidPropertyTypes[p.Type] {
			return ir.SchemaErrorf(def.Name, "property %q has unknown type %q", p.Name, p.Type)
		}
		if _, err := ir.DefaultFor(p); err != nil {
			return ir.SchemaErrorf(def.Name, "property %q default: %v", p.Name, err)
		}
	}
	return nil
}

// RegisterSystem stores a system whose required components all exist.
// On a missing dependency nothing is registered and the error names every gap.
func (r *Registry) RegisterSystem(def ir.SystemDef) (ir.SystemDef, error) {
	if def.Name == "" {
		return ir.SystemDef{}, ir.SchemaErrorf("system", "name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.systems[def.Name]; exists {
		return ir.SystemDef{}, ir.DuplicateName(string(KindSystem), def.Name)
	}
	if missing := r.missingLocked(def.RequiredComponents); len(missing) > 0 {
		return ir.SystemDef{}, ir.MissingDependency(def.Name, missing)
	}

	stored := def.Clone()
	stored.RequiredComponents = dedupe(stored.RequiredComponents)
	stored.LastError = nil
	stored.RunCount = 0
	r.systems[def.Name] = &stored
	r.sysOrder = append(r.sysOrder, def.Name)

	slog.Debug("system registered", "name", def.Name, "requires", stored.RequiredComponents)
	return stored.Clone(), nil
}

// ReplaceSystem swaps the logic and description of an existing system. The
// run count is kept and the last error cleared. Dependencies are re-checked.
func (r *Registry) ReplaceSystem(def ir.SystemDef) (ir.SystemDef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.systems[def.Name]
	if !ok {
		return ir.SystemDef{}, ir.NotFound(string(KindSystem), def.Name)
	}
	if missing := r.missingLocked(def.RequiredComponents); len(missing) > 0 {
		return ir.SystemDef{}, ir.MissingDependency(def.Name, missing)
	}

	next := def.Clone()
	next.RequiredComponents = dedupe(next.RequiredComponents)
	next.RunCount = cur.RunCount
	next.LastError = nil
	*cur = next

	slog.Debug("system replaced", "name", def.Name)
	return next.Clone(), nil
}

func (r *Registry) missingLocked(required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := r.components[name]; !ok && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// ListComponents returns component names in registration order.
func (r *Registry) ListComponents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.compOrder)
}

// ListSystems returns system names in registration order.
func (r *Registry) ListSystems() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sysOrder)
}

// GetComponent returns a copy of the named component.
func (r *Registry) GetComponent(name string) (ir.ComponentDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.components[name]
	if !ok {
		return ir.ComponentDef{}, false
	}
	return def.Clone(), true
}

// Component implements world.Schemas.
func (r *Registry) Component(name string) (ir.ComponentDef, bool) {
	return r.GetComponent(name)
}

// GetSystem returns a copy of the named system.
func (r *Registry) GetSystem(name string) (ir.SystemDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sys, ok := r.systems[name]
	if !ok {
		return ir.SystemDef{}, false
	}
	return sys.Clone(), true
}

// Dependents returns the systems that require component, in registration order.
func (r *Registry) Dependents(component string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependentsLocked(component)
}

func (r *Registry) dependentsLocked(component string) []string {
	var out []string
	for _, name := range r.sysOrder {
		if r.systems[name].Requires(component) {
			out = append(out, name)
		}
	}
	return out
}

// RecordError attaches a fault to a system. The system stays registered.
func (r *Registry) RecordError(system string, rec *ir.ErrorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sys, ok := r.systems[system]
	if !ok {
		return ir.NotFound(string(KindSystem), system)
	}
	sys.LastError = rec.Clone()
	return nil
}

// RecordSuccess counts a successful tick and clears the last error.
func (r *Registry) RecordSuccess(system string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sys, ok := r.systems[system]
	if !ok {
		return ir.NotFound(string(KindSystem), system)
	}
	sys.RunCount++
	sys.LastError = nil
	return nil
}

// Unregister removes a component or system by name.
//
// A component still required by a system yields an InUseError unless force
// is set. A name that is neither yields a NotFoundError. When a component and
// a system share the name the call is rejected; use UnregisterComponent or
// UnregisterSystem.
func (r *Registry) Unregister(name string, force bool) (Kind, error) {
	r.mu.Lock()
	_, isComp := r.components[name]
	_, isSys := r.systems[name]
	r.mu.Unlock()

	switch {
	case isComp && isSys:
		return "", ir.SchemaErrorf(name, "name is both a component and a system; unregister by kind")
	case isComp:
		return KindComponent, r.UnregisterComponent(name, force)
	case isSys:
		return KindSystem, r.UnregisterSystem(name)
	default:
		return "", ir.NotFound("component or system", name)
	}
}

// UnregisterComponent removes a component schema. Systems requiring it are
// left registered when force is set; diagnostics reports their gap.
func (r *Registry) UnregisterComponent(name string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.components[name]; !ok {
		return ir.NotFound(string(KindComponent), name)
	}
	if users := r.dependentsLocked(name); len(users) > 0 && !force {
		return ir.InUse(name, users)
	}
	delete(r.components, name)
	r.compOrder = slices.DeleteFunc(r.compOrder, func(n string) bool { return n == name })

	slog.Debug("component unregistered", "name", name, "force", force)
	return nil
}

// UnregisterSystem removes a system.
func (r *Registry) UnregisterSystem(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.systems[name]; !ok {
		return ir.NotFound(string(KindSystem), name)
	}
	delete(r.systems, name)
	r.sysOrder = slices.DeleteFunc(r.sysOrder, func(n string) bool { return n == name })

	slog.Debug("system unregistered", "name", name)
	return nil
}

// Snapshot returns an ordered copy of every definition.
func (r *Registry) Snapshot() ir.RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := ir.RegistrySnapshot{
		Components: make([]ir.ComponentDef, 0, len(r.compOrder)),
		Systems:    make([]ir.SystemDef, 0, len(r.sysOrder)),
	}
	for _, name := range r.compOrder {
		snap.Components = append(snap.Components, r.components[name].Clone())
	}
	for _, name := range r.sysOrder {
		snap.Systems = append(snap.Systems, r.systems[name].Clone())
	}
	return snap
}

// Restore replaces the registry contents with snap, keeping run counts and
// last errors. Names must be unique per kind; schemas are not re-validated so
// a persisted workspace always loads and diagnostics can report its issues.
func (r *Registry) Restore(snap ir.RegistrySnapshot) error {
	components := make(map[string]ir.ComponentDef, len(snap.Components))
	compOrder := make([]string, 0, len(snap.Components))
	for _, c := range snap.Components {
		if _, dup := components[c.Name]; dup {
			return fmt.Errorf("restore: %w", ir.DuplicateName(string(KindComponent), c.Name))
		}
		components[c.Name] = c.Clone()
		compOrder = append(compOrder, c.Name)
	}

	systems := make(map[string]*ir.SystemDef, len(snap.Systems))
	sysOrder := make([]string, 0, len(snap.Systems))
	for _, s := range snap.Systems {
		if _, dup := systems[s.Name]; dup {
			return fmt.Errorf("restore: %w", ir.DuplicateName(string(KindSystem), s.Name))
		}
		cp := s.Clone()
		systems[s.Name] = &cp
		sysOrder = append(sysOrder, s.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.components, r.compOrder = components, compOrder
	r.systems, r.sysOrder = systems, sysOrder
	return nil
}

// Hash returns the content hash of the current definitions.
func (r *Registry) Hash() (string, error) {
	return ir.RegistryHash(r.Snapshot())
}
