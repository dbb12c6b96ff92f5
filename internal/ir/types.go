package ir

import "slices"

// PropertyType is the semantic type of a component property.
type PropertyType string

const (
	TypeNumber  PropertyType = "number"
	TypeString  PropertyType = "string"
	TypeBoolean PropertyType = "boolean"
	TypeEntity  PropertyType = "entity"
)

// ValidPropertyTypes defines the allowed property types.
var ValidPropertyTypes = map[PropertyType]bool{
	TypeNumber:  true,
	TypeString:  true,
	TypeBoolean: true,
	TypeEntity:  true,
}

// Property is one column of a component schema.
type Property struct {
	Name        string       `json:"name"`
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Default     any          `json:"default,omitempty"` // nil means the type's zero value
}

// ComponentDef represents a registered component schema.
// Properties keep declaration order; storage is one column per property.
type ComponentDef struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Properties  []Property `json:"properties"`
}

// Property returns the named property and whether it exists.
// The first declaration wins when a schema repeats a name.
func (c ComponentDef) Property(name string) (Property, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Clone returns a deep copy.
func (c ComponentDef) Clone() ComponentDef {
	c.Properties = slices.Clone(c.Properties)
	return c
}

// ErrorRecord is the structured fault attached to a system after a failed tick.
type ErrorRecord struct {
	Kind    ErrorCode `json:"kind"`
	Message string    `json:"message"`
	Excerpt string    `json:"excerpt,omitempty"` // offending logic line, when determinable
	Line    int       `json:"line,omitempty"`    // 1-based line within the logic text
	Tick    int64     `json:"tick,omitempty"`
}

// Clone returns a copy, or nil for a nil record.
func (r *ErrorRecord) Clone() *ErrorRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// SystemDef represents a registered system.
type SystemDef struct {
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	RequiredComponents []string     `json:"required_components"`
	Logic              string       `json:"logic"`
	LastError          *ErrorRecord `json:"last_error,omitempty"`
	RunCount           int64        `json:"run_count"`
}

// Requires reports whether the system lists component in its required set.
func (s SystemDef) Requires(component string) bool {
	return slices.Contains(s.RequiredComponents, component)
}

// Clone returns a deep copy.
func (s SystemDef) Clone() SystemDef {
	s.RequiredComponents = slices.Clone(s.RequiredComponents)
	s.LastError = s.LastError.Clone()
	return s
}

// RegistrySnapshot is the ordered catalog of definitions.
// It is what the synthesis collaborator sees and what a workspace persists.
type RegistrySnapshot struct {
	Components []ComponentDef `json:"components"`
	Systems    []SystemDef    `json:"systems"`
}

// ComponentNames returns the component names in snapshot order.
func (s RegistrySnapshot) ComponentNames() []string {
	names := make([]string, len(s.Components))
	for i, c := range s.Components {
		names[i] = c.Name
	}
	return names
}

// System returns the named system from the snapshot.
func (s RegistrySnapshot) System(name string) (SystemDef, bool) {
	for _, sys := range s.Systems {
		if sys.Name == name {
			return sys, true
		}
	}
	return SystemDef{}, false
}
