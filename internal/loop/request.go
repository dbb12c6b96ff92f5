package loop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/simloom/internal/cognition"
	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/registry"
	"github.com/roach88/simloom/internal/world"
)

// Request is one unit of work for the loop.
//
// Every field is optional, but a request must carry at least an intent, a
// plan step, a command, a tick batch or a diagnose flag.
type Request struct {
	ID       string               `json:"id,omitempty" yaml:"id,omitempty"`
	Intent   string               `json:"intent,omitempty" yaml:"intent,omitempty"`
	Model    string               `json:"model,omitempty" yaml:"model,omitempty"`
	Commands []Command            `json:"commands,omitempty" yaml:"commands,omitempty"`
	Ticks    []TickSpec           `json:"ticks,omitempty" yaml:"ticks,omitempty"`
	Diagnose bool                 `json:"diagnose,omitempty" yaml:"diagnose,omitempty"`
	Plan     []cognition.PlanStep `json:"plan,omitempty" yaml:"plan,omitempty"`
}

// TickSpec asks for Count ticks of System.
type TickSpec struct {
	System string `json:"system" yaml:"system"`
	Count  int    `json:"count" yaml:"count"`
}

// Op names a world command.
type Op string

const (
	OpCreate         Op = "create"
	OpDestroy        Op = "destroy"
	OpAttach         Op = "attach"
	OpDetach         Op = "detach"
	OpSet            Op = "set"
	OpRelate         Op = "relate"
	OpUnrelate       Op = "unrelate"
	OpDefineRelation Op = "define_relation"
	OpUnregister     Op = "unregister"
)

// Command is one simulation command applied during EXECUTE, before ticks.
type Command struct {
	Op Op `json:"op" yaml:"op"`

	// As names the entity made by create, for later commands and requests.
	As         string                    `json:"as,omitempty" yaml:"as,omitempty"`
	Components map[string]map[string]any `json:"components,omitempty" yaml:"components,omitempty"`

	Entity    Ref            `json:"entity,omitempty" yaml:"entity,omitempty"`
	Target    Ref            `json:"target,omitempty" yaml:"target,omitempty"`
	Component string         `json:"component,omitempty" yaml:"component,omitempty"`
	Property  string         `json:"property,omitempty" yaml:"property,omitempty"`
	Value     any            `json:"value,omitempty" yaml:"value,omitempty"`
	Values    map[string]any `json:"values,omitempty" yaml:"values,omitempty"`

	Kind      string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Exclusive bool   `json:"exclusive,omitempty" yaml:"exclusive,omitempty"`

	// Name and Force drive unregister.
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Force bool   `json:"force,omitempty" yaml:"force,omitempty"`
}

// CommandResult reports one applied command.
type CommandResult struct {
	Index  int          `json:"index"`
	Op     Op           `json:"op"`
	Entity world.Entity `json:"entity,omitempty"`
	Kind   string       `json:"kind,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Ref names an entity by id ("3" or "#3") or by a create alias.
type Ref string

// UnmarshalJSON accepts a number or a string.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("entity reference: %w", err)
		}
		*r = Ref(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = Ref(s)
	return nil
}

// UnmarshalYAML accepts any scalar.
func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("entity reference: line %d: expected a scalar", node.Line)
	}
	*r = Ref(node.Value)
	return nil
}

// resolve turns a reference into a live entity id.
func (r Ref) resolve(aliases map[string]world.Entity) (world.Entity, error) {
	s := strings.TrimPrefix(strings.TrimSpace(string(r)), "#")
	if s == "" {
		return 0, ir.SchemaErrorf("entity", "missing entity reference")
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return world.Entity(n), nil
	}
	if id, ok := aliases[s]; ok {
		return id, nil
	}
	return 0, ir.NotFound("entity", s)
}

// apply runs commands in order and stops at the first failure. Commands
// that already ran stay applied.
func (l *Loop) apply(cmds []Command) ([]CommandResult, error) {
	results := make([]CommandResult, 0, len(cmds))
	for i, cmd := range cmds {
		res := CommandResult{Index: i, Op: cmd.Op}
		if err := l.applyOne(cmd, &res); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			return results, fmt.Errorf("command %d (%s): %w", i, cmd.Op, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (l *Loop) applyOne(cmd Command, res *CommandResult) error {
	switch cmd.Op {
	case OpCreate:
		id := l.world.CreateEntity()
		res.Entity = id
		if cmd.As != "" {
			l.aliases[cmd.As] = id
		}
		for _, name := range slices.Sorted(maps.Keys(cmd.Components)) {
			if err := l.world.AttachComponent(id, name, cmd.Components[name]); err != nil {
				return err
			}
		}
		return nil

	case OpDestroy:
		id, err := cmd.Entity.resolve(l.aliases)
		if err != nil {
			return err
		}
		res.Entity = id
		if err := l.world.DestroyEntity(id); err != nil {
			return err
		}
		for alias, aid := range l.aliases {
			if aid == id {
				delete(l.aliases, alias)
			}
		}
		return nil

	case OpAttach, OpDetach, OpSet:
		id, err := cmd.Entity.resolve(l.aliases)
		if err != nil {
			return err
		}
		res.Entity = id
		switch cmd.Op {
		case OpAttach:
			return l.world.AttachComponent(id, cmd.Component, cmd.Values)
		case OpDetach:
			return l.world.DetachComponent(id, cmd.Component)
		default:
			return l.world.SetComponentValue(id, cmd.Component, cmd.Property, cmd.Value)
		}

	case OpRelate, OpUnrelate:
		src, err := cmd.Entity.resolve(l.aliases)
		if err != nil {
			return err
		}
		dst, err := cmd.Target.resolve(l.aliases)
		if err != nil {
			return err
		}
		res.Entity = src
		if cmd.Op == OpRelate {
			return l.world.AddRelation(cmd.Kind, src, dst)
		}
		_, err = l.world.RemoveRelation(cmd.Kind, src, dst)
		return err

	case OpDefineRelation:
		return l.world.DefineRelation(cmd.Kind, cmd.Exclusive)

	case OpUnregister:
		kind, err := l.reg.Unregister(cmd.Name, cmd.Force)
		if err != nil {
			return err
		}
		res.Kind = string(kind)
		switch kind {
		case registry.KindComponent:
			l.world.DropComponent(cmd.Name)
		case registry.KindSystem:
			l.engine.Forget(cmd.Name)
		}
		return nil

	default:
		return ir.SchemaErrorf("command", "unknown op %q", cmd.Op)
	}
}
