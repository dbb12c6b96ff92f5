package synth

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/simloom/internal/ir"
)

//go:embed contract.cue
var contractSource string

// contract holds the compiled payload definitions. CUE contexts are not safe
// for concurrent use, so checks are serialized.
type contract struct {
	mu        sync.Mutex
	ctx       *cue.Context
	component cue.Value
	system    cue.Value
}

var (
	contractOnce sync.Once
	contractInst *contract
	contractErr  error
)

func loadContract() (*contract, error) {
	contractOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(contractSource, cue.Filename("contract.cue"))
		if err := v.Err(); err != nil {
			contractErr = fmt.Errorf("compile payload contract: %w", err)
			return
		}
		contractInst = &contract{
			ctx:       ctx,
			component: v.LookupPath(cue.ParsePath("#Component")),
			system:    v.LookupPath(cue.ParsePath("#System")),
		}
	})
	return contractInst, contractErr
}

// check unifies one JSON entry with a contract definition.
func (c *contract) check(def cue.Value, entry json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.ctx.CompileBytes(entry, cue.Filename("entry.json"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("entry is not valid JSON: %s", errors.Details(err, nil))
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", firstLine(errors.Details(err, nil)))
	}
	return nil
}

// wireComponent is the contract's component shape.
type wireComponent struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  []wireProperty `json:"properties"`
}

type wireProperty struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default"`
}

// wireSystem is the contract's system shape.
type wireSystem struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	RequiredComponents []string `json:"requiredComponents"`
	Logic              string   `json:"logic"`
}

func (w wireComponent) def() ir.ComponentDef {
	def := ir.ComponentDef{Name: w.Name, Description: w.Description}
	for _, p := range w.Properties {
		def.Properties = append(def.Properties, ir.Property{
			Name:        p.Name,
			Type:        ir.PropertyType(p.Type),
			Description: p.Description,
			Default:     p.Default,
		})
	}
	return def
}

func (w wireSystem) def() ir.SystemDef {
	req := w.RequiredComponents
	if req == nil {
		req = []string{}
	}
	return ir.SystemDef{
		Name:               w.Name,
		Description:        w.Description,
		RequiredComponents: req,
		Logic:              w.Logic,
	}
}

// EncodePayload renders definitions in the contract's wire shape. It is the
// inverse of the Gateway's decoding and is used for fixtures and the Static
// synthesizer.
func EncodePayload(comps []ir.ComponentDef, systems []ir.SystemDef) (json.RawMessage, error) {
	payload := struct {
		Components []wireComponent `json:"components"`
		Systems    []wireSystem    `json:"systems"`
	}{
		Components: []wireComponent{},
		Systems:    []wireSystem{},
	}
	for _, c := range comps {
		wc := wireComponent{Name: c.Name, Description: c.Description, Properties: []wireProperty{}}
		for _, p := range c.Properties {
			wc.Properties = append(wc.Properties, wireProperty{
				Name: p.Name, Type: string(p.Type), Description: p.Description, Default: p.Default,
			})
		}
		payload.Components = append(payload.Components, wc)
	}
	for _, s := range systems {
		payload.Systems = append(payload.Systems, wireSystem{
			Name:               s.Name,
			Description:        s.Description,
			RequiredComponents: s.RequiredComponents,
			Logic:              s.Logic,
		})
	}
	return json.Marshal(payload)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
