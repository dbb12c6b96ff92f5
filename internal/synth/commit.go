package synth

import (
	"fmt"
	"log/slog"

	"github.com/roach88/simloom/internal/ir"
	"github.com/roach88/simloom/internal/registry"
)

// CommitOptions controls how a proposal is applied.
type CommitOptions struct {
	// Repair, when set, names the one system the proposal may replace.
	// Other systems in the proposal are rejected.
	Repair string
}

// Outcome reports what a commit changed.
type Outcome struct {
	Components []string `json:"components,omitempty"`
	Systems    []string `json:"systems,omitempty"`
	Replaced   []string `json:"replaced,omitempty"`
	Rejected   []Entry  `json:"rejected,omitempty"`
}

// Applied counts definitions that reached the registry.
func (o *Outcome) Applied() int {
	return len(o.Components) + len(o.Systems) + len(o.Replaced)
}

// Commit registers a proposal's accepted entries: components first, then
// systems. Registry errors turn into per-entry rejections; nothing else
// stops the batch.
func Commit(reg *registry.Registry, p *Proposal, opts CommitOptions) *Outcome {
	out := &Outcome{Rejected: p.Rejected()}

	for _, e := range p.Components {
		if !e.Accepted {
			continue
		}
		if _, err := reg.RegisterComponent(*e.Component); err != nil {
			out.Rejected = append(out.Rejected, rejected(e, err))
			continue
		}
		out.Components = append(out.Components, e.Name)
	}

	replaced := false
	for _, e := range p.Systems {
		if !e.Accepted {
			continue
		}
		if opts.Repair == "" {
			if _, err := reg.RegisterSystem(*e.System); err != nil {
				out.Rejected = append(out.Rejected, rejected(e, err))
				continue
			}
			out.Systems = append(out.Systems, e.Name)
			continue
		}

		if e.Name != opts.Repair || replaced {
			e.reject(ir.CodeSchema, fmt.Sprintf("repair may only replace system %q once", opts.Repair))
			out.Rejected = append(out.Rejected, e)
			continue
		}
		if _, err := reg.ReplaceSystem(*e.System); err != nil {
			out.Rejected = append(out.Rejected, rejected(e, err))
			continue
		}
		replaced = true
		out.Replaced = append(out.Replaced, e.Name)
	}

	slog.Info("proposal committed",
		"components", len(out.Components),
		"systems", len(out.Systems),
		"replaced", len(out.Replaced),
		"rejected", len(out.Rejected))
	return out
}

func rejected(e Entry, err error) Entry {
	code := ir.CodeOf(err)
	if code == "" {
		code = ir.CodeSchema
	}
	e.reject(code, err.Error())
	return e
}
