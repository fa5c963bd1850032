package config

import (
	"github.com/pkg/errors"

	"github.com/dmitriyb/stagegate/internal/gate"
	"github.com/dmitriyb/stagegate/internal/predicate"
)

// DefaultsTable converts the defaults section to gate.Defaults.
func (p *Pipeline) DefaultsTable() gate.Defaults {
	out := make(gate.Defaults, len(p.Defaults))
	for k, v := range p.Defaults {
		out[gate.StageKey(k)] = v
	}
	return out
}

// Stage returns the stage called name.
func (p *Pipeline) Stage(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// StageKey returns the flag that gates the stage.
func (s Stage) StageKey() gate.StageKey {
	return gate.StageKey(s.Key)
}

// Predicate builds the rule that gates the stage beyond its flag. The
// branches and tags selectors allow a run when either matches; that result,
// the primary requirement and the when expression must all allow the run.
// It returns nil when the stage has no rules.
func (s Stage) Predicate() (gate.BranchPredicate, error) {
	var refs []gate.BranchPredicate
	if !s.Branches.Empty() {
		sel, err := s.Branches.Compile()
		if err != nil {
			return nil, errors.Wrapf(err, "stage %q: branches", s.Name)
		}
		refs = append(refs, predicate.Branch(sel))
	}
	if !s.Tags.Empty() {
		sel, err := s.Tags.Compile()
		if err != nil {
			return nil, errors.Wrapf(err, "stage %q: tags", s.Name)
		}
		refs = append(refs, predicate.Tag(sel))
	}

	preds := []gate.BranchPredicate{predicate.Any(refs...)}
	if s.Primary != nil {
		if *s.Primary {
			preds = append(preds, predicate.Primary())
		} else {
			preds = append(preds, predicate.Not(predicate.Primary()))
		}
	}
	if s.When != "" {
		expr, err := predicate.Compile(s.When)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %q: when", s.Name)
		}
		preds = append(preds, expr.Predicate())
	}
	return predicate.All(preds...), nil
}
