// Package predicate builds branch predicates for gated stages.
package predicate

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/dmitriyb/stagegate/internal/gate"
)

// Refs lists ref names a stage is restricted to (Only) or kept away from
// (Except). An entry wrapped in slashes, like /release-.*/, is a regular
// expression that must match the whole name.
type Refs struct {
	Only   []string `yaml:"only"`
	Except []string `yaml:"except"`
}

// Empty reports whether neither list has entries.
func (r Refs) Empty() bool {
	return len(r.Only) == 0 && len(r.Except) == 0
}

// RefSelector is a compiled Refs.
type RefSelector struct {
	only   []refMatcher
	except []refMatcher
}

type refMatcher struct {
	exact string
	re    *regexp.Regexp
}

func (m refMatcher) match(name string) bool {
	if m.re != nil {
		return m.re.MatchString(name)
	}
	return m.exact == name
}

// Compile checks every regular expression entry and returns a selector.
func (r Refs) Compile() (*RefSelector, error) {
	only, err := compileRefs(r.Only)
	if err != nil {
		return nil, errors.Wrap(err, "only")
	}
	except, err := compileRefs(r.Except)
	if err != nil {
		return nil, errors.Wrap(err, "except")
	}
	return &RefSelector{only: only, except: except}, nil
}

func compileRefs(refs []string) ([]refMatcher, error) {
	out := make([]refMatcher, 0, len(refs))
	for _, ref := range refs {
		if len(ref) >= 2 && strings.HasPrefix(ref, "/") && strings.HasSuffix(ref, "/") {
			re, err := regexp.Compile("^(?:" + ref[1:len(ref)-1] + ")$")
			if err != nil {
				return nil, errors.Wrapf(err, "invalid pattern %q", ref)
			}
			out = append(out, refMatcher{re: re})
			continue
		}
		out = append(out, refMatcher{exact: ref})
	}
	return out, nil
}

// Matches reports whether name is selected. Excluded names never match. An
// empty Only list selects every name that is not excluded, including "".
func (s *RefSelector) Matches(name string) bool {
	for _, m := range s.except {
		if m.match(name) {
			return false
		}
	}
	if len(s.only) == 0 {
		return true
	}
	for _, m := range s.only {
		if m.match(name) {
			return true
		}
	}
	return false
}

// Branch applies sel to the branch of the execution context.
func Branch(sel *RefSelector) gate.BranchPredicate {
	return func(ec gate.ExecutionContext) bool {
		return sel.Matches(ec.Branch)
	}
}

// Tag applies sel to the tag of the execution context. Runs without a tag
// never match.
func Tag(sel *RefSelector) gate.BranchPredicate {
	return func(ec gate.ExecutionContext) bool {
		return ec.Tag != "" && sel.Matches(ec.Tag)
	}
}
