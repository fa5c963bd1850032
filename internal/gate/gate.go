// Package gate decides which named pipeline stages may run.
//
// A StageConfig is built once per run from the contents of a marker file and
// a table of defaults. It is read-only afterwards; every query against it is
// a pure function.
package gate

import "sort"

// StageKey names one controllable unit of work, e.g. stage.deploy.prod.enabled.
type StageKey string

// Defaults maps a StageKey to the value used when the marker file omits it.
type Defaults map[StageKey]bool

// Source records where a resolved value came from.
type Source int

const (
	SourceNone    Source = iota // key not resolved
	SourceFile                  // set in the marker file
	SourceDefault               // filled from Defaults
)

func (s Source) String() string {
	switch s {
	case SourceFile:
		return "file"
	case SourceDefault:
		return "default"
	}
	return "none"
}

// ExecutionContext describes the run a stage would execute in.
type ExecutionContext struct {
	Branch       string
	Tag          string
	ChangeID     string
	ChangeTarget string
	Primary      bool // the branch is the trunk
	Environment  string
	RunID        string
}

// BranchPredicate restricts a stage to certain execution contexts.
// A nil BranchPredicate places no restriction.
type BranchPredicate func(ExecutionContext) bool

// StageConfig is the resolved set of stage flags for one run.
// The zero value has no keys and reports every stage as disabled.
type StageConfig struct {
	flags   map[StageKey]bool
	raw     map[StageKey]string
	sources map[StageKey]Source
}

// Enabled reports the resolved flag for key. Unknown keys are disabled.
func (c StageConfig) Enabled(key StageKey) bool {
	return c.flags[key]
}

// Raw returns the value for key exactly as written in the marker file.
// ok is false when the file did not set key.
func (c StageConfig) Raw(key StageKey) (value string, ok bool) {
	value, ok = c.raw[key]
	return value, ok
}

// Source reports whether key was set by the file, by a default, or not at all.
func (c StageConfig) Source(key StageKey) Source {
	return c.sources[key]
}

// Keys returns every resolved key in lexical order.
func (c StageConfig) Keys() []StageKey {
	keys := make([]StageKey, 0, len(c.flags))
	for k := range c.flags {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Flags returns a copy of the resolved flags.
func (c StageConfig) Flags() map[StageKey]bool {
	out := make(map[StageKey]bool, len(c.flags))
	for k, v := range c.flags {
		out[k] = v
	}
	return out
}

// Len returns the number of resolved keys.
func (c StageConfig) Len() int {
	return len(c.flags)
}

// IsEnabled returns the resolved flag for key, or false when key is unknown.
func IsEnabled(cfg StageConfig, key StageKey) bool {
	return cfg.Enabled(key)
}

// IsEnabledForContext combines the flag for key with an optional branch
// predicate. Both must allow the stage. The predicate is never consulted
// when the flag is off.
func IsEnabledForContext(cfg StageConfig, key StageKey, ec ExecutionContext, pred BranchPredicate) bool {
	if !cfg.Enabled(key) {
		return false
	}
	return pred == nil || pred(ec)
}
