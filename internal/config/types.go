package config

import "github.com/dmitriyb/stagegate/internal/predicate"

// Pipeline is the top-level structure mapping to stagegate.yaml.
type Pipeline struct {
	Version  string          `yaml:"version"`
	Marker   string          `yaml:"marker"` // marker file name, relative to the checkout
	Trunk    string          `yaml:"trunk"`
	Defaults map[string]bool `yaml:"defaults"`
	Stages   []Stage         `yaml:"stages"`
}

// Stage names one gated unit of work and the rules that gate it.
type Stage struct {
	Name     string         `yaml:"name"`
	Key      string         `yaml:"key"`      // flag in the marker file
	Branches predicate.Refs `yaml:"branches"` // only/except branch lists
	Tags     predicate.Refs `yaml:"tags"`     // only/except tag lists
	Primary  *bool          `yaml:"primary"`  // true: trunk runs only, false: never on trunk
	When     string         `yaml:"when"`     // CEL expression, empty = always
}
