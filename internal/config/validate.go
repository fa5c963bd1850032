package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/dmitriyb/stagegate/internal/predicate"
)

// SupportedVersions is the range of definition versions this build reads.
const SupportedVersions = "^1.0.0"

// Validate checks all Pipeline fields for completeness and consistency.
// It collects all errors and returns them via errors.Join.
func Validate(def *Pipeline) error {
	var errs []error
	check := func(cond bool, path, msg string) {
		if !cond {
			errs = append(errs, fmt.Errorf("%s: %s", path, msg))
		}
	}

	if def.Version == "" {
		check(false, "version", "required")
	} else if v, err := semver.NewVersion(def.Version); err != nil {
		check(false, "version", fmt.Sprintf("not a semantic version (got %q)", def.Version))
	} else {
		c, _ := semver.NewConstraint(SupportedVersions)
		check(c.Check(v), "version",
			fmt.Sprintf("unsupported version %s, want %s", def.Version, SupportedVersions))
	}

	check(def.Marker != "", "marker", "required")
	if def.Marker != "" {
		clean := filepath.Clean(def.Marker)
		check(!filepath.IsAbs(def.Marker) && clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator)),
			"marker", fmt.Sprintf("must be a path inside the checkout (got %q)", def.Marker))
		check(clean != ".", "marker", fmt.Sprintf("must name a file (got %q)", def.Marker))
	}

	for k := range def.Defaults {
		check(validKey(k), "defaults", fmt.Sprintf("invalid key %q", k))
	}

	check(len(def.Stages) > 0, "stages", "at least one stage required")
	names := map[string]bool{}
	for i, s := range def.Stages {
		p := fmt.Sprintf("stages[%d]", i)
		check(s.Name != "", p+".name", "required")
		if s.Name != "" {
			check(!names[s.Name], p+".name", fmt.Sprintf("duplicate stage %q", s.Name))
			names[s.Name] = true
		}
		check(s.Key != "", p+".key", "required")
		if s.Key != "" {
			check(validKey(s.Key), p+".key", fmt.Sprintf("invalid key %q", s.Key))
		}
		if _, err := s.Branches.Compile(); err != nil {
			check(false, p+".branches", err.Error())
		}
		if _, err := s.Tags.Compile(); err != nil {
			check(false, p+".tags", err.Error())
		}
		if s.When != "" {
			if _, err := predicate.Compile(s.When); err != nil {
				check(false, p+".when", err.Error())
			}
		}
	}
	return errors.Join(errs...)
}

// validKey reports whether a marker file line can set k: the parser trims
// keys, splits at the first '=' and skips lines starting with '#'.
func validKey(k string) bool {
	return k != "" &&
		strings.TrimSpace(k) == k &&
		!strings.HasPrefix(k, "#") &&
		!strings.Contains(k, "=")
}
