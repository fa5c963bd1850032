// Package runctx works out the execution context of a pipeline run from the
// CI environment and the checked-out repository.
package runctx

import (
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"
	"github.com/technosophos/moniker"

	"github.com/dmitriyb/stagegate/internal/gate"
)

// Environment variables read by FromEnv. The names follow the Jenkins
// multibranch conventions; STAGEGATE_ENVIRONMENT is our own.
const (
	EnvBranchName      = "BRANCH_NAME"
	EnvGitBranch       = "GIT_BRANCH"
	EnvTagName         = "TAG_NAME"
	EnvChangeID        = "CHANGE_ID"
	EnvChangeTarget    = "CHANGE_TARGET"
	EnvBranchIsPrimary = "BRANCH_IS_PRIMARY"
	EnvBuildTag        = "BUILD_TAG"
	EnvEnvironment     = "STAGEGATE_ENVIRONMENT"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv builds an execution context from CI environment variables.
func FromEnv(lookup LookupFunc) gate.ExecutionContext {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	ec := gate.ExecutionContext{
		Branch:       get(EnvBranchName),
		Tag:          get(EnvTagName),
		ChangeID:     get(EnvChangeID),
		ChangeTarget: get(EnvChangeTarget),
		Primary:      get(EnvBranchIsPrimary) == "true",
		Environment:  get(EnvEnvironment),
		RunID:        get(EnvBuildTag),
	}
	if ec.Branch == "" {
		ec.Branch = shortBranch(get(EnvGitBranch))
	}
	return ec
}

// shortBranch strips the remote or ref prefix Jenkins puts on GIT_BRANCH.
func shortBranch(name string) string {
	name = strings.TrimPrefix(name, "refs/heads/")
	name = strings.TrimPrefix(name, "refs/remotes/")
	return strings.TrimPrefix(name, "origin/")
}

// FromRepo returns the branch HEAD points at in the repository containing
// dir. It returns "" when HEAD is detached or dir is not in a repository.
// A branch without commits yet is still reported.
func FromRepo(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err == git.ErrRepositoryNotExists {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "error opening git repository at %s", dir)
	}
	head, err := repo.Reference(plumbing.HEAD, false)
	if err == plumbing.ErrReferenceNotFound {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "error reading HEAD")
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", nil
	}
	return head.Target().Short(), nil
}

// Options controls Detect.
type Options struct {
	// Explicit values, typically from command-line flags. They take
	// precedence over the environment.
	Branch      string
	Tag         string
	Environment string

	// Trunk marks runs on this branch as primary.
	Trunk string
	// Dir is the checkout consulted when neither flags nor the environment
	// name a branch or tag. Empty skips the lookup.
	Dir string
	// Lookup defaults to os.LookupEnv.
	Lookup LookupFunc
	// Namer generates a RunID when the CI does not supply one.
	Namer moniker.Namer
}

// Detect resolves the execution context with flags first, then the
// environment, then the repository HEAD.
func Detect(opts Options) (gate.ExecutionContext, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	ec := FromEnv(lookup)

	if opts.Branch != "" {
		ec.Branch = opts.Branch
		// The CI's primary flag describes its own branch, not this one.
		ec.Primary = false
	}
	if opts.Tag != "" {
		ec.Tag = opts.Tag
	}
	if opts.Environment != "" {
		ec.Environment = opts.Environment
	}

	if ec.Branch == "" && ec.Tag == "" && opts.Dir != "" {
		branch, err := FromRepo(opts.Dir)
		if err != nil {
			return gate.ExecutionContext{}, err
		}
		ec.Branch = branch
	}

	if opts.Trunk != "" && ec.Branch == opts.Trunk {
		ec.Primary = true
	}

	if ec.RunID == "" {
		namer := opts.Namer
		if namer == nil {
			namer = moniker.New()
		}
		ec.RunID = namer.NameSep("-")
	}
	return ec, nil
}
