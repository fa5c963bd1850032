package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dmitriyb/stagegate/internal/config"
	"github.com/dmitriyb/stagegate/internal/gate"
	"github.com/dmitriyb/stagegate/internal/plan"
	"github.com/dmitriyb/stagegate/internal/runctx"
	"github.com/dmitriyb/stagegate/internal/version"
)

// loaded is everything a command needs after checkout.
type loaded struct {
	def    *config.Pipeline
	stages gate.StageConfig
	marker string
}

// load reads and validates the definition, then parses the marker file.
// Failures are logged here and reported as errReported.
func (o *options) load() (*loaded, error) {
	logger := o.logger

	path, err := homedir.Expand(o.definition)
	if err != nil {
		logger.Error("failed to resolve definition path", "path", o.definition, "error", err)
		return nil, errReported
	}
	def, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load definition", "error", err)
		return nil, errReported
	}
	if err := config.Validate(def); err != nil {
		logger.Error("definition validation failed", "path", path, "error", err)
		return nil, errReported
	}

	name := def.Marker
	if o.marker != "" {
		name = o.marker
	}
	markerPath := filepath.Join(o.dir, name)
	stages, err := readMarker(markerPath, def.DefaultsTable())
	if err != nil {
		logger.Error("failed to load marker file", "error", err)
		return nil, errReported
	}
	logger.Debug("marker loaded", "path", markerPath, "keys", stages.Len())
	return &loaded{def: def, stages: stages, marker: markerPath}, nil
}

func readMarker(path string, defaults gate.Defaults) (gate.StageConfig, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return gate.StageConfig{}, errors.Errorf("marker file %s not found; the branch is not onboarded", path)
	}
	if err != nil {
		return gate.StageConfig{}, errors.Wrapf(err, "error reading marker file %s", path)
	}
	stages, err := gate.Load(contents, defaults)
	if err != nil {
		return gate.StageConfig{}, errors.Wrapf(err, "error parsing marker file %s", path)
	}
	return stages, nil
}

// decide loads everything and evaluates every stage for this run.
func (o *options) decide() ([]plan.Decision, error) {
	l, err := o.load()
	if err != nil {
		return nil, err
	}
	ec, err := runctx.Detect(runctx.Options{
		Branch:      o.branch,
		Tag:         o.tag,
		Environment: o.environment,
		Trunk:       l.def.Trunk,
		Dir:         o.dir,
		Lookup:      o.lookup,
	})
	if err != nil {
		o.logger.Error("failed to detect execution context", "error", err)
		return nil, errReported
	}
	o.logger = o.logger.With("run", ec.RunID)
	o.logger.Debug("execution context", "branch", ec.Branch, "tag", ec.Tag,
		"primary", ec.Primary, "environment", ec.Environment)

	decisions, err := plan.Evaluate(l.def, l.stages, ec, o.logger)
	if err != nil {
		o.logger.Error("failed to evaluate stages", "error", err)
		return nil, errReported
	}
	return decisions, nil
}

func newValidateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline definition and the marker file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := o.load(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
}

func newPlanCmd(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which stages run for this branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "json" {
				return errors.Errorf("unknown output format %q; use table or json", output)
			}
			decisions, err := o.decide()
			if err != nil {
				return err
			}
			if output == "json" {
				return plan.WriteJSON(cmd.OutOrStdout(), decisions)
			}
			plan.WriteTable(cmd.OutOrStdout(), decisions)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

func newCheckCmd(o *options) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "check STAGE",
		Short: "Exit 0 when STAGE runs, 3 when it is skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decisions, err := o.decide()
			if err != nil {
				return err
			}
			d, ok := plan.Find(decisions, args[0])
			if !ok {
				o.logger.Error("unknown stage", "stage", args[0])
				return errReported
			}
			if !d.Run {
				if verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "skip %s: %s\n", d.Stage, d.Reason)
				}
				return errSkipped
			}
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", d.Stage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the decision")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stagegate %s\n", version.String())
		},
	}
}
