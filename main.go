package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitriyb/stagegate/internal/config"
	"github.com/dmitriyb/stagegate/internal/version"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitSkipped = 3 // check: the stage must not run
)

var (
	// errReported is returned by commands that already logged the cause.
	errReported = errors.New("command failed")
	// errSkipped is returned by check when the stage is gated off.
	errSkipped = errors.New("stage skipped")
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds the persistent flags and the state derived from them.
type options struct {
	definition  string
	dir         string
	marker      string
	branch      string
	tag         string
	environment string
	logLevel    string

	lookup func(string) (string, bool)
	logger *slog.Logger
}

// run parses flags and dispatches to the appropriate subcommand.
// It returns the exit code. Extracted from main() for testability.
func run(args []string, stdout, stderr io.Writer) int {
	opts := &options{lookup: os.LookupEnv}
	root := newRootCmd(opts, stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errSkipped):
		return exitSkipped
	case errors.Is(err, errReported):
		return exitError
	default:
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return exitError
	}
}

func newRootCmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "stagegate",
		Short: "Decide which pipeline stages run for this branch",
		Long: `stagegate reads the marker file of a checked-out branch, merges it with
the defaults of a pipeline definition and decides which stages may run.`,
		Version:       version.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = config.InitLogging(opts.logLevel, stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
			return errors.New("a subcommand is required")
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.PersistentFlags()
	f.StringVarP(&opts.definition, "definition", "d", config.DefaultFile, "pipeline definition file")
	f.StringVar(&opts.dir, "dir", ".", "checked-out repository")
	f.StringVar(&opts.marker, "marker", "", "marker file name, overrides the definition")
	f.StringVar(&opts.branch, "branch", "", "branch being built, overrides the environment")
	f.StringVar(&opts.tag, "tag", "", "tag being built, overrides the environment")
	f.StringVar(&opts.environment, "environment", "", "target environment, overrides the environment")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")

	root.AddCommand(
		newValidateCmd(opts),
		newPlanCmd(opts),
		newCheckCmd(opts),
		newVersionCmd(),
	)
	return root
}
