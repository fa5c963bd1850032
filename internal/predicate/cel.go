package predicate

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/pkg/errors"

	"github.com/dmitriyb/stagegate/internal/gate"
)

// maxExpressionLen bounds the source length of a CEL expression.
const maxExpressionLen = 10000

// Expression is a compiled CEL condition over an execution context.
//
// Available variables: branch, tag, change_id, change_target, environment,
// run_id (strings) and primary (bool).
type Expression struct {
	source string
	prg    cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("branch", cel.StringType),
		cel.Variable("tag", cel.StringType),
		cel.Variable("change_id", cel.StringType),
		cel.Variable("change_target", cel.StringType),
		cel.Variable("primary", cel.BoolType),
		cel.Variable("environment", cel.StringType),
		cel.Variable("run_id", cel.StringType),
	)
}

// Compile parses and type-checks expr. The expression must yield a bool.
func Compile(expr string) (*Expression, error) {
	if len(expr) > maxExpressionLen {
		return nil, errors.Errorf("CEL expression too complex: exceeds %d characters", maxExpressionLen)
	}
	env, err := newEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL environment")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "failed to compile CEL expression")
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("CEL expression must return a boolean, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL program")
	}
	return &Expression{source: expr, prg: prg}, nil
}

// String returns the expression source.
func (e *Expression) String() string {
	return e.source
}

// Eval evaluates the expression against ec.
func (e *Expression) Eval(ec gate.ExecutionContext) (bool, error) {
	out, _, err := e.prg.Eval(map[string]any{
		"branch":        ec.Branch,
		"tag":           ec.Tag,
		"change_id":     ec.ChangeID,
		"change_target": ec.ChangeTarget,
		"primary":       ec.Primary,
		"environment":   ec.Environment,
		"run_id":        ec.RunID,
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to evaluate %q", e.source)
	}
	result, ok := out.(types.Bool)
	if !ok {
		return false, errors.Errorf("CEL expression must return a boolean, got %T", out)
	}
	return bool(result), nil
}

// Predicate adapts e to a gate.BranchPredicate. An evaluation error denies
// the stage.
func (e *Expression) Predicate() gate.BranchPredicate {
	return func(ec gate.ExecutionContext) bool {
		ok, err := e.Eval(ec)
		return err == nil && ok
	}
}
