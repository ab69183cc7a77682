// Package cel provides a CEL-based condition evaluator for policy_pack
// rules, adapted from a fuller CEL policy environment down to the small
// variable set (tool, arg, argValue) policy_pack rules need.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// maxExpressionLength bounds untrusted policy condition length.
const maxExpressionLength = 1024

// maxCostBudget limits CEL runtime cost to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth bounds parenthesis/bracket/brace nesting.
const maxNestingDepth = 50

// evalTimeout bounds a single evaluation's wall-clock time.
const evalTimeout = 200 * time.Millisecond

// Evaluator compiles and evaluates CEL expressions for policy_pack rule
// conditions.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator builds an Evaluator with a CEL environment exposing "tool",
// "arg", and "argValue" as string variables.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("arg", cel.StringType),
		cel.Variable("argValue", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create policy_pack CEL environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// CompilePolicyPackCondition validates, compiles, and programs a policy_pack
// rule's condition expression.
func (e *Evaluator) CompilePolicyPackCondition(expr string) (cel.Program, error) {
	if expr == "" {
		return nil, errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

// validateNesting rejects pathologically nested expressions.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// EvaluatePolicyPackCondition runs a compiled program against the three
// policy_pack variables, bounded by evalTimeout.
func EvaluatePolicyPackCondition(ctx context.Context, prg cel.Program, tool, arg, argValue string) (bool, error) {
	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	activation := map[string]interface{}{
		"tool":     tool,
		"arg":      arg,
		"argValue": argValue,
	}

	out, _, err := prg.ContextEval(evalCtx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", out.Value())
	}
	return b, nil
}
