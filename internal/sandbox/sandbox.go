// Package sandbox implements SandboxedExpr (spec.md §4.4): evaluating short
// user-supplied predicates and code bodies with no ambient I/O, bounded by
// a wall-clock budget. Grounded on the expr-lang/expr evaluator used by
// _examples/BDNK1-sflowg/runtime/engine/yaml/evaluator.go — expr compiles a
// closed expression tree over a fixed set of bindings with no access to the
// host filesystem, network or environment, which is exactly the "no
// splicing user text into a general-purpose runtime" strategy spec.md's
// Design Notes call for.
package sandbox

import (
	"strings"
	"time"

	"github.com/dukex/operion/internal/domain"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const defaultBudget = 200 * time.Millisecond

// Sandbox evaluates boolean/value expressions and short "code" bodies.
// Stateless; every call is independent and safe for concurrent use.
type Sandbox struct {
	budget time.Duration
}

func New() *Sandbox {
	return &Sandbox{budget: defaultBudget}
}

// WithBudget returns a Sandbox using a custom wall-clock budget, mainly for
// tests exercising SANDBOX_TIMEOUT deterministically.
func (s *Sandbox) WithBudget(d time.Duration) *Sandbox {
	return &Sandbox{budget: d}
}

// Eval compiles and runs source against env. A leading "return" keyword and
// a trailing ";" are stripped so JS-flavoured single-statement bodies like
// `return { value: true }` — the shape spec.md's worked examples use for
// the `code` step — evaluate as a plain expr-lang expression.
func (s *Sandbox) Eval(source string, env map[string]any) (any, error) {
	body := normalize(source)

	program, err := expr.Compile(body, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrSandboxError, "compile", err)
	}

	return s.run(program, env)
}

// EvalBool evaluates source and coerces the result to a boolean the way
// spec.md's condition step does: non-empty/non-zero/non-nil values are
// truthy.
func (s *Sandbox) EvalBool(source string, env map[string]any) (bool, error) {
	result, err := s.Eval(source, env)
	if err != nil {
		return false, err
	}

	return Truthy(result), nil
}

// EvalPredicate evaluates a filter predicate with the three-argument
// binding spec.md §4.3's `filter` step describes: (item, index, array).
func (s *Sandbox) EvalPredicate(source string, item any, index int, array []any, base map[string]any) (bool, error) {
	env := make(map[string]any, len(base)+3)
	for k, v := range base {
		env[k] = v
	}

	env["item"] = item
	env["index"] = index
	env["array"] = array

	return s.EvalBool(source, env)
}

func (s *Sandbox) run(program *vm.Program, env map[string]any) (any, error) {
	type outcome struct {
		value any
		err   error
	}

	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: domain.NewEngineError(domain.ErrSandboxError, "run", panicMessage(r))}
			}
		}()

		value, err := expr.Run(program, env)
		if err != nil {
			resultCh <- outcome{err: domain.WrapEngineError(domain.ErrSandboxError, "run", err)}

			return
		}

		resultCh <- outcome{value: value}
	}()

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-time.After(s.budget):
		return nil, domain.NewEngineError(domain.ErrSandboxTimeout, "run", "sandbox evaluation exceeded its wall-clock budget")
	}
}

func normalize(source string) string {
	body := strings.TrimSpace(source)
	body = strings.TrimSuffix(body, ";")
	body = strings.TrimSpace(body)

	if strings.HasPrefix(body, "return ") {
		body = strings.TrimSpace(strings.TrimPrefix(body, "return "))
	} else if body == "return" {
		body = "nil"
	}

	return body
}

// Truthy converts an arbitrary sandbox result to a boolean using the same
// rules the teacher's conditional node applied to template results.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return true
	}
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}

	return "sandbox panic"
}
