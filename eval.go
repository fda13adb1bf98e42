package main

import (
	"fmt"
	"io"
	"strings"
)

// Scope is the evaluation-time name→string environment, built from
// top-level assignments and overlaid with command-line overrides and
// per-recipe parameter bindings.
type Scope map[string]string

func (s Scope) clone() Scope {
	out := make(Scope, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Evaluator threads everything expression evaluation needs: the function
// context for builtins, the shell to invoke for backticks, and where to
// stream backtick stderr.
type Evaluator struct {
	Functions *FunctionContext
	Shell     string
	Quiet     bool
	Stderr    io.Writer

	// File is the source handle backtick-failure diagnostics render
	// against, so the caret points at the failing backtick's span.
	File *File

	// Env carries the child-process environment overlay (exported
	// assignments + dotenv); backticks spawn subprocesses just like recipe
	// lines do and must see the same overlay.
	Env []string

	// Dir is the effective working directory (the justfile's directory,
	// or --working-directory) every backtick subprocess runs in.
	Dir string
}

// BuildScope evaluates every top-level assignment in topological order.
// Overrides are applied first and short-circuit evaluation of that
// assignment's expression entirely (backticks included).
func (e *Evaluator) BuildScope(jf *Justfile, overrides map[string]string) (Scope, error) {
	scope := Scope{}
	for _, name := range jf.AssignOrder {
		if v, ok := overrides[name]; ok {
			scope[name] = v
			continue
		}
		assign := jf.Assignments[name]
		v, err := e.Eval(assign.Value, scope)
		if err != nil {
			return nil, err
		}
		scope[name] = v
	}
	return scope, nil
}

// Eval evaluates an expression to its string value under scope.
func (e *Evaluator) Eval(expr Expression, scope Scope) (string, error) {
	switch x := expr.(type) {
	case *StringLiteral:
		return x.Cooked, nil

	case *VariableExpr:
		v, ok := scope[x.Name]
		if !ok {
			return "", fmt.Errorf("Variable `%s` not defined", x.Name)
		}
		return v, nil

	case *ConcatExpr:
		left, err := e.Eval(x.Left, scope)
		if err != nil {
			return "", err
		}
		right, err := e.Eval(x.Right, scope)
		if err != nil {
			return "", err
		}
		return left + right, nil

	case *GroupExpr:
		return e.Eval(x.Inner, scope)

	case *CallExpr:
		fn := builtinTable[x.Function]
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			v, err := e.Eval(a, scope)
			if err != nil {
				return "", err
			}
			args[i] = v
		}
		v, err := fn.call(e.Functions, args)
		if err != nil {
			return "", fmt.Errorf("Call to function `%s` failed: %s", x.Function, err)
		}
		return v, nil

	case *Backtick:
		return e.evalBacktick(x, scope)

	default:
		return "", fmt.Errorf("Internal error, this may indicate a bug in joust: unhandled expression type %T\nconsider filing an issue: https://github.com/sammcj/joust/issues/new", expr)
	}
}

// EvalPreview evaluates an expression the same way Eval does, except a
// Backtick sub-expression is rendered as its literal, unevaluated source
// text (`` `command` ``) instead of spawning a subprocess — the rendering
// `--dry-run` uses for recipe lines.
func (e *Evaluator) EvalPreview(expr Expression, scope Scope) (string, error) {
	switch x := expr.(type) {
	case *Backtick:
		return "`" + x.Command + "`", nil

	case *ConcatExpr:
		left, err := e.EvalPreview(x.Left, scope)
		if err != nil {
			return "", err
		}
		right, err := e.EvalPreview(x.Right, scope)
		if err != nil {
			return "", err
		}
		return left + right, nil

	case *GroupExpr:
		return e.EvalPreview(x.Inner, scope)

	case *CallExpr:
		fn := builtinTable[x.Function]
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			v, err := e.EvalPreview(a, scope)
			if err != nil {
				return "", err
			}
			args[i] = v
		}
		v, err := fn.call(e.Functions, args)
		if err != nil {
			return "", fmt.Errorf("Call to function `%s` failed: %s", x.Function, err)
		}
		return v, nil

	default:
		return e.Eval(expr, scope)
	}
}

// evalBacktick invokes the configured shell with the backtick body as its
// script and returns stdout with exactly one trailing newline stripped.
// The command text is taken verbatim; it is never itself re-interpolated.
func (e *Evaluator) evalBacktick(b *Backtick, scope Scope) (string, error) {
	path, fixedArgs := defaultShellArgs(e.Shell)
	cmd := &shellCommand{Path: path, Args: append(append([]string{}, fixedArgs...), b.Command), Dir: e.Dir, Env: e.Env}

	var stderr io.Writer = e.Stderr
	if e.Quiet {
		stderr = io.Discard
	}

	out, code, err := cmd.captureOutput(stderr)
	if err != nil {
		return "", fmt.Errorf("Backtick failed: %s", err)
	}
	if code != 0 {
		be := &backtickError{code: code}
		if e.File != nil && b.Span.Len > 0 {
			be.diag = errorAt(e.File, b.Span, "Backtick failed with exit code %d", code)
		}
		return "", be
	}
	return trimOneTrailingNewline(out), nil
}

// backtickError carries the failing exit code so the caller can propagate
// it verbatim as the process exit status, plus the span-anchored
// diagnostic pointing at the backtick itself when source is available.
type backtickError struct {
	code int
	diag *Diagnostic
}

func (e *backtickError) Error() string {
	return fmt.Sprintf("Backtick failed with exit code %d", e.code)
}

func (e *backtickError) ExitCode() int { return e.code }

// trimOneTrailingNewline removes a single trailing "\n" (and a preceding
// "\r" if present), leaving any further trailing newlines untouched.
func trimOneTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	if strings.HasSuffix(s, "\n") {
		return s[:len(s)-1]
	}
	return s
}
