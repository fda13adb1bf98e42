package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/google/uuid"
	shellquote "github.com/kballard/go-shellquote"
)

// ExecError is returned by the execution engine when a child process exits
// non-zero or a recipe/backtick otherwise fails; Code is propagated as the
// runner's own exit status.
type ExecError struct {
	Message string
	Code    int
}

func (e *ExecError) Error() string { return e.Message }

// Invocation is one requested recipe call: its name and positional
// arguments, as grouped by groupArguments.
type Invocation struct {
	Name string
	Args []string
}

// groupArguments splits the positional argument list, left to right, into
// command-line overrides and recipe invocations. A recipe consumes at most
// as many argument tokens as it has parameters (all of them if variadic),
// and a token naming a recipe or alias always starts a new invocation.
func groupArguments(jf *Justfile, positional []string) (overrides map[string]string, invocations []Invocation, err error) {
	overrides = map[string]string{}
	i := 0
	for i < len(positional) && isOverrideToken(positional[i]) {
		name, value, _ := strings.Cut(positional[i], "=")
		if _, ok := jf.Assignments[name]; !ok {
			return nil, nil, &ExecError{Code: 1, Message: fmt.Sprintf("Variables `%s` overridden on the command line but not present in justfile", name)}
		}
		overrides[name] = value
		i++
	}

	var missing []string
	for i < len(positional) {
		name := positional[i]
		i++
		resolved, ok := resolveRecipeName(jf, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		r := jf.Recipes[resolved]
		variadic := false
		for _, p := range r.Params {
			if p.Kind == ParamVariadic {
				variadic = true
			}
		}
		inv := Invocation{Name: resolved}
		for i < len(positional) {
			if !variadic && len(inv.Args) >= len(r.Params) {
				break
			}
			if _, isRecipe := resolveRecipeName(jf, positional[i]); isRecipe {
				break
			}
			inv.Args = append(inv.Args, positional[i])
			i++
		}
		invocations = append(invocations, inv)
	}
	if len(missing) > 0 {
		return nil, nil, unknownRecipesError(jf, missing)
	}

	if len(invocations) == 0 && jf.FirstRecipeName != "" {
		invocations = append(invocations, Invocation{Name: jf.FirstRecipeName})
	}

	return overrides, invocations, nil
}

// resolveRecipeName maps an invocation token to a recipe name, following
// an alias when the token names one.
func resolveRecipeName(jf *Justfile, tok string) (string, bool) {
	if _, ok := jf.Recipes[tok]; ok {
		return tok, true
	}
	if al, ok := jf.Aliases[tok]; ok {
		return al.Target, true
	}
	return tok, false
}

func isOverrideToken(tok string) bool {
	name, _, ok := strings.Cut(tok, "=")
	if !ok || name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if i > 0 && !isIdentCont(r) {
			return false
		}
	}
	return true
}

// bindArguments binds positional args to a recipe's declared parameters,
// producing the Scope overlay for that call. A nil map entry means "no
// argument supplied, fall back to the parameter's default" — distinct from
// a supplied empty string, which wins over the default.
func bindArguments(r *Recipe, args []string) (map[string]*string, error) {
	bound := map[string]*string{}
	required := 0
	hasVariadic := false
	for _, p := range r.Params {
		if p.Kind == ParamRequired {
			required++
		}
		if p.Kind == ParamVariadic {
			hasVariadic = true
		}
	}

	if len(args) < required {
		return nil, &ExecError{Code: 1, Message: fmt.Sprintf("Recipe `%s` got %s but takes %s%d\nusage:\n    just %s", r.Name, argCount(len(args)), minPrefix(hasVariadic || len(r.Params) > required), required, signature(r.Name, r.Params))}
	}
	if !hasVariadic && len(args) > len(r.Params) {
		return nil, &ExecError{Code: 1, Message: fmt.Sprintf("Recipe `%s` got %s but takes %d\nusage:\n    just %s", r.Name, argCount(len(args)), len(r.Params), signature(r.Name, r.Params))}
	}

	idx := 0
	for _, p := range r.Params {
		switch p.Kind {
		case ParamVariadic:
			rest := args[idx:]
			if len(rest) > 0 || p.Default == nil {
				joined := strings.Join(rest, " ")
				bound[p.Name] = &joined
			}
			idx = len(args)
		default:
			if idx < len(args) {
				bound[p.Name] = &args[idx]
				idx++
			}
		}
	}
	return bound, nil
}

// argCount pluralizes "N argument(s)" for the arity error messages.
func argCount(n int) string {
	if n == 1 {
		return "1 argument"
	}
	return fmt.Sprintf("%d arguments", n)
}

// minPrefix renders the "at least " qualifier used whenever the recipe's
// minimum and maximum argument counts differ (defaults or a variadic).
func minPrefix(openEnded bool) string {
	if openEnded {
		return "at least "
	}
	return ""
}

// unknownRecipesError renders the missing-recipe failure: singular with an
// edit-distance suggestion, or the plural `recipes `a` or `b`` form when
// several trailing tokens named nothing.
func unknownRecipesError(jf *Justfile, missing []string) *ExecError {
	if len(missing) == 1 {
		return &ExecError{Code: 1, Message: fmt.Sprintf("Justfile does not contain recipe `%s`.%s", missing[0], suggestRecipe(jf, missing[0]))}
	}
	quoted := make([]string, len(missing))
	for i, m := range missing {
		quoted[i] = "`" + m + "`"
	}
	list := strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
	return &ExecError{Code: 1, Message: fmt.Sprintf("Justfile does not contain recipes %s.", list)}
}

func suggestRecipe(jf *Justfile, name string) string {
	best := ""
	bestDist := 4
	names := make([]string, 0, len(jf.Recipes))
	for n := range jf.Recipes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		d := levenshtein.Distance(name, n, nil)
		if d < bestDist {
			bestDist = d
			best = n
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("\nDid you mean `%s`?", best)
}

// expandDependencies walks the dependency DAG in post-order, de-duplicated
// so each recipe runs at most once; dependencies always run with zero
// args.
func expandDependencies(jf *Justfile, invocations []Invocation) []Invocation {
	seen := map[string]bool{}
	var order []Invocation

	var visitDeps func(name string)
	visitDeps = func(name string) {
		r := jf.Recipes[name]
		for _, dep := range r.Deps {
			if seen[dep.Name] {
				continue
			}
			seen[dep.Name] = true
			visitDeps(dep.Name)
			order = append(order, Invocation{Name: dep.Name})
		}
	}

	for _, inv := range invocations {
		if !seen[inv.Name] {
			seen[inv.Name] = true
			visitDeps(inv.Name)
		} else {
			// Requested explicitly a second time: still dedup against
			// already-planned runs so each recipe executes at most once.
			alreadyPlanned := false
			for _, o := range order {
				if o.Name == inv.Name {
					alreadyPlanned = true
					break
				}
			}
			if alreadyPlanned {
				continue
			}
		}
		order = append(order, inv)
	}
	return order
}

// Engine runs a sequence of Invocations against a Justfile and Scope.
type Engine struct {
	Justfile  *Justfile
	Eval      *Evaluator
	Shell     string
	Quiet     bool
	Verbose   bool
	Highlight bool
	DryRun    bool
	Stdout    io.Writer
	Stderr    io.Writer
	TempDir   string

	// Env carries the child-process environment overlay (exported
	// assignments + dotenv); the parent environment is never mutated.
	Env []string

	// Dir is the effective working directory every recipe line and
	// shebang script runs in (the justfile's directory, or
	// --working-directory).
	Dir string
}

// Run executes every invocation (after dependency expansion) in order,
// returning the first failure.
func (en *Engine) Run(scope Scope, invocations []Invocation) error {
	plan := expandDependencies(en.Justfile, invocations)
	for _, inv := range plan {
		r := en.Justfile.Recipes[inv.Name]
		bound, err := bindArguments(r, inv.Args)
		if err != nil {
			return err
		}
		callScope := scope.clone()
		for _, p := range r.Params {
			if v, ok := bound[p.Name]; ok {
				callScope[p.Name] = *v
				continue
			}
			if p.Default != nil {
				dv, err := en.Eval.Eval(p.Default, callScope)
				if err != nil {
					return err
				}
				callScope[p.Name] = dv
			}
		}

		if en.Verbose {
			fmt.Fprintf(en.Stderr, "===> Running recipe `%s`...\n", r.Name)
		}

		if err := en.runRecipe(r, callScope); err != nil {
			return err
		}
	}
	return nil
}

func (en *Engine) runRecipe(r *Recipe, scope Scope) error {
	if r.Shebang {
		return en.runShebangRecipe(r, scope)
	}

	for _, line := range r.Body {
		if len(line.Fragments) == 0 {
			continue
		}
		quiet := r.Quiet || line.Quiet || en.Quiet

		if en.DryRun {
			preview, err := en.renderLinePreview(line, scope)
			if err != nil {
				return err
			}
			fmt.Fprintln(en.Stderr, preview)
			continue
		}

		text, err := en.renderLine(line, scope)
		if err != nil {
			return err
		}

		if !quiet {
			en.echo(text)
		}

		path, fixedArgs := defaultShellArgs(en.Shell)
		cmd := &shellCommand{Path: path, Args: append(append([]string{}, fixedArgs...), text), Dir: en.Dir, Env: en.Env}
		code, err := cmd.run(en.Stdout, en.stderrFor(quiet))
		if err != nil {
			return &ExecError{Code: 1, Message: err.Error()}
		}
		if code != 0 {
			return &ExecError{Code: code, Message: fmt.Sprintf("Recipe `%s` failed on line %d with exit code %d", r.Name, line.Span.Line, code)}
		}
	}
	return nil
}

func (en *Engine) stderrFor(quiet bool) io.Writer {
	if quiet {
		return io.Discard
	}
	return en.Stderr
}

func (en *Engine) echo(text string) {
	if en.Highlight {
		fmt.Fprintln(en.Stderr, highlightStyle.Render(text))
		return
	}
	fmt.Fprintln(en.Stderr, text)
}

// renderLine evaluates every fragment of a body line and concatenates the
// result into the single command string the shell receives.
func (en *Engine) renderLine(line Line, scope Scope) (string, error) {
	var b strings.Builder
	for _, frag := range line.Fragments {
		if frag.Expr == nil {
			b.WriteString(frag.Text)
			continue
		}
		v, err := en.Eval.Eval(frag.Expr, scope)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// renderLinePreview is renderLine's `--dry-run` counterpart: every
// fragment is evaluated except backtick expressions, which are rendered
// as their literal, unevaluated source text rather than spawning a
// subprocess.
func (en *Engine) renderLinePreview(line Line, scope Scope) (string, error) {
	var b strings.Builder
	for _, frag := range line.Fragments {
		if frag.Expr == nil {
			b.WriteString(frag.Text)
			continue
		}
		v, err := en.Eval.EvalPreview(frag.Expr, scope)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// runShebangRecipe materializes the recipe body to a temp file and
// invokes it through the interpreter the shebang line declares.
func (en *Engine) runShebangRecipe(r *Recipe, scope Scope) error {
	render := en.renderLine
	if en.DryRun {
		render = en.renderLinePreview
	}

	lines := make([]string, len(r.Body))
	for i, line := range r.Body {
		text, err := render(line, scope)
		if err != nil {
			return err
		}
		lines[i] = text
	}

	shebangLine := lines[0]
	interp, argument := parseShebang(shebangLine)
	filename := shebangScriptFilename(interp, r.Name)

	body := lines
	if !includeShebangLine(interp) {
		body = lines[1:]
	}
	content := strings.Join(body, "\n") + "\n"

	if en.DryRun {
		fmt.Fprintf(en.Stderr, "#!%s\n%s", strings.TrimPrefix(shebangLine, "#!"), strings.Join(lines[1:], "\n")+"\n")
		return nil
	}

	tmpDir := en.TempDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	path := filepath.Join(tmpDir, fmt.Sprintf("%s-%s-%s", r.Name, uuid.NewString(), filename))
	if err := os.WriteFile(path, []byte(content), 0o700); err != nil {
		return &ExecError{Code: 1, Message: fmt.Sprintf("Error writing temporary script: %s", err)}
	}
	defer os.Remove(path)

	var args []string
	if argument != "" {
		split, err := shellquote.Split(argument)
		if err != nil {
			args = []string{argument}
		} else {
			args = split
		}
	}
	args = append(args, path)

	if !(r.Quiet || en.Quiet) {
		en.echo(shebangLine)
	}

	cmd := &shellCommand{Path: interp, Args: args, Dir: en.Dir, Env: en.Env}
	code, err := cmd.run(en.Stdout, en.stderrFor(r.Quiet || en.Quiet))
	if err != nil {
		return &ExecError{Code: 1, Message: err.Error()}
	}
	if code != 0 {
		return &ExecError{Code: code, Message: fmt.Sprintf("Recipe `%s` failed on line %d with exit code %d", r.Name, r.Body[0].Span.Line, code)}
	}
	return nil
}

// parseShebang splits a "#!interpreter[ argument]" line on the first run
// of space or tab after the interpreter.
func parseShebang(line string) (interpreter, argument string) {
	rest := strings.TrimPrefix(line, "#!")
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[:idx]
	}
	rest = strings.TrimSpace(rest)
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 0 {
		return "", ""
	}
	// Collapse the first run of whitespace, mirroring Rust's splitn on
	// ' '/'\t': re-split on the first tab too if that occurred earlier.
	interpreter = parts[0]
	if idx := strings.IndexAny(interpreter, "\t"); idx >= 0 {
		argument = strings.TrimSpace(interpreter[idx:] + " " + strings.Join(parts[1:], " "))
		interpreter = interpreter[:idx]
		return interpreter, argument
	}
	if len(parts) == 2 {
		argument = strings.TrimSpace(parts[1])
	}
	return interpreter, argument
}

func interpreterFilename(interp string) string {
	i := strings.LastIndexAny(interp, "/\\")
	if i < 0 {
		return interp
	}
	return interp[i+1:]
}

func shebangScriptFilename(interp, recipeName string) string {
	switch interpreterFilename(interp) {
	case "cmd", "cmd.exe":
		return recipeName + ".bat"
	case "powershell", "powershell.exe":
		return recipeName + ".ps1"
	default:
		return recipeName
	}
}

func includeShebangLine(interp string) bool {
	switch interpreterFilename(interp) {
	case "cmd", "cmd.exe":
		return false
	default:
		return true
	}
}

// FormatEvaluate prints every top-level assignment after evaluation,
// sorted by name, `:=` column-aligned.
func FormatEvaluate(jf *Justfile, scope Scope) string {
	names := make([]string, 0, len(jf.Assignments))
	for n := range jf.Assignments {
		names = append(names, n)
	}
	sort.Strings(names)

	width := 0
	for _, n := range names {
		if len(n) > width {
			width = len(n)
		}
	}

	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%-*s := %s\n", width, n, strconv.Quote(scope[n]))
	}
	return b.String()
}
