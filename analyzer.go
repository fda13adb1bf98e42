package main

import "sort"

// Justfile is the fully analyzed buildfile: resolved name→node maps plus
// the dependency/variable graphs needed for evaluation and execution
// order.
type Justfile struct {
	Assignments map[string]*Assignment
	Recipes     map[string]*Recipe
	Aliases     map[string]*Alias
	Settings    map[string]*Setting

	// AssignOrder is the topological evaluation order for Assignments,
	// computed once so the evaluator never has to re-derive it.
	AssignOrder []string

	FirstRecipeName string
	Source          *File
}

// analyzer accumulates the Justfile and its diagnostics: nodes are
// collected first, then validated in a fixed sequence of passes, since the
// grammar has two independent acyclic graphs (recipe dependencies and
// variable references) to check.
type analyzer struct {
	file *File
	jf   *Justfile
	err  *Diagnostic

	// firstLine records the 1-based source line a name was first defined on,
	// for "first defined on line L is redefined on line M" messages.
	recipeLine map[string]int
	aliasLine  map[string]int
}

// Analyze builds a Justfile from a parsed AST, enforcing the
// name-uniqueness, reference, parameter and acyclicity invariants. Returns
// the first diagnostic encountered; analysis stops eagerly like the parser
// does.
func Analyze(ast *AST) (*Justfile, *Diagnostic) {
	a := &analyzer{
		file:       ast.Source,
		recipeLine: map[string]int{},
		aliasLine:  map[string]int{},
		jf: &Justfile{
			Assignments: map[string]*Assignment{},
			Recipes:     map[string]*Recipe{},
			Aliases:     map[string]*Alias{},
			Settings:    map[string]*Setting{},
			Source:      ast.Source,
		},
	}

	for _, item := range ast.Items {
		switch {
		case item.Assignment != nil:
			a.addAssignment(item.Assignment)
		case item.Recipe != nil:
			a.addRecipe(item.Recipe)
		case item.Alias != nil:
			a.addAlias(item.Alias)
		case item.Setting != nil:
			a.jf.Settings[item.Setting.Name] = item.Setting
		}
		if a.err != nil {
			return nil, a.err
		}
	}

	a.checkAliasTargets()
	if a.err != nil {
		return nil, a.err
	}
	a.checkDependencies()
	if a.err != nil {
		return nil, a.err
	}
	a.checkRecipeDAG()
	if a.err != nil {
		return nil, a.err
	}
	a.checkParameters()
	if a.err != nil {
		return nil, a.err
	}
	a.checkVariables()
	if a.err != nil {
		return nil, a.err
	}
	a.checkRecipeVariables()
	if a.err != nil {
		return nil, a.err
	}
	a.checkCalls()
	if a.err != nil {
		return nil, a.err
	}

	for _, item := range ast.Items {
		if item.Recipe != nil {
			a.jf.FirstRecipeName = item.Recipe.Name
			break
		}
	}

	return a.jf, nil
}

func (a *analyzer) fail(span Span, format string, args ...any) {
	if a.err == nil {
		a.err = errorAt(a.file, span, format, args...)
	}
}

func (a *analyzer) addAssignment(assign *Assignment) {
	if _, ok := a.jf.Assignments[assign.Name]; ok {
		a.fail(assign.NameSpan, "Variable `%s` has multiple definitions", assign.Name)
		return
	}
	a.jf.Assignments[assign.Name] = assign
}

func (a *analyzer) addRecipe(r *Recipe) {
	if line, ok := a.recipeLine[r.Name]; ok {
		a.fail(r.NameSpan, "Recipe `%s` first defined on line %d is redefined on line %d", r.Name, line, r.NameSpan.Line)
		return
	}
	a.recipeLine[r.Name] = r.NameSpan.Line
	a.jf.Recipes[r.Name] = r
}

func (a *analyzer) addAlias(al *Alias) {
	if line, ok := a.aliasLine[al.Name]; ok {
		a.fail(al.NameSpan, "Alias `%s` first defined on line %d is redefined on line %d", al.Name, line, al.NameSpan.Line)
		return
	}
	a.aliasLine[al.Name] = al.NameSpan.Line
	a.jf.Aliases[al.Name] = al
}

func (a *analyzer) checkAliasTargets() {
	names := make([]string, 0, len(a.jf.Aliases))
	for n := range a.jf.Aliases {
		names = append(names, n)
	}
	sortByLine(names, func(n string) int { return a.jf.Aliases[n].NameSpan.Line })
	for _, n := range names {
		al := a.jf.Aliases[n]
		if _, ok := a.jf.Recipes[al.Target]; !ok {
			a.fail(al.TargetSpan, "Alias `%s` has an unknown target `%s`", al.Name, al.Target)
			return
		}
		if line, ok := a.recipeLine[al.Name]; ok {
			a.fail(al.NameSpan, "Alias `%s` defined on %d shadows recipe defined on %d", al.Name, al.NameSpan.Line, line)
			return
		}
	}
}

func (a *analyzer) checkDependencies() {
	for _, name := range recipeNamesInSourceOrder(a.jf) {
		r := a.jf.Recipes[name]
		seen := map[string]bool{}
		for _, dep := range r.Deps {
			if seen[dep.Name] {
				a.fail(dep.Span, "Recipe `%s` has duplicate dependency `%s`", r.Name, dep.Name)
				return
			}
			seen[dep.Name] = true
			if dep.Name == r.Name {
				a.fail(dep.Span, "Recipe `%s` depends on itself", r.Name)
				return
			}
			dr, ok := a.jf.Recipes[dep.Name]
			if !ok {
				a.fail(dep.Span, "Recipe `%s` has unknown dependency `%s`", r.Name, dep.Name)
				return
			}
			if requiresArgs(dr) {
				a.fail(dep.Span, "Recipe `%s` depends on `%s` which requires arguments. Dependencies may not require arguments", r.Name, dep.Name)
				return
			}
		}
	}
}

func requiresArgs(r *Recipe) bool {
	for _, p := range r.Params {
		if p.Kind == ParamRequired {
			return true
		}
	}
	return false
}

// checkRecipeDAG performs cycle detection over the recipe-dependency
// graph with a white/gray/black coloring DFS, reporting the full cycle
// path starting at the first node reached in source order.
func (a *analyzer) checkRecipeDAG() {
	const (
		white = iota
		gray
		black
	)
	color := map[string]int{}
	var path []string

	// culpritName/culpritSpan pin the specific dependency edge that closes
	// the cycle (the recipe whose dependency list names an already-gray
	// ancestor), captured the first time a visit call unwinds with
	// failure: innermost first, so an outer ancestor further up the same
	// chain never overwrites it.
	var culpritName string
	var culpritSpan Span
	var culpritSet bool

	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case black:
			return true
		case gray:
			path = append(path, name)
			return false
		}
		color[name] = gray
		path = append(path, name)
		r := a.jf.Recipes[name]
		for _, dep := range r.Deps {
			if !visit(dep.Name) {
				if !culpritSet {
					culpritSet = true
					culpritName = name
					culpritSpan = dep.Span
				}
				return false
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return true
	}

	for _, name := range recipeNamesInSourceOrder(a.jf) {
		if color[name] != white {
			continue
		}
		path = nil
		culpritSet = false
		if !visit(name) {
			a.fail(culpritSpan, "Recipe `%s` has circular dependency `%s`", culpritName, cyclePath(path))
			return
		}
	}
}

// recipeNamesInSourceOrder returns recipe names ordered by definition line,
// so cycle detection (and any other map-driven pass that must pick a
// deterministic starting node) doesn't depend on Go's randomized map
// iteration order.
func recipeNamesInSourceOrder(jf *Justfile) []string {
	names := make([]string, 0, len(jf.Recipes))
	for n := range jf.Recipes {
		names = append(names, n)
	}
	sortByLine(names, func(n string) int { return jf.Recipes[n].NameSpan.Line })
	return names
}

// sortByLine sorts names in place by an arbitrary integer key, the
// qualifier used wherever a map's iteration order must be replaced by the
// recipes'/assignments' original source order.
func sortByLine(names []string, lineOf func(string) int) {
	sort.Slice(names, func(i, j int) bool { return lineOf(names[i]) < lineOf(names[j]) })
}

func cyclePath(path []string) string {
	s := ""
	for i, n := range path {
		if i > 0 {
			s += " -> "
		}
		s += n
	}
	return s
}

func (a *analyzer) checkParameters() {
	for _, name := range recipeNamesInSourceOrder(a.jf) {
		r := a.jf.Recipes[name]
		seen := map[string]bool{}
		sawDefault := false
		sawVariadic := false
		for _, p := range r.Params {
			if seen[p.Name] {
				a.fail(p.Span, "Recipe `%s` has duplicate parameter `%s`", r.Name, p.Name)
				return
			}
			seen[p.Name] = true
			if sawVariadic {
				a.fail(p.Span, "Parameter `%s` follows variadic parameter", p.Name)
				return
			}
			if p.Kind == ParamRequired && sawDefault {
				a.fail(p.Span, "Non-default parameter `%s` follows default parameter", p.Name)
				return
			}
			if p.Kind == ParamDefault {
				sawDefault = true
			}
			if p.Kind == ParamVariadic {
				sawVariadic = true
			}
			if _, ok := a.jf.Assignments[p.Name]; ok {
				a.fail(p.Span, "Parameter `%s` shadows variable of the same name", p.Name)
				return
			}
		}
	}
}

// checkVariables validates the variable-reference graph: every Variable
// expression resolves, and the reference graph (assignment -> variables it
// mentions) is acyclic. Also computes Justfile.AssignOrder.
func (a *analyzer) checkVariables() {
	deps := map[string][]string{}
	for _, name := range sortedByLine(a.jf.Assignments) {
		assign := a.jf.Assignments[name]
		var names []string
		collectVarRefs(assign.Value, &names)
		for _, ref := range names {
			if _, ok := a.jf.Assignments[ref]; !ok {
				a.fail(assign.NameSpan, "Variable `%s` not defined", ref)
				return
			}
		}
		deps[name] = names
	}

	const (
		white = iota
		gray
		black
	)
	color := map[string]int{}
	var path []string
	var order []string

	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case black:
			return true
		case gray:
			path = append(path, name)
			return false
		}
		color[name] = gray
		path = append(path, name)
		for _, dep := range deps[name] {
			if dep == name {
				return false
			}
			if !visit(dep) {
				return false
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		order = append(order, name)
		return true
	}

	// Iterate in a stable order (by NameSpan.Line) so cycle-start and
	// evaluation order are deterministic run to run.
	for _, name := range sortedByLine(a.jf.Assignments) {
		if color[name] != white {
			continue
		}
		path = nil
		if !visit(name) {
			span := a.jf.Assignments[name].NameSpan
			if len(path) == 1 && path[0] == name {
				a.fail(span, "Variable `%s` is defined in terms of itself", name)
			} else {
				a.fail(span, "Variable `%s` depends on its own value: `%s`", name, cyclePath(path))
			}
			return
		}
	}

	a.jf.AssignOrder = order
}

func sortedByLine(m map[string]*Assignment) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && m[names[j-1]].NameSpan.Line > m[names[j]].NameSpan.Line; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

// checkRecipeVariables resolves every variable reference appearing inside a
// recipe — parameter defaults and body-line interpolations — against the
// top-level assignments plus that recipe's own parameters, so an undefined
// name is a compile-time diagnostic with a span even when the recipe is
// never invoked.
func (a *analyzer) checkRecipeVariables() {
	for _, name := range recipeNamesInSourceOrder(a.jf) {
		r := a.jf.Recipes[name]
		params := map[string]bool{}
		for _, p := range r.Params {
			params[p.Name] = true
		}
		check := func(e Expression) bool {
			if v := firstUnresolvedVariable(e, a.jf.Assignments, params); v != nil {
				a.fail(v.Span, "Variable `%s` not defined", v.Name)
				return false
			}
			return true
		}
		for _, p := range r.Params {
			if p.Default != nil && !check(p.Default) {
				return
			}
		}
		for _, line := range r.Body {
			for _, frag := range line.Fragments {
				if frag.Expr != nil && !check(frag.Expr) {
					return
				}
			}
		}
	}
}

// firstUnresolvedVariable returns the first VariableExpr in e (source order)
// that names neither a top-level assignment nor a parameter.
func firstUnresolvedVariable(e Expression, assignments map[string]*Assignment, params map[string]bool) *VariableExpr {
	switch v := e.(type) {
	case *VariableExpr:
		if _, ok := assignments[v.Name]; !ok && !params[v.Name] {
			return v
		}
	case *ConcatExpr:
		if u := firstUnresolvedVariable(v.Left, assignments, params); u != nil {
			return u
		}
		return firstUnresolvedVariable(v.Right, assignments, params)
	case *GroupExpr:
		return firstUnresolvedVariable(v.Inner, assignments, params)
	case *CallExpr:
		for _, arg := range v.Args {
			if u := firstUnresolvedVariable(arg, assignments, params); u != nil {
				return u
			}
		}
	}
	return nil
}

func collectVarRefs(e Expression, out *[]string) {
	switch v := e.(type) {
	case *VariableExpr:
		*out = append(*out, v.Name)
	case *ConcatExpr:
		collectVarRefs(v.Left, out)
		collectVarRefs(v.Right, out)
	case *GroupExpr:
		collectVarRefs(v.Inner, out)
	case *CallExpr:
		for _, arg := range v.Args {
			collectVarRefs(arg, out)
		}
	}
}

func (a *analyzer) checkCalls() {
	check := func(e Expression) bool {
		ok := true
		var walk func(Expression)
		walk = func(e Expression) {
			if !ok {
				return
			}
			switch v := e.(type) {
			case *CallExpr:
				fn, exists := builtinTable[v.Function]
				if !exists {
					a.fail(v.Span, "Call to unknown function `%s`", v.Function)
					ok = false
					return
				}
				if !fn.arityMatches(len(v.Args)) {
					a.fail(v.Span, "Function `%s` expects %s but got %d arguments", v.Function, fn.arityDesc(), len(v.Args))
					ok = false
					return
				}
				for _, arg := range v.Args {
					walk(arg)
				}
			case *ConcatExpr:
				walk(v.Left)
				walk(v.Right)
			case *GroupExpr:
				walk(v.Inner)
			}
		}
		walk(e)
		return ok
	}

	for _, name := range sortedByLine(a.jf.Assignments) {
		if !check(a.jf.Assignments[name].Value) {
			return
		}
	}
	for _, name := range recipeNamesInSourceOrder(a.jf) {
		r := a.jf.Recipes[name]
		for _, p := range r.Params {
			if p.Default != nil && !check(p.Default) {
				return
			}
		}
		for _, line := range r.Body {
			for _, frag := range line.Fragments {
				if frag.Expr != nil && !check(frag.Expr) {
					return
				}
			}
		}
	}
}
