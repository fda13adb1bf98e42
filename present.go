package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
)

// signature renders a recipe's name and parameters using their source
// spelling, the form `--list` rows and `usage:` lines share.
func signature(name string, params []Parameter) string {
	var b strings.Builder
	b.WriteString(name)
	for _, p := range params {
		b.WriteByte(' ')
		switch p.Kind {
		case ParamVariadic:
			b.WriteByte('+')
			b.WriteString(p.Name)
			if p.Default != nil {
				b.WriteString("=" + literalSpelling(p.Default))
			}
		case ParamDefault:
			b.WriteString(p.Name)
			b.WriteString("=" + literalSpelling(p.Default))
		default:
			b.WriteString(p.Name)
		}
	}
	return b.String()
}

func literalSpelling(e Expression) string {
	if s, ok := e.(*StringLiteral); ok {
		if s.Raw {
			return "'" + s.Cooked + "'"
		}
		return strconv.Quote(s.Cooked)
	}
	return ""
}

type listingRow struct {
	signature string
	doc       string
	isAlias   bool
	aliasFor  string
}

// FormatList renders the `--list` output: one row per non-private recipe,
// aliases following their target, doc comments column-aligned.
func FormatList(jf *Justfile) string {
	names := make([]string, 0, len(jf.Recipes))
	for n := range jf.Recipes {
		if strings.HasPrefix(n, "_") {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	aliasesByTarget := map[string][]string{}
	for name, al := range jf.Aliases {
		if strings.HasPrefix(name, "_") {
			continue
		}
		aliasesByTarget[al.Target] = append(aliasesByTarget[al.Target], name)
	}
	for target := range aliasesByTarget {
		sort.Strings(aliasesByTarget[target])
	}

	var rows []listingRow
	for _, name := range names {
		r := jf.Recipes[name]
		rows = append(rows, listingRow{signature: signature(r.Name, r.Params), doc: r.Doc})
		for _, aliasName := range aliasesByTarget[name] {
			al := jf.Aliases[aliasName]
			rows = append(rows, listingRow{
				signature: signature(al.Name, nil),
				isAlias:   true,
				aliasFor:  al.Target,
			})
		}
	}

	width := 0
	for _, row := range rows {
		if len(row.signature) > width {
			width = len(row.signature)
		}
	}

	var b strings.Builder
	b.WriteString("Available recipes:\n")
	for _, row := range rows {
		b.WriteString("    ")
		b.WriteString(row.signature)
		switch {
		case row.isAlias:
			fmt.Fprintf(&b, "%s# alias for `%s`\n", strings.Repeat(" ", width-len(row.signature)+1), row.aliasFor)
		case row.doc != "":
			fmt.Fprintf(&b, "%s# %s\n", strings.Repeat(" ", width-len(row.signature)+2), row.doc)
		default:
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// FormatSummary implements `--summary`: non-private recipe names,
// space-separated, sorted.
func FormatSummary(jf *Justfile) string {
	names := make([]string, 0, len(jf.Recipes))
	for n := range jf.Recipes {
		if strings.HasPrefix(n, "_") {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

// ShowRecipe implements `--show NAME`: the canonical form of the recipe
// (and any aliases pointing at it), or a Damerau-Levenshtein suggestion
// when NAME is unknown.
func ShowRecipe(jf *Justfile, name string) (string, error) {
	r, ok := jf.Recipes[name]
	if !ok {
		msg := fmt.Sprintf("Justfile does not contain recipe `%s`.", name)
		if s := bestSuggestion(jf, name); s != "" {
			msg += fmt.Sprintf("\nDid you mean `%s`?", s)
		}
		return "", fmt.Errorf("%s", msg)
	}

	var b strings.Builder
	aliasNames := make([]string, 0, len(jf.Aliases))
	for n, al := range jf.Aliases {
		if al.Target == name {
			aliasNames = append(aliasNames, n)
		}
	}
	sort.Strings(aliasNames)
	for _, n := range aliasNames {
		fmt.Fprintf(&b, "alias %s := %s\n", n, name)
	}
	b.WriteString(dumpRecipe(r))
	return b.String(), nil
}

func bestSuggestion(jf *Justfile, name string) string {
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
	return best
}

// Dump renders the canonical pretty-print of the whole Justfile, in a form
// whose re-parse-then-dump is idempotent (the round-trip property tested
// in engine_test.go / present_test.go).
func Dump(jf *Justfile) string {
	var b strings.Builder
	settingNames := make([]string, 0, len(jf.Settings))
	for n := range jf.Settings {
		settingNames = append(settingNames, n)
	}
	sort.Strings(settingNames)
	for _, n := range settingNames {
		s := jf.Settings[n]
		if s.Value == nil {
			fmt.Fprintf(&b, "set %s\n", s.Name)
		} else {
			fmt.Fprintf(&b, "set %s := %s\n", s.Name, dumpExpr(s.Value))
		}
	}
	if len(jf.Settings) > 0 {
		b.WriteByte('\n')
	}

	for _, name := range sortedByLine(jf.Assignments) {
		a := jf.Assignments[name]
		if a.Exported {
			b.WriteString("export ")
		}
		fmt.Fprintf(&b, "%s := %s\n", a.Name, dumpExpr(a.Value))
	}
	if len(jf.Assignments) > 0 {
		b.WriteByte('\n')
	}

	aliasNames := make([]string, 0, len(jf.Aliases))
	for n := range jf.Aliases {
		aliasNames = append(aliasNames, n)
	}
	sort.Strings(aliasNames)
	for _, n := range aliasNames {
		al := jf.Aliases[n]
		fmt.Fprintf(&b, "alias %s := %s\n", al.Name, al.Target)
	}
	if len(jf.Aliases) > 0 {
		b.WriteByte('\n')
	}

	recipeNames := make([]string, 0, len(jf.Recipes))
	for n := range jf.Recipes {
		recipeNames = append(recipeNames, n)
	}
	sort.Slice(recipeNames, func(i, j int) bool {
		return jf.Recipes[recipeNames[i]].NameSpan.Line < jf.Recipes[recipeNames[j]].NameSpan.Line
	})
	for i, n := range recipeNames {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(dumpRecipe(jf.Recipes[n]))
	}
	return b.String()
}

func dumpRecipe(r *Recipe) string {
	var b strings.Builder
	if r.Quiet {
		b.WriteByte('@')
	}
	b.WriteString(signature(r.Name, r.Params))
	b.WriteByte(':')
	for _, d := range r.Deps {
		b.WriteByte(' ')
		b.WriteString(d.Name)
	}
	b.WriteByte('\n')
	for _, line := range r.Body {
		if len(line.Fragments) == 0 && !line.Quiet {
			b.WriteByte('\n')
			continue
		}
		b.WriteString("    ")
		if line.Quiet {
			b.WriteByte('@')
		}
		for _, frag := range line.Fragments {
			if frag.Expr != nil {
				b.WriteString("{{" + dumpExpr(frag.Expr) + "}}")
			} else {
				b.WriteString(frag.Text)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func dumpExpr(e Expression) string {
	switch x := e.(type) {
	case *StringLiteral:
		if x.Raw {
			return "'" + x.Cooked + "'"
		}
		return strconv.Quote(x.Cooked)
	case *Backtick:
		return "`" + x.Command + "`"
	case *VariableExpr:
		return x.Name
	case *ConcatExpr:
		return dumpExpr(x.Left) + " + " + dumpExpr(x.Right)
	case *GroupExpr:
		return "(" + dumpExpr(x.Inner) + ")"
	case *CallExpr:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = dumpExpr(a)
		}
		return x.Function + "(" + strings.Join(args, ", ") + ")"
	default:
		return ""
	}
}
