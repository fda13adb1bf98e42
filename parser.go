package main

import "strings"

// parser is a recursive-descent parser over the lexer's token stream,
// producing items in file order. Item recognition (settings, aliases,
// exports, assignments, recipes) and expression recognition are separate
// layers; items are distinguished by one token of lookahead.
type parser struct {
	file   *File
	toks   []Token
	pos    int
	err    *Diagnostic
	warns  []*Diagnostic
	doc    string // pending doc comment for the next recipe
	docSet bool
}

// Parse lexes and parses a buildfile into an AST. Returns the first fatal
// diagnostic, plus any non-fatal warnings (deprecated '=' syntax) collected
// along the way.
func Parse(file *File) (*AST, []*Diagnostic, *Diagnostic) {
	toks, lexErr := Lex(file)
	if lexErr != nil {
		return nil, nil, lexErr
	}
	p := &parser{file: file, toks: toks}
	ast := p.parseFile()
	if p.err != nil {
		return nil, p.warns, p.err
	}
	return ast, p.warns, nil
}

func (p *parser) cur() Token  { return p.toks[p.pos] }
func (p *parser) kind() tokKind { return p.toks[p.pos].Kind }

func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = errorAt(p.file, p.cur().Span, format, args...)
	}
}

func (p *parser) expect(k tokKind, name string) Token {
	if p.kind() != k {
		p.fail("Expected %s, but found %s", name, tokenDesc(p.cur()))
		return p.cur()
	}
	return p.advance()
}

func tokenDesc(t Token) string {
	switch t.Kind {
	case tkEOF:
		return "end of file"
	case tkEOL:
		return "newline"
	case tkIdent:
		return "identifier `" + t.Text + "`"
	default:
		if t.Text != "" {
			return "`" + t.Text + "`"
		}
		return "token"
	}
}

func (p *parser) skipBlankLines() {
	for p.kind() == tkEOL {
		p.advance()
	}
}

func (p *parser) parseFile() *AST {
	ast := &AST{Source: p.file}
	p.skipBlankLines()
	for p.kind() != tkEOF && p.err == nil {
		item := p.parseItem()
		if p.err != nil {
			break
		}
		if item != nil {
			ast.Items = append(ast.Items, *item)
		}
		p.skipBlankLines()
	}
	return ast
}

func (p *parser) parseItem() *Item {
	if p.kind() == tkComment {
		// A comment immediately followed by a recipe header is its doc string;
		// otherwise it's discarded (comments are not retained in the AST).
		p.doc = p.cur().Text
		p.docSet = true
		p.advance()
		p.expectEOLOrEOF()
		return nil
	}

	doc := ""
	if p.docSet {
		doc = p.doc
	}
	p.doc, p.docSet = "", false

	if p.kind() == tkIdent {
		switch p.cur().Text {
		case "set":
			return p.parseSetting()
		case "alias":
			return p.parseAlias()
		case "export":
			p.advance()
			a := p.parseAssignmentBody(true)
			return &Item{Assignment: a}
		}
	}

	// Lookahead: "name := expr" / "name = expr" is an assignment; anything
	// else starting with an identifier is a recipe header.
	if p.kind() == tkIdent && (p.toks[p.pos+1].Kind == tkColonEq || p.toks[p.pos+1].Kind == tkEq) {
		a := p.parseAssignmentBody(false)
		return &Item{Assignment: a}
	}

	return &Item{Recipe: p.parseRecipe(doc)}
}

func (p *parser) expectEOLOrEOF() {
	if p.kind() != tkEOL && p.kind() != tkEOF {
		p.fail("Expected %s, but found %s", "newline", tokenDesc(p.cur()))
		return
	}
	if p.kind() == tkEOL {
		p.advance()
	}
}

func (p *parser) parseSetting() *Item {
	p.advance() // 'set'
	name := p.expect(tkIdent, "setting name").Text
	s := &Setting{Name: name, Span: p.toks[p.pos-1].Span}
	if p.kind() == tkColonEq {
		p.advance()
		s.Value = p.parseExpr()
	} else if p.kind() == tkEq {
		p.warns = append(p.warns, warningAt(p.file, p.cur().Span, "`=` in assignments, exports, and aliases is being phased out in favor of `:=`"))
		p.advance()
		s.Value = p.parseExpr()
	}
	p.expectEOLOrEOF()
	return &Item{Setting: s}
}

func (p *parser) parseAlias() *Item {
	p.advance() // 'alias'
	name := p.expect(tkIdent, "alias name")
	if p.kind() == tkEq {
		p.warns = append(p.warns, warningAt(p.file, p.cur().Span, "`=` in assignments, exports, and aliases is being phased out in favor of `:=`"))
		p.advance()
	} else {
		p.expect(tkColonEq, "':='")
	}
	target := p.expect(tkIdent, "alias target")
	p.expectEOLOrEOF()
	return &Item{Alias: &Alias{Name: name.Text, Target: target.Text, NameSpan: name.Span, TargetSpan: target.Span}}
}

func (p *parser) parseAssignmentBody(exported bool) *Assignment {
	name := p.expect(tkIdent, "variable name")
	if p.kind() == tkEq {
		p.warns = append(p.warns, warningAt(p.file, p.cur().Span, "`=` in assignments, exports, and aliases is being phased out in favor of `:=`"))
		p.advance()
	} else {
		p.expect(tkColonEq, "':='")
	}
	value := p.parseExpr()
	p.expectEOLOrEOF()
	return &Assignment{Name: name.Text, Value: value, Exported: exported, NameSpan: name.Span}
}

// parseExpr parses `term ('+' term)*`.
func (p *parser) parseExpr() Expression {
	left := p.parseTerm()
	for p.kind() == tkPlus {
		start := left.exprSpan()
		p.advance()
		right := p.parseTerm()
		left = &ConcatExpr{Left: left, Right: right, Span: spanUnion(start, right.exprSpan())}
	}
	return left
}

func spanUnion(a, b Span) Span {
	end := b.Offset + b.Len
	return Span{Offset: a.Offset, Len: end - a.Offset, Line: a.Line, Col: a.Col}
}

func (p *parser) parseTerm() Expression {
	t := p.cur()
	switch t.Kind {
	case tkString, tkIndentedString:
		p.advance()
		return &StringLiteral{Cooked: t.Text, Span: t.Span}
	case tkRawString, tkIndentedRawString:
		p.advance()
		return &StringLiteral{Cooked: t.Text, Raw: true, Span: t.Span}
	case tkBacktick, tkIndentedBacktick:
		p.advance()
		return &Backtick{Command: t.Text, Span: t.Span}
	case tkParenL:
		p.advance()
		inner := p.parseExpr()
		end := p.expect(tkParenR, "')'")
		return &GroupExpr{Inner: inner, Span: spanUnion(t.Span, end.Span)}
	case tkIdent:
		p.advance()
		if p.kind() == tkParenL {
			p.advance()
			var args []Expression
			if p.kind() != tkParenR {
				args = append(args, p.parseExpr())
				for p.kind() == tkComma {
					p.advance()
					args = append(args, p.parseExpr())
				}
			}
			end := p.expect(tkParenR, "')'")
			return &CallExpr{Function: t.Text, Args: args, Span: spanUnion(t.Span, end.Span)}
		}
		return &VariableExpr{Name: t.Text, Span: t.Span}
	default:
		p.fail("Expected %s, but found %s", "expression", tokenDesc(t))
		return &StringLiteral{Cooked: "", Span: t.Span}
	}
}

// parseRecipe parses a recipe header and, if present, its indented body.
func (p *parser) parseRecipe(doc string) *Recipe {
	quiet := false
	if p.kind() == tkAt {
		quiet = true
		p.advance()
	}
	name := p.expect(tkIdent, "recipe name")
	r := &Recipe{Name: name.Text, Doc: doc, Quiet: quiet, NameSpan: name.Span}

	for p.kind() == tkIdent || p.kind() == tkPlus {
		r.Params = append(r.Params, p.parseParam())
	}

	p.expect(tkColon, "':'")

	for p.kind() == tkIdent {
		d := p.advance()
		r.Deps = append(r.Deps, Dependency{Name: d.Text, Span: d.Span})
	}

	p.expectEOLOrEOF()

	if p.kind() == tkIndent {
		p.advance()
		for p.kind() == tkBodyLine {
			bt := p.advance()
			r.Body = append(r.Body, p.parseBodyLine(bt))
		}
		p.expect(tkDedent, "dedent")
	}

	if len(r.Body) > 0 {
		if first := firstFragmentText(r.Body[0]); strings.HasPrefix(first, "#!") {
			r.Shebang = true
		}
	}

	return r
}

func firstFragmentText(l Line) string {
	if len(l.Fragments) == 0 {
		return ""
	}
	if l.Fragments[0].Expr == nil {
		return l.Fragments[0].Text
	}
	return ""
}

func (p *parser) parseParam() Parameter {
	if p.kind() == tkPlus {
		start := p.advance()
		name := p.expect(tkIdent, "parameter name")
		param := Parameter{Name: name.Text, Kind: ParamVariadic, Span: spanUnion(start.Span, name.Span)}
		if p.kind() == tkEq {
			p.advance()
			param.Default = p.parseTerm()
			param.Kind = ParamVariadic
		}
		return param
	}
	name := p.expect(tkIdent, "parameter name")
	param := Parameter{Name: name.Text, Kind: ParamRequired, Span: name.Span}
	if p.kind() == tkEq {
		p.advance()
		param.Default = p.parseTerm()
		param.Kind = ParamDefault
	}
	return param
}

// parseBodyLine splits a raw recipe-body line into literal-text and
// {{ expr }} fragments, re-lexing the interior of each interpolation as a
// standalone expression.
func (p *parser) parseBodyLine(t Token) Line {
	text := t.Text
	quiet := strings.HasPrefix(text, "@")
	if quiet {
		text = text[1:]
	}
	line := Line{Quiet: quiet, Span: t.Span}

	i := 0
	lastOffset := t.Span.Offset
	if quiet {
		lastOffset++
	}
	for i < len(text) {
		start := strings.Index(text[i:], "{{")
		if start < 0 {
			line.Fragments = append(line.Fragments, Fragment{Text: text[i:], Span: p.file.span(lastOffset+i, len(text)-i)})
			break
		}
		start += i
		if start > i {
			line.Fragments = append(line.Fragments, Fragment{Text: text[i:start], Span: p.file.span(lastOffset+i, start-i)})
		}
		end := strings.Index(text[start+2:], "}}")
		if end < 0 {
			p.fail("Unterminated interpolation")
			break
		}
		end += start + 2
		inner := text[start+2 : end]
		expr := p.parseSubExpr(inner, lastOffset+start+2)
		line.Fragments = append(line.Fragments, Fragment{Expr: expr, Span: p.file.span(lastOffset+start, end+2-start)})
		i = end + 2
	}

	return line
}

// parseSubExpr lexes and parses a standalone expression extracted from
// inside a `{{ }}` interpolation. offset is the byte offset of inner's first
// character within the original file, used so diagnostics still point at the
// right place.
func (p *parser) parseSubExpr(inner string, offset int) Expression {
	sub := newFile(p.file.Name, inner)
	toks, lexErr := Lex(sub)
	if lexErr != nil {
		p.fail("%s", lexErr.Message)
		return &StringLiteral{Cooked: ""}
	}
	sp := &parser{file: p.file, toks: rebase(p.file, toks, offset)}
	expr := sp.parseExpr()
	if sp.err != nil {
		p.err = sp.err
	}
	return expr
}

// rebase shifts a token stream lexed from an extracted substring back into
// the coordinate space of the original file. Offsets are translated and
// line/column are recomputed against the real file — the sub-lexer's own
// tracking is relative to the substring and always starts at line 1.
func rebase(file *File, toks []Token, offset int) []Token {
	out := make([]Token, len(toks))
	for i, t := range toks {
		t.Span.Offset += offset
		t.Span.Line, t.Span.Col = file.position(t.Span.Offset)
		out[i] = t
	}
	return out
}
