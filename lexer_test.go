package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	file := newFile("Justfile", src)
	toks, err := Lex(file)
	require.Nil(t, err, "unexpected lex error: %v", err)
	return toks
}

func kinds(toks []Token) []tokKind {
	out := make([]tokKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexAssignment(t *testing.T) {
	toks := lexAll(t, "name := \"value\"\n")
	assert.Equal(t, []tokKind{tkIdent, tkColonEq, tkString, tkEOL, tkEOF}, kinds(toks))
	assert.Equal(t, "value", toks[2].Text)
}

func TestLexRawString(t *testing.T) {
	toks := lexAll(t, "x := 'a\\nb'\n")
	assert.Equal(t, tkRawString, toks[2].Kind)
	assert.Equal(t, `a\nb`, toks[2].Text)
}

func TestLexEscapes(t *testing.T) {
	toks := lexAll(t, "x := \"a\\tb\\n\"\n")
	assert.Equal(t, "a\tb\n", toks[2].Text)
}

func TestLexBadEscape(t *testing.T) {
	_, err := Lex(newFile("Justfile", "x := \"a\\qb\"\n"))
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "not a valid escape sequence")
}

func TestLexBacktick(t *testing.T) {
	toks := lexAll(t, "x := `echo hi`\n")
	assert.Equal(t, tkBacktick, toks[2].Kind)
	assert.Equal(t, "echo hi", toks[2].Text)
}

func TestLexIndentedStringDedents(t *testing.T) {
	src := "x := \"\"\"\n    hello\n    world\n    \"\"\"\n"
	toks := lexAll(t, src)
	assert.Equal(t, tkIndentedString, toks[2].Kind)
	assert.Equal(t, "hello\nworld\n", toks[2].Text)
}

func TestLexRecipeBody(t *testing.T) {
	src := "build:\n    echo one\n    echo two\n"
	toks := lexAll(t, src)
	k := kinds(toks)
	assert.Contains(t, k, tkIndent)
	assert.Contains(t, k, tkBodyLine)
	assert.Contains(t, k, tkDedent)
}

func TestLexMixedWhitespaceFirstLine(t *testing.T) {
	_, err := Lex(newFile("Justfile", "bar:\n\t echo hello\n"))
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "Found a mix of tabs and spaces in leading whitespace: `␉␠`")
}

func TestLexInconsistentWhitespace(t *testing.T) {
	_, err := Lex(newFile("Justfile", "bar:\n\t\techo hello\n\t echo goodbye\n"))
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "Recipe started with `␉␉` but found line with `␉␠`")
}

func TestLexExtraLeadingWhitespace(t *testing.T) {
	_, err := Lex(newFile("Justfile", "bar:\n\t\techo hello\n\t\t\techo goodbye\n"))
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "extra leading whitespace")
}

func TestLexBodyContinuesAcrossInteriorBlankLine(t *testing.T) {
	src := "build:\n    echo one\n\n    echo two\n\nother:\n    echo three\n"
	toks := lexAll(t, src)

	var bodies []string
	for _, tok := range toks {
		if tok.Kind == tkBodyLine {
			bodies = append(bodies, tok.Text)
		}
	}
	assert.Equal(t, []string{"echo one", "", "echo two", "echo three"}, bodies)
}

func TestLexUnknownToken(t *testing.T) {
	_, err := Lex(newFile("Justfile", "x := $\n"))
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "Unknown start of token")
}
