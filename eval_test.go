package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalConcatAndGroup(t *testing.T) {
	jf, err := analyze(t, "a := \"x\" + (\"y\" + \"z\")\n")
	require.Nil(t, err)

	var stderr bytes.Buffer
	scope, evalErr := (&Evaluator{Stderr: &stderr}).BuildScope(jf, nil)
	require.NoError(t, evalErr)
	assert.Equal(t, "xyz", scope["a"])
}

func TestEvalBacktickTrimsExactlyOneTrailingNewline(t *testing.T) {
	jf, err := analyze(t, "a := `printf 'hi\\n\\n'`\n")
	require.Nil(t, err)

	var stderr bytes.Buffer
	scope, evalErr := (&Evaluator{Shell: "sh", Stderr: &stderr}).BuildScope(jf, nil)
	require.NoError(t, evalErr)
	assert.Equal(t, "hi\n", scope["a"])
}

func TestEvalBacktickFailureCarriesExitCode(t *testing.T) {
	e := &Evaluator{Shell: "sh", Stderr: &bytes.Buffer{}}
	_, err := e.Eval(&Backtick{Command: "exit 3"}, Scope{})
	require.Error(t, err)
	be, ok := err.(*backtickError)
	require.True(t, ok)
	assert.Equal(t, 3, be.ExitCode())
}

func TestEvalPreviewRendersBacktickLiterally(t *testing.T) {
	e := &Evaluator{Shell: "sh", Stderr: &bytes.Buffer{}}
	v, err := e.EvalPreview(&Backtick{Command: "exit 1"}, Scope{})
	require.NoError(t, err)
	assert.Equal(t, "`exit 1`", v)
}

func TestEvalPreviewRecursesThroughConcatAndGroup(t *testing.T) {
	e := &Evaluator{Shell: "sh", Stderr: &bytes.Buffer{}}
	expr := &ConcatExpr{
		Left:  &StringLiteral{Cooked: "a-"},
		Right: &GroupExpr{Inner: &Backtick{Command: "exit 1"}},
	}
	v, err := e.EvalPreview(expr, Scope{})
	require.NoError(t, err)
	assert.Equal(t, "a-`exit 1`", v)
}

func TestEvalCallToFunctionFailureWraps(t *testing.T) {
	e := &Evaluator{}
	_, err := e.Eval(&CallExpr{Function: "extension", Args: []Expression{&StringLiteral{Cooked: "noext"}}}, Scope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Call to function `extension` failed")
}

func TestTrimOneTrailingNewline(t *testing.T) {
	assert.Equal(t, "a", trimOneTrailingNewline("a\n"))
	assert.Equal(t, "a", trimOneTrailingNewline("a\r\n"))
	assert.Equal(t, "a\n", trimOneTrailingNewline("a\n\n"))
	assert.Equal(t, "a", trimOneTrailingNewline("a"))
}
