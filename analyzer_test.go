package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, src string) (*Justfile, *Diagnostic) {
	t.Helper()
	ast, warns, parseErr := Parse(newFile("Justfile", src))
	require.Nil(t, parseErr)
	require.Empty(t, warns)
	return Analyze(ast)
}

func TestAnalyzeSimpleJustfile(t *testing.T) {
	jf, err := analyze(t, "build:\n    echo hi\n")
	require.Nil(t, err)
	require.Contains(t, jf.Recipes, "build")
	assert.Equal(t, "build", jf.FirstRecipeName)
}

func TestAnalyzeDuplicateRecipe(t *testing.T) {
	_, err := analyze(t, "build:\n    echo one\nbuild:\n    echo two\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "is redefined on line")
}

func TestAnalyzeDuplicateAssignment(t *testing.T) {
	_, err := analyze(t, "x := \"1\"\nx := \"2\"\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "multiple definitions")
}

func TestAnalyzeUnknownDependency(t *testing.T) {
	_, err := analyze(t, "build: missing\n    echo hi\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "unknown dependency `missing`")
}

func TestAnalyzeSelfDependency(t *testing.T) {
	_, err := analyze(t, "build: build\n    echo hi\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "depends on itself")
}

func TestAnalyzeCircularDependency(t *testing.T) {
	_, err := analyze(t, "a: b\n    echo a\nb: a\n    echo b\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "circular dependency")
}

func TestAnalyzeDependencyRequiringArgs(t *testing.T) {
	_, err := analyze(t, "build: needs\n    echo hi\nneeds name:\n    echo {{name}}\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "Dependencies may not require arguments")
}

func TestAnalyzeUnknownAliasTarget(t *testing.T) {
	_, err := analyze(t, "alias b := missing\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "unknown target")
}

func TestAnalyzeDuplicateParameter(t *testing.T) {
	_, err := analyze(t, "build name name:\n    echo {{name}}\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "duplicate parameter")
}

func TestAnalyzeParameterOrderViolation(t *testing.T) {
	_, err := analyze(t, "build a=\"1\" b:\n    echo {{b}}\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "follows default parameter")
}

func TestAnalyzeVariableNotDefined(t *testing.T) {
	_, err := analyze(t, "x := missing\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "not defined")
}

func TestAnalyzeUndefinedVariableInRecipeBody(t *testing.T) {
	_, err := analyze(t, "a:\n    echo '{{foo}}'\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "Variable `foo` not defined")
}

func TestAnalyzeUndefinedVariableInParameterDefault(t *testing.T) {
	_, err := analyze(t, "a x=missing:\n    echo {{x}}\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "Variable `missing` not defined")
}

func TestAnalyzeParameterResolvesInBody(t *testing.T) {
	jf, err := analyze(t, "a x:\n    echo {{x}}\n")
	require.Nil(t, err)
	require.Contains(t, jf.Recipes, "a")
}

// An undefined variable inside an interpolation must be reported at its
// real position in the file, not relative to the interpolated substring.
func TestAnalyzeInterpolationDiagnosticSpansRealLine(t *testing.T) {
	_, err := analyze(t, "x := \"1\"\n\na:\n    echo {{b}}\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "Variable `b` not defined")
	require.NotNil(t, err.Span)
	assert.Equal(t, 4, err.Span.Line)
	assert.Equal(t, 12, err.Span.Col)
}

func TestAnalyzeVariableSelfReference(t *testing.T) {
	_, err := analyze(t, "x := x\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "defined in terms of itself")
}

func TestAnalyzeAssignOrder(t *testing.T) {
	jf, err := analyze(t, "b := a + \"y\"\na := \"x\"\n")
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "b"}, jf.AssignOrder)
}

func TestAnalyzeUnknownFunction(t *testing.T) {
	_, err := analyze(t, "x := bogus(\"a\")\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "unknown function")
}

func TestAnalyzeWrongArity(t *testing.T) {
	_, err := analyze(t, "x := trim(\"a\", \"b\")\n")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "expects")
}
