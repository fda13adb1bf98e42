package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"4d63.com/testcli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mainFunc wraps run to match testcli.MainFunc's signature.
func mainFunc(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return run(args, stdin, stdout, stderr)
}

func writeJustfile(t *testing.T, dir, src string) {
	t.Helper()
	testcli.WriteFile(t, filepath.Join(dir, "justfile"), []byte(src))
}

// TestDependencyOrder: a post-order DFS runs each dependency exactly
// once, before every recipe that requires it.
func TestDependencyOrder(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "b: a\n  echo b\n  @mv a b\n\na:\n  echo a\n  @touch F\n  @touch a\n\nd: c\n  echo d\n  @rm c\n\nc: b\n  echo c\n  @mv b c\n"
	writeJustfile(t, dir, src)

	exitCode, stdout, stderr := testcli.Main(t, []string{"a", "d"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "a\nb\nc\nd\n", stdout)
	assert.Equal(t, "echo a\necho b\necho c\necho d\n", stderr)

	if _, err := os.Stat(filepath.Join(dir, "F")); err != nil {
		t.Errorf("expected touch F to have run: %v", err)
	}
}

// TestBacktickCaptureAndConcat: backtick evaluation trims exactly one
// trailing newline, and concatenation happens before the enclosing
// interpolation is rendered.
func TestBacktickCaptureAndConcat(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "a := `printf Hello,`\nbar:\n printf '{{a + `printf ' world.'`}}'\n"
	writeJustfile(t, dir, src)

	exitCode, stdout, stderr := testcli.Main(t, []string{"bar"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "Hello, world.", stdout)
	assert.Equal(t, "printf 'Hello, world.'\n", stderr)
}

// TestStatusPassthrough: a failing recipe command's exit code becomes the
// runner's own exit status, with the "Recipe `recipe` failed..."
// diagnostic on stderr.
func TestStatusPassthrough(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "hello:\n\nrecipe:\n  @exit 100\n"
	writeJustfile(t, dir, src)

	exitCode, _, stderr := testcli.Main(t, []string{"recipe"}, nil, mainFunc)

	assert.Equal(t, 100, exitCode)
	assert.Equal(t, "error: Recipe `recipe` failed on line 4 with exit code 100\n", stderr)
}

// TestAliasListing: `--list` renders aliases directly under their target,
// column-aligned.
func TestAliasListing(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "foo:\n  echo foo\nalias f := foo\n"
	writeJustfile(t, dir, src)

	exitCode, stdout, stderr := testcli.Main(t, []string{"--list"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "Available recipes:\n    foo\n    f   # alias for `foo`\n", stdout)
}

// TestCircularDependency: cycle detection reports the full cycle path
// through the recipe that closes the loop.
func TestCircularDependency(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "a: b\nb: c\nc: d\nd: a\n"
	writeJustfile(t, dir, src)

	exitCode, _, stderr := testcli.Main(t, []string{"a"}, nil, mainFunc)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "error: Recipe `d` has circular dependency `a -> b -> c -> d -> a`")
}

// TestVariadicAndDefault: required params bind positionally, the variadic
// parameter joins every remaining argument with single spaces (even an
// argument that is itself whitespace), overriding its default entirely
// once any variadic argument is supplied.
func TestVariadicAndDefault(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "a x y +z='HELLO':\n  echo {{x}} {{y}} {{z}}\n"
	writeJustfile(t, dir, src)

	exitCode, stdout, stderr := testcli.Main(t, []string{"a", "0", "1", "2", "3", " 4 "}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "0 1 2 3  4 \n", stdout)
	assert.Equal(t, "echo 0 1 2 3  4 \n", stderr)
}

// TestRoundTrip: for a Justfile whose compile succeeds, dumping,
// re-parsing, and re-dumping produces byte-identical text.
func TestRoundTrip(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "export GREETING := \"hi\"\n\nalias b := build\n\nbuild target=\"all\":\n    echo {{GREETING}} {{target}}\n"
	writeJustfile(t, dir, src)

	exitCode, dump1, stderr := testcli.Main(t, []string{"--dump"}, nil, mainFunc)
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)

	writeJustfile(t, dir, dump1)
	exitCode, dump2, stderr := testcli.Main(t, []string{"--dump"}, nil, mainFunc)
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)

	assert.Equal(t, dump1, dump2)
}

// TestParameterArityError covers the "Parameter arity" universal property:
// binding fails with a `usage:` line when too few arguments are given.
func TestParameterArityError(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "greet name:\n  echo hello {{name}}\n"
	writeJustfile(t, dir, src)

	exitCode, _, stderr := testcli.Main(t, []string{"greet"}, nil, mainFunc)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "error: Recipe `greet` got 0 arguments but takes 1")
	assert.Contains(t, stderr, "usage:\n    just greet name")
}

// TestUnknownRecipeSuggestion covers the edit-distance suggestion on an
// unknown recipe name.
func TestUnknownRecipeSuggestion(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "hello:\n  echo hi\n"
	writeJustfile(t, dir, src)

	exitCode, _, stderr := testcli.Main(t, []string{"hell"}, nil, mainFunc)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "error: Justfile does not contain recipe `hell`.")
	assert.Contains(t, stderr, "Did you mean `hello`?")
}

// TestDryRunPrintsUnevaluatedBacktick: a recipe line's backtick
// sub-expression is printed literally (unevaluated) to stderr under
// --dry-run, never spawning a subprocess.
func TestDryRunPrintsUnevaluatedBacktick(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "bar:\n  echo {{`touch should-not-exist`}}\n"
	writeJustfile(t, dir, src)

	exitCode, stdout, stderr := testcli.Main(t, []string{"--dry-run", "bar"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Empty(t, stdout)
	assert.Equal(t, "echo `touch should-not-exist`\n", stderr)

	if _, err := os.Stat(filepath.Join(dir, "should-not-exist")); err == nil {
		t.Error("dry-run must not execute the backtick command")
	}
}

// TestSetOverrideTwoTokenForm: the two tokens of `--set NAME VALUE` are
// carried as one override.
func TestSetOverrideTwoTokenForm(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "x := \"a\"\nshow:\n  @echo {{x}}\n"
	writeJustfile(t, dir, src)

	exitCode, stdout, stderr := testcli.Main(t, []string{"--set", "x", "b", "show"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "b\n", stdout)
}

// TestSetOverrideUnknownVariable: a --set override must name a defined
// top-level variable.
func TestSetOverrideUnknownVariable(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	writeJustfile(t, dir, "show:\n  @echo hi\n")

	exitCode, _, stderr := testcli.Main(t, []string{"--set", "nope", "1", "show"}, nil, mainFunc)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "Variables `nope` overridden on the command line but not present in justfile")
}

// TestOverrideSkipsFailingBacktick: overriding an assignment suppresses
// evaluation of its expression entirely, backticks included.
func TestOverrideSkipsFailingBacktick(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "x := `exit 1`\nshow:\n  @echo {{x}}\n"
	writeJustfile(t, dir, src)

	exitCode, stdout, stderr := testcli.Main(t, []string{"x=ok", "show"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "ok\n", stdout)
}

// TestBacktickFailurePropagatesExitCode: a failing backtick aborts the run
// with the child's own exit status, pointing at the backtick's span.
func TestBacktickFailurePropagatesExitCode(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "x := `exit 5`\nshow:\n  @echo {{x}}\n"
	writeJustfile(t, dir, src)

	exitCode, _, stderr := testcli.Main(t, []string{"show"}, nil, mainFunc)

	assert.Equal(t, 5, exitCode)
	assert.Contains(t, stderr, "Backtick failed with exit code 5")
}

// TestQuietSuppressesErrorsButKeepsExitCode: --quiet silences rendering
// of the failure but never rewrites the propagated status.
func TestQuietSuppressesErrorsButKeepsExitCode(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	writeJustfile(t, dir, "fail:\n  @exit 9\n")

	exitCode, stdout, stderr := testcli.Main(t, []string{"--quiet", "fail"}, nil, mainFunc)

	assert.Equal(t, 9, exitCode)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}

// TestExtraArgumentTreatedAsUnknownRecipe: argument grouping consumes at
// most a non-variadic recipe's declared parameter count; the next token is
// read as a recipe name.
func TestExtraArgumentTreatedAsUnknownRecipe(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	writeJustfile(t, dir, "foo A B:\n  echo A:{{A}} B:{{B}}\n")

	exitCode, stdout, stderr := testcli.Main(t, []string{"foo", "ONE", "TWO", "THREE"}, nil, mainFunc)

	assert.Equal(t, 1, exitCode)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "error: Justfile does not contain recipe `THREE`.")
}

// TestAliasInvocationRunsTarget: an alias token anywhere in the positional
// list invokes its target recipe.
func TestAliasInvocationRunsTarget(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	writeJustfile(t, dir, "foo:\n  @echo foo\nbar:\n  @echo bar\nalias f := foo\n")

	exitCode, stdout, stderr := testcli.Main(t, []string{"bar", "f"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "bar\nfoo\n", stdout)
}

// TestInitWritesStarterJustfile: --init creates the starter buildfile and
// refuses to overwrite it on a second run.
func TestInitWritesStarterJustfile(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	exitCode, _, stderr := testcli.Main(t, []string{"--init"}, nil, mainFunc)
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)

	content, err := os.ReadFile(filepath.Join(dir, "justfile"))
	require.NoError(t, err)
	assert.Equal(t, "default:\n\techo 'Hello, world!'\n", string(content))

	exitCode, _, _ = testcli.Main(t, []string{"--init"}, nil, mainFunc)
	assert.Equal(t, 1, exitCode)
}

// TestFmtRewritesCanonicalForm: --fmt replaces the buildfile with its dump,
// which is a fixed point of the parser (the round-trip property).
func TestFmtRewritesCanonicalForm(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	writeJustfile(t, dir, "foo:\n  echo hi\n")

	exitCode, _, stderr := testcli.Main(t, []string{"--fmt"}, nil, mainFunc)
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)

	content, err := os.ReadFile(filepath.Join(dir, "justfile"))
	require.NoError(t, err)
	assert.Equal(t, "foo:\n    echo hi\n", string(content))
}

// TestPathPrefixConflictsWithOverrides: a PATH/RECIPE positional may not be
// combined with --justfile or --working-directory.
func TestPathPrefixConflictsWithOverrides(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	writeJustfile(t, dir, "foo:\n  echo hi\n")

	exitCode, _, stderr := testcli.Main(t, []string{"--justfile", filepath.Join(dir, "justfile"), "sub/foo"}, nil, mainFunc)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr, "Path-prefixed recipes may not be used with")
}

// TestDotenvPrecedesInheritedEnvironment: with dotenv-load set, a key in
// the sibling .env wins over the same key inherited from the parent
// process environment.
func TestDotenvPrecedesInheritedEnvironment(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)
	t.Setenv("JOUST_TEST_KEY", "fromenv")

	testcli.WriteFile(t, filepath.Join(dir, ".env"), []byte("JOUST_TEST_KEY=fromdot\n"))
	writeJustfile(t, dir, "set dotenv-load\nshow:\n  @echo {{env_var(\"JOUST_TEST_KEY\")}}\n")

	exitCode, stdout, stderr := testcli.Main(t, []string{"show"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "fromdot\n", stdout)
}

// TestShebangRecipeRunsAsSingleScript: a shebang recipe's whole body
// (interior blank line included) is materialized to one temp script and
// run by the declared interpreter.
func TestShebangRecipeRunsAsSingleScript(t *testing.T) {
	dir := testcli.MkdirTemp(t)
	testcli.Chdir(t, dir)

	src := "script:\n  #!/bin/sh\n  echo one\n\n  echo two\n"
	writeJustfile(t, dir, src)

	exitCode, stdout, stderr := testcli.Main(t, []string{"script"}, nil, mainFunc)

	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Equal(t, "one\ntwo\n", stdout)
}

// TestWorkingDirectoryIsJustfileDirectory guards the fix where recipes
// used to inherit the parent process's CWD instead of running in the
// justfile's own directory: invoking `--justfile` from an
// unrelated CWD must still run recipes rooted at the justfile's directory.
func TestWorkingDirectoryIsJustfileDirectory(t *testing.T) {
	outerDir := testcli.MkdirTemp(t)
	subDir := filepath.Join(outerDir, "sub")
	require.NoError(t, os.Mkdir(subDir, 0o755))

	src := "touch:\n  @touch marker\n"
	writeJustfile(t, subDir, src)

	testcli.Chdir(t, outerDir)

	exitCode, _, stderr := testcli.Main(t, []string{"--justfile", filepath.Join(subDir, "justfile"), "touch"}, nil, mainFunc)
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)

	if _, err := os.Stat(filepath.Join(subDir, "marker")); err != nil {
		t.Errorf("expected marker file in the justfile's directory, not the invocation CWD: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outerDir, "marker")); err == nil {
		t.Error("marker file was created in the invocation CWD instead of the justfile's directory")
	}
}
