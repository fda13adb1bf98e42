package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is the entry point exercised by both main() and the CLI test
// suite; keeping os.Args and os.Exit out of it makes the whole surface
// testable.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(normalizeSetFlags(args))
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if ee, ok := err.(interface{ ExitCode() int }); ok {
			return ee.ExitCode()
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "joust [recipe] [args...]",
		Short:         "A command runner driven by a justfile",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoust(cmd, args, stdout, stderr)
		},
	}

	rootCmd.Flags().String("shell", "sh", "shell used to invoke recipe lines and backticks")
	rootCmd.Flags().BoolP("quiet", "q", false, "suppress echoing of commands and non-fatal output")
	rootCmd.Flags().BoolP("verbose", "v", false, "print a banner before each recipe")
	rootCmd.Flags().BoolP("dry-run", "n", false, "print commands without running them")
	rootCmd.Flags().Bool("evaluate", false, "print evaluated assignments and exit")
	rootCmd.Flags().StringArray("set", nil, "override an assignment: --set NAME VALUE")
	rootCmd.Flags().String("color", "auto", "diagnostic coloring: auto, always, never")
	rootCmd.Flags().Bool("highlight", false, "bold the echoed command line")
	rootCmd.Flags().Bool("list", false, "list available recipes")
	rootCmd.Flags().Bool("summary", false, "list recipe names only")
	rootCmd.Flags().String("show", "", "print a recipe in canonical form")
	rootCmd.Flags().Bool("dump", false, "print the whole justfile in canonical form")
	rootCmd.Flags().Bool("init", false, "write a starter justfile in the current directory")
	rootCmd.Flags().String("justfile", "", "path to the justfile")
	rootCmd.Flags().String("working-directory", "", "directory to run in")
	rootCmd.Flags().Bool("fmt", false, "rewrite the justfile in canonical form")
	rootCmd.Flags().Bool("edit", false, "open the justfile in $VISUAL/$EDITOR")
	rootCmd.Flags().Bool("completions", false, "print a shell completion script")

	return rootCmd
}

// normalizeSetFlags collapses the two-token `--set NAME VALUE` form into
// `--set NAME=VALUE` so pflag's one-value-per-flag model can carry it;
// runJoust splits the pair back apart on the first '='.
func normalizeSetFlags(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--set" && i+2 < len(args) {
			out = append(out, "--set", args[i+1]+"="+args[i+2])
			i += 2
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func runJoust(cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	flags := cmd.Flags()

	colorFlag, _ := flags.GetString("color")
	color := ColorAuto
	switch colorFlag {
	case "always":
		color = ColorAlways
	case "never":
		color = ColorNever
	}

	quiet, _ := flags.GetBool("quiet")
	verbose, _ := flags.GetBool("verbose")
	dryRun, _ := flags.GetBool("dry-run")
	evaluate, _ := flags.GetBool("evaluate")
	highlight, _ := flags.GetBool("highlight")
	listFlag, _ := flags.GetBool("list")
	summaryFlag, _ := flags.GetBool("summary")
	showFlag, _ := flags.GetString("show")
	dumpFlag, _ := flags.GetBool("dump")
	shell, _ := flags.GetString("shell")
	justfileFlag, _ := flags.GetString("justfile")
	workDirFlag, _ := flags.GetString("working-directory")
	setPairs, _ := flags.GetStringArray("set")

	log := logrus.New()
	log.SetOutput(stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	// renderErr routes every failure through one place: --quiet suppresses
	// the rendering but never the exit code, so a failing recipe or backtick
	// still propagates its child's status.
	renderErr := func(err error) error {
		code := 1
		var out string
		switch e := err.(type) {
		case *Diagnostic:
			out = e.Render(color)
		case *backtickError:
			code = e.code
			if e.diag != nil {
				out = e.diag.Render(color)
			} else {
				out = "error: " + e.Error()
			}
		case *ExecError:
			code = e.Code
			out = "error: " + e.Message
		default:
			out = "error: " + err.Error()
		}
		if !quiet {
			fmt.Fprintln(stderr, out)
		}
		return &exitCodeError{code: code}
	}

	initFlag, _ := flags.GetBool("init")
	fmtFlag, _ := flags.GetBool("fmt")
	editFlag, _ := flags.GetBool("edit")
	completionsFlag, _ := flags.GetBool("completions")

	if completionsFlag {
		if err := cmd.Root().GenBashCompletion(stdout); err != nil {
			return renderErr(err)
		}
		return nil
	}
	if initFlag {
		if err := initJustfile(); err != nil {
			return renderErr(err)
		}
		return nil
	}

	positional := append([]string{}, args...)
	if len(positional) > 0 && strings.Contains(positional[0], "/") {
		if justfileFlag != "" || workDirFlag != "" {
			return renderErr(errorf("Path-prefixed recipes may not be used with `--justfile` or `--working-directory`"))
		}
		dir, rest := filepath.Split(positional[0])
		workDirFlag = filepath.Clean(dir)
		positional[0] = rest
		if positional[0] == "" {
			positional = positional[1:]
		}
	}

	justfilePath := justfileFlag
	var searchErr error
	if justfilePath == "" {
		justfilePath, searchErr = findJustfile(workDirFlag)
		if searchErr != nil {
			return renderErr(searchErr)
		}
	}
	workDir := workDirFlag
	if workDir == "" {
		workDir = filepath.Dir(justfilePath)
	}
	log.Debugf("using justfile %s", justfilePath)

	if editFlag {
		return editJustfile(justfilePath, stdout, stderr)
	}

	src, err := os.ReadFile(justfilePath)
	if err != nil {
		return renderErr(errors.Wrap(err, "reading justfile"))
	}

	file := newFile(justfilePath, string(src))

	ast, warnings, parseErr := Parse(file)
	for _, w := range warnings {
		if !quiet {
			fmt.Fprintln(stderr, w.Render(color))
		}
	}
	if parseErr != nil {
		return renderErr(parseErr)
	}

	jf, analyzeErr := Analyze(ast)
	if analyzeErr != nil {
		return renderErr(analyzeErr)
	}

	if fmtFlag {
		if err := os.WriteFile(justfilePath, []byte(Dump(jf)), 0o644); err != nil {
			return renderErr(errors.Wrap(err, "writing justfile"))
		}
		return nil
	}

	overrides := map[string]string{}
	for _, pair := range setPairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return renderErr(errorf("--set requires a NAME and a VALUE"))
		}
		if _, defined := jf.Assignments[name]; !defined {
			return renderErr(&ExecError{Code: 1, Message: fmt.Sprintf("Variables `%s` overridden on the command line but not present in justfile", name)})
		}
		overrides[name] = value
	}

	argOverrides, invocations, groupErr := groupArguments(jf, positional)
	if groupErr != nil {
		return renderErr(groupErr)
	}
	for k, v := range argOverrides {
		overrides[k] = v
	}

	execPath, _ := currentExecutable()
	dotenv, dotenvErr := loadDotenvIfEnabled(jf, filepath.Dir(justfilePath))
	if dotenvErr != nil {
		return renderErr(dotenvErr)
	}

	ctx := &FunctionContext{
		Executable:          execPath,
		JustfilePath:        justfilePath,
		JustfileDirectory:   filepath.Dir(justfilePath),
		InvocationDirectory: workDir,
		Dotenv:              dotenv,
		LookupEnv:           lookupEnv,
	}

	var dotenvPairs []string
	for k, v := range dotenv {
		dotenvPairs = append(dotenvPairs, k+"="+v)
	}
	evaluator := &Evaluator{Functions: ctx, Shell: shell, Quiet: quiet, Stderr: stderr, Env: dotenvPairs, Dir: workDir, File: file}

	scope, evalErr := evaluator.BuildScope(jf, overrides)
	if evalErr != nil {
		return renderErr(evalErr)
	}

	switch {
	case listFlag:
		fmt.Fprint(stdout, FormatList(jf))
		return nil
	case summaryFlag:
		fmt.Fprintln(stdout, FormatSummary(jf))
		return nil
	case showFlag != "":
		out, showErr := ShowRecipe(jf, showFlag)
		if showErr != nil {
			return renderErr(showErr)
		}
		fmt.Fprint(stdout, out)
		return nil
	case dumpFlag:
		fmt.Fprint(stdout, Dump(jf))
		return nil
	case evaluate:
		fmt.Fprint(stdout, FormatEvaluate(jf, scope))
		return nil
	}

	env := buildChildEnv(jf, scope, dotenv)
	evaluator.Env = env

	log.Debugf("running %d invocation(s)", len(invocations))

	engine := &Engine{
		Justfile:  jf,
		Eval:      evaluator,
		Shell:     shell,
		Quiet:     quiet,
		Verbose:   verbose,
		Highlight: highlight,
		DryRun:    dryRun,
		Stdout:    stdout,
		Stderr:    stderr,
		TempDir:   os.TempDir(),
		Env:       env,
		Dir:       workDir,
	}

	if runErr := engine.Run(scope, invocations); runErr != nil {
		return renderErr(runErr)
	}
	return nil
}

// buildChildEnv assembles the environment overlay applied to every child
// process: exported assignments plus the dotenv mapping. The parent
// process's own environment is never mutated.
func buildChildEnv(jf *Justfile, scope Scope, dotenv map[string]string) []string {
	var env []string
	for k, v := range dotenv {
		env = append(env, k+"="+v)
	}
	for name, assign := range jf.Assignments {
		if assign.Exported {
			env = append(env, name+"="+scope[name])
		}
	}
	return env
}

const starterJustfile = "default:\n\techo 'Hello, world!'\n"

// initJustfile writes a starter justfile into the project root: the
// nearest enclosing directory holding a VCS marker, or the current
// directory when there is none. Refuses to overwrite an existing file.
func initJustfile() error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	root := dir
	for d := dir; ; {
		found := false
		for _, marker := range []string{".git", "_darcs", ".hg", ".svn", ".fslckout"} {
			if _, err := os.Stat(filepath.Join(d, marker)); err == nil {
				root = d
				found = true
				break
			}
		}
		if found {
			break
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}

	path := filepath.Join(root, "justfile")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("Justfile `%s` already exists", path)
	}
	return os.WriteFile(path, []byte(starterJustfile), 0o644)
}

// editJustfile opens the buildfile in $VISUAL, falling back to $EDITOR
// then vim.
func editJustfile(path string, stdout, stderr io.Writer) error {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vim"
	}
	cmd := &shellCommand{Path: editor, Args: []string{path}}
	code, err := cmd.run(stdout, stderr)
	if err != nil {
		return &exitCodeError{code: 1}
	}
	if code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

func loadDotenvIfEnabled(jf *Justfile, justfileDir string) (map[string]string, error) {
	setting, ok := jf.Settings["dotenv-load"]
	if !ok {
		return map[string]string{}, nil
	}
	enabled := true
	if setting.Value != nil {
		if s, ok := setting.Value.(*StringLiteral); ok {
			enabled = s.Cooked != "false"
		}
	}
	if !enabled {
		return map[string]string{}, nil
	}
	return loadDotenv(justfileDir)
}

// findJustfile searches upward from dir (or the current directory) for a
// file named justfile/Justfile/.justfile, stopping at the filesystem root
// or a directory holding a version-control marker.
func findJustfile(dir string) (string, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
	}

	names := []string{"justfile", "Justfile", ".justfile", ".Justfile"}
	vcsMarkers := []string{".git", "_darcs", ".hg", ".svn", ".fslckout"}

	for {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		for _, marker := range vcsMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return "", fmt.Errorf("no justfile found")
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no justfile found")
}

// exitCodeError lets renderErr communicate a precise process exit status
// back through cobra's plain error-returning RunE contract.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit %d", e.code) }
func (e *exitCodeError) ExitCode() int { return e.code }
