package main

import (
	"fmt"
	"path"
	"strings"
)

// FunctionContext supplies a builtin with the invocation-scoped facts it
// may need: the executable/buildfile paths, the original CWD, and the
// dotenv overlay. Collected into one struct so every builtin takes the
// same first parameter regardless of arity.
type FunctionContext struct {
	Executable          string
	JustfilePath        string
	JustfileDirectory   string
	InvocationDirectory string
	Dotenv              map[string]string
	LookupEnv           func(string) (string, bool)
}

// Function is an arity-tagged dispatch-table entry: exactly one of the
// closure fields is set, and that field is the tag.
type Function struct {
	Nullary func(*FunctionContext) (string, error)
	Unary   func(*FunctionContext, string) (string, error)
	Binary  func(*FunctionContext, string, string) (string, error)
	Ternary func(*FunctionContext, string, string, string) (string, error)
}

func (f Function) argc() int {
	switch {
	case f.Nullary != nil:
		return 0
	case f.Unary != nil:
		return 1
	case f.Binary != nil:
		return 2
	default:
		return 3
	}
}

func (f Function) arityMatches(n int) bool { return n == f.argc() }

func (f Function) arityDesc() string {
	n := f.argc()
	if n == 1 {
		return "1 argument"
	}
	return fmt.Sprintf("%d arguments", n)
}

// call dispatches to the matching arity's closure. The analyzer guarantees
// arity matches before this is ever invoked at evaluation time.
func (f Function) call(ctx *FunctionContext, args []string) (string, error) {
	switch f.argc() {
	case 0:
		return f.Nullary(ctx)
	case 1:
		return f.Unary(ctx, args[0])
	case 2:
		return f.Binary(ctx, args[0], args[1])
	default:
		return f.Ternary(ctx, args[0], args[1], args[2])
	}
}

// builtinTable maps builtin names to their implementations.
var builtinTable = map[string]Function{
	"arch":      {Nullary: fnArch},
	"os":        {Nullary: fnOS},
	"os_family": {Nullary: fnOSFamily},

	"just_executable":      {Nullary: fnJustExecutable},
	"justfile":             {Nullary: fnJustfile},
	"justfile_directory":   {Nullary: fnJustfileDirectory},
	"invocation_directory": {Nullary: fnInvocationDirectory},

	"env_var":            {Unary: fnEnvVar},
	"env_var_or_default": {Binary: fnEnvVarOrDefault},

	"clean":             {Unary: fnClean},
	"extension":         {Unary: fnExtension},
	"file_name":         {Unary: fnFileName},
	"file_stem":         {Unary: fnFileStem},
	"parent_directory":  {Unary: fnParentDirectory},
	"without_extension": {Unary: fnWithoutExtension},

	"join": {Binary: fnJoin},

	"replace": {Ternary: fnReplace},

	"trim":      {Unary: fnTrim},
	"lowercase": {Unary: fnLowercase},
	"uppercase": {Unary: fnUppercase},
}

func fnArch(ctx *FunctionContext) (string, error)      { return hostArch(), nil }
func fnOS(ctx *FunctionContext) (string, error)        { return hostOS(), nil }
func fnOSFamily(ctx *FunctionContext) (string, error)  { return hostOSFamily(), nil }

func fnJustExecutable(ctx *FunctionContext) (string, error) {
	if ctx.Executable == "" {
		return "", fmt.Errorf("Error getting current executable")
	}
	return ctx.Executable, nil
}

func fnJustfile(ctx *FunctionContext) (string, error) {
	return ctx.JustfilePath, nil
}

func fnJustfileDirectory(ctx *FunctionContext) (string, error) {
	if ctx.JustfileDirectory == "" {
		return "", fmt.Errorf("Could not resolve justfile directory. Justfile `%s` had no parent.", ctx.JustfilePath)
	}
	return ctx.JustfileDirectory, nil
}

func fnInvocationDirectory(ctx *FunctionContext) (string, error) {
	return ctx.InvocationDirectory, nil
}

func fnEnvVar(ctx *FunctionContext, key string) (string, error) {
	if v, ok := ctx.Dotenv[key]; ok {
		return v, nil
	}
	if v, ok := ctx.LookupEnv(key); ok {
		return v, nil
	}
	return "", fmt.Errorf("environment variable `%s` not present", key)
}

func fnEnvVarOrDefault(ctx *FunctionContext, key, def string) (string, error) {
	if v, ok := ctx.Dotenv[key]; ok {
		return v, nil
	}
	if v, ok := ctx.LookupEnv(key); ok {
		return v, nil
	}
	return def, nil
}

func fnClean(ctx *FunctionContext, p string) (string, error) {
	return path.Clean(p), nil
}

func fnExtension(ctx *FunctionContext, p string) (string, error) {
	ext := path.Ext(p)
	if ext == "" {
		return "", fmt.Errorf("Could not extract extension from `%s`", p)
	}
	return strings.TrimPrefix(ext, "."), nil
}

func fnFileName(ctx *FunctionContext, p string) (string, error) {
	name := path.Base(p)
	if name == "." || name == "/" {
		return "", fmt.Errorf("Could not extract file name from `%s`", p)
	}
	return name, nil
}

func fnFileStem(ctx *FunctionContext, p string) (string, error) {
	name := path.Base(p)
	if name == "." || name == "/" {
		return "", fmt.Errorf("Could not extract file stem from `%s`", p)
	}
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	return name, nil
}

func fnParentDirectory(ctx *FunctionContext, p string) (string, error) {
	dir := path.Dir(p)
	if dir == p || dir == "." {
		return "", fmt.Errorf("Could not extract parent directory from `%s`", p)
	}
	return dir, nil
}

func fnWithoutExtension(ctx *FunctionContext, p string) (string, error) {
	dir := path.Dir(p)
	name := path.Base(p)
	if name == "." || name == "/" {
		return "", fmt.Errorf("Could not extract file stem from `%s`", p)
	}
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	if dir == "." {
		return name, nil
	}
	return path.Join(dir, name), nil
}

func fnJoin(ctx *FunctionContext, base, with string) (string, error) {
	return path.Join(base, with), nil
}

func fnReplace(ctx *FunctionContext, s, from, to string) (string, error) {
	return strings.ReplaceAll(s, from, to), nil
}

func fnTrim(ctx *FunctionContext, s string) (string, error) {
	return strings.TrimSpace(s), nil
}

func fnLowercase(ctx *FunctionContext, s string) (string, error) {
	return strings.ToLower(s), nil
}

func fnUppercase(ctx *FunctionContext, s string) (string, error) {
	return strings.ToUpper(s), nil
}
