package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// loadDotenv reads a `.env` file adjacent to the buildfile using
// godotenv.Read (never godotenv.Load, which would mutate the calling
// process's own environment — the parent process environment must never be
// touched per the resource model). Returns an empty, non-nil map if no
// `.env` file exists; searching the directory tree for the "nearest" file is
// not needed beyond the buildfile's own directory, since dotenv-load only
// ever looks beside the resolved buildfile.
func loadDotenv(justfileDir string) (map[string]string, error) {
	path := filepath.Join(justfileDir, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return env, nil
}
