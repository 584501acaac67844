package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"exhume/internal/config"
	"exhume/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabasePath verifies the catalog database is writable, or that its
// directory is when the file does not exist yet.
func CheckDatabasePath(path string) Result {
	const name = "Catalog database"
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		dir := CheckDirectoryAccess(name, filepath.Dir(path))
		if dir.Passed {
			dir.Detail = fmt.Sprintf("%s (will be created)", path)
		}
		return dir
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	case info.IsDir():
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external programs for the given config.
// The carver selected in [carving] is required; the other one and the
// Sleuth Kit bodyfile producer are optional.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "foremost",
			Command:     cfg.Carving.ForemostBinary,
			Description: "File carving (carving.tool = foremost)",
			Optional:    cfg.Carving.Tool != config.CarverForemost,
		},
		{
			Name:        "scalpel",
			Command:     cfg.Carving.ScalpelBinary,
			Description: "File carving (carving.tool = scalpel)",
			Optional:    cfg.Carving.Tool != config.CarverScalpel,
		},
		{
			Name:        "fls",
			Command:     "fls",
			Description: "Produces bodyfile catalogs for extract --bodyfile",
			Optional:    true,
		},
	}
	return deps.CheckBinaries(requirements)
}

// CheckCarver reports whether the configured carving tool can be executed.
func CheckCarver(cfg *config.Config) Result {
	name := "Carver (" + cfg.Carving.Tool + ")"
	status := deps.CheckBinaries([]deps.Requirement{{Name: cfg.Carving.Tool, Command: cfg.CarverBinary()}})[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	return Result{Name: name, Passed: true, Detail: status.Path}
}
