package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Resolve returns the absolute path of the executable command names.
// Commands containing a path separator are checked in place; bare names
// are looked up on PATH.
func Resolve(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("command not configured")
	}
	if !strings.ContainsRune(command, filepath.Separator) && !strings.ContainsRune(command, '/') {
		resolved, err := exec.LookPath(command)
		if err != nil {
			return "", fmt.Errorf("binary %q not found", command)
		}
		return filepath.Abs(resolved)
	}
	info, err := os.Stat(command)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", command)
	}
	if !isExecutable(info) {
		return "", fmt.Errorf("%q is not executable", command)
	}
	return filepath.Abs(command)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
