package dvid

import (
	"fmt"
	"path/filepath"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// ConvertToAbsolute converts a path relative to baseDir into an absolute path.
// Absolute paths are returned unmodified.
func ConvertToAbsolute(path, baseDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("could not make %q absolute: %v", baseDir, err)
	}
	return filepath.Join(absDir, path), nil
}
