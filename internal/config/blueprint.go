package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlueprintNotFound is returned when the named blueprint file does not exist.
var ErrBlueprintNotFound = errors.New("blueprint not found")

// BlueprintPath resolves a blueprint name to its file under dir, appending
// the .yaml extension when it is missing.
func BlueprintPath(dir, name string) string {
	if !strings.HasSuffix(name, ".yaml") {
		name += ".yaml"
	}
	return filepath.Join(dir, name)
}

// LoadBlueprint reads the blueprint called name from dir.
func LoadBlueprint(dir, name string) (Tree, error) {
	path := BlueprintPath(dir, name)

	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlueprintNotFound, path)
		}
		return nil, fmt.Errorf("failed to read blueprint %s: %w", path, err)
	}

	tree, err := parseTree(data)
	if err != nil {
		return nil, fmt.Errorf("blueprint %s: %w", path, err)
	}
	return tree, nil
}
