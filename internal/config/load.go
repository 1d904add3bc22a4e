package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override configuration keys.
const EnvPrefix = "PRH_"

// LoadError reports a config file that could not be read or parsed. It is
// not fatal: the file is skipped and the remaining files are still merged.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config file %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load builds the configuration tree for a run: defaults, then every file of
// dir, then the PRH_ variables found in environ. The returned LoadErrors
// describe skipped files; the error is non-nil only when dir itself cannot be
// listed.
func Load(dir string, environ []string) (Tree, []*LoadError, error) {
	files, skipped, err := LoadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	tree := Merge(Defaults(), files)
	tree = Merge(tree, LoadEnv(environ))
	return tree, skipped, nil
}

// LoadDir merges every config file in dir. Files whose name contains
// "example" are ignored. Files are merged in lexical order of their names so
// the result does not depend on directory enumeration order.
func LoadDir(dir string) (Tree, []*LoadError, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.Contains(entry.Name(), "example") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	tree := Tree{}
	var skipped []*LoadError
	for _, name := range names {
		path := filepath.Join(dir, name)
		fileTree, err := LoadFile(path)
		if err != nil {
			skipped = append(skipped, &LoadError{Path: path, Err: err})
			continue
		}
		tree = Merge(tree, fileTree)
	}

	return tree, skipped, nil
}

// LoadFile reads a single JSON or YAML document into a Tree. A file with any
// other extension yields an empty Tree.
func LoadFile(path string) (Tree, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return Tree{}, nil
	}

	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return parseTree(data)
}

// LoadEnv collects PRH_ variables from environ ("KEY=value" pairs). The
// prefix is stripped and the rest of the name lower-cased to form the key;
// values stay strings.
func LoadEnv(environ []string) Tree {
	tree := Tree{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if name == "" {
			continue
		}
		tree[name] = value
	}
	return tree
}

// parseTree decodes a YAML (or JSON, which is valid YAML) document.
func parseTree(data []byte) (Tree, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	if raw == nil {
		return Tree{}, nil
	}
	return Tree(normalize(raw).(map[string]any)), nil
}
