package config

import (
	"fmt"
	"strings"
)

// Tree is an untyped configuration document. Values are scalars, nested
// mappings (map[string]any) or sequences ([]any).
type Tree map[string]any

// Merge combines a and b into a new Tree. Keys present only on one side are
// copied unchanged. On a collision the value of b wins, except when both
// values are mappings: then the two mappings are merged one level deep, with
// b's entries winning inside the nested mapping. Mappings nested deeper than
// that are replaced, not merged.
//
// Neither operand is modified and the result shares no mutable state with
// them.
func Merge(a, b Tree) Tree {
	out := make(Tree, len(a)+len(b))
	for k, v := range a {
		out[k] = copyValue(v)
	}

	for k, v := range b {
		left, inA := a[k]
		if inA {
			lm, lok := asMap(left)
			rm, rok := asMap(v)
			if lok && rok {
				merged := make(map[string]any, len(lm)+len(rm))
				for nk, nv := range lm {
					merged[nk] = copyValue(nv)
				}
				for nk, nv := range rm {
					merged[nk] = copyValue(nv)
				}
				out[k] = merged
				continue
			}
		}
		out[k] = copyValue(v)
	}

	return out
}

// Has reports whether key is present at the top level.
func (t Tree) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Section returns the mapping stored under key, or nil when the key is absent
// or holds something other than a mapping.
func (t Tree) Section(key string) map[string]any {
	m, _ := asMap(t[key])
	return m
}

// Lookup walks a dotted path ("machines.namespace") through nested mappings.
func (t Tree) Lookup(path string) (any, bool) {
	var cur any = map[string]any(t)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	return Tree(copyValue(map[string]any(t)).(map[string]any))
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Tree:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func copyValue(v any) any {
	switch val := v.(type) {
	case Tree:
		return copyValue(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nv := range val {
			out[k] = copyValue(nv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, nv := range val {
			out[i] = copyValue(nv)
		}
		return out
	default:
		return v
	}
}

// normalize converts decoder output into the value shapes Tree expects:
// mappings with non-string keys become map[string]any.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nv := range val {
			out[k] = normalize(nv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, nv := range val {
			out[fmt.Sprint(k)] = normalize(nv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, nv := range val {
			out[i] = normalize(nv)
		}
		return out
	default:
		return v
	}
}
