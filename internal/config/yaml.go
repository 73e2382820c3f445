package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// coerceToJSONBytes routes both config formats through one strict JSON
// decoder: JSON files pass through untouched, YAML files are decoded and
// re-encoded as JSON first. The returned format tag is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	if !isYAMLPath(path) {
		return data, "json", nil
	}

	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	j, err := json.Marshal(stringifyKeys(tree))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// stringifyKeys rewrites the decoded YAML tree so every map key is a
// string. yaml/v3 can yield map[any]any under non-string keys, which
// encoding/json refuses to marshal.
func stringifyKeys(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			node[k] = stringifyKeys(child)
		}
		return node
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[fmt.Sprint(k)] = stringifyKeys(child)
		}
		return out
	case []any:
		for i, child := range node {
			node[i] = stringifyKeys(child)
		}
		return node
	}
	return v
}
