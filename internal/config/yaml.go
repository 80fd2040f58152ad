package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// toJSON returns the file as JSON so both formats go through the same strict
// decoder. JSON input is returned as is.
func toJSON(name string, data []byte) ([]byte, error) {
	if !isYAML(name) {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	if doc == nil {
		// Empty document: every key falls back to Default().
		return []byte("{}"), nil
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("%s: convert to json: %w", filepath.Base(name), err)
	}
	return out, nil
}

// stringKeys rewrites nested yaml maps to map[string]any.
func stringKeys(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			node[k] = stringKeys(child)
		}
		return node
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range node {
			node[i] = stringKeys(child)
		}
		return node
	}
	return v
}
