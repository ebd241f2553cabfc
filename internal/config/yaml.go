package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var errEmptyConfig = errors.New("config is empty")

// stringPaths are fields that are strings in Config but often written as bare
// numbers in YAML (numeric user ids, all-digit tokens).
var stringPaths = map[string]bool{
	"server.user_id":   true,
	"server.token":     true,
	"desktop.app_name": true,
}

// detectFormat uses the extension and falls back to sniffing the content.
func detectFormat(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
		return "json"
	}
	return "yaml"
}

// coerceToJSONBytes converts a YAML config to JSON so both formats go
// through the strict JSON decoder (DisallowUnknownFields).
//
// Returns (jsonBytes, format, err) where format is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", errEmptyConfig
	}
	format := detectFormat(path, data)
	if format == "json" {
		return data, format, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, format, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		return nil, format, errEmptyConfig
	}

	j, err := json.Marshal(normalizeYAML("", v))
	if err != nil {
		return nil, format, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, format, nil
}

// normalizeYAML makes every map key a string and turns scalars found at
// stringPaths into strings. path is the dotted key of in.
func normalizeYAML(path string, in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			key := fmt.Sprint(k)
			m[key] = normalizeYAML(join(path, key), v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(join(path, k), v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(path, x[i])
		}
		return x
	case int, int64, uint64, float64, bool:
		if stringPaths[path] {
			return fmt.Sprint(x)
		}
		return in
	default:
		return in
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
