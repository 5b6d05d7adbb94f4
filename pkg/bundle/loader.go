package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a bundle from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML,
// .json for JSON. If the extension is unrecognized, YAML is attempted
// first, then JSON.
//
// After loading, the bundle is validated against the JSON schema, and
// defaults are applied to optional fields.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("bundle file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading bundle: %s", path)
		}
		return nil, fmt.Errorf("failed to read bundle file: %w", err)
	}

	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a bundle from raw bytes.
//
// The path parameter is used for error messages and format detection.
// Validation runs against the raw data (converted to JSON) before
// parsing into the typed struct, so unknown fields are rejected rather
// than silently dropped.
func LoadFromBytes(data []byte, path string) (*Bundle, error) {
	if len(data) == 0 {
		return nil, errors.New("bundle file is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	if err := ValidateRaw(jsonData); err != nil {
		return nil, err
	}

	b, err := parseBundle(data, path)
	if err != nil {
		return nil, err
	}

	b.ApplyDefaults()
	return b, nil
}

// LoadFromReader reads and validates a bundle from an io.Reader.
func LoadFromReader(r io.Reader, path string) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	return LoadFromBytes(data, path)
}

func parseBundle(data []byte, path string) (*Bundle, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		// Unknown extension: try YAML first (more permissive), then JSON.
		b, yamlErr := parseYAML(data)
		if yamlErr == nil {
			return b, nil
		}
		b, jsonErr := parseJSON(data)
		if jsonErr == nil {
			return b, nil
		}
		return nil, fmt.Errorf("failed to parse bundle (tried YAML and JSON): %w", yamlErr)
	}
}

func parseJSON(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid JSON in bundle: %w", err)
	}
	return &b, nil
}

func parseYAML(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid YAML in bundle: %w", err)
	}
	return &b, nil
}

// toJSON converts the input data to JSON for schema validation.
func toJSON(data []byte, path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in bundle: %w", err)
		}
		return data, nil

	case ".yaml", ".yml":
		return yamlToJSON(data)

	default:
		jsonData, err := yamlToJSON(data)
		if err == nil {
			return jsonData, nil
		}
		var raw any
		if jsonErr := json.Unmarshal(data, &raw); jsonErr == nil {
			return data, nil
		}
		return nil, fmt.Errorf("failed to parse bundle (tried YAML and JSON): %w", err)
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in bundle: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert bundle to JSON: %w", err)
	}
	return jsonData, nil
}
