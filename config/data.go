package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Velocidex/yaml/v2"
)

// Load a YAML document from the data directory (tags.yaml, feature
// definitions etc) into target.
func LoadDataYaml(config_obj *Config, name string, target interface{}) error {
	if config_obj.DataDir == "" {
		return fmt.Errorf("LoadDataYaml %s: no data_dir configured", name)
	}

	data, err := os.ReadFile(filepath.Join(config_obj.DataDir, name))
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, target)
}

// Kwargs blocks in the config may be a single mapping or a list of
// mappings. Each mapping becomes one analysis run.
func NormalizeKwargs(raw interface{}) []map[string]interface{} {
	switch t := raw.(type) {
	case nil:
		return nil

	case []interface{}:
		result := make([]map[string]interface{}, 0, len(t))
		for _, item := range t {
			normalized := normalizeMap(item)
			if normalized != nil {
				result = append(result, normalized)
			}
		}
		return result

	default:
		normalized := normalizeMap(raw)
		if normalized == nil {
			return nil
		}
		return []map[string]interface{}{normalized}
	}
}

// The YAML decoder produces map[interface{}]interface{} for nested
// mappings. Convert recursively so downstream code only sees string
// keyed maps.
func normalizeMap(raw interface{}) map[string]interface{} {
	switch t := raw.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{})
		for k, v := range t {
			result[k] = normalizeValue(v)
		}
		return result

	case map[interface{}]interface{}:
		result := make(map[string]interface{})
		for k, v := range t {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprintf("%v", k)
			}
			result[key] = normalizeValue(v)
		}
		return result

	default:
		return nil
	}
}

func normalizeValue(raw interface{}) interface{} {
	switch t := raw.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		return normalizeMap(t)

	case []interface{}:
		result := make([]interface{}, 0, len(t))
		for _, item := range t {
			result = append(result, normalizeValue(item))
		}
		return result

	default:
		return raw
	}
}
