// Package ontology types the free form attribute values stored on a
// sketch. Values travel as strings; the type tag says how to get the
// real value back.
package ontology

import (
	"fmt"
	"strconv"

	"github.com/Velocidex/json"
)

var supported_types = []string{"str", "int", "float", "bool", "dict"}

func SupportedTypes() []string {
	result := make([]string, len(supported_types))
	copy(result, supported_types)
	return result
}

func IsSupported(type_tag string) bool {
	for _, t := range supported_types {
		if t == type_tag {
			return true
		}
	}
	return false
}

// Encode validates that value matches the type tag and renders it as
// the stored string form.
func Encode(type_tag string, value interface{}) (string, error) {
	switch type_tag {
	case "str":
		str, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("ontology: %v is not a str", value)
		}
		return str, nil

	case "int":
		switch t := value.(type) {
		case int:
			return strconv.Itoa(t), nil
		case int64:
			return strconv.FormatInt(t, 10), nil
		case uint64:
			return strconv.FormatUint(t, 10), nil
		}
		return "", fmt.Errorf("ontology: %v is not an int", value)

	case "float":
		switch t := value.(type) {
		case float64:
			return strconv.FormatFloat(t, 'g', -1, 64), nil
		case float32:
			return strconv.FormatFloat(float64(t), 'g', -1, 32), nil
		}
		return "", fmt.Errorf("ontology: %v is not a float", value)

	case "bool":
		b, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("ontology: %v is not a bool", value)
		}
		return strconv.FormatBool(b), nil

	case "dict":
		_, ok := value.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("ontology: %v is not a dict", value)
		}
		serialized, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(serialized), nil
	}

	return "", fmt.Errorf("ontology: unknown type tag %q", type_tag)
}

// Decode converts the stored string form back into a value.
func Decode(type_tag string, encoded string) (interface{}, error) {
	switch type_tag {
	case "str":
		return encoded, nil

	case "int":
		return strconv.ParseInt(encoded, 10, 64)

	case "float":
		return strconv.ParseFloat(encoded, 64)

	case "bool":
		return strconv.ParseBool(encoded)

	case "dict":
		result := make(map[string]interface{})
		err := json.Unmarshal([]byte(encoded), &result)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	return nil, fmt.Errorf("ontology: unknown type tag %q", type_tag)
}
