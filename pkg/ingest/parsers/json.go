package parsers

import (
	"encoding/json"
	"os"
)

// ParseJSON loads a JSON file and converts every value whose key appears in
// dateFields into a time.Time, at any nesting depth. Values that fail date
// parsing are left untouched.
func ParseJSON(path string, dateFields []string) (interface{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	if len(dateFields) > 0 {
		fields := make(map[string]struct{}, len(dateFields))
		for _, f := range dateFields {
			fields[f] = struct{}{}
		}
		data = convertDateFields(data, fields)
	}

	return data, nil
}

func convertDateFields(data interface{}, fields map[string]struct{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		for key, value := range v {
			if _, ok := fields[key]; ok {
				if t, ok := ParseTime(value); ok {
					v[key] = t
					continue
				}
			}
			v[key] = convertDateFields(value, fields)
		}
		return v
	case []interface{}:
		for i, item := range v {
			v[i] = convertDateFields(item, fields)
		}
		return v
	}
	return data
}
