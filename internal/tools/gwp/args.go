package gwp

import (
	"encoding/json"
	"fmt"
)

// requireString extracts a non-empty string from args by key.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// optionalInt extracts a JSON number as int, clamped to [lo, hi].
func optionalInt(args map[string]any, key string, fallback, lo, hi int) int {
	f, ok := args[key].(float64)
	if !ok {
		return fallback
	}
	return min(max(int(f), lo), hi)
}

// stringMap extracts an object of string values. Non-string values are
// formatted with %v.
func stringMap(args map[string]any, key string) (map[string]string, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object, got %T", key, v)
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		} else if val != nil {
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// intSlice extracts an array of JSON numbers.
func intSlice(args map[string]any, key string) ([]int, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array, got %T", key, v)
	}
	out := make([]int, 0, len(arr))
	for _, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return nil, fmt.Errorf("%s must contain numbers, got %T", key, e)
		}
		out = append(out, int(f))
	}
	return out, nil
}

func jsonText(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}
