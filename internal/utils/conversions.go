package utils

import "strings"

// ToStringSlice keeps the string elements of slice that are non-empty once
// trimmed, trimmed, in their original order.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0, len(slice))
	for _, v := range slice {
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				stringSlice = append(stringSlice, s)
			}
		}
	}
	return stringSlice
}

// FromStringSlice is the inverse of ToStringSlice for already clean input.
func FromStringSlice(slice []string) []any {
	out := make([]any, 0, len(slice))
	for _, s := range slice {
		out = append(out, s)
	}
	return out
}

// TrimmedString returns v trimmed when it is a string, otherwise "".
func TrimmedString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// Truthy reports the loose truthiness of a decoded JSON value.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
