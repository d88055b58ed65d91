package core

// Int64FromAny converts a decoded numeric value (float64, int, or int64) to int64, returning false for unsupported types.
func Int64FromAny(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// StringFromAny returns v as a string, or "" when v is not a string.
func StringFromAny(v any) string {
	s, _ := v.(string)
	return s
}
