package dbhttp

import "time"

// Row is one result row as decoded from the query service's JSON: numbers
// arrive as float64, booleans as 0/1 integers, timestamps as RFC3339 text.
// The accessors below absorb those representations.
type Row map[string]any

func (r Row) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// StringPtr returns nil for missing or NULL columns.
func (r Row) StringPtr(key string) *string {
	if s, ok := r[key].(string); ok {
		return &s
	}
	return nil
}

func (r Row) Int64(key string) int64 {
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func (r Row) Int64Ptr(key string) *int64 {
	if _, ok := r[key]; !ok {
		return nil
	}
	if r[key] == nil {
		return nil
	}
	v := r.Int64(key)
	return &v
}

func (r Row) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	}
	return false
}

func (r Row) Time(key string) time.Time {
	s, ok := r[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
