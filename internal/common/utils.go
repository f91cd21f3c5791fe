package common

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

var (
	fenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	objRegex   = regexp.MustCompile(`(?s)\{.*\}`)
	arrRegex   = regexp.MustCompile(`(?s)\[.*\]`)
)

// ExtractJSON extracts JSON content from a text string
// It looks for a fenced block first, then content between { and } or [ and ] brackets
func ExtractJSON(text string) (string, error) {
	if m := fenceRegex.FindStringSubmatch(text); len(m) == 2 {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	// Try to find JSON object
	objMatch := objRegex.FindString(text)
	if objMatch != "" {
		// Validate it's valid JSON
		var obj interface{}
		if err := json.Unmarshal([]byte(objMatch), &obj); err == nil {
			return objMatch, nil
		}
	}

	// Try to find JSON array
	arrMatch := arrRegex.FindString(text)
	if arrMatch != "" {
		// Validate it's valid JSON
		var arr interface{}
		if err := json.Unmarshal([]byte(arrMatch), &arr); err == nil {
			return arrMatch, nil
		}
	}

	return "", fmt.Errorf("no valid JSON found in text")
}

// DecodeObject extracts the first JSON object from text into a generic map.
// Completion-service output is untrusted, so callers coerce every field with
// the Get* helpers below instead of unmarshalling into typed structs.
func DecodeObject(text string) (map[string]interface{}, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	return out, nil
}

// GetStringValue retrieves a string value from a map using multiple possible keys
// It tries each key in order and returns the first non-empty value found
func GetStringValue(data map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if s := AsString(val); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// GetString returns data[key] as a string or def.
func GetString(data map[string]interface{}, key, def string) string {
	if s, ok := GetStringValue(data, key); ok {
		return s
	}
	return def
}

// GetBool returns data[key] as a bool or def. Strings such as "true" and
// "yes" are accepted.
func GetBool(data map[string]interface{}, key string, def bool) bool {
	switch v := data[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	case float64:
		return v != 0
	}
	return def
}

// GetFloat returns data[key] as a float64 or def.
func GetFloat(data map[string]interface{}, key string, def float64) float64 {
	if f, ok := AsFloat(data[key]); ok {
		return f
	}
	return def
}

// GetInt returns data[key] as an int or def.
func GetInt(data map[string]interface{}, key string, def int) int {
	if f, ok := AsFloat(data[key]); ok {
		return int(f)
	}
	return def
}

// GetStringSlice returns data[key] as a slice of non-empty strings. A single
// string value becomes a one-element slice.
func GetStringSlice(data map[string]interface{}, key string) []string {
	switch v := data[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := AsString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if strings.TrimSpace(v) != "" {
			return []string{strings.TrimSpace(v)}
		}
	}
	return nil
}

// GetMap returns data[key] as a nested map or nil.
func GetMap(data map[string]interface{}, key string) map[string]interface{} {
	if m, ok := data[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

// GetMapSlice returns data[key] as a slice of maps, skipping non-map items.
func GetMapSlice(data map[string]interface{}, key string) []map[string]interface{} {
	list, ok := data[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// AsString converts scalar JSON values to a trimmed string.
func AsString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// AsFloat converts numbers and numeric strings to float64.
func AsFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// Clamp01 bounds f to [0,1].
func Clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// ReturnJSONError writes a JSON error response with the given status code and message
func ReturnJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    statusCode,
			"message": message,
		},
	}

	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		// If JSON encoding fails, fall back to plain text
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(fmt.Sprintf("Error: %s", message)))
	}
}
