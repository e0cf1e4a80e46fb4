package modifier

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mailgun/raymond/v2"
)

// templateHelpers returns the helper registry for one template. Helpers
// are registered per template rather than globally so concurrent Apply
// calls never share engine state. `with`, `each` and the `@last`
// iteration marker come with the engine; `lookup` is overridden with a
// variant that accepts both numeric indexes and string keys.
func templateHelpers() map[string]interface{} {
	return map[string]interface{}{
		"lookup":     lookupHelper,
		"json":       jsonHelper,
		"escapeJson": escapeJSONHelper,
	}
}

// lookupHelper resolves one step into an array or object. Out-of-range
// indexes and missing keys yield nil, which renders as nothing.
func lookupHelper(container, field interface{}) interface{} {
	switch c := container.(type) {
	case map[string]interface{}:
		return c[fmt.Sprint(field)]
	case []interface{}:
		index, ok := asIndex(field)
		if !ok || index < 0 || index >= len(c) {
			return nil
		}
		return c[index]
	}
	return nil
}

func asIndex(field interface{}) (int, bool) {
	switch v := field.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		index, err := strconv.Atoi(v)
		return index, err == nil
	}
	return 0, false
}

// jsonHelper parses a JSON string into a structured value, or
// serializes any other value into its JSON text, depending on the
// argument it is given.
func jsonHelper(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return parsed
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return raymond.SafeString(encoded)
}

// escapeJSONHelper escapes a string for embedding inside a JSON string
// literal.
func escapeJSONHelper(value interface{}) raymond.SafeString {
	encoded, err := json.Marshal(fmt.Sprint(value))
	if err != nil {
		return ""
	}
	return raymond.SafeString(encoded[1 : len(encoded)-1])
}
