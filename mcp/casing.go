package mcp

import (
	"strings"
	"unicode"
)

// SnakeToCamel converts one snake_case identifier to camelCase. A leading
// underscore is preserved (`_meta` stays `_meta`); interior underscores
// capitalize the following letter.
func SnakeToCamel(s string) string {
	leading := ""
	if strings.HasPrefix(s, "_") {
		leading = "_"
		s = s[1:]
	}

	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return leading + s
	}

	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return leading + b.String()
}

// CamelToSnake converts one camelCase identifier to snake_case, preserving
// a leading underscore. Runs of capitals (`userID`) fold into one segment
// (`user_id`).
func CamelToSnake(s string) string {
	leading := ""
	if strings.HasPrefix(s, "_") {
		leading = "_"
		s = s[1:]
	}

	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// Start a new segment unless this capital continues a run
			// (HTTPServer -> http_server, not h_t_t_p_server).
			if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return leading + b.String()
}

// CamelizeKeys recursively rewrites map keys snake_case→camelCase through
// objects and arrays. excludePaths name dot-joined subtrees whose keys are
// passed through untouched (for example "result.raw_output").
func CamelizeKeys(v interface{}, excludePaths ...string) interface{} {
	return convertKeys(v, SnakeToCamel, newPathSet(excludePaths), "")
}

// SnakeifyKeys recursively rewrites map keys camelCase→snake_case through
// objects and arrays.
func SnakeifyKeys(v interface{}, excludePaths ...string) interface{} {
	return convertKeys(v, CamelToSnake, newPathSet(excludePaths), "")
}

// CamelizeSchema converts a JSON schema declared with snake_case property
// names to its camelCase wire form. Property names appear both as keys
// under "properties" and as string members of "required" arrays, so the
// key conversion alone would advertise camelCase properties next to
// snake_case required entries.
func CamelizeSchema(schema map[string]interface{}) interface{} {
	out, ok := CamelizeKeys(schema).(map[string]interface{})
	if !ok {
		return schema
	}
	camelizeRequired(out)
	return out
}

// camelizeRequired rewrites the members of every "required" array that
// sits next to a "properties" object. Operates on the converted copy.
func camelizeRequired(v interface{}) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return
	}
	if required, ok := obj["required"].([]interface{}); ok {
		if _, hasProps := obj["properties"]; hasProps {
			for i, member := range required {
				if name, ok := member.(string); ok {
					required[i] = SnakeToCamel(name)
				}
			}
		}
	}
	for _, child := range obj {
		switch c := child.(type) {
		case map[string]interface{}:
			camelizeRequired(c)
		case []interface{}:
			for _, elem := range c {
				camelizeRequired(elem)
			}
		}
	}
}

type pathSet map[string]struct{}

func newPathSet(paths []string) pathSet {
	if len(paths) == 0 {
		return nil
	}
	set := make(pathSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

func (s pathSet) excluded(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s[path]
	return ok
}

func convertKeys(v interface{}, keyFn func(string) string, exclude pathSet, path string) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if exclude.excluded(childPath) {
				out[keyFn(k)] = child
				continue
			}
			out[keyFn(k)] = convertKeys(child, keyFn, exclude, childPath)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			// Array elements share the array's path so excludes apply to
			// every member uniformly.
			out[i] = convertKeys(child, keyFn, exclude, path)
		}
		return out
	default:
		return v
	}
}
