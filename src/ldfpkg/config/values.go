package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

// Kind describes the type an attribute value is coerced to
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindList
	KindSet
	KindMap
	KindVendor
	KindSuite
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindVendor:
		return "vendor"
	case KindSuite:
		return "suite"
	default:
		return "unknown"
	}
}

// Ellipsis stands for a bare option with no argument in list and string
// values, e.g. a dpkg-source -i with no pattern.
const Ellipsis = "..."

// Set is a sorted list of unique strings
type Set []string

// NewSet builds a Set from arbitrary strings
func NewSet(items ...string) Set {
	seen := make(map[string]bool, len(items))
	out := make(Set, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether s holds item
func (s Set) Contains(item string) bool {
	i := sort.SearchStrings(s, item)
	return i < len(s) && s[i] == item
}

// Union returns the items of s and o
func (s Set) Union(o Set) Set {
	return NewSet(append(append([]string{}, s...), o...)...)
}

// Equal reports whether s and o hold the same items
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// coerce converts a raw value from a layer document or the command line into
// the Go representation for kind. A nil result with a nil error means the
// value was explicitly cleared.
func coerce(attr *Attribute, raw any) (any, error) {
	if raw == nil {
		if attr.Optional {
			return nil, nil
		}
		return nil, invalid(attr, raw, "value may not be null")
	}

	switch attr.Kind {
	case KindString, KindVendor, KindSuite:
		s, ok := scalarString(raw)
		if !ok {
			return nil, invalid(attr, raw, "expected a string")
		}
		if attr.Kind != KindString && s == "" {
			return nil, invalid(attr, raw, "name may not be empty")
		}
		return s, nil

	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "yes", "on":
				return true, nil
			case "no", "off":
				return false, nil
			}
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, invalid(attr, raw, "expected a boolean")
			}
			return b, nil
		}
		return nil, invalid(attr, raw, "expected a boolean")

	case KindInt:
		var n int
		switch v := raw.(type) {
		case int:
			n = v
		case int64:
			n = int(v)
		case uint64:
			n = int(v)
		case float64:
			if v != float64(int(v)) {
				return nil, invalid(attr, raw, "expected an integer")
			}
			n = int(v)
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, invalid(attr, raw, "expected an integer")
			}
			n = parsed
		default:
			return nil, invalid(attr, raw, "expected an integer")
		}
		if n < attr.Min {
			return nil, invalid(attr, raw, fmt.Sprintf("must be at least %d", attr.Min))
		}
		return n, nil

	case KindList, KindSet:
		items, err := stringItems(attr, raw)
		if err != nil {
			return nil, err
		}
		if attr.Kind == KindSet {
			return NewSet(items...), nil
		}
		return items, nil

	case KindMap:
		return stringMap(attr, raw)
	}

	return nil, invalid(attr, raw, "unsupported kind")
}

func invalid(attr *Attribute, raw any, reason string) error {
	return errors.ErrInvalidValue.WithMessagef("Invalid value %#v for %s (%s): %s",
		raw, attr.Name, attr.Kind, reason)
}

func scalarString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(v), true
	}
	return "", false
}

// stringItems accepts a sequence of scalars or a single string, which is
// split on commas when it holds any, otherwise on whitespace.
func stringItems(attr *Attribute, raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		if strings.Contains(v, ",") {
			var out []string
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			return out, nil
		}
		return strings.Fields(v), nil
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := scalarString(item)
			if !ok {
				return nil, invalid(attr, raw, "list items must be scalars")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, invalid(attr, raw, "expected a list")
}

// stringMap normalizes both map shapes a YAML decoder produces. A null key,
// an empty key and "*" all denote the wildcard entry.
func stringMap(attr *Attribute, raw any) (map[string]string, error) {
	out := make(map[string]string)
	put := func(k, val any) error {
		key := ""
		if k != nil {
			s, ok := scalarString(k)
			if !ok {
				return invalid(attr, raw, "map keys must be scalars")
			}
			key = s
		}
		if key == "*" {
			key = ""
		}
		if val == nil {
			out[key] = ""
			return nil
		}
		s, ok := scalarString(val)
		if !ok {
			return invalid(attr, raw, "map values must be scalars")
		}
		out[key] = s
		return nil
	}

	switch v := raw.(type) {
	case map[string]string:
		for k, val := range v {
			if err := put(k, val); err != nil {
				return nil, err
			}
		}
	case map[string]any:
		for k, val := range v {
			if err := put(k, val); err != nil {
				return nil, err
			}
		}
	case map[any]any:
		for k, val := range v {
			if err := put(k, val); err != nil {
				return nil, err
			}
		}
	default:
		return nil, invalid(attr, raw, "expected a mapping")
	}
	return out, nil
}

// FormatValue renders a resolved value the way templates see it
func FormatValue(v any) string {
	return formatValue(v)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, " ")
	case Set:
		return strings.Join(x, " ")
	case *Vendor:
		return x.Name()
	case *Suite:
		return x.Name()
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			name := k
			if name == "" {
				name = "*"
			}
			parts = append(parts, name+"="+x[k])
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(x)
	}
}
