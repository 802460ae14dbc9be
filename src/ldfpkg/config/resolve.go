package config

import (
	"os"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

// scope is the context an attribute is resolved in
type scope struct {
	cfg       *Config
	vendor    *Vendor
	suite     *Suite
	overrides bool
	resolving map[string]bool
}

// resolve returns the value of the named attribute. ok is false when the
// attribute has no value, including when a layer cleared it with null.
func (sc *scope) resolve(name string) (any, bool, error) {
	attr, found := LookupAttribute(name)
	if !found {
		return nil, false, errors.ErrUnknownAttribute.WithMessagef("Unknown attribute %q", name)
	}
	if sc.resolving == nil {
		sc.resolving = map[string]bool{}
	}
	if sc.resolving[name] {
		return nil, false, errors.ErrInvalidValue.WithMessagef("Attribute %s refers to itself", name)
	}
	sc.resolving[name] = true
	defer delete(sc.resolving, name)

	var (
		v   any
		ok  bool
		err error
	)
	if attr.Kind == KindMap {
		v, ok, err = sc.lookupMerged(attr)
	} else {
		v, ok, err = sc.lookup(attr)
	}
	if err != nil || !ok || v == nil {
		return nil, false, err
	}

	if attr.Templated {
		v, err = sc.expandValue(v)
		if err != nil {
			return nil, false, err
		}
	}
	return v, true, nil
}

// lookup walks the strategies of attr and returns the first hit
func (sc *scope) lookup(attr *Attribute) (any, bool, error) {
	for _, st := range attr.Strategies {
		v, ok, err := sc.step(attr, st)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// lookupMerged folds map values from lowest to highest precedence, so a
// key set in a higher layer replaces the same key from a lower one
func (sc *scope) lookupMerged(attr *Attribute) (any, bool, error) {
	merged := map[string]string{}
	found := false
	for i := len(attr.Strategies) - 1; i >= 0; i-- {
		for _, v := range sc.hits(attr, attr.Strategies[i]) {
			m, ok := v.(map[string]string)
			if !ok {
				continue
			}
			for k, val := range m {
				merged[k] = val
			}
			found = true
		}
	}
	return merged, found, nil
}

// hits returns every value a strategy finds, lowest precedence first
func (sc *scope) hits(attr *Attribute, st Strategy) []any {
	var out []any
	add := func(v any, ok bool) {
		if ok {
			out = append([]any{v}, out...)
		}
	}
	switch st {
	case FromOverride:
		if sc.overrides {
			add(sc.cfg.overrides[attr.Name], hasKey(sc.cfg.overrides, attr.Name))
		}
	case FromVendorLayers:
		if sc.vendor != nil {
			for _, l := range sc.cfg.layers {
				add(l.vendorValue(sc.vendor.name, attr.Name))
			}
		}
	case FromDefaultLayers:
		for _, l := range sc.cfg.layers {
			add(l.defaultValue(attr.Name))
		}
	case FromDefault:
		add(attr.Default, attr.Default != nil)
	}
	return out
}

func (sc *scope) step(attr *Attribute, st Strategy) (any, bool, error) {
	name := attr.Name
	switch st {
	case FromOverride:
		if sc.overrides {
			if v, ok := sc.cfg.overrides[name]; ok {
				return v, true, nil
			}
		}

	case FromSuiteLayers, FromSuiteOwnLayers:
		if sc.suite == nil {
			return nil, false, nil
		}
		suites := []*Suite{sc.suite}
		if st == FromSuiteLayers {
			suites = sc.suite.Hierarchy()
		}
		for _, s := range suites {
			for _, l := range sc.cfg.layers {
				if v, ok := l.suiteValue(s.vendor.name, s.name, name); ok {
					return v, true, nil
				}
			}
		}

	case FromVendorLayers:
		if sc.vendor == nil {
			return nil, false, nil
		}
		for _, l := range sc.cfg.layers {
			if v, ok := l.vendorValue(sc.vendor.name, name); ok {
				return v, true, nil
			}
		}

	case FromDefaultLayers:
		for _, l := range sc.cfg.layers {
			if v, ok := l.defaultValue(name); ok {
				return v, true, nil
			}
		}

	case FromSuiteBuiltin, FromSuiteOwnBuiltin:
		if sc.suite == nil {
			return nil, false, nil
		}
		suites := []*Suite{sc.suite}
		if st == FromSuiteBuiltin {
			suites = sc.suite.Hierarchy()
		}
		for _, s := range suites {
			if v, ok := s.builtin[name]; ok {
				return v, true, nil
			}
		}

	case FromVendorBuiltin:
		if sc.vendor != nil {
			if v, ok := sc.vendor.builtin.value(name); ok {
				return v, true, nil
			}
		}

	case FromComputed:
		if attr.Compute != nil {
			return attr.Compute(sc)
		}

	case FromDefault:
		if attr.Default != nil {
			return attr.Default, true, nil
		}
	}
	return nil, false, nil
}

func hasKey(m map[string]any, k string) bool {
	_, ok := m[k]
	return ok
}

func (sc *scope) resolveVendor(name string) (*Vendor, error) {
	raw, ok, err := sc.resolve(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrInvalidValue.WithMessagef("Attribute %s has no value", name)
	}
	return sc.cfg.Vendor(raw.(string)), nil
}

// expandValue substitutes ${attr} references in strings and list items
func (sc *scope) expandValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return sc.expand(x)
	case []string:
		out := make([]string, len(x))
		for i, item := range x {
			s, err := sc.expand(item)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}
	return v, nil
}

// expand replaces ${name} with the resolved value of the attribute name.
// ${archive} falls back to the vendor name like Suite.Archive, and
// ${vendor} and ${suite} name the scope itself.
func (sc *scope) expand(s string) (string, error) {
	var firstErr error
	out := os.Expand(s, func(name string) string {
		if firstErr != nil {
			return ""
		}
		switch name {
		case "vendor":
			if sc.vendor != nil {
				return sc.vendor.name
			}
		case "suite":
			if sc.suite != nil {
				return sc.suite.name
			}
		case "archive":
			if sc.suite != nil {
				return sc.suite.Archive()
			}
			if v, ok, _ := sc.resolve("archive"); ok {
				return v.(string)
			}
			if sc.vendor != nil {
				return sc.vendor.name
			}
			return ""
		}
		if _, known := LookupAttribute(name); !known {
			return "${" + name + "}"
		}
		v, _, err := sc.resolve(name)
		if err != nil {
			firstErr = err
			return ""
		}
		return formatValue(v)
	})
	return out, firstErr
}
