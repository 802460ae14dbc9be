package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/paths"
)

// LayerFileName is the name of layer documents in configuration directories
const LayerFileName = "vendors.yaml"

// Layer is one set of attribute values, optionally scoped to a vendor or to
// a suite of a vendor. Values are coerced when the layer is built.
type Layer struct {
	Source   string
	defaults map[string]any
	vendors  map[string]*vendorLayer
}

type vendorLayer struct {
	values map[string]any
	suites map[string]map[string]any
}

// layerDocument is the on-disk shape of a layer
type layerDocument struct {
	Defaults map[string]any            `yaml:"defaults"`
	Vendors  map[string]map[string]any `yaml:"vendors"`
}

// NewLayer builds a layer from unscoped values and per-vendor values. A
// vendor map may hold a "suites" entry mapping suite names to their values.
func NewLayer(source string, defaults map[string]any, vendors map[string]map[string]any) (*Layer, error) {
	l := &Layer{
		Source:   source,
		defaults: map[string]any{},
		vendors:  map[string]*vendorLayer{},
	}

	if err := coerceInto(l.defaults, defaults, source); err != nil {
		return nil, err
	}

	for vendor, values := range vendors {
		vl := &vendorLayer{
			values: map[string]any{},
			suites: map[string]map[string]any{},
		}
		for key, raw := range values {
			if key != "suites" {
				continue
			}
			suites, err := suiteSection(raw)
			if err != nil {
				return nil, errors.ErrLayerLoad.WithMessagef("%s: vendors.%s.suites: %v", source, vendor, err)
			}
			for suite, sv := range suites {
				coerced := map[string]any{}
				if err := coerceInto(coerced, sv, source); err != nil {
					return nil, err
				}
				vl.suites[suite] = coerced
			}
		}
		rest := make(map[string]any, len(values))
		for key, raw := range values {
			if key != "suites" {
				rest[key] = raw
			}
		}
		if err := coerceInto(vl.values, rest, source); err != nil {
			return nil, err
		}
		l.vendors[vendor] = vl
	}

	return l, nil
}

// ParseLayer decodes a YAML layer document
func ParseLayer(source string, data []byte) (*Layer, error) {
	var doc layerDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.ErrLayerLoad.WithMessagef("Cannot parse %s", source).WithCause(err)
	}
	return NewLayer(source, doc.Defaults, doc.Vendors)
}

// LoadLayerFile reads and decodes a YAML layer file
func LoadLayerFile(path string) (*Layer, error) {
	path = paths.Expand(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ErrLayerLoad.WithMessagef("Cannot read %s", path).WithCause(err)
	}
	log.Debug("Loaded configuration layer", "path", path)
	return ParseLayer(path, data)
}

// LoadLayerDirs loads the layer file from each directory that has one.
// Directories are given lowest precedence first; missing files are skipped.
func LoadLayerDirs(dirs []string) ([]*Layer, error) {
	var layers []*Layer
	for _, dir := range dirs {
		path := filepath.Join(paths.Expand(dir), LayerFileName)
		if !paths.IsFile(path) {
			continue
		}
		l, err := LoadLayerFile(path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func coerceInto(dst, src map[string]any, source string) error {
	for name, raw := range src {
		attr, ok := LookupAttribute(name)
		if !ok {
			return errors.ErrUnknownAttribute.WithMessagef("%s: unknown attribute %q", source, name)
		}
		v, err := coerce(attr, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
		dst[name] = v
	}
	return nil
}

func suiteSection(raw any) (map[string]map[string]any, error) {
	out := map[string]map[string]any{}
	add := func(k any, v any) error {
		name, ok := scalarString(k)
		if !ok {
			return fmt.Errorf("suite names must be scalars")
		}
		if v == nil {
			out[name] = map[string]any{}
			return nil
		}
		values, ok := stringKeyed(v)
		if !ok {
			return fmt.Errorf("suite %s must be a mapping", name)
		}
		out[name] = values
		return nil
	}

	switch v := raw.(type) {
	case map[string]any:
		for k, sv := range v {
			if err := add(k, sv); err != nil {
				return nil, err
			}
		}
	case map[any]any:
		for k, sv := range v {
			if err := add(k, sv); err != nil {
				return nil, err
			}
		}
	case map[string]map[string]any:
		for k, sv := range v {
			out[k] = sv
		}
	default:
		return nil, fmt.Errorf("expected a mapping")
	}
	return out, nil
}

func stringKeyed(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			s, ok := scalarString(k)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

func (l *Layer) defaultValue(name string) (any, bool) {
	v, ok := l.defaults[name]
	return v, ok
}

func (l *Layer) vendorValue(vendor, name string) (any, bool) {
	vl, ok := l.vendors[vendor]
	if !ok {
		return nil, false
	}
	v, ok := vl.values[name]
	return v, ok
}

func (l *Layer) suiteValue(vendor, suite, name string) (any, bool) {
	vl, ok := l.vendors[vendor]
	if !ok {
		return nil, false
	}
	sv, ok := vl.suites[suite]
	if !ok {
		return nil, false
	}
	v, ok := sv[name]
	return v, ok
}

func (l *Layer) hasSuite(vendor, suite string) bool {
	vl, ok := l.vendors[vendor]
	if !ok {
		return false
	}
	_, ok = vl.suites[suite]
	return ok
}

func (l *Layer) suiteNames(vendor string) []string {
	vl, ok := l.vendors[vendor]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(vl.suites))
	for name := range vl.suites {
		names = append(names, name)
	}
	return names
}
