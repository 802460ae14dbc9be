// Package config resolves vendor and suite configuration for package builds.
//
// Values come from runtime overrides, from layers scoped to a suite, to a
// vendor or to nothing, and from compiled knowledge about known vendors.
// Each attribute declares the order these sources are consulted in; see
// attributeTable.
package config

import (
	"fmt"
	"time"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the config package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Config is the root of a configuration tree. Each Config owns its own
// vendor registry, so separate instances never share suites.
type Config struct {
	layers        []*Layer
	overrides     map[string]any
	vendors       map[string]*Vendor
	now           func() time.Time
	distroInfoDir string
	infos         map[string]*DistroInfo
}

// Option configures a Config
type Option func(*Config)

// WithLayers adds layers, highest precedence first
func WithLayers(layers ...*Layer) Option {
	return func(c *Config) {
		c.layers = append(c.layers, layers...)
	}
}

// WithClock sets the clock release data is evaluated against
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.now = now
	}
}

// WithDistroInfoDir reads release data from dir instead of DistroInfoDir.
// An empty dir selects the compiled tables.
func WithDistroInfoDir(dir string) Option {
	return func(c *Config) {
		c.distroInfoDir = dir
	}
}

// New creates a Config
func New(opts ...Option) *Config {
	c := &Config{
		overrides:     map[string]any{},
		vendors:       map[string]*Vendor{},
		now:           time.Now,
		distroInfoDir: DistroInfoDir,
		infos:         map[string]*DistroInfo{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddLayer adds l with a higher precedence than every existing layer
func (c *Config) AddLayer(l *Layer) {
	c.layers = append([]*Layer{l}, c.layers...)
}

// Layers returns the layers, highest precedence first
func (c *Config) Layers() []*Layer {
	return c.layers
}

// Set records a runtime override. The value is coerced to the attribute
// type immediately, so an incompatible literal fails here.
func (c *Config) Set(name string, value any) error {
	attr, ok := LookupAttribute(name)
	if !ok {
		return errors.ErrUnknownAttribute.WithMessagef("Unknown attribute %q", name)
	}
	if !attr.overridable() {
		return errors.ErrInvalidValue.WithMessagef("Attribute %s cannot be overridden", name)
	}
	v, err := coerce(attr, value)
	if err != nil {
		return err
	}
	c.overrides[name] = v
	return nil
}

// Unset removes a runtime override
func (c *Config) Unset(name string) {
	delete(c.overrides, name)
}

func (c *Config) distroInfo(vendor string) *DistroInfo {
	if info, ok := c.infos[vendor]; ok {
		return info
	}
	info := LoadDistroInfo(c.distroInfoDir, vendor, c.now)
	c.infos[vendor] = info
	return info
}

// Vendor returns the vendor called name, creating it on first use
func (c *Config) Vendor(name string) *Vendor {
	if v, ok := c.vendors[name]; ok {
		return v
	}
	v := newVendor(c, name)
	c.vendors[name] = v
	return v
}

func (c *Config) rootScope() *scope {
	return &scope{cfg: c, overrides: true}
}

func (c *Config) vendorScope(v *Vendor) *scope {
	return &scope{cfg: c, vendor: v, overrides: false}
}

func (c *Config) suiteScope(s *Suite, overrides bool) *scope {
	return &scope{cfg: c, vendor: s.vendor, suite: s, overrides: overrides}
}

func (c *Config) activeScope() (*scope, error) {
	v, err := c.ActiveVendor()
	if err != nil {
		return nil, err
	}
	s, err := c.ActiveSuite()
	if err != nil {
		return nil, err
	}
	return &scope{cfg: c, vendor: v, suite: s, overrides: true}, nil
}

// ActiveVendor returns the vendor named by the vendor attribute
func (c *Config) ActiveVendor() (*Vendor, error) {
	return c.rootScope().resolveVendor("vendor")
}

// ActiveSuite returns the suite named by the suite attribute, resolved in
// the active vendor, or nil when no suite is configured
func (c *Config) ActiveSuite() (*Suite, error) {
	v, err := c.ActiveVendor()
	if err != nil {
		return nil, err
	}
	sc := &scope{cfg: c, vendor: v, overrides: true}
	raw, ok, err := sc.resolve("suite")
	if err != nil || !ok {
		return nil, err
	}
	return v.GetSuite(raw.(string), true), nil
}

// Resolve returns the value of an attribute for the active vendor and suite
func (c *Config) Resolve(name string) (any, bool, error) {
	sc, err := c.activeScope()
	if err != nil {
		return nil, false, err
	}
	return sc.resolve(name)
}

// String resolves a string attribute; an absent value is the empty string
func (c *Config) String(name string) (string, error) {
	s, _, err := c.OptionalString(name)
	return s, err
}

// OptionalString resolves a string attribute and reports whether it is set
func (c *Config) OptionalString(name string) (string, bool, error) {
	raw, ok, err := c.Resolve(name)
	if err != nil || !ok {
		return "", false, err
	}
	s, isString := raw.(string)
	if !isString {
		return "", false, typeMismatch(name, "string")
	}
	return s, true, nil
}

// Bool resolves a boolean attribute
func (c *Config) Bool(name string) (bool, error) {
	raw, ok, err := c.Resolve(name)
	if err != nil || !ok {
		return false, err
	}
	b, isBool := raw.(bool)
	if !isBool {
		return false, typeMismatch(name, "boolean")
	}
	return b, nil
}

// Int resolves an integer attribute
func (c *Config) Int(name string) (int, error) {
	raw, ok, err := c.Resolve(name)
	if err != nil || !ok {
		return 0, err
	}
	n, isInt := raw.(int)
	if !isInt {
		return 0, typeMismatch(name, "integer")
	}
	return n, nil
}

// Strings resolves a list or set attribute
func (c *Config) Strings(name string) ([]string, error) {
	raw, ok, err := c.Resolve(name)
	if err != nil || !ok {
		return nil, err
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case Set:
		return []string(v), nil
	}
	return nil, typeMismatch(name, "list")
}

func typeMismatch(name, want string) error {
	return errors.ErrInvalidValue.WithMessagef("Attribute %s is not a %s", name, want)
}

// WorkerVendor returns the vendor of the worker environment
func (c *Config) WorkerVendor() (*Vendor, error) {
	return c.vendorAttr("worker_vendor")
}

// SbuildWorkerVendor returns the vendor of the sbuild worker
func (c *Config) SbuildWorkerVendor() (*Vendor, error) {
	return c.vendorAttr("sbuild_worker_vendor")
}

// WorkerSuite returns the worker suite, resolved in the worker vendor
func (c *Config) WorkerSuite() (*Suite, error) {
	return c.suiteAttr("worker_suite", "worker_vendor")
}

// SbuildWorkerSuite returns the sbuild worker suite, resolved in the
// sbuild worker vendor
func (c *Config) SbuildWorkerSuite() (*Suite, error) {
	return c.suiteAttr("sbuild_worker_suite", "sbuild_worker_vendor")
}

func (c *Config) vendorAttr(name string) (*Vendor, error) {
	sc, err := c.activeScope()
	if err != nil {
		return nil, err
	}
	return sc.resolveVendor(name)
}

func (c *Config) suiteAttr(name, vendorName string) (*Suite, error) {
	v, err := c.vendorAttr(vendorName)
	if err != nil {
		return nil, err
	}
	raw, ok, err := c.Resolve(name)
	if err != nil || !ok {
		return nil, err
	}
	return v.GetSuite(raw.(string), true), nil
}

// Mirrors returns the mirror table for the active vendor
func (c *Config) Mirrors() (*Mirrors, error) {
	v, err := c.ActiveVendor()
	if err != nil {
		return nil, err
	}
	return c.mirrorsFor(v)
}

func (c *Config) mirrorsFor(v *Vendor) (*Mirrors, error) {
	sc := &scope{cfg: c, vendor: v, overrides: true}
	raw, _, err := sc.resolve("mirrors")
	if err != nil {
		return nil, err
	}
	m, _ := raw.(map[string]string)
	return NewMirrors(m), nil
}

// Validate resolves every attribute for the active vendor and suite,
// reports suite base cycles, and checks that every suite in the active
// hierarchy has a mirror.
func (c *Config) Validate() error {
	sc, err := c.activeScope()
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range AttributeNames() {
		if _, _, err := sc.resolve(name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	for _, v := range c.vendors {
		errs = append(errs, v.cycles...)
	}

	if sc.suite != nil {
		if err := c.ValidateMirrors(sc.suite); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ValidateMirrors checks that every suite in the hierarchy of s resolves
// to a mirror
func (c *Config) ValidateMirrors(s *Suite) error {
	var errs []error
	for _, member := range s.Hierarchy() {
		if _, err := member.Mirror(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
