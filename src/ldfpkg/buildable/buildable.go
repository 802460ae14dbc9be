// Package buildable turns the inputs of a build request into canonical
// package identities.
//
// Four input shapes are accepted: an unpacked source tree, a sourceful
// .changes file, a .dsc file, and a reference to a source package in the
// archive ("name" or "name_version"). Each shape is parsed by its own
// function; all of them yield a Buildable.
package buildable

import (
	"os"
	"path/filepath"
	"strings"

	"pault.ag/go/debian/version"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/logs"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the buildable package
func SetLogger(l *logs.Logger) {
	log = l
}

// Unreleased is the changelog distribution of work in progress
const Unreleased = "UNRELEASED"

// Kind identifies the shape of a build request
type Kind int

const (
	KindTree Kind = iota
	KindChanges
	KindDsc
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindChanges:
		return "changes"
	case KindDsc:
		return "dsc"
	case KindArchive:
		return "archive"
	}
	return "unknown"
}

// Identity is what is known about the source package being built
type Identity struct {
	Source string
	// Version is meaningful only when Versioned is set; archive references
	// may omit it
	Version       version.Version
	Versioned     bool
	ArchWildcards []string
	Binaries      []string
}

// ProductPrefix is the "<source>_<version>" stem of output file names,
// with any epoch removed
func (id Identity) ProductPrefix() string {
	if !id.Versioned {
		return id.Source
	}
	v := id.Version
	v.Epoch = 0
	return id.Source + "_" + v.String()
}

// HasWildcard reports whether w is declared literally
func (id Identity) HasWildcard(w string) bool {
	for _, x := range id.ArchWildcards {
		if x == w {
			return true
		}
	}
	return false
}

// Buildable is one canonicalized build request
type Buildable struct {
	// Input is the argument the request was created from
	Input string
	Kind  Kind
	Identity

	// Dir is the directory holding the .dsc and the files it lists
	Dir string
	// Dsc is the path to the authoritative .dsc, empty until one is known
	Dsc      string
	DscFiles []string
	// SourcefulChanges is the sourceful .changes for this source, if any
	SourcefulChanges string

	// NominalSuite is the suite named by the input; Suite is the one this
	// run builds for
	NominalSuite string
	Suite        string
}

func (b *Buildable) String() string {
	return b.Input
}

// FromArchive reports whether the source is fetched by the build tool
func (b *Buildable) FromArchive() bool {
	return b.Kind == KindArchive
}

// Parse canonicalizes input. Paths that exist must be a directory, a
// .changes or a .dsc; anything else that does not exist is taken to be an
// archive reference.
func Parse(input string) (*Buildable, error) {
	info, err := os.Stat(input)
	if err != nil {
		if os.IsNotExist(err) {
			return ParseArchiveRef(input), nil
		}
		return nil, errors.ErrUnreadableInput.WithMessagef("Cannot access %s", input).WithCause(err)
	}

	switch {
	case info.IsDir():
		return ParseTree(input)
	case strings.HasSuffix(input, ".changes"):
		return ParseChanges(input)
	case strings.HasSuffix(input, ".dsc"):
		return ParseDscInput(input)
	}
	return nil, errors.ErrUnsupportedInput.WithMessagef(
		"Buildable must be .changes, .dsc or directory, not %q", input)
}

// SelectSuite decides the suite this run builds for. An explicit suite
// wins over the one named by the input and becomes the nominal suite when
// the input named none.
func (b *Buildable) SelectSuite(requested string) error {
	b.Suite = b.NominalSuite
	if requested != "" {
		b.Suite = requested
		if b.NominalSuite == "" {
			b.NominalSuite = requested
		}
	}
	if b.Suite == "" {
		return errors.ErrSuiteRequired.WithMessagef("Must specify --suite when building from %q", b.Input)
	}
	return nil
}

// AdoptDsc makes the .dsc at path authoritative for the identity
func (b *Buildable) AdoptDsc(path string) error {
	d, err := ParseDsc(path)
	if err != nil {
		return err
	}
	b.Identity = d.Identity
	b.Dsc = path
	b.Dir = filepath.Dir(path)
	b.DscFiles = d.Files
	log.Debug("Adopted source description", "dsc", path, "source", d.Source,
		"version", d.Version.String(), "architectures", d.ArchWildcards)
	return nil
}
