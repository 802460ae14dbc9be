package buildable

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pault.ag/go/debian/changelog"
	"pault.ag/go/debian/control"
	"pault.ag/go/debian/version"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

// DscInfo is the content of a .dsc that matters for building
type DscInfo struct {
	Identity
	// Files are the names of the files the .dsc lists, relative to it
	Files []string
}

// ChangesInfo is the content of a .changes that matters for building
type ChangesInfo struct {
	Source        string
	Distribution  string
	Architectures []string
	Files         []string
}

// Sourceful reports whether the upload contains source
func (c ChangesInfo) Sourceful() bool {
	for _, a := range c.Architectures {
		if a == "source" {
			return true
		}
	}
	return false
}

// ParseTree reads debian/changelog and debian/control of an unpacked
// source tree
func ParseTree(dir string) (*Buildable, error) {
	entry, err := changelog.ParseFileOne(filepath.Join(dir, "debian", "changelog"))
	if err != nil {
		return nil, errors.ErrUnreadableInput.WithMessagef("Cannot parse changelog in %s", dir).WithCause(err)
	}

	distributions := strings.Fields(entry.Target)
	if len(distributions) != 1 {
		return nil, errors.ErrMultipleDistributions.WithMessagef(
			"Cannot build %s for multiple distributions at once (%q)", dir, entry.Target)
	}

	paragraphs, err := readParagraphs(filepath.Join(dir, "debian", "control"))
	if err != nil {
		return nil, err
	}

	wildcards := map[string]bool{}
	var binaries []string
	for _, p := range paragraphs {
		for _, w := range strings.Fields(p.Values["Architecture"]) {
			wildcards[w] = true
		}
		if pkg := strings.TrimSpace(p.Values["Package"]); pkg != "" {
			binaries = append(binaries, pkg)
		}
	}

	return &Buildable{
		Input: dir,
		Kind:  KindTree,
		Identity: Identity{
			Source:        entry.Source,
			Version:       entry.Version,
			Versioned:     true,
			ArchWildcards: sortedKeys(wildcards),
			Binaries:      binaries,
		},
		NominalSuite: distributions[0],
	}, nil
}

// ParseChanges reads a sourceful .changes and the one .dsc it lists
func ParseChanges(path string) (*Buildable, error) {
	c, err := ReadChanges(path)
	if err != nil {
		return nil, err
	}
	if !c.Sourceful() {
		return nil, errors.ErrSourcelessChanges.WithMessagef("Changes file %q must be sourceful", path)
	}

	dir := filepath.Dir(path)
	dsc := ""
	for _, f := range c.Files {
		if !strings.HasSuffix(f, ".dsc") {
			continue
		}
		if dsc != "" {
			return nil, errors.ErrMultipleDsc.WithMessagef("Changes file %q contained more than one .dsc file", path)
		}
		dsc = filepath.Join(dir, f)
	}
	if dsc == "" {
		return nil, errors.ErrMissingDsc.WithMessagef("Changes file %q did not contain a .dsc file", path)
	}

	b := &Buildable{
		Input:            path,
		Kind:             KindChanges,
		SourcefulChanges: path,
		NominalSuite:     c.Distribution,
	}
	if err := b.AdoptDsc(dsc); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseDscInput reads a .dsc given directly as input
func ParseDscInput(path string) (*Buildable, error) {
	b := &Buildable{Input: path, Kind: KindDsc}
	if err := b.AdoptDsc(path); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseArchiveRef splits "name" or "name_version". An unparsable version
// is kept out of the identity; the source build reports the real one.
func ParseArchiveRef(ref string) *Buildable {
	b := &Buildable{Input: ref, Kind: KindArchive}
	name, ver, found := strings.Cut(ref, "_")
	b.Source = name
	if found {
		v, err := version.Parse(ver)
		if err != nil {
			log.Warn("Ignoring unparsable version in archive reference", "ref", ref, "error", err)
		} else {
			b.Version = v
			b.Versioned = true
		}
	}
	return b
}

// ParseDsc reads a .dsc file
func ParseDsc(path string) (*DscInfo, error) {
	paragraphs, err := readParagraphs(path)
	if err != nil {
		return nil, err
	}
	if len(paragraphs) == 0 {
		return nil, errors.ErrUnreadableInput.WithMessagef("%s is empty", path)
	}
	p := paragraphs[0]

	v, err := version.Parse(strings.TrimSpace(p.Values["Version"]))
	if err != nil {
		return nil, errors.ErrUnreadableInput.WithMessagef("Bad version in %s", path).WithCause(err)
	}

	var binaries []string
	for _, b := range strings.Split(p.Values["Binary"], ",") {
		if b = strings.TrimSpace(b); b != "" {
			binaries = append(binaries, b)
		}
	}

	wildcards := map[string]bool{}
	for _, w := range strings.Fields(p.Values["Architecture"]) {
		wildcards[w] = true
	}

	return &DscInfo{
		Identity: Identity{
			Source:        strings.TrimSpace(p.Values["Source"]),
			Version:       v,
			Versioned:     true,
			ArchWildcards: sortedKeys(wildcards),
			Binaries:      binaries,
		},
		Files: fileNames(p.Values["Files"]),
	}, nil
}

// ReadChanges reads a .changes file
func ReadChanges(path string) (*ChangesInfo, error) {
	paragraphs, err := readParagraphs(path)
	if err != nil {
		return nil, err
	}
	if len(paragraphs) == 0 {
		return nil, errors.ErrUnreadableInput.WithMessagef("%s is empty", path)
	}
	p := paragraphs[0]
	return &ChangesInfo{
		Source:        strings.TrimSpace(p.Values["Source"]),
		Distribution:  strings.TrimSpace(p.Values["Distribution"]),
		Architectures: strings.Fields(p.Values["Architecture"]),
		Files:         fileNames(p.Values["Files"]),
	}, nil
}

func readParagraphs(path string) ([]*control.Paragraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ErrUnreadableInput.WithMessagef("Cannot open %s", path).WithCause(err)
	}
	defer f.Close()

	reader, err := control.NewParagraphReader(f, nil)
	if err != nil {
		return nil, errors.ErrUnreadableInput.WithMessagef("Cannot parse %s", path).WithCause(err)
	}

	var out []*control.Paragraph
	for {
		p, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ErrUnreadableInput.WithMessagef("Cannot parse %s", path).WithCause(err)
		}
		out = append(out, p)
	}
	return out, nil
}

// fileNames takes the last word of each line of a Files field
func fileNames(field string) []string {
	var names []string
	for _, line := range strings.Split(field, "\n") {
		words := strings.Fields(line)
		if len(words) < 3 {
			continue
		}
		names = append(names, words[len(words)-1])
	}
	return names
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
