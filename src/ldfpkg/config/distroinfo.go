package config

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DistroInfoDir is where the distro-info-data package installs its tables
const DistroInfoDir = "/usr/share/distro-info"

// Release is one row of a distribution's release table
type Release struct {
	Version  string
	Codename string
	Series   string
	Created  time.Time
	Released time.Time
	EOL      time.Time
}

// LTS reports whether the release is a long-term support release
func (r Release) LTS() bool {
	return strings.Contains(r.Version, "LTS")
}

// DistroInfo answers questions about a distribution's releases at a point
// in time
type DistroInfo struct {
	vendor   string
	releases []Release
	now      func() time.Time
}

// NewDistroInfo builds release data for vendor from the given table
func NewDistroInfo(vendor string, releases []Release, now func() time.Time) *DistroInfo {
	if now == nil {
		now = time.Now
	}
	return &DistroInfo{vendor: vendor, releases: releases, now: now}
}

// LoadDistroInfo reads <dir>/<vendor>.csv as written by distro-info-data.
// Without a readable file the compiled table is used.
func LoadDistroInfo(dir, vendor string, now func() time.Time) *DistroInfo {
	if dir != "" {
		path := filepath.Join(dir, vendor+".csv")
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			releases, err := ParseDistroInfoCSV(f)
			if err == nil && len(releases) > 0 {
				return NewDistroInfo(vendor, releases, now)
			}
			log.Warn("Ignoring unreadable release data", "path", path, "error", err)
		}
	}

	switch vendor {
	case "debian":
		return NewDistroInfo(vendor, debianReleases, now)
	case "ubuntu":
		return NewDistroInfo(vendor, ubuntuReleases, now)
	}
	return nil
}

// ParseDistroInfoCSV parses a distro-info-data table. Columns are located
// by header name.
func ParseDistroInfoCSV(r io.Reader) ([]Release, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"version", "codename", "series"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var releases []Release
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		releases = append(releases, Release{
			Version:  field(rec, "version"),
			Codename: field(rec, "codename"),
			Series:   field(rec, "series"),
			Created:  parseDate(field(rec, "created")),
			Released: parseDate(field(rec, "release")),
			EOL:      parseDate(field(rec, "eol")),
		})
	}
	return releases, nil
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Vendor returns the vendor the table describes
func (d *DistroInfo) Vendor() string {
	return d.vendor
}

// Releases returns the release table
func (d *DistroInfo) Releases() []Release {
	return d.releases
}

func (d *DistroInfo) released(r Release) bool {
	return !r.Released.IsZero() && !r.Released.After(d.now())
}

// numbered reports whether the release has a version, which excludes
// rolling suites such as sid and experimental
func numbered(r Release) bool {
	return r.Version != ""
}

func (d *DistroInfo) releasedSeries() []Release {
	var out []Release
	for _, r := range d.releases {
		if numbered(r) && d.released(r) {
			out = append(out, r)
		}
	}
	return out
}

// Stable returns the most recent released series
func (d *DistroInfo) Stable() string {
	rel := d.releasedSeries()
	if len(rel) == 0 {
		return ""
	}
	return rel[len(rel)-1].Series
}

// Old returns the series released before the current stable one
func (d *DistroInfo) Old() string {
	rel := d.releasedSeries()
	if len(rel) < 2 {
		return ""
	}
	return rel[len(rel)-2].Series
}

// Testing returns the first numbered series that is created but not yet
// released
func (d *DistroInfo) Testing() string {
	now := d.now()
	for _, r := range d.releases {
		if !numbered(r) || d.released(r) {
			continue
		}
		if !r.Created.IsZero() && !r.Created.After(now) {
			return r.Series
		}
	}
	return ""
}

// Devel returns the development series. For Debian this is the rolling
// unstable suite; for Ubuntu it is the series under development, if any.
func (d *DistroInfo) Devel() (string, bool) {
	if d.vendor == "debian" {
		for _, r := range d.releases {
			if r.Series == "sid" {
				return r.Series, true
			}
		}
		return "", false
	}
	s := d.Testing()
	return s, s != ""
}

// LTS returns the most recent released long-term support series
func (d *DistroInfo) LTS() string {
	rel := d.releasedSeries()
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i].LTS() {
			return rel[i].Series
		}
	}
	return ""
}

// Known reports whether series appears in the table
func (d *DistroInfo) Known(series string) bool {
	_, ok := d.Find(series)
	return ok
}

// Find returns the release row for series
func (d *DistroInfo) Find(series string) (Release, bool) {
	for _, r := range d.releases {
		if r.Series == series {
			return r, true
		}
	}
	return Release{}, false
}

// Before reports whether series a was created before series b
func (d *DistroInfo) Before(a, b string) bool {
	ia, ib := -1, -1
	for i, r := range d.releases {
		switch r.Series {
		case a:
			ia = i
		case b:
			ib = i
		}
	}
	return ia >= 0 && ib >= 0 && ia < ib
}

func date(s string) time.Time {
	return parseDate(s)
}

var debianReleases = []Release{
	{"6.0", "Squeeze", "squeeze", date("2009-02-14"), date("2011-02-06"), date("2014-05-31")},
	{"7", "Wheezy", "wheezy", date("2011-02-06"), date("2013-05-04"), date("2016-04-26")},
	{"8", "Jessie", "jessie", date("2013-05-04"), date("2015-04-25"), date("2018-06-17")},
	{"9", "Stretch", "stretch", date("2015-04-25"), date("2017-06-17"), date("2020-07-18")},
	{"10", "Buster", "buster", date("2017-06-17"), date("2019-07-06"), date("2022-09-10")},
	{"11", "Bullseye", "bullseye", date("2019-07-06"), date("2021-08-14"), date("2024-08-14")},
	{"12", "Bookworm", "bookworm", date("2021-08-14"), date("2023-06-10"), date("2026-06-10")},
	{"13", "Trixie", "trixie", date("2023-06-10"), date("2025-08-09"), time.Time{}},
	{"14", "Forky", "forky", date("2025-08-09"), time.Time{}, time.Time{}},
	{"15", "Duke", "duke", time.Time{}, time.Time{}, time.Time{}},
	{"", "Sid", "sid", date("1993-08-16"), time.Time{}, time.Time{}},
	{"", "Experimental", "experimental", date("1993-08-16"), time.Time{}, time.Time{}},
}

var ubuntuReleases = []Release{
	{"14.04 LTS", "Trusty Tahr", "trusty", date("2013-10-17"), date("2014-04-17"), date("2019-04-25")},
	{"16.04 LTS", "Xenial Xerus", "xenial", date("2015-10-22"), date("2016-04-21"), date("2021-04-30")},
	{"18.04 LTS", "Bionic Beaver", "bionic", date("2017-10-19"), date("2018-04-26"), date("2023-05-31")},
	{"20.04 LTS", "Focal Fossa", "focal", date("2019-10-17"), date("2020-04-23"), date("2025-05-29")},
	{"22.04 LTS", "Jammy Jellyfish", "jammy", date("2021-10-14"), date("2022-04-21"), date("2027-06-01")},
	{"23.10", "Mantic Minotaur", "mantic", date("2023-04-20"), date("2023-10-12"), date("2024-07-11")},
	{"24.04 LTS", "Noble Numbat", "noble", date("2023-10-12"), date("2024-04-25"), date("2029-05-31")},
	{"24.10", "Oracular Oriole", "oracular", date("2024-04-25"), date("2024-10-10"), date("2025-07-10")},
	{"25.04", "Plucky Puffin", "plucky", date("2024-10-10"), date("2025-04-17"), date("2026-01-15")},
	{"25.10", "Questing Quokka", "questing", date("2025-04-17"), date("2025-10-09"), date("2026-07-09")},
	{"26.04 LTS", "Resolute Raccoon", "resolute", date("2025-10-09"), date("2026-04-23"), date("2031-05-29")},
}
