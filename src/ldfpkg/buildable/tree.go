package buildable

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// PackTree writes the source tree at dir to w as an xz-compressed tarball.
// Entry names are relative to dir. Symlinks are stored as links.
func PackTree(dir string, w io.Writer) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	tw := tar.NewWriter(xw)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uname, hdr.Gname = "", ""
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", dir, err)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return xw.Close()
}

// PackTreeFile packs dir into a new file at path
func PackTreeFile(dir, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := PackTree(dir, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// OrigTarballs finds the upstream tarballs next to a source tree for a
// non-native version: ../<source>_<upstream>.orig.tar.* and their
// component tarballs
func OrigTarballs(b *Buildable) ([]string, error) {
	if b.Kind != KindTree || !b.Versioned || b.Version.IsNative() {
		return nil, nil
	}
	prefix := b.Source + "_" + b.Version.Version + ".orig"
	pattern := filepath.Join(globEscape(filepath.Join(b.Input, "..")), globEscape(prefix)) + "*.tar.*"
	log.Info("Looking for original tarballs", "pattern", pattern)
	return filepath.Glob(pattern)
}

func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`)
	return r.Replace(s)
}
