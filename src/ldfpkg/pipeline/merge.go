package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bitswalk/ldfpkg/src/common/errors"
)

// mergePath is where the merge of kind is written
func (p *Pipeline) mergePath(job *Job, kind string) string {
	return filepath.Join(p.opts.OutputBuilds, fmt.Sprintf("%s_%s.changes", job.Buildable.ProductPrefix(), kind))
}

// merge combines the .changes files produced for job. Each merge reads
// only files recorded earlier.
func (p *Pipeline) merge(ctx context.Context, job *Job) error {
	b := job.Buildable

	if b.SourcefulChanges != "" {
		dst := p.mergePath(job, MergeSource)
		if !job.ChangesProduced.Has("source") {
			if err := p.mergechanges(ctx, dst, "--source", b.SourcefulChanges, b.SourcefulChanges); err != nil {
				return err
			}
		}
		job.Merged.Set(MergeSource, dst)
	}

	all, hasAll := job.ChangesProduced.Get("all")
	source, hasSource := job.Merged.Get(MergeSource)
	if hasAll && hasSource {
		dst := p.mergePath(job, MergeSourceAll)
		if err := p.mergechanges(ctx, dst, all, source); err != nil {
			return err
		}
		job.Merged.Set(MergeSourceAll, dst)
	}

	var binaries []string
	for _, arch := range job.ChangesProduced.Keys() {
		if arch == "source" {
			continue
		}
		path, _ := job.ChangesProduced.Get(arch)
		binaries = append(binaries, path)
	}
	// source+all already carries a lone Architecture: all build
	if len(binaries) == 1 && hasAll && job.Merged.Has(MergeSourceAll) {
		binaries = nil
	}

	dst := p.mergePath(job, MergeBinary)
	switch {
	case len(binaries) > 1:
		if err := p.mergechanges(ctx, dst, binaries...); err != nil {
			return err
		}
		job.Merged.Set(MergeBinary, dst)
	case len(binaries) == 1:
		if err := writeAtomic(dst, func(w io.Writer) error {
			f, err := os.Open(binaries[0])
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(w, f)
			return err
		}); err != nil {
			return errors.ErrMergeFailed.WithMessagef("Cannot copy %s", binaries[0]).WithCause(err)
		}
		job.Merged.Set(MergeBinary, dst)
	}

	source, hasSource = job.Merged.Get(MergeSource)
	binary, hasBinary := job.Merged.Get(MergeBinary)
	if hasSource && hasBinary {
		dst := p.mergePath(job, MergeSourceBinary)
		if err := p.mergechanges(ctx, dst, source, binary); err != nil {
			return err
		}
		job.Merged.Set(MergeSourceBinary, dst)
	}

	return nil
}

// mergechanges writes the output of mergechanges args to dst
func (p *Pipeline) mergechanges(ctx context.Context, dst string, args ...string) error {
	argv := append([]string{"mergechanges"}, args...)
	log.Debug("Merging changes", "output", dst, "argv", argv)
	err := writeAtomic(dst, func(w io.Writer) error {
		return p.host.Run(ctx, w, argv...)
	})
	if err != nil {
		return errors.ErrMergeFailed.WithMessagef("Cannot write %s", dst).WithCause(err)
	}
	return nil
}

// writeAtomic replaces path with what fill writes, or leaves it untouched
// when fill fails
func writeAtomic(path string, fill func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func sortedPaths(a *Artifacts) []string {
	paths := a.Paths()
	sort.Strings(paths)
	return paths
}
