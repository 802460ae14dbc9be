package pipeline

import (
	"context"
	"path/filepath"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/buildable"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/worker"
)

// sourceDir is the directory a source tree is unpacked to on the worker
func (p *Pipeline) sourceDir(job *Job) string {
	return p.in(job.Buildable.ProductPrefix() + "_source")
}

// copySource puts the job's source on the worker: the .dsc and the files
// it lists, or the packed source tree along with its upstream tarballs.
// Archive references have nothing to copy.
func (p *Pipeline) copySource(ctx context.Context, job *Job) error {
	b := job.Buildable

	switch {
	case b.Dsc != "":
		log.Info("Copying source package to worker", "dsc", b.Dsc)
		if err := p.copyTo(ctx, b.Dsc, p.in(filepath.Base(b.Dsc))); err != nil {
			return err
		}
		for _, f := range b.DscFiles {
			if err := p.copyTo(ctx, filepath.Join(b.Dir, f), p.in(f)); err != nil {
				return err
			}
		}
		return nil

	case b.Kind == buildable.KindTree:
		return p.copyTree(ctx, job)
	}
	return nil
}

func (p *Pipeline) copyTree(ctx context.Context, job *Job) error {
	b := job.Buildable
	prefix := b.ProductPrefix()
	archive := filepath.Join(p.tmp, prefix+"_source.tar.xz")
	dir := p.sourceDir(job)

	log.Info("Copying source tree to worker", "tree", b.Input, "destination", dir)
	if err := buildable.PackTreeFile(b.Input, archive); err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot pack %s", b.Input).WithCause(err)
	}
	remote := p.in(filepath.Base(archive))
	if err := p.copyTo(ctx, archive, remote); err != nil {
		return err
	}

	steps := [][]string{
		{"mkdir", "-p", dir},
		{"tar", "-C", dir, "-xJf", remote},
		{"rm", "-f", remote},
		{"chown", "-R", "sbuild:sbuild", p.in("")},
	}
	for _, argv := range steps {
		if err := worker.Check(ctx, p.worker, argv...); err != nil {
			return err
		}
	}

	origs, err := buildable.OrigTarballs(b)
	if err != nil {
		return err
	}
	if len(origs) == 0 {
		return nil
	}

	if err := p.ensureOut(ctx); err != nil {
		return err
	}
	for _, orig := range origs {
		name := filepath.Base(orig)
		log.Info("Copying original tarball", "tarball", orig)
		if err := p.copyTo(ctx, orig, p.in(name)); err != nil {
			return err
		}
		if err := worker.Check(ctx, p.worker, "ln", "-s", p.in(name), p.out(name)); err != nil {
			return err
		}
	}
	return nil
}

// ensureOut creates the output directory sbuild writes to
func (p *Pipeline) ensureOut(ctx context.Context) error {
	return worker.Check(ctx, p.worker, "install", "-d", "-m755", "-osbuild", "-gsbuild", p.worker.Scratch()+"/out")
}

func (p *Pipeline) copyTo(ctx context.Context, local, remote string) error {
	if err := p.worker.Upload(ctx, local, remote); err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot copy %s to worker", local).WithCause(err)
	}
	return nil
}

func (p *Pipeline) copyBack(ctx context.Context, remote, local string) error {
	if err := p.worker.Download(ctx, remote, local); err != nil {
		return errors.ErrCopyBack.WithMessagef("Cannot copy %s back to host", remote).WithCause(err)
	}
	return nil
}
