package pipeline

import (
	"context"
	"path"
	"path/filepath"

	"github.com/bitswalk/ldfpkg/src/ldfpkg/buildable"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/storage"
)

// publishOrder is the preference among merges for lint and publish
var publishOrder = []string{MergeSourceBinary, MergeBinary, MergeSourceAll, MergeSource}

// Selected returns the merge lint and publish act on, if any
func (j *Job) Selected() (kind, path string, ok bool) {
	for _, k := range publishOrder {
		if p, found := j.Merged.Get(k); found {
			return k, p, true
		}
	}
	return "", "", false
}

// publish lints the selected merge and includes it in the reprepro
// repository. Neither failure fails the job.
func (p *Pipeline) publish(ctx context.Context, job *Job) {
	kind, changes, ok := job.Selected()
	if !ok {
		return
	}
	b := job.Buildable

	if p.opts.Lintian {
		log.Info("Running lintian", "changes", changes)
		if err := p.host.Run(ctx, p.opts.Output, "lintian", "-I", "-i", changes); err != nil {
			log.Warn("lintian reported problems", "changes", changes, "error", err)
		}
	}

	if p.opts.RepreproDir == "" {
		return
	}

	suite := p.opts.RepreproSuite
	if suite == "" {
		suite = b.NominalSuite
	}
	log.Info("Publishing to reprepro", "dir", p.opts.RepreproDir, "suite", suite, "merge", kind)

	if err := p.host.Run(ctx, p.opts.Output, "reprepro", "-b", p.opts.RepreproDir, "removesrc", suite, b.Source); err != nil {
		log.Warn("reprepro removesrc failed", "source", b.Source, "error", err)
	}
	if err := p.host.Run(ctx, p.opts.Output, "reprepro", "--ignore=wrongdistribution", "--ignore=missingfile",
		"-b", p.opts.RepreproDir, "include", suite, changes); err != nil {
		log.Warn("reprepro include failed", "changes", changes, "error", err)
	}
}

// upload stores the selected merge and the files it lists under
// results/<source>/<version>/<job id>/ in the results backend
func (p *Pipeline) upload(ctx context.Context, job *Job) error {
	if !p.opts.UploadResults || p.results == nil {
		return nil
	}
	_, changes, ok := job.Selected()
	if !ok {
		return nil
	}

	info, err := buildable.ReadChanges(changes)
	if err != nil {
		return err
	}

	b := job.Buildable
	version := "unversioned"
	if b.Versioned {
		version = b.Version.String()
	}
	prefix := path.Join("results", b.Source, version, job.ID)

	files := append([]string{filepath.Base(changes)}, info.Files...)
	dir := filepath.Dir(changes)
	for _, f := range files {
		if err := storage.UploadFile(ctx, p.results, path.Join(prefix, f), filepath.Join(dir, f)); err != nil {
			return err
		}
	}
	log.Info("Uploaded results", "location", p.results.Location(), "prefix", prefix, "files", len(files))
	return nil
}
