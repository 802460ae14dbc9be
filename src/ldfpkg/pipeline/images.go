package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/storage"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/worker"
)

// ChrootName is the schroot the builds run in
const ChrootName = "ldfpkg"

// SchrootConfPath is where the chroot definition is installed on the worker
const SchrootConfPath = "/etc/schroot/chroot.d/" + ChrootName

// ImageName is the file name of the sbuild base image for suite on arch.
// Images are per hierarchy root: derived suites are added as extra
// repositories at build time.
func ImageName(suite *config.Suite, arch string) string {
	return fmt.Sprintf("sbuild-%s-%s-%s.tar.gz", suite.Vendor().Name(), suite.Root().Name(), arch)
}

// SchrootConf is the file-type chroot definition for an image on the worker
func SchrootConf(image string) string {
	return fmt.Sprintf(`[%s]
type=file
description=An autobuilder
file=%s
groups=root,sbuild
root-groups=root,sbuild
profile=sbuild
`, ChrootName, image)
}

// ImageCache fetches base images from a storage backend and copies each
// one to the worker at most once per session
type ImageCache struct {
	backend storage.Backend
	dir     string
	copied  map[string]bool
}

// NewImageCache creates a cache reading images from backend. Images of
// remote backends are downloaded into dir first.
func NewImageCache(backend storage.Backend, dir string) *ImageCache {
	return &ImageCache{
		backend: backend,
		dir:     dir,
		copied:  map[string]bool{},
	}
}

// Ensure makes the image called name available in the worker's input
// directory and returns its path there
func (c *ImageCache) Ensure(ctx context.Context, w worker.Worker, name string) (string, error) {
	remote := w.Scratch() + "/in/" + name
	if c.copied[name] {
		return remote, nil
	}

	local, err := storage.Fetch(ctx, c.backend, name, filepath.Join(c.dir, name))
	if err != nil {
		return "", errors.ErrStorageNotFound.WithMessagef(
			"No sbuild image %s in %s", name, c.backend.Location()).WithCause(err)
	}

	log.Info("Copying sbuild image to worker", "image", name)
	if err := w.Upload(ctx, local, remote); err != nil {
		return "", errors.ErrWorkerTransfer.WithMessagef("Cannot copy %s to worker", local).WithCause(err)
	}
	c.copied[name] = true
	return remote, nil
}

// Copied returns the images copied so far, sorted
func (c *ImageCache) Copied() []string {
	out := make([]string, 0, len(c.copied))
	for name := range c.copied {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (p *Pipeline) installChroot(ctx context.Context, image string) error {
	conf := filepath.Join(p.tmp, "sbuild.conf")
	if err := os.WriteFile(conf, []byte(SchrootConf(image)), 0644); err != nil {
		return errors.ErrInternal.WithMessage("Cannot write schroot configuration").WithCause(err)
	}
	return p.copyTo(ctx, conf, SchrootConfPath)
}
