package core

import (
	"strings"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/paths"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/spf13/cobra"
)

// SystemLayerDir is searched before the XDG configuration directories
const SystemLayerDir = "/etc/ldfpkg"

// layerFlags select the configuration layers and runtime overrides shared
// by every command that resolves attributes
type layerFlags struct {
	vendor        string
	suite         string
	layers        []string
	sets          []string
	distroInfoDir string
}

func (f *layerFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.vendor, "vendor", "", "Vendor to build for (default from configuration, else debian)")
	flags.StringVar(&f.suite, "suite", "", "Suite to build for, overriding the one in the package")
	flags.StringArrayVar(&f.layers, "layer", nil, "Additional configuration layer file (repeatable, later wins)")
	flags.StringArrayVar(&f.sets, "set", nil, "Override an attribute, as NAME=VALUE (repeatable)")
	flags.StringVar(&f.distroInfoDir, "distro-info-dir", config.DistroInfoDir, "Directory holding distro-info CSV tables; empty uses the compiled tables")
}

// loadConfig builds the attribute resolver. Layers are stacked from the
// system directory up to the user's own, then every --layer file.
func (f *layerFlags) loadConfig() (*config.Config, error) {
	dirs := append([]string{SystemLayerDir}, paths.ConfigDirs("ldfpkg")...)
	layers, err := config.LoadLayerDirs(dirs)
	if err != nil {
		return nil, err
	}
	for _, file := range f.layers {
		l, err := config.LoadLayerFile(paths.Expand(file))
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}

	cfg := config.New(config.WithDistroInfoDir(f.distroInfoDir))
	for _, l := range layers {
		cfg.AddLayer(l)
	}
	log.Debug("Loaded configuration layers", "count", len(layers))

	if f.vendor != "" {
		if err := cfg.Set("vendor", f.vendor); err != nil {
			return nil, err
		}
	}
	if f.suite != "" {
		if err := cfg.Set("suite", f.suite); err != nil {
			return nil, err
		}
	}
	for _, kv := range f.sets {
		name, value, err := parseSet(kv)
		if err != nil {
			return nil, err
		}
		if err := cfg.Set(name, value); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseSet(kv string) (string, string, error) {
	name, value, ok := strings.Cut(kv, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", errors.ErrInvalidValue.WithMessagef("Expected NAME=VALUE, got %q", kv)
	}
	return name, value, nil
}
