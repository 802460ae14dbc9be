// Package cli provides the Cobra and Viper glue shared by ldfpkg commands.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/bitswalk/ldfpkg/src/common/logs"
	"github.com/bitswalk/ldfpkg/src/common/paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigOptions holds options for configuration initialization
type ConfigOptions struct {
	// ConfigFile is the path to the config file (if specified via flag)
	ConfigFile string

	// ConfigName is the name of the config file (without extension)
	ConfigName string

	// ConfigType is the type of config file (yaml, json, toml)
	ConfigType string

	// EnvPrefix is the prefix for environment variables (e.g., "LDFPKG" -> LDFPKG_LOG_LEVEL)
	EnvPrefix string

	// SearchPaths are additional paths to search for the config file
	SearchPaths []string
}

// DefaultConfigOptions returns default configuration options. The search
// path follows the XDG base directory layout, user directories first.
func DefaultConfigOptions(configName, envPrefix string) ConfigOptions {
	search := []string{filepath.Join(xdg.ConfigHome, configName)}
	for _, dir := range xdg.ConfigDirs {
		search = append(search, filepath.Join(dir, configName))
	}
	search = append(search, "/etc/"+configName, ".")

	return ConfigOptions{
		ConfigName:  configName,
		ConfigType:  "yaml",
		EnvPrefix:   envPrefix,
		SearchPaths: search,
	}
}

// InitConfig initializes Viper for process-level settings.
// It searches for config files, binds environment variables, and sets up defaults.
func InitConfig(v *viper.Viper, opts ConfigOptions) error {
	if opts.ConfigFile != "" {
		v.SetConfigFile(paths.Expand(opts.ConfigFile))
	} else {
		v.SetConfigName(opts.ConfigName)
		v.SetConfigType(opts.ConfigType)

		for _, searchPath := range opts.SearchPaths {
			v.AddConfigPath(paths.Expand(searchPath))
		}
	}

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is not an error - we use defaults
	}

	return nil
}

// RegisterLogFlags registers common logging flags on a Cobra command
func RegisterLogFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-output", "auto", "Log output destination (auto, stderr, journald)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	_ = BindPersistentFlag(v, cmd, "log-output", "log.output")
	_ = BindPersistentFlag(v, cmd, "log-level", "log.level")

	v.SetDefault("log.output", "auto")
	v.SetDefault("log.level", "info")
}

// RegisterConfigFlag registers the --config flag on a Cobra command
func RegisterConfigFlag(cmd *cobra.Command, cfgFile *string, defaultPath string) {
	cmd.PersistentFlags().StringVar(cfgFile, "config", "", fmt.Sprintf("config file (default: %s)", defaultPath))
}

// InitLogger creates and returns a logger based on Viper configuration.
// Should be called after InitConfig.
func InitLogger(v *viper.Viper, prefix string) *logs.Logger {
	return logs.New(logs.Config{
		Output: logs.LogOutput(v.GetString("log.output")),
		Level:  v.GetString("log.level"),
		Prefix: prefix,
	})
}

// BindFlag binds a Cobra flag to a Viper config key
func BindFlag(v *viper.Viper, cmd *cobra.Command, flagName, viperKey string) error {
	return v.BindPFlag(viperKey, cmd.Flags().Lookup(flagName))
}

// BindPersistentFlag binds a Cobra persistent flag to a Viper config key
func BindPersistentFlag(v *viper.Viper, cmd *cobra.Command, flagName, viperKey string) error {
	return v.BindPFlag(viperKey, cmd.PersistentFlags().Lookup(flagName))
}

// GetExpandedString gets a string from Viper and expands path prefixes
func GetExpandedString(v *viper.Viper, key string) string {
	return paths.Expand(v.GetString(key))
}
