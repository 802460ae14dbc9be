// Package core provides the ldfpkg commands.
package core

import (
	"os"

	"github.com/bitswalk/ldfpkg/src/common/cli"
	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/logs"
	"github.com/bitswalk/ldfpkg/src/common/version"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/buildable"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/db"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/hostcmd"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/output"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/pipeline"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/storage"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	log = logs.NewDefault()

	// settings holds the process configuration: logging, storage, history
	// and worker credentials. Vendor and suite attributes live in layers.
	settings = viper.New()

	cfgFile      string
	outputFormat string
)

// Linker variables - these are set via ldflags at build time
var (
	Version        = "dev"
	ReleaseName    = "Trixie"
	ReleaseVersion = "0.0.0"
	BuildDate      = "unknown"
	GitCommit      = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "ldfpkg",
	Short: "Debian package build orchestrator",
	Long: `ldfpkg builds Debian source and binary packages with sbuild on a
disposable worker, merges the per-architecture results and optionally
publishes them to a reprepro repository.

Vendor and suite settings are read from vendors.yaml layers in the
configuration directories; process settings from ldfpkg.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initConfig()
	},
}

// Execute runs the root command and exits with a status derived from
// the error
func Execute() {
	VersionInfo.Version = Version
	VersionInfo.ReleaseName = ReleaseName
	VersionInfo.ReleaseVersion = ReleaseVersion
	VersionInfo.BuildDate = BuildDate
	VersionInfo.GitCommit = GitCommit
	VersionInfo.FillFromBuildInfo()

	if err := rootCmd.Execute(); err != nil {
		output.PrintError(os.Stderr, err)
		os.Exit(errors.GetExitCode(err))
	}
}

func init() {
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "$XDG_CONFIG_HOME/ldfpkg/ldfpkg.yaml")
	cli.RegisterLogFlags(settings, rootCmd)

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")

	// Storage holds the sbuild base images and uploaded results. An empty
	// local path selects the directory of the storage attribute.
	settings.SetDefault("storage.type", "local")
	settings.SetDefault("storage.local.path", "")
	settings.SetDefault("storage.s3.region", "us-east-1")
	settings.SetDefault("storage.s3.bucket", "ldfpkg")
	settings.SetDefault("storage.s3.prefix", "")
	settings.SetDefault("storage.s3.path_style", true)

	settings.SetDefault("history.enabled", true)
	settings.SetDefault("history.path", db.DefaultConfig().Path)

	settings.SetDefault("worker.ssh.user", "")
	settings.SetDefault("worker.ssh.identity", "")
	settings.SetDefault("worker.ssh.known_hosts", "~/.ssh/known_hosts")
	settings.SetDefault("worker.ssh.timeout", "30s")

	rootCmd.AddCommand(sbuildCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.ValidFormats(), cobra.ShellCompDirectiveNoFileComp
	})
}

// initConfig reads in config file and ENV variables if set
func initConfig() error {
	opts := cli.DefaultConfigOptions("ldfpkg", "LDFPKG")
	opts.ConfigFile = cfgFile

	if err := cli.InitConfig(settings, opts); err != nil {
		return errors.ErrConfigLoad.WithCause(err)
	}

	setLogger(cli.InitLogger(settings, "ldfpkg"))
	return nil
}

// setLogger hands l to every package that logs
func setLogger(l *logs.Logger) {
	log = l
	config.SetLogger(l)
	buildable.SetLogger(l)
	hostcmd.SetLogger(l)
	worker.SetLogger(l)
	storage.SetLogger(l)
	db.SetLogger(l)
	pipeline.SetLogger(l)
}

func format() (output.Format, error) {
	return output.ParseFormat(outputFormat)
}
