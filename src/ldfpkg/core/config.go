package core

import (
	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/config"
	"github.com/bitswalk/ldfpkg/src/ldfpkg/output"
	"github.com/spf13/cobra"
)

var (
	configOpts     layerFlags
	configValidate bool
)

var configCmd = &cobra.Command{
	Use:   "config [ATTRIBUTE...]",
	Short: "Show resolved configuration attributes",
	Long: `Resolve attributes for the selected vendor and suite and print them.
Without arguments every attribute is shown.`,
	RunE: runConfig,
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return config.AttributeNames(), cobra.ShellCompDirectiveNoFileComp
	},
}

func init() {
	configOpts.register(configCmd)
	configCmd.Flags().BoolVar(&configValidate, "validate", false, "Also check suite cycles and mirrors for the active suite")
}

// attributeValue is one resolved attribute as printed by the config command
type attributeValue struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
	Set   bool   `json:"set" yaml:"set"`
	Help  string `json:"help,omitempty" yaml:"help,omitempty"`
}

func resolveAttributes(cfg *config.Config, names []string) ([]attributeValue, error) {
	if len(names) == 0 {
		names = config.AttributeNames()
	}

	var values []attributeValue
	var errs []error
	for _, name := range names {
		attr, ok := config.LookupAttribute(name)
		if !ok {
			errs = append(errs, errors.ErrUnknownAttribute.WithMessagef("Unknown attribute %q", name))
			continue
		}
		raw, set, err := cfg.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values = append(values, attributeValue{
			Name:  name,
			Value: config.FormatValue(raw),
			Set:   set,
			Help:  attr.Help,
		})
	}
	return values, errors.Join(errs...)
}

func runConfig(cmd *cobra.Command, args []string) error {
	f, err := format()
	if err != nil {
		return err
	}
	cfg, err := configOpts.loadConfig()
	if err != nil {
		return err
	}
	if configValidate {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	values, err := resolveAttributes(cfg, args)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(values))
	for _, v := range values {
		value := v.Value
		if !v.Set {
			value = "(unset)"
		}
		rows = append(rows, []string{v.Name, value})
	}
	return output.Print(cmd.OutOrStdout(), f, values, []string{"ATTRIBUTE", "VALUE"}, rows)
}
