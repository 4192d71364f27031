package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"augeias/pkg/config"
)

var version = "0.1.0-dev"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("augeias")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "augeias",
		Short:         "Hierarchical object store over HTTP",
		Long:          "augeias stores objects in containers grouped by named collections and serves them over a REST API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "path to config.yaml (default ./config.yaml when present)")
	bindFlags(v, flags, "config")

	root.AddCommand(
		newServeCmd(v),
		newCollectionsCmd(v),
		newVersionCmd(),
	)
	return root
}

// bindFlags lets AUGEIAS_<NAME> stand in for --<name>.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, names ...string) {
	for _, n := range names {
		_ = v.BindPFlag(n, fs.Lookup(n))
	}
}

// loadConfig reads the YAML config and applies the flag overrides on top of
// the AUGEIAS_* environment handled by config.Load.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return config.Config{}, err
	}
	if addr := v.GetString("listen"); addr != "" {
		cfg.Address = addr
	}
	if addr := v.GetString("admin-listen"); addr != "" {
		cfg.AdminAddress = addr
	}
	if lvl := v.GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
