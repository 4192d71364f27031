package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"augeias/pkg/config"
	"augeias/pkg/storage"
)

func newCollectionsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "Open the configured collections and list them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := config.EnsureDirs(cfg); err != nil {
				return err
			}
			reg, closer, err := openCollections(cfg, zap.NewNop(), nil)
			if err != nil {
				return err
			}
			defer closer.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBACKEND\tURI")
			for _, c := range reg.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, storage.BackendName(c.Store), c.URIs.CollectionURI(c.Name))
			}
			return tw.Flush()
		},
	}
}
