package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/switchdoc/internal/service"
)

func newDiffCmd() *cobra.Command {
	var host, outDir string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Print the delta between the last two snapshots of a switch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.Crawl.OutputDir = outDir
			}
			d, err := service.NewSnapshotQuery(cfg).Diff(host)
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "switch hostname")
	cmd.Flags().StringVarP(&outDir, "outdir", "o", "", "shared output directory used when crawling")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

func newSnapshotsCmd() *cobra.Command {
	var host, outDir string
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List snapshot timestamps of a switch, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.Crawl.OutputDir = outDir
			}
			stamps, err := service.NewSnapshotQuery(cfg).List(host)
			if err != nil {
				return err
			}
			for _, ts := range stamps {
				fmt.Fprintln(cmd.OutOrStdout(), ts)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "switch hostname")
	cmd.Flags().StringVarP(&outDir, "outdir", "o", "", "shared output directory used when crawling")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}
