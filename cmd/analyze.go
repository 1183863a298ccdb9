package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pixelfederation/eks-automode-estimator/pipeline"
)

type analyzeOptions struct {
	json    bool
	collect collectOptions
	pricing pricingOptions
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Collect a cluster and estimate its Auto Mode cost in one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.context(cmd)
			defer cancel()

			collect, err := o.collect.collectFunc(ctx)
			if err != nil {
				return err
			}
			resolver, err := o.pricing.resolver(ctx, true)
			if err != nil {
				return err
			}
			p := &pipeline.Pipeline{Collect: collect, Resolver: resolver, Region: o.collect.regionOrDefault()}
			rep, err := p.Run(ctx)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), rep, o.json)
		},
	}
	cmd.Flags().BoolVar(&o.json, "json", false, "Output JSON instead of human-readable text")
	o.collect.bindSource(cmd)
	o.collect.bindAWS(cmd)
	o.collect.bindKube(cmd)
	o.pricing.bind(cmd)
	return cmd
}
