package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pixelfederation/eks-automode-estimator/pipeline"
	"github.com/pixelfederation/eks-automode-estimator/sizing"
)

type estimateOptions struct {
	envFile string
	json    bool
	pricing pricingOptions
}

func newEstimateCommand(root *rootOptions) *cobra.Command {
	o := &estimateOptions{}
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate Auto Mode cost from EKS_* environment variables",
		Long: `Estimate reads the cluster sizing from the environment:

  EKS_PRIMARY_INSTANCE   instance type (default m5.large)
  EKS_NODE_COUNT         running worker nodes (default 0)
  EKS_UTIL_CPU           average CPU utilization in percent (default 50)
  EKS_UTIL_MEM           average memory utilization in percent (default 50)
  AWS_REGION             region (default us-east-1)
  EKS_REAL_MONTHLY_COST  billed monthly EC2 spend in USD (optional)
  EKS_METRIC_SOURCE      label of the utilization source (optional)

Values from --env-file override the environment. Use --env-file - to read
the export lines of a collect command from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.context(cmd)
			defer cancel()

			vals, err := o.values(cmd)
			if err != nil {
				return err
			}
			in, err := sizing.Parse(vals)
			if err != nil {
				return err
			}
			resolver, err := o.pricing.resolver(ctx, true)
			if err != nil {
				return err
			}
			rep, err := pipeline.Estimate(ctx, resolver, in)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), rep, o.json)
		},
	}
	cmd.Flags().StringVar(&o.envFile, "env-file", "", "File of NAME=value or export lines, - for stdin")
	cmd.Flags().BoolVar(&o.json, "json", false, "Output JSON instead of human-readable text")
	o.pricing.bind(cmd)
	return cmd
}

func (o *estimateOptions) values(cmd *cobra.Command) (sizing.Values, error) {
	vals := sizing.FromEnv()
	switch o.envFile {
	case "":
		return vals, nil
	case "-":
		fromStdin, err := sizing.Decode(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		return sizing.Merge(vals, fromStdin), nil
	default:
		fromFile, err := sizing.ReadEnvFile(o.envFile)
		if err != nil {
			return nil, err
		}
		return sizing.Merge(vals, fromFile), nil
	}
}
