package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pixelfederation/eks-automode-estimator/sizing"
)

func newCollectCommand(root *rootOptions) *cobra.Command {
	collect := &cobra.Command{
		Use:   "collect",
		Short: "Read the sizing of a running cluster and print it as export lines",
	}
	collect.AddCommand(newCollectKubeCommand(root), newCollectAWSCommand(root))
	return collect
}

func newCollectKubeCommand(root *rootOptions) *cobra.Command {
	o := &collectOptions{source: sourceKube}
	cmd := &cobra.Command{
		Use:   "kube",
		Short: "Collect node and pod request totals through the Kubernetes API",
		Long: `Collect lists the nodes and running pods of the current kubeconfig context.
Utilization is the ratio of summed container requests to node allocatable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, root, o)
		},
	}
	o.bindKube(cmd)
	return cmd
}

func newCollectAWSCommand(root *rootOptions) *cobra.Command {
	o := &collectOptions{source: sourceAWS}
	cmd := &cobra.Command{
		Use:   "aws",
		Short: "Collect nodes, CloudWatch utilization and Cost Explorer spend through the AWS APIs",
		Long: `Collect reads the running EC2 instances tagged with the cluster name, their
average CloudWatch utilization and the real EC2 spend of the last 30 days.

The spend lookup needs the eks:cluster-name cost allocation tag to be active.
Each Cost Explorer request is billed, use --no-cost to skip it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, root, o)
		},
	}
	o.bindAWS(cmd)
	return cmd
}

func runCollect(cmd *cobra.Command, root *rootOptions, o *collectOptions) error {
	ctx, cancel := root.context(cmd)
	defer cancel()

	collect, err := o.collectFunc(ctx)
	if err != nil {
		return err
	}
	in, err := collect(ctx)
	if err != nil {
		return err
	}
	return sizing.WriteExports(cmd.OutOrStdout(), sizing.Encode(in))
}
