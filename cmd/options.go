package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	awscollector "github.com/pixelfederation/eks-automode-estimator/collector/aws"
	"github.com/pixelfederation/eks-automode-estimator/collector/kube"
	"github.com/pixelfederation/eks-automode-estimator/cost"
	"github.com/pixelfederation/eks-automode-estimator/pipeline"
	"github.com/pixelfederation/eks-automode-estimator/pricing"
	"github.com/pixelfederation/eks-automode-estimator/report"
	"github.com/pixelfederation/eks-automode-estimator/sizing"
)

const (
	sourceKube = "kube"
	sourceAWS  = "aws"
)

// Replaced in tests.
var (
	newKubeClient                                   = kube.NewClientset
	awsClientFactory     awscollector.ClientFactory = &awscollector.SDKClientFactory{}
	pricingClientFactory pricing.ClientFactory      = &pricing.SDKClientFactory{}
	stdinIsTerminal                                 = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

type collectOptions struct {
	source     string
	cluster    string
	region     string
	kubeconfig string
	days       int
	noCost     bool
}

func (o *collectOptions) bindSource(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.source, "source", sourceAWS, "Where to read the cluster sizing from: aws or kube")
}

func (o *collectOptions) bindAWS(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.cluster, "cluster", "", "EKS cluster name")
	cmd.Flags().StringVar(&o.region, "region", "", "AWS region of the cluster (defaults to $AWS_REGION, then us-east-1)")
	cmd.Flags().IntVar(&o.days, "days", awscollector.DefaultDays, "Days of CloudWatch history to average")
	cmd.Flags().BoolVar(&o.noCost, "no-cost", false, "Skip the Cost Explorer lookup of the real monthly EC2 spend")
}

func (o *collectOptions) bindKube(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (defaults to $KUBECONFIG, then ~/.kube/config)")
}

func (o *collectOptions) regionOrDefault() string {
	if o.region != "" {
		return o.region
	}
	if r := os.Getenv(sizing.EnvRegion); r != "" {
		return r
	}
	return sizing.DefaultRegion
}

func (o *collectOptions) awsOptions() awscollector.Options {
	return awscollector.Options{
		Cluster:  o.cluster,
		Region:   o.regionOrDefault(),
		Days:     o.days,
		SkipCost: o.noCost,
	}
}

// collectFunc validates the flags of the selected source and creates its clients.
func (o *collectOptions) collectFunc(ctx context.Context) (pipeline.CollectFunc, error) {
	switch o.source {
	case sourceKube:
		client, err := newKubeClient(o.kubeconfig)
		if err != nil {
			return nil, err
		}
		return kube.NewCollector(client).Collect, nil
	case sourceAWS:
		if o.cluster == "" {
			return nil, fmt.Errorf("%w: --cluster is required for the aws source", errInvalidFlag)
		}
		if o.days < 0 {
			return nil, fmt.Errorf("%w: --days must not be negative, got %d", errInvalidFlag, o.days)
		}
		opts := o.awsOptions()
		c, err := awscollector.NewCollectorFromFactory(ctx, awsClientFactory, opts.Region)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (cost.ClusterSizingInput, error) {
			return c.Collect(ctx, opts)
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q, expected %s or %s", errInvalidFlag, o.source, sourceAWS, sourceKube)
	}
}

type pricingOptions struct {
	manualPrice   string
	noLivePricing bool
}

func (o *pricingOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.manualPrice, "manual-price", "", "Hourly USD price to use when neither the Pricing API nor the built-in table knows the instance type")
	cmd.Flags().BoolVar(&o.noLivePricing, "no-live-pricing", false, "Use only the built-in price table, without calling the AWS Pricing API")
}

// resolver builds the price resolver. The terminal prompt is only offered
// when interactive is set and stdin is a terminal.
func (o *pricingOptions) resolver(ctx context.Context, interactive bool) (*pricing.Resolver, error) {
	cfg := pricing.DefaultConfig()
	cfg.DisableLive = o.noLivePricing

	var opts []pricing.Option
	if !o.noLivePricing {
		if pc, err := pricingClientFactory.NewPricingClient(ctx); err != nil {
			log.WithError(err).Warn("AWS Pricing API unavailable, using the built-in price table")
		} else {
			opts = append(opts, pricing.WithPricingClient(pc))
		}

		if sp, err := pricingClientFactory.NewSavingsPlansClient(ctx); err != nil {
			log.WithError(err).Warn("Savings Plans rates unavailable, skipping the discount note")
		} else {
			opts = append(opts, pricing.WithSavingsPlansClient(sp))
		}
	}

	switch {
	case o.manualPrice != "":
		price, err := pricing.ParseHourlyPrice(o.manualPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: --manual-price: %v", errInvalidFlag, err)
		}
		opts = append(opts, pricing.WithPrompter(pricing.StaticPrompter{Price: price}))
	case interactive && stdinIsTerminal():
		opts = append(opts, pricing.WithPrompter(pricing.TerminalPrompter{Accessible: os.Getenv("ACCESSIBLE") != ""}))
	}

	return pricing.NewResolver(cfg, opts...), nil
}

func writeReport(w io.Writer, rep report.Report, asJSON bool) error {
	if asJSON {
		return report.WriteJSON(w, rep)
	}
	return report.WriteText(w, rep)
}
