// Package pipeline chains a collector, the sizing boundary, the price
// resolver and the estimator into one run.
package pipeline

import (
	"bytes"
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/eks-automode-estimator/cost"
	"github.com/pixelfederation/eks-automode-estimator/pricing"
	"github.com/pixelfederation/eks-automode-estimator/report"
	"github.com/pixelfederation/eks-automode-estimator/sizing"
)

// CollectFunc returns the sizing of one cluster.
type CollectFunc func(ctx context.Context) (cost.ClusterSizingInput, error)

// PriceResolver is satisfied by *pricing.Resolver.
type PriceResolver interface {
	Resolve(ctx context.Context, instanceType, region string) (pricing.PriceQuote, error)
}

// Pipeline runs collect, hand-off and estimate.
type Pipeline struct {
	Collect  CollectFunc
	Resolver PriceResolver
	// Region replaces the collected region when set, for collectors that cannot tell.
	Region string
}

// Run collects the cluster and passes the result through the same export
// line hand-off a shell pipeline between `collect` and `estimate` would use,
// so nothing from the process environment leaks into the estimate.
func (p *Pipeline) Run(ctx context.Context) (report.Report, error) {
	collected, err := p.Collect(ctx)
	if err != nil {
		return report.Report{}, fmt.Errorf("collecting cluster data: %w", err)
	}
	if collected.Region == "" {
		collected.Region = p.Region
	}

	in, err := Handoff(collected)
	if err != nil {
		return report.Report{}, err
	}
	return Estimate(ctx, p.Resolver, in)
}

// Handoff round-trips a collector result through export lines and the
// sizing boundary.
func Handoff(collected cost.ClusterSizingInput) (cost.ClusterSizingInput, error) {
	var buf bytes.Buffer
	if err := sizing.WriteExports(&buf, sizing.Encode(collected)); err != nil {
		return cost.ClusterSizingInput{}, err
	}
	log.Debugf("Collector exports:\n%s", buf.String())

	vals, err := sizing.Decode(&buf)
	if err != nil {
		return cost.ClusterSizingInput{}, err
	}
	return sizing.Parse(vals)
}

// Estimate resolves the price for in and computes the cost report.
func Estimate(ctx context.Context, resolver PriceResolver, in cost.ClusterSizingInput) (report.Report, error) {
	q, err := resolver.Resolve(ctx, in.InstanceType, in.Region)
	if err != nil {
		return report.Report{}, err
	}
	c, err := cost.Estimate(in, q)
	if err != nil {
		return report.Report{}, err
	}
	log.Infof("Estimate computed [instance_type=%s, region=%s, nodes=%d, auto_nodes=%d, total_savings=%.2f]",
		in.InstanceType, in.Region, in.NodeCount, c.EstimatedAutoNodes, c.TotalSavings)
	return report.Report{Input: in, Quote: q, Cost: c}, nil
}
