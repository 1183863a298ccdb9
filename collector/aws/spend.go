package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	ceTypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/eks-automode-estimator/cost"
)

const (
	// ServiceEC2Compute is the Cost Explorer SERVICE dimension value for instance hours.
	ServiceEC2Compute = "Amazon Elastic Compute Cloud - Compute"

	MetricUnblendedCost = "UnblendedCost"

	SpendWindowDays = 30

	dateLayout = "2006-01-02"
)

// monthlySpend returns the cluster's EC2 compute spend over the last
// SpendWindowDays full days, scaled to a 730 hour month. It is nil when
// Cost Explorer fails or reports nothing, which usually means the
// eks:cluster-name cost allocation tag is not activated.
func (c *Collector) monthlySpend(ctx context.Context, cluster string, now time.Time) *float64 {
	total, err := c.spend(ctx, cluster, now)
	if err != nil {
		log.WithError(err).Warnf("Cost Explorer spend unavailable [cluster=%s]", cluster)
		return nil
	}
	if total <= 0 {
		log.Warnf("Cost Explorer reports no spend, is the %s cost allocation tag active? [cluster=%s]", ClusterNameTag, cluster)
		return nil
	}
	monthly := total * cost.HoursPerMonth / (SpendWindowDays * 24)
	log.Infof("Real EC2 spend [cluster=%s, last_%d_days=%.2f, monthly=%.2f]", cluster, SpendWindowDays, total, monthly)
	return &monthly
}

func (c *Collector) spend(ctx context.Context, cluster string, now time.Time) (float64, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -SpendWindowDays)

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &ceTypes.DateInterval{
			Start: awssdk.String(start.Format(dateLayout)),
			End:   awssdk.String(end.Format(dateLayout)),
		},
		Granularity: ceTypes.GranularityMonthly,
		Metrics:     []string{MetricUnblendedCost},
		Filter: &ceTypes.Expression{
			And: []ceTypes.Expression{
				{Dimensions: &ceTypes.DimensionValues{Key: ceTypes.DimensionService, Values: []string{ServiceEC2Compute}}},
				{Tags: &ceTypes.TagValues{Key: awssdk.String(ClusterNameTag), Values: []string{cluster}}},
			},
		},
	}

	var total float64
	for {
		out, err := c.clients.CostExplorer.GetCostAndUsage(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("getting cost and usage: %w", err)
		}
		for _, result := range out.ResultsByTime {
			metric, ok := result.Total[MetricUnblendedCost]
			if !ok {
				continue
			}
			amount, err := strconv.ParseFloat(awssdk.ToString(metric.Amount), 64)
			if err != nil {
				return 0, fmt.Errorf("parsing %s amount %q: %w", MetricUnblendedCost, awssdk.ToString(metric.Amount), err)
			}
			total += amount
		}
		if out.NextPageToken == nil || *out.NextPageToken == "" {
			break
		}
		input.NextPageToken = out.NextPageToken
	}
	return total, nil
}
