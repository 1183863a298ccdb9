package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
)

// costExplorerRegion is where the Cost Explorer API is served from.
const costExplorerRegion = "us-east-1"

// EKSDescribeClusterAPI wraps the DescribeCluster call (no SDK paginator interface exists).
type EKSDescribeClusterAPI interface {
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

// CloudWatchStatisticsAPI wraps the GetMetricStatistics call.
type CloudWatchStatisticsAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// CostAndUsageAPI wraps the GetCostAndUsage call, paged by NextPageToken.
type CostAndUsageAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// Clients bundles every AWS API the collector calls for one region.
type Clients struct {
	EKS          EKSDescribeClusterAPI
	EC2          ec2.DescribeInstancesAPIClient
	AutoScaling  autoscaling.DescribeAutoScalingGroupsAPIClient
	CloudWatch   CloudWatchStatisticsAPI
	CostExplorer CostAndUsageAPI
}

// ClientFactory creates AWS service clients, enabling dependency injection for testing.
type ClientFactory interface {
	NewClients(ctx context.Context, region string) (Clients, error)
}

// SDKClientFactory creates real AWS SDK clients. Implements ClientFactory.
type SDKClientFactory struct{}

func (f *SDKClientFactory) NewClients(ctx context.Context, region string) (Clients, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return Clients{}, fmt.Errorf("failed to load AWS config [region=%s]: %w", region, err)
	}
	ceCfg := cfg.Copy()
	ceCfg.Region = costExplorerRegion

	return Clients{
		EKS:          eks.NewFromConfig(cfg),
		EC2:          ec2.NewFromConfig(cfg),
		AutoScaling:  autoscaling.NewFromConfig(cfg),
		CloudWatch:   cloudwatch.NewFromConfig(cfg),
		CostExplorer: costexplorer.NewFromConfig(ceCfg),
	}, nil
}
