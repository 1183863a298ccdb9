package aws

import (
	"context"
	"fmt"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	ceTypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2Types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	eksTypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
)

// mockEKSClient implements EKSDescribeClusterAPI for testing.
type mockEKSClient struct {
	DescribeClusterFn func(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

func (m *mockEKSClient) DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error) {
	return m.DescribeClusterFn(ctx, params, optFns...)
}

// mockEC2Client implements ec2.DescribeInstancesAPIClient for testing.
type mockEC2Client struct {
	DescribeInstancesFn func(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

func (m *mockEC2Client) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return m.DescribeInstancesFn(ctx, params, optFns...)
}

// mockAutoScalingClient implements autoscaling.DescribeAutoScalingGroupsAPIClient for testing.
type mockAutoScalingClient struct {
	DescribeAutoScalingGroupsFn func(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
}

func (m *mockAutoScalingClient) DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	return m.DescribeAutoScalingGroupsFn(ctx, params, optFns...)
}

// mockCloudWatchClient implements CloudWatchStatisticsAPI for testing. It is
// called from collector goroutines, so calls are recorded under a lock.
type mockCloudWatchClient struct {
	GetMetricStatisticsFn func(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)

	mu    sync.Mutex
	calls []string
}

func (m *mockCloudWatchClient) GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, awssdk.ToString(params.Namespace)+"/"+awssdk.ToString(params.MetricName))
	m.mu.Unlock()
	return m.GetMetricStatisticsFn(ctx, params, optFns...)
}

// mockCostExplorerClient implements CostAndUsageAPI for testing.
type mockCostExplorerClient struct {
	GetCostAndUsageFn func(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

func (m *mockCostExplorerClient) GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	return m.GetCostAndUsageFn(ctx, params, optFns...)
}

// mockClientFactory implements ClientFactory for testing.
type mockClientFactory struct {
	clients Clients
	err     error
	region  string
}

func (f *mockClientFactory) NewClients(_ context.Context, region string) (Clients, error) {
	f.region = region
	return f.clients, f.err
}

func clusterFound(name string) *mockEKSClient {
	return &mockEKSClient{
		DescribeClusterFn: func(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error) {
			return &eks.DescribeClusterOutput{Cluster: &eksTypes.Cluster{
				Name:    awssdk.String(name),
				Version: awssdk.String("1.30"),
				Status:  eksTypes.ClusterStatusActive,
			}}, nil
		},
	}
}

// instancesOf returns one running instance per type argument.
func instancesOf(types ...string) *mockEC2Client {
	return &mockEC2Client{
		DescribeInstancesFn: func(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			var instances []ec2Types.Instance
			for i, it := range types {
				instances = append(instances, ec2Types.Instance{
					InstanceId:   awssdk.String(fmt.Sprintf("i-%04d", i)),
					InstanceType: ec2Types.InstanceType(it),
				})
			}
			return &ec2.DescribeInstancesOutput{Reservations: []ec2Types.Reservation{{Instances: instances}}}, nil
		},
	}
}

// metricsByName answers with the datapoints registered for "Namespace/MetricName",
// and with no datapoints otherwise.
func metricsByName(byMetric map[string][]float64) *mockCloudWatchClient {
	return &mockCloudWatchClient{
		GetMetricStatisticsFn: func(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
			key := awssdk.ToString(params.Namespace) + "/" + awssdk.ToString(params.MetricName)
			var dps []cwTypes.Datapoint
			for _, v := range byMetric[key] {
				dps = append(dps, cwTypes.Datapoint{Average: awssdk.Float64(v)})
			}
			return &cloudwatch.GetMetricStatisticsOutput{Datapoints: dps}, nil
		},
	}
}

func spendOf(amounts ...string) *mockCostExplorerClient {
	return &mockCostExplorerClient{
		GetCostAndUsageFn: func(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
			var results []ceTypes.ResultByTime
			for _, a := range amounts {
				results = append(results, ceTypes.ResultByTime{
					Total: map[string]ceTypes.MetricValue{MetricUnblendedCost: {Amount: awssdk.String(a), Unit: awssdk.String("USD")}},
				})
			}
			return &costexplorer.GetCostAndUsageOutput{ResultsByTime: results}, nil
		},
	}
}
