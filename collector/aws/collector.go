// Package aws sizes an EKS cluster from AWS APIs: the EC2 instances tagged
// with the cluster name, their CloudWatch utilization and their billed spend.
package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	autoscalingTypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2Types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	eksTypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pixelfederation/eks-automode-estimator/cost"
	"github.com/pixelfederation/eks-automode-estimator/sizing"
)

const (
	ClusterNameTag = "eks:cluster-name"

	DefaultDays = 7
)

var (
	ErrClusterNotFound = errors.New("cluster not found")
	ErrNoNodes         = errors.New("no nodes found for cluster")
)

// Options selects the cluster and the lookback windows.
type Options struct {
	Cluster string
	Region  string
	// Days of CloudWatch history to average, DefaultDays when zero.
	Days int
	// SkipCost disables the Cost Explorer lookup, which is billed per request.
	SkipCost bool
}

// Collector reads sizing data through the AWS APIs in Clients.
type Collector struct {
	clients Clients
	now     func() time.Time
}

func NewCollector(clients Clients) *Collector {
	return &Collector{clients: clients, now: time.Now}
}

// NewCollectorFromFactory creates the region's clients through factory.
func NewCollectorFromFactory(ctx context.Context, factory ClientFactory, region string) (*Collector, error) {
	clients, err := factory.NewClients(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewCollector(clients), nil
}

// Collect requires the cluster to exist and to have at least one node.
// Utilization and spend lookups are soft: a failure degrades to a
// default or an absent value, recorded in MetricSource.
func (c *Collector) Collect(ctx context.Context, opts Options) (cost.ClusterSizingInput, error) {
	if opts.Days <= 0 {
		opts.Days = DefaultDays
	}

	if err := c.describeCluster(ctx, opts.Cluster); err != nil {
		return cost.ClusterSizingInput{}, err
	}

	instanceTypes, instanceIDs, err := c.runningInstances(ctx, opts.Cluster)
	if err != nil {
		return cost.ClusterSizingInput{}, err
	}
	nodeCount := len(instanceIDs)
	if nodeCount == 0 {
		log.Warnf("No running instances tagged for cluster, falling back to Auto Scaling desired capacity [cluster=%s]", opts.Cluster)
		nodeCount, instanceTypes, err = c.desiredCapacity(ctx, opts.Cluster)
		if err != nil {
			return cost.ClusterSizingInput{}, err
		}
	}
	if nodeCount == 0 {
		return cost.ClusterSizingInput{}, fmt.Errorf("%w [cluster=%s, region=%s]", ErrNoNodes, opts.Cluster, opts.Region)
	}
	primary := mode(instanceTypes)
	log.Infof("Nodes found [cluster=%s, nodes=%d, instance_type=%s]", opts.Cluster, nodeCount, primary)

	var (
		util  utilization
		spend *float64
	)
	end := c.now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		util = c.utilization(gctx, opts.Cluster, instanceIDs, end.Add(-time.Duration(opts.Days)*24*time.Hour), end)
		return nil
	})
	if !opts.SkipCost {
		g.Go(func() error {
			spend = c.monthlySpend(gctx, opts.Cluster, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cost.ClusterSizingInput{}, err
	}

	in := cost.ClusterSizingInput{
		InstanceType:    primary,
		NodeCount:       nodeCount,
		CPUUtilization:  util.cpu / 100,
		MemUtilization:  util.mem / 100,
		Region:          opts.Region,
		RealMonthlyCost: spend,
		MetricSource:    util.source(),
	}
	log.Infof("Collected cluster data [cluster=%s, cpu=%.2f%%, memory=%.2f%%, source=%s]", opts.Cluster, util.cpu, util.mem, in.MetricSource)
	return in, nil
}

func (c *Collector) describeCluster(ctx context.Context, name string) error {
	out, err := c.clients.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: awssdk.String(name)})
	if err != nil {
		var notFound *eksTypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w [cluster=%s]", ErrClusterNotFound, name)
		}
		return fmt.Errorf("describing cluster %s: %w", name, err)
	}
	cluster := out.Cluster
	if cluster == nil {
		return fmt.Errorf("%w [cluster=%s]", ErrClusterNotFound, name)
	}
	log.Infof("Cluster found [cluster=%s, version=%s, status=%s]", awssdk.ToString(cluster.Name), awssdk.ToString(cluster.Version), cluster.Status)
	if cluster.ComputeConfig != nil && awssdk.ToBool(cluster.ComputeConfig.Enabled) {
		log.Warnf("Cluster already has EKS Auto Mode enabled, the estimate compares against itself [cluster=%s]", name)
	}
	return nil
}

// runningInstances returns instance type counts and IDs of running instances tagged for the cluster.
func (c *Collector) runningInstances(ctx context.Context, cluster string) (map[string]int, []string, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2Types.Filter{
			{Name: awssdk.String("tag:" + ClusterNameTag), Values: []string{cluster}},
			{Name: awssdk.String("instance-state-name"), Values: []string{string(ec2Types.InstanceStateNameRunning)}},
		},
	}

	counts := map[string]int{}
	var ids []string
	paginator := ec2.NewDescribeInstancesPaginator(c.clients.EC2, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("describing instances for cluster %s: %w", cluster, err)
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				counts[string(instance.InstanceType)]++
				ids = append(ids, awssdk.ToString(instance.InstanceId))
			}
		}
	}
	return counts, ids, nil
}

// desiredCapacity sums the desired capacity of the cluster's Auto Scaling groups.
func (c *Collector) desiredCapacity(ctx context.Context, cluster string) (int, map[string]int, error) {
	input := &autoscaling.DescribeAutoScalingGroupsInput{
		Filters: []autoscalingTypes.Filter{
			{Name: awssdk.String("tag:" + ClusterNameTag), Values: []string{cluster}},
		},
	}

	total := 0
	counts := map[string]int{}
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(c.clients.AutoScaling, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("describing auto scaling groups for cluster %s: %w", cluster, err)
		}
		for _, group := range page.AutoScalingGroups {
			total += int(awssdk.ToInt32(group.DesiredCapacity))
			for _, instance := range group.Instances {
				if it := awssdk.ToString(instance.InstanceType); it != "" {
					counts[it]++
				}
			}
			log.Debugf("Auto Scaling group [name=%s, desired=%d]", awssdk.ToString(group.AutoScalingGroupName), awssdk.ToInt32(group.DesiredCapacity))
		}
	}
	return total, counts, nil
}

// mode returns the most common instance type, breaking ties alphabetically.
func mode(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := sizing.DefaultInstanceType, 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}
