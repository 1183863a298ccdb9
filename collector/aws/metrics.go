package aws

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	log "github.com/sirupsen/logrus"
)

const (
	NamespaceContainerInsights = "ContainerInsights"
	NamespaceEC2               = "AWS/EC2"

	SourceContainerInsights = "ContainerInsights"
	SourceEC2               = "AWS/EC2 CPUUtilization"
	SourceDefault           = "default"

	// DefaultCPUPercent and DefaultMemPercent are assumed when no metric is available.
	DefaultCPUPercent = 45.0
	DefaultMemPercent = 60.0

	metricPeriodSeconds = 3600

	// maxSampledInstances bounds the per-instance AWS/EC2 fallback.
	maxSampledInstances = 20
)

var errNoDatapoints = errors.New("no datapoints")

type utilization struct {
	cpu, mem             float64
	cpuSource, memSource string
}

// source labels where the figures came from, e.g. "ContainerInsights" or
// "cpu: AWS/EC2 CPUUtilization, memory: default".
func (u utilization) source() string {
	if u.cpuSource == u.memSource {
		return u.cpuSource
	}
	return fmt.Sprintf("cpu: %s, memory: %s", u.cpuSource, u.memSource)
}

// utilization walks the metric cascade: ContainerInsights node metrics, then
// AWS/EC2 CPUUtilization for CPU, then the defaults.
func (c *Collector) utilization(ctx context.Context, cluster string, instanceIDs []string, start, end time.Time) utilization {
	u := utilization{cpu: DefaultCPUPercent, mem: DefaultMemPercent, cpuSource: SourceDefault, memSource: SourceDefault}
	clusterDim := []cwTypes.Dimension{{Name: awssdk.String("ClusterName"), Value: awssdk.String(cluster)}}

	if v, err := c.average(ctx, NamespaceContainerInsights, "node_cpu_utilization", clusterDim, start, end); err == nil {
		u.cpu, u.cpuSource = v, SourceContainerInsights
	} else {
		log.WithError(err).Warnf("ContainerInsights CPU unavailable [cluster=%s]", cluster)
		if v, err := c.instanceCPU(ctx, instanceIDs, start, end); err == nil {
			u.cpu, u.cpuSource = v, SourceEC2
		} else {
			log.WithError(err).Warnf("AWS/EC2 CPUUtilization unavailable, using default [cluster=%s, cpu=%.0f%%]", cluster, DefaultCPUPercent)
		}
	}

	if v, err := c.average(ctx, NamespaceContainerInsights, "node_memory_utilization", clusterDim, start, end); err == nil {
		u.mem, u.memSource = v, SourceContainerInsights
	} else {
		log.WithError(err).Warnf("ContainerInsights memory unavailable, using default [cluster=%s, memory=%.0f%%]", cluster, DefaultMemPercent)
	}
	return u
}

// instanceCPU averages the per-instance hourly CPUUtilization of up to maxSampledInstances nodes.
func (c *Collector) instanceCPU(ctx context.Context, instanceIDs []string, start, end time.Time) (float64, error) {
	if len(instanceIDs) > maxSampledInstances {
		instanceIDs = instanceIDs[:maxSampledInstances]
	}
	var sum float64
	var n int
	for _, id := range instanceIDs {
		dims := []cwTypes.Dimension{{Name: awssdk.String("InstanceId"), Value: awssdk.String(id)}}
		v, err := c.average(ctx, NamespaceEC2, "CPUUtilization", dims, start, end)
		if err != nil {
			log.WithError(err).Debugf("No CPUUtilization for instance [instance=%s]", id)
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, errNoDatapoints
	}
	return sum / float64(n), nil
}

// average returns the mean of the hourly Average datapoints, clamped to [0,100].
func (c *Collector) average(ctx context.Context, namespace, metric string, dims []cwTypes.Dimension, start, end time.Time) (float64, error) {
	out, err := c.clients.CloudWatch.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  awssdk.String(namespace),
		MetricName: awssdk.String(metric),
		Dimensions: dims,
		StartTime:  awssdk.Time(start),
		EndTime:    awssdk.Time(end),
		Period:     awssdk.Int32(metricPeriodSeconds),
		Statistics: []cwTypes.Statistic{cwTypes.StatisticAverage},
	})
	if err != nil {
		return 0, fmt.Errorf("getting %s/%s: %w", namespace, metric, err)
	}

	var sum float64
	var n int
	for _, dp := range out.Datapoints {
		if dp.Average == nil {
			continue
		}
		sum += *dp.Average
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%s/%s: %w", namespace, metric, errNoDatapoints)
	}
	avg := math.Round(sum/float64(n)*100) / 100
	return math.Min(math.Max(avg, 0), 100), nil
}
