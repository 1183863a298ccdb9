// Package kube sizes a cluster from the Kubernetes API: node allocatable
// capacity against the resource requests of running pods.
package kube

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/pixelfederation/eks-automode-estimator/cost"
	"github.com/pixelfederation/eks-automode-estimator/sizing"
)

const (
	LabelInstanceType = "node.kubernetes.io/instance-type"
	LabelRegion       = "topology.kubernetes.io/region"

	MetricSource = "Kubernetes requests"

	listPageSize = 500
)

// NewClientset builds a clientset from a kubeconfig file, or from the
// default loading rules ($KUBECONFIG, ~/.kube/config) when path is empty.
func NewClientset(path string) (kubernetes.Interface, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path != "" {
		rules.ExplicitPath = path
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}
	return clientset, nil
}

// Collector reads sizing data through a kubernetes.Interface.
type Collector struct {
	client kubernetes.Interface
}

func NewCollector(client kubernetes.Interface) *Collector {
	return &Collector{client: client}
}

// Totals are the raw sums behind a collection.
type Totals struct {
	Nodes               int
	InstanceTypes       map[string]int
	AllocatableMilliCPU int64
	AllocatableMemory   int64
	RequestedMilliCPU   int64
	RequestedMemory     int64
	Region              string
}

// Collect lists nodes and running pods and returns the cluster sizing. The
// region is taken from node topology labels when present.
func (c *Collector) Collect(ctx context.Context) (cost.ClusterSizingInput, error) {
	totals, err := c.Totals(ctx)
	if err != nil {
		return cost.ClusterSizingInput{}, err
	}

	in := cost.ClusterSizingInput{
		InstanceType:   primaryInstanceType(totals.InstanceTypes),
		NodeCount:      totals.Nodes,
		CPUUtilization: utilization("cpu", totals.RequestedMilliCPU, totals.AllocatableMilliCPU),
		MemUtilization: utilization("memory", totals.RequestedMemory, totals.AllocatableMemory),
		Region:         totals.Region,
		MetricSource:   MetricSource,
	}
	log.Infof("Collected cluster data [nodes=%d, instance_type=%s, cpu=%.2f%%, memory=%.2f%%]",
		in.NodeCount, in.InstanceType, in.CPUUtilization*100, in.MemUtilization*100)
	return in, nil
}

// Totals sums node allocatable and the requests of every container in a
// Running pod.
func (c *Collector) Totals(ctx context.Context) (Totals, error) {
	totals := Totals{InstanceTypes: map[string]int{}}
	regions := map[string]int{}

	opts := metav1.ListOptions{Limit: listPageSize}
	for {
		nodes, err := c.client.CoreV1().Nodes().List(ctx, opts)
		if err != nil {
			return Totals{}, fmt.Errorf("listing nodes: %w", err)
		}
		for i := range nodes.Items {
			node := &nodes.Items[i]
			totals.Nodes++
			if it := node.Labels[LabelInstanceType]; it != "" {
				totals.InstanceTypes[it]++
			}
			if r := node.Labels[LabelRegion]; r != "" {
				regions[r]++
			}
			cpu := node.Status.Allocatable[corev1.ResourceCPU]
			mem := node.Status.Allocatable[corev1.ResourceMemory]
			totals.AllocatableMilliCPU += cpu.MilliValue()
			totals.AllocatableMemory += mem.Value()
		}
		if nodes.Continue == "" {
			break
		}
		opts.Continue = nodes.Continue
	}
	totals.Region = mode(regions, "")

	opts = metav1.ListOptions{
		Limit:         listPageSize,
		FieldSelector: fields.OneTermEqualSelector("status.phase", string(corev1.PodRunning)).String(),
	}
	for {
		pods, err := c.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return Totals{}, fmt.Errorf("listing pods: %w", err)
		}
		for i := range pods.Items {
			pod := &pods.Items[i]
			if pod.Status.Phase != corev1.PodRunning {
				continue
			}
			for _, container := range pod.Spec.Containers {
				if cpu, ok := container.Resources.Requests[corev1.ResourceCPU]; ok {
					totals.RequestedMilliCPU += cpu.MilliValue()
				}
				if mem, ok := container.Resources.Requests[corev1.ResourceMemory]; ok {
					totals.RequestedMemory += mem.Value()
				}
			}
		}
		if pods.Continue == "" {
			break
		}
		opts.Continue = pods.Continue
	}

	log.Debugf("Cluster totals [nodes=%d, cpu_requested_m=%d, cpu_allocatable_m=%d, mem_requested=%d, mem_allocatable=%d]",
		totals.Nodes, totals.RequestedMilliCPU, totals.AllocatableMilliCPU, totals.RequestedMemory, totals.AllocatableMemory)
	return totals, nil
}

func primaryInstanceType(counts map[string]int) string {
	return mode(counts, sizing.DefaultInstanceType)
}

// mode returns the most frequent key, breaking ties alphabetically.
func mode(counts map[string]int, fallback string) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := fallback, 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

// utilization is requested over allocatable as a fraction, capped at 1 for
// overcommitted clusters.
func utilization(resource string, requested, allocatable int64) float64 {
	if allocatable <= 0 {
		return 0
	}
	u := float64(requested) / float64(allocatable)
	if u > 1 {
		log.Warnf("Requests exceed allocatable capacity, capping at 100%% [resource=%s, requested=%d, allocatable=%d]", resource, requested, allocatable)
		return 1
	}
	return u
}
