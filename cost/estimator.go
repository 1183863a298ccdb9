// Package cost projects the monthly cost of an EKS cluster's worker nodes
// before and after a move to EKS Auto Mode.
//
// All figures are USD per month of 730 hours:
//
//	current   = control plane + (real EC2 spend | nodes × ec2_hourly × 730)
//	waste     = 1 − (cpu + mem) / 2
//	autoNodes = ceil(nodes × (1 − waste × 0.20))
//	discount  = real EC2 spend / (nodes × ec2_hourly × 730), or 1
//	auto      = control plane + autoNodes × 730 × (ec2_hourly × discount + fee_hourly)
//	savings   = current − auto + 500 (operational)
package cost

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/eks-automode-estimator/pricing"
)

const (
	HoursPerMonth = 730.0

	ControlPlaneHourly = 0.10

	// EfficiencyGain is the share of current waste Auto Mode bin-packing can reclaim.
	EfficiencyGain = 0.20

	OpsHoursSaved = 10.0
	OpsHourlyRate = 50.0

	// ceilTolerance is relative to the node requirement. It absorbs float
	// noise such that 9.000000000000002 bills as 9, while 9.0000000001 bills as 10.
	ceilTolerance = 1e-12
)

// ErrMalformedInput is returned when an estimate would be computed from invalid numbers.
var ErrMalformedInput = errors.New("malformed input")

// OperationalSavings is the fixed monthly engineering time saved.
const OperationalSavings = OpsHoursSaved * OpsHourlyRate

// ClusterSizingInput is what a collector knows about the cluster.
type ClusterSizingInput struct {
	InstanceType string `json:"instance_type"`
	NodeCount    int    `json:"node_count"`
	// CPUUtilization and MemUtilization are fractions in [0,1].
	CPUUtilization float64 `json:"cpu_utilization"`
	MemUtilization float64 `json:"mem_utilization"`
	Region         string  `json:"region"`
	// RealMonthlyCost is the billed EC2 spend, nil when unknown.
	RealMonthlyCost *float64 `json:"real_monthly_cost,omitempty"`
	MetricSource    string   `json:"metric_source,omitempty"`
}

// CostReport is the result of Estimate.
type CostReport struct {
	ControlPlaneMonthly float64  `json:"control_plane_monthly"`
	CurrentEC2Monthly   float64  `json:"current_ec2_monthly"`
	CurrentMonthly      float64  `json:"current_monthly"`
	AutoEC2Monthly      float64  `json:"auto_ec2_monthly"`
	AutoFeeMonthly      float64  `json:"auto_fee_monthly"`
	AutoMonthly         float64  `json:"auto_monthly"`
	InfraSavings        float64  `json:"infra_savings"`
	OpsSavings          float64  `json:"ops_savings"`
	TotalSavings        float64  `json:"total_savings"`
	EstimatedAutoNodes  int      `json:"estimated_auto_nodes"`
	DiscountFactor      float64  `json:"discount_factor"`
	WasteFactor         float64  `json:"waste_factor"`
	PotentialReduction  float64  `json:"potential_reduction"`
	Warnings            []string `json:"warnings,omitempty"`
}

// Validate checks the ranges Estimate relies on.
func (in ClusterSizingInput) Validate() error {
	switch {
	case in.NodeCount < 0:
		return fmt.Errorf("%w: node count %d is negative", ErrMalformedInput, in.NodeCount)
	case !isFraction(in.CPUUtilization):
		return fmt.Errorf("%w: cpu utilization %v is outside [0,1]", ErrMalformedInput, in.CPUUtilization)
	case !isFraction(in.MemUtilization):
		return fmt.Errorf("%w: memory utilization %v is outside [0,1]", ErrMalformedInput, in.MemUtilization)
	case in.RealMonthlyCost != nil && (*in.RealMonthlyCost < 0 || math.IsNaN(*in.RealMonthlyCost) || math.IsInf(*in.RealMonthlyCost, 0)):
		return fmt.Errorf("%w: real monthly cost %v is invalid", ErrMalformedInput, *in.RealMonthlyCost)
	}
	return nil
}

func isFraction(v float64) bool {
	return v >= 0 && v <= 1
}

// Estimate computes the current and Auto Mode monthly costs. It has no side
// effects beyond logging warnings.
func Estimate(in ClusterSizingInput, q pricing.PriceQuote) (CostReport, error) {
	if err := in.Validate(); err != nil {
		return CostReport{}, err
	}
	if !(q.EC2Hourly > 0) || q.AutoModeFeeHourly < 0 || math.IsInf(q.EC2Hourly, 0) {
		return CostReport{}, fmt.Errorf("%w: price quote for %s has ec2=%v fee=%v", ErrMalformedInput, q.InstanceType, q.EC2Hourly, q.AutoModeFeeHourly)
	}

	var r CostReport
	nodes := float64(in.NodeCount)

	if in.NodeCount == 0 {
		r.warn("node count is 0, no meaningful estimate is possible; was the collector run?")
	}

	r.ControlPlaneMonthly = ControlPlaneHourly * HoursPerMonth

	onDemandEquivalent := nodes * q.EC2Hourly * HoursPerMonth
	r.CurrentEC2Monthly = onDemandEquivalent
	if in.RealMonthlyCost != nil {
		r.CurrentEC2Monthly = *in.RealMonthlyCost
	}
	r.CurrentMonthly = r.ControlPlaneMonthly + r.CurrentEC2Monthly

	r.WasteFactor = 1 - (in.CPUUtilization+in.MemUtilization)/2
	r.PotentialReduction = r.WasteFactor * EfficiencyGain
	r.EstimatedAutoNodes = ceilNodes(nodes * (1 - r.PotentialReduction))

	r.DiscountFactor = 1.0
	if in.RealMonthlyCost != nil {
		if onDemandEquivalent > 0 {
			r.DiscountFactor = *in.RealMonthlyCost / onDemandEquivalent
		} else {
			r.warn("real monthly cost given but the On-Demand equivalent is 0, assuming no discount")
		}
	}
	if r.DiscountFactor > 1 {
		r.warn(fmt.Sprintf("real monthly cost is %.0f%% above the On-Demand equivalent, the cluster may run more than %d x %s", (r.DiscountFactor-1)*100, in.NodeCount, q.InstanceType))
	}

	autoNodes := float64(r.EstimatedAutoNodes)
	r.AutoEC2Monthly = autoNodes * q.EC2Hourly * HoursPerMonth * r.DiscountFactor
	r.AutoFeeMonthly = autoNodes * q.AutoModeFeeHourly * HoursPerMonth
	r.AutoMonthly = r.ControlPlaneMonthly + r.AutoEC2Monthly + r.AutoFeeMonthly

	r.InfraSavings = r.CurrentMonthly - r.AutoMonthly
	r.OpsSavings = OperationalSavings
	r.TotalSavings = r.InfraSavings + r.OpsSavings

	return r, nil
}

// ceilNodes rounds a fractional node requirement up to whole billed nodes.
func ceilNodes(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Ceil(v - v*ceilTolerance))
}

func (r *CostReport) warn(msg string) {
	log.Warn(msg)
	r.Warnings = append(r.Warnings, msg)
}
