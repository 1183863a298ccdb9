// Package sizing is the boundary between the collectors and the estimator: a
// flat set of environment variable names mapped to a cost.ClusterSizingInput.
package sizing

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/pixelfederation/eks-automode-estimator/cost"
)

const (
	EnvPrimaryInstance = "EKS_PRIMARY_INSTANCE"
	EnvNodeCount       = "EKS_NODE_COUNT"
	EnvUtilCPU         = "EKS_UTIL_CPU"
	EnvUtilMem         = "EKS_UTIL_MEM"
	EnvRegion          = "AWS_REGION"
	EnvRealMonthlyCost = "EKS_REAL_MONTHLY_COST"
	EnvMetricSource    = "EKS_METRIC_SOURCE"
)

const (
	DefaultInstanceType   = "m5.large"
	DefaultRegion         = "us-east-1"
	DefaultUtilPercentage = 50.0
)

// Names lists every variable the estimator reads, in output order.
var Names = []string{
	EnvPrimaryInstance,
	EnvNodeCount,
	EnvUtilCPU,
	EnvUtilMem,
	EnvRegion,
	EnvRealMonthlyCost,
	EnvMetricSource,
}

// ErrMalformedInput is shared with the estimator so callers test a single sentinel.
var ErrMalformedInput = cost.ErrMalformedInput

// Values is a name to raw value mapping. A missing or empty value means not provided.
type Values map[string]string

// Parse applies defaults and validates every field, reporting all bad fields at once.
// Utilization is given in percent and returned as a fraction.
func Parse(vals Values) (cost.ClusterSizingInput, error) {
	var merr *multierror.Error

	in := cost.ClusterSizingInput{
		InstanceType: DefaultInstanceType,
		Region:       DefaultRegion,
		MetricSource: strings.TrimSpace(vals[EnvMetricSource]),
	}
	if it := strings.TrimSpace(vals[EnvPrimaryInstance]); it != "" {
		in.InstanceType = it
	}
	if region := strings.TrimSpace(vals[EnvRegion]); region != "" {
		in.Region = region
	}

	if raw, ok := lookup(vals, EnvNodeCount); ok {
		n, err := parseNodeCount(raw)
		if err != nil {
			merr = multierror.Append(merr, err)
		}
		in.NodeCount = n
	}

	var err error
	if in.CPUUtilization, err = parsePercent(vals, EnvUtilCPU); err != nil {
		merr = multierror.Append(merr, err)
	}
	if in.MemUtilization, err = parsePercent(vals, EnvUtilMem); err != nil {
		merr = multierror.Append(merr, err)
	}

	if raw, ok := lookup(vals, EnvRealMonthlyCost); ok {
		v, err := parseNonNegative(EnvRealMonthlyCost, raw)
		if err != nil {
			merr = multierror.Append(merr, err)
		} else {
			in.RealMonthlyCost = &v
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		return cost.ClusterSizingInput{}, err
	}
	return in, nil
}

func lookup(vals Values, name string) (string, bool) {
	raw := strings.TrimSpace(vals[name])
	return raw, raw != ""
}

func parseNodeCount(raw string) (int, error) {
	v, err := parseNonNegative(EnvNodeCount, raw)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s=%q is not a whole number of nodes", ErrMalformedInput, EnvNodeCount, raw)
	}
	return int(v), nil
}

func parsePercent(vals Values, name string) (float64, error) {
	raw, ok := lookup(vals, name)
	if !ok {
		return DefaultUtilPercentage / 100, nil
	}
	v, err := parseNonNegative(name, raw)
	if err != nil {
		return 0, err
	}
	if v > 100 {
		return 0, fmt.Errorf("%w: %s=%q is above 100%%", ErrMalformedInput, name, raw)
	}
	return v / 100, nil
}

func parseNonNegative(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrMalformedInput, name, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s=%q is negative", ErrMalformedInput, name, raw)
	}
	return v, nil
}

// FromEnv reads the process environment through viper.
func FromEnv() Values {
	v := viper.New()
	v.AutomaticEnv()

	vals := Values{}
	for _, name := range Names {
		if v.IsSet(name) {
			vals[name] = v.GetString(name)
		}
	}
	return vals
}

// Merge returns a copy of base with every non-empty value of override applied.
func Merge(base, override Values) Values {
	out := make(Values, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}
