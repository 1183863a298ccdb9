package sizing

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"

	"github.com/pixelfederation/eks-automode-estimator/cost"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestParse_Defaults(t *testing.T) {
	in, err := Parse(Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := cost.ClusterSizingInput{
		InstanceType:   "m5.large",
		NodeCount:      0,
		CPUUtilization: 0.5,
		MemUtilization: 0.5,
		Region:         "us-east-1",
	}
	if diff := cmp.Diff(want, in); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_AllFields(t *testing.T) {
	in, err := Parse(Values{
		EnvPrimaryInstance: " c5.xlarge ",
		EnvNodeCount:       "12",
		EnvUtilCPU:         "37.5",
		EnvUtilMem:         "80",
		EnvRegion:          "eu-west-1",
		EnvRealMonthlyCost: "1500.25",
		EnvMetricSource:    "ContainerInsights",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := cost.ClusterSizingInput{
		InstanceType:    "c5.xlarge",
		NodeCount:       12,
		CPUUtilization:  0.375,
		MemUtilization:  0.8,
		Region:          "eu-west-1",
		RealMonthlyCost: floatPtr(1500.25),
		MetricSource:    "ContainerInsights",
	}
	if diff := cmp.Diff(want, in); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_RealCost(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *float64
	}{
		{name: "absent"},
		{name: "empty", raw: "  "},
		{name: "explicit zero", raw: "0", want: floatPtr(0)},
		{name: "value", raw: "42.5", want: floatPtr(42.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals := Values{}
			if tt.name != "absent" {
				vals[EnvRealMonthlyCost] = tt.raw
			}
			in, err := Parse(vals)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, in.RealMonthlyCost); diff != "" {
				t.Errorf("real cost mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_NodeCountAcceptsWholeFloats(t *testing.T) {
	in, err := Parse(Values{EnvNodeCount: "3.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.NodeCount != 3 {
		t.Errorf("expected 3, got %d", in.NodeCount)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		vals Values
	}{
		{name: "non numeric cpu", vals: Values{EnvUtilCPU: "high"}},
		{name: "cpu above 100", vals: Values{EnvUtilCPU: "120"}},
		{name: "negative mem", vals: Values{EnvUtilMem: "-3"}},
		{name: "fractional nodes", vals: Values{EnvNodeCount: "2.5"}},
		{name: "negative nodes", vals: Values{EnvNodeCount: "-1"}},
		{name: "nan cost", vals: Values{EnvRealMonthlyCost: "NaN"}},
		{name: "cost with currency", vals: Values{EnvRealMonthlyCost: "$100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.vals); !errors.Is(err, ErrMalformedInput) {
				t.Errorf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestParse_ReportsEveryBadField(t *testing.T) {
	_, err := Parse(Values{EnvUtilCPU: "x", EnvUtilMem: "y", EnvNodeCount: "z"})
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected a multierror, got %T", err)
	}
	if len(merr.Errors) != 3 {
		t.Errorf("expected 3 errors, got %d: %v", len(merr.Errors), merr)
	}
	for _, name := range []string{EnvUtilCPU, EnvUtilMem, EnvNodeCount} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected %s in %q", name, err)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvPrimaryInstance, "r5.large")
	t.Setenv(EnvNodeCount, "4")
	t.Setenv(EnvUtilCPU, "")

	vals := FromEnv()
	if vals[EnvPrimaryInstance] != "r5.large" || vals[EnvNodeCount] != "4" {
		t.Errorf("unexpected values %v", vals)
	}
	if _, ok := vals[EnvUtilCPU]; ok {
		t.Errorf("an empty variable must read as not provided, got %v", vals)
	}
}

func TestMerge(t *testing.T) {
	got := Merge(Values{EnvNodeCount: "1", EnvRegion: "us-east-1"}, Values{EnvNodeCount: "5", EnvRegion: ""})
	want := Values{EnvNodeCount: "5", EnvRegion: "us-east-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExportsRoundTrip(t *testing.T) {
	orig := cost.ClusterSizingInput{
		InstanceType:    "m5.xlarge",
		NodeCount:       6,
		CPUUtilization:  0.4525,
		MemUtilization:  0.61,
		Region:          "eu-central-1",
		RealMonthlyCost: floatPtr(812.4),
		MetricSource:    "ContainerInsights",
	}

	var buf bytes.Buffer
	if err := WriteExports(&buf, Encode(orig)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "export EKS_UTIL_CPU='45.25'\n") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	vals, err := Decode(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := Parse(vals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(orig, got, cmp.Comparer(func(a, b float64) bool { return a-b < 1e-9 && b-a < 1e-9 })); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteExports_OmitsUnset(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExports(&buf, Encode(cost.ClusterSizingInput{InstanceType: "t3.medium", NodeCount: 2})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, name := range []string{EnvRegion, EnvRealMonthlyCost, EnvMetricSource} {
		if strings.Contains(out, name) {
			t.Errorf("%s should be omitted:\n%s", name, out)
		}
	}
	if !strings.HasPrefix(out, "export EKS_PRIMARY_INSTANCE='t3.medium'\n") {
		t.Errorf("unexpected first line:\n%s", out)
	}
}

func TestDecode_IgnoresNoise(t *testing.T) {
	out := strings.Join([]string{
		"Collecting cluster data...",
		"export EKS_NODE_COUNT='3'",
		"  export AWS_REGION='ap-south-1'",
		"EKS_UTIL_CPU=99",
		"",
	}, "\n")

	vals, err := Decode(strings.NewReader(out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Values{EnvNodeCount: "3", EnvRegion: "ap-south-1"}
	if diff := cmp.Diff(want, vals); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.env")
	content := "# collected 2024-05-01\nexport EKS_NODE_COUNT='8'\nEKS_UTIL_MEM=72\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	vals, err := ReadEnvFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vals[EnvNodeCount] != "8" || vals[EnvUtilMem] != "72" {
		t.Errorf("unexpected values %v", vals)
	}

	if _, err := ReadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for a missing file")
	}
}
