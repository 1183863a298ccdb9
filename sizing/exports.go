package sizing

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pixelfederation/eks-automode-estimator/cost"
)

const exportPrefix = "export "

// Encode renders a collector result as shell `export NAME='value'` lines.
// Utilization is written in percent.
func Encode(in cost.ClusterSizingInput) Values {
	vals := Values{
		EnvPrimaryInstance: in.InstanceType,
		EnvNodeCount:       strconv.Itoa(in.NodeCount),
		EnvUtilCPU:         formatPercent(in.CPUUtilization),
		EnvUtilMem:         formatPercent(in.MemUtilization),
	}
	if in.Region != "" {
		vals[EnvRegion] = in.Region
	}
	if in.RealMonthlyCost != nil {
		vals[EnvRealMonthlyCost] = strconv.FormatFloat(*in.RealMonthlyCost, 'f', 2, 64)
	}
	if in.MetricSource != "" {
		vals[EnvMetricSource] = in.MetricSource
	}
	return vals
}

func formatPercent(fraction float64) string {
	return strconv.FormatFloat(fraction*100, 'f', 2, 64)
}

// WriteExports writes vals in Names order, skipping unset names.
func WriteExports(w io.Writer, vals Values) error {
	for _, name := range Names {
		v, ok := vals[name]
		if !ok {
			continue
		}
		// single quotes cannot be escaped inside a single quoted value
		v = strings.ReplaceAll(v, "'", "")
		if _, err := fmt.Fprintf(w, "%s%s='%s'\n", exportPrefix, name, v); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads the `export` lines of a collector's output. Any other line is
// ignored, so logs or banners mixed into the stream are harmless.
func Decode(r io.Reader) (Values, error) {
	var b strings.Builder
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, exportPrefix) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading exports: %w", err)
	}

	parsed, err := godotenv.Unmarshal(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: parsing exports: %v", ErrMalformedInput, err)
	}
	return Values(parsed), nil
}

// ReadEnvFile loads a dotenv-style file, `export` prefixes allowed.
func ReadEnvFile(path string) (Values, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening env file %s: %w", path, err)
	}
	defer f.Close()

	parsed, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: env file %s: %v", ErrMalformedInput, path, err)
	}
	return Values(parsed), nil
}
