package pricing

// DefaultFallbackPrices returns a fresh copy of the us-east-1 On-Demand Linux
// rates used when the Price List API is unreachable.
func DefaultFallbackPrices() map[string]float64 {
	return map[string]float64{
		"t3.medium":  0.0416,
		"t3.large":   0.0832,
		"t3.xlarge":  0.1664,
		"t3a.medium": 0.0376,
		"t3a.large":  0.0752,
		"m5.large":   0.096,
		"m5.xlarge":  0.192,
		"m5.2xlarge": 0.384,
		"m5.4xlarge": 0.768,
		"c5.large":   0.085,
		"c5.xlarge":  0.17,
		"c5.2xlarge": 0.34,
		"r5.large":   0.126,
		"r5.xlarge":  0.252,
		"r5.2xlarge": 0.504,
		"m6i.large":  0.096,
		"m6i.xlarge": 0.192,
	}
}

// DefaultConfig returns a Config with the fallback table and the standard fee ratio.
func DefaultConfig() Config {
	return Config{
		FallbackPrices:   DefaultFallbackPrices(),
		AutoModeFeeRatio: DefaultAutoModeFeeRatio,
		OperatingSystem:  "Linux",
	}
}
