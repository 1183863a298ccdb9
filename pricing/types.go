package pricing

import (
	"errors"
	"fmt"
)

const (
	MaxResultsPerPage int32 = 100

	TermOnDemand string = "JRTCKXETXF"
	TermPerHour  string = "6YS6EN2CT7"

	// PricingAPIRegion is the only region the Price List query API is served from
	// for the pricing data this tool needs.
	PricingAPIRegion = "us-east-1"

	// DefaultAutoModeFeeRatio is applied to the EC2 hourly rate when no live
	// EKS Auto Mode price is published for the instance type.
	DefaultAutoModeFeeRatio = 0.12
)

// ErrUnresolvablePrice is returned when no pricing tier yields an hourly rate.
var ErrUnresolvablePrice = errors.New("unresolvable price")

// Source tells where a price came from.
type Source int

const (
	SourceLiveAPI Source = iota
	SourceFallbackTable
	SourceUserSupplied
	// SourceEstimated marks an Auto Mode fee derived from the EC2 rate.
	SourceEstimated
)

func (s Source) String() string {
	switch s {
	case SourceLiveAPI:
		return "live-api"
	case SourceFallbackTable:
		return "fallback-table"
	case SourceUserSupplied:
		return "user-supplied"
	case SourceEstimated:
		return "estimated"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// MarshalText renders the source label in JSON reports.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PriceQuote holds the resolved hourly rates for one instance type in one region.
type PriceQuote struct {
	InstanceType      string  `json:"instance_type"`
	Region            string  `json:"region"`
	EC2Hourly         float64 `json:"ec2_hourly"`
	AutoModeFeeHourly float64 `json:"automode_fee_hourly"`
	Source            Source  `json:"source"`
	FeeSource         Source  `json:"fee_source"`
	DiscountNote      string  `json:"discount_note,omitempty"`
}

// FeeEstimated reports whether the Auto Mode fee is the ratio fallback
// rather than a published price.
func (q PriceQuote) FeeEstimated() bool {
	return q.FeeSource == SourceEstimated
}

// Config is passed to NewResolver. Nothing in it is shared between resolvers.
type Config struct {
	// FallbackPrices maps instance type to On-Demand USD/hour.
	FallbackPrices map[string]float64
	// AutoModeFeeRatio defaults to DefaultAutoModeFeeRatio when zero.
	AutoModeFeeRatio float64
	// DisableLive skips the Price List API tiers.
	DisableLive bool
	// OperatingSystem filters live EC2 products, "Linux" when empty.
	OperatingSystem string
}

// Pricing is a single Price List API product document.
type Pricing struct {
	Product Product
	Terms   Terms
}

// Terms holds the On-Demand offers keyed by "<sku>.<term code>".
type Terms struct {
	OnDemand map[string]SKU
}

type Product struct {
	Sku string
}

// SKU holds the price dimensions keyed by "<sku>.<term code>.<rate code>".
type SKU struct {
	PriceDimensions map[string]Details
}

type Details struct {
	PricePerUnit map[string]string
}
