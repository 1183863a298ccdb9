package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"
)

var errNotInTable = errors.New("instance type not in fallback table")

// Lookup is one pricing tier. Any error is a soft miss.
type Lookup func(ctx context.Context, instanceType, region string) (float64, error)

type tier struct {
	source Source
	lookup Lookup
}

// Resolver turns an instance type and region into a PriceQuote.
type Resolver struct {
	cfg           Config
	pricingClient pricing.GetProductsAPIClient
	savingsPlans  SavingsPlansAPI
	prompter      Prompter
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPricingClient enables the live Price List tiers.
func WithPricingClient(c pricing.GetProductsAPIClient) Option {
	return func(r *Resolver) { r.pricingClient = c }
}

// WithSavingsPlansClient enables the savings plan discount note.
func WithSavingsPlansClient(c SavingsPlansAPI) Option {
	return func(r *Resolver) { r.savingsPlans = c }
}

// WithPrompter sets the operator tier.
func WithPrompter(p Prompter) Option {
	return func(r *Resolver) { r.prompter = p }
}

// NewResolver returns a resolver using cfg. A nil FallbackPrices map disables the table tier.
func NewResolver(cfg Config, opts ...Option) *Resolver {
	if cfg.AutoModeFeeRatio == 0 {
		cfg.AutoModeFeeRatio = DefaultAutoModeFeeRatio
	}
	r := &Resolver{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) liveEnabled() bool {
	return !r.cfg.DisableLive && r.pricingClient != nil
}

func (r *Resolver) ec2Tiers() []tier {
	var tiers []tier
	if r.liveEnabled() {
		tiers = append(tiers, tier{source: SourceLiveAPI, lookup: func(ctx context.Context, instanceType, region string) (float64, error) {
			return LookupEC2OnDemand(ctx, r.pricingClient, region, instanceType, r.cfg.OperatingSystem)
		}})
	}
	tiers = append(tiers, tier{source: SourceFallbackTable, lookup: r.fallbackLookup})
	if r.prompter != nil {
		tiers = append(tiers, tier{source: SourceUserSupplied, lookup: r.promptLookup})
	}
	return tiers
}

func (r *Resolver) fallbackLookup(_ context.Context, instanceType, _ string) (float64, error) {
	price, ok := r.cfg.FallbackPrices[instanceType]
	if !ok || price <= 0 {
		return 0, errNotInTable
	}
	return price, nil
}

func (r *Resolver) promptLookup(ctx context.Context, instanceType, region string) (float64, error) {
	price, ok, err := r.prompter.HourlyPrice(ctx, instanceType, region)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("no manual price provided")
	}
	return price, nil
}

// Resolve walks the EC2 tiers in order, then resolves the Auto Mode fee and
// the optional savings plan note. Only exhaustion of every EC2 tier is an error.
func (r *Resolver) Resolve(ctx context.Context, instanceType, region string) (PriceQuote, error) {
	quote := PriceQuote{InstanceType: instanceType, Region: region}

	found := false
	for _, t := range r.ec2Tiers() {
		price, err := t.lookup(ctx, instanceType, region)
		if err != nil {
			logSoftMiss(err, t.source, instanceType, region)
			continue
		}
		quote.EC2Hourly = price
		quote.Source = t.source
		found = true
		break
	}
	if !found {
		return PriceQuote{}, fmt.Errorf("%w: missing price for instance type %s [region=%s]", ErrUnresolvablePrice, instanceType, region)
	}
	if quote.Source == SourceFallbackTable && region != PricingAPIRegion {
		log.Warnf("using %s fallback price for %s, actual price in %s may differ", PricingAPIRegion, instanceType, region)
	}

	quote.AutoModeFeeHourly, quote.FeeSource = r.resolveFee(ctx, instanceType, region, quote.EC2Hourly)
	quote.DiscountNote = r.discountNote(ctx, instanceType, region, quote.EC2Hourly)

	log.Debugf("resolved price [type=%s, region=%s, ec2=%v, source=%s, fee=%v, fee_source=%s]", instanceType, region, quote.EC2Hourly, quote.Source, quote.AutoModeFeeHourly, quote.FeeSource)
	return quote, nil
}

func (r *Resolver) resolveFee(ctx context.Context, instanceType, region string, ec2Hourly float64) (float64, Source) {
	if r.liveEnabled() {
		fee, err := LookupAutoModeFee(ctx, r.pricingClient, region, instanceType)
		if err == nil {
			return fee, SourceLiveAPI
		}
		logSoftMiss(err, SourceLiveAPI, instanceType, region)
	}
	log.Infof("no published Auto Mode fee for %s, estimating %.0f%% of the EC2 rate", instanceType, r.cfg.AutoModeFeeRatio*100)
	return ec2Hourly * r.cfg.AutoModeFeeRatio, SourceEstimated
}

func (r *Resolver) discountNote(ctx context.Context, instanceType, region string, ec2Hourly float64) string {
	if r.cfg.DisableLive || r.savingsPlans == nil {
		return ""
	}
	rate, err := LookupComputeSavingsPlanRate(ctx, r.savingsPlans, region, instanceType)
	if err != nil {
		log.WithError(err).Debugf("no savings plan note [type=%s, region=%s]", instanceType, region)
		return ""
	}
	return savingsPlanNote(rate, ec2Hourly)
}

func logSoftMiss(err error, source Source, instanceType, region string) {
	entry := log.WithError(err).WithField("tier", source.String())
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		entry = entry.WithField("code", apiErr.ErrorCode())
	}
	entry.Debugf("price tier missed [type=%s, region=%s]", instanceType, region)
}
