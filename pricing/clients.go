package pricing

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/savingsplans"
)

// SavingsPlansAPI wraps the DescribeSavingsPlansOfferingRates call (no SDK paginator interface exists).
type SavingsPlansAPI interface {
	DescribeSavingsPlansOfferingRates(ctx context.Context, params *savingsplans.DescribeSavingsPlansOfferingRatesInput, optFns ...func(*savingsplans.Options)) (*savingsplans.DescribeSavingsPlansOfferingRatesOutput, error)
}

// ClientFactory creates the AWS clients the resolver needs, enabling dependency injection for testing.
type ClientFactory interface {
	NewPricingClient(ctx context.Context) (pricing.GetProductsAPIClient, error)
	NewSavingsPlansClient(ctx context.Context) (SavingsPlansAPI, error)
}

// SDKClientFactory creates real AWS SDK clients. Implements ClientFactory.
type SDKClientFactory struct{}

func (f *SDKClientFactory) NewPricingClient(ctx context.Context) (pricing.GetProductsAPIClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(PricingAPIRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Pricing API: %w", err)
	}
	return pricing.NewFromConfig(cfg), nil
}

func (f *SDKClientFactory) NewSavingsPlansClient(ctx context.Context) (SavingsPlansAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(PricingAPIRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SavingsPlans API: %w", err)
	}
	return savingsplans.NewFromConfig(cfg), nil
}
