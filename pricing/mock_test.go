package pricing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/savingsplans"
)

// mockPricingClient implements pricing.GetProductsAPIClient for testing.
type mockPricingClient struct {
	GetProductsFn func(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

func (m *mockPricingClient) GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	return m.GetProductsFn(ctx, params, optFns...)
}

// mockSavingsPlansClient implements SavingsPlansAPI for testing.
type mockSavingsPlansClient struct {
	DescribeSavingsPlansOfferingRatesFn func(ctx context.Context, params *savingsplans.DescribeSavingsPlansOfferingRatesInput, optFns ...func(*savingsplans.Options)) (*savingsplans.DescribeSavingsPlansOfferingRatesOutput, error)
}

func (m *mockSavingsPlansClient) DescribeSavingsPlansOfferingRates(ctx context.Context, params *savingsplans.DescribeSavingsPlansOfferingRatesInput, optFns ...func(*savingsplans.Options)) (*savingsplans.DescribeSavingsPlansOfferingRatesOutput, error) {
	return m.DescribeSavingsPlansOfferingRatesFn(ctx, params, optFns...)
}

type stubPrompter struct {
	price float64
	ok    bool
	err   error
	calls int
}

func (p *stubPrompter) HourlyPrice(_ context.Context, _, _ string) (float64, bool, error) {
	p.calls++
	return p.price, p.ok, p.err
}

// makePriceListItem builds one Price List API product document.
func makePriceListItem(sku, serviceCode, instanceType, priceUSD string) string {
	doc := map[string]any{
		"serviceCode": serviceCode,
		"product": map[string]any{
			"productFamily": "Compute Instance",
			"sku":           sku,
			"attributes": map[string]string{
				"instanceType":    instanceType,
				"operatingSystem": "Linux",
				"tenancy":         "Shared",
			},
		},
		"terms": map[string]any{
			"OnDemand": map[string]any{
				fmt.Sprintf("%s.%s", sku, TermOnDemand): map[string]any{
					"sku":           sku,
					"offerTermCode": TermOnDemand,
					"priceDimensions": map[string]any{
						fmt.Sprintf("%s.%s.%s", sku, TermOnDemand, TermPerHour): map[string]any{
							"unit":         "Hrs",
							"rateCode":     fmt.Sprintf("%s.%s.%s", sku, TermOnDemand, TermPerHour),
							"pricePerUnit": map[string]string{"USD": priceUSD},
						},
					},
				},
			},
		},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// serviceFilteredClient answers GetProducts per service code.
func serviceFilteredClient(byService map[string][]string, calls *[]string) *mockPricingClient {
	return &mockPricingClient{
		GetProductsFn: func(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
			code := *params.ServiceCode
			if calls != nil {
				*calls = append(*calls, code)
			}
			items, ok := byService[code]
			if !ok {
				return nil, fmt.Errorf("unexpected service %s", code)
			}
			return &pricing.GetProductsOutput{PriceList: items}, nil
		},
	}
}
