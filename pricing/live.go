package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	log "github.com/sirupsen/logrus"
)

const (
	serviceCodeEC2 = "AmazonEC2"
	serviceCodeEKS = "AmazonEKS"

	// autoModeOperation is the Price List "operation" attribute of the
	// per-instance EKS Auto Mode management fee.
	autoModeOperation = "EKSAutoUsage"
)

var (
	errUnknownRegion = errors.New("region has no price list location")
	errNoProduct     = errors.New("no matching product in price list")
)

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Field: awssdk.String(field),
		Type:  pricingtypes.FilterTypeTermMatch,
		Value: awssdk.String(value),
	}
}

// LookupEC2OnDemand returns the On-Demand USD hourly rate of a shared-tenancy
// instance with no pre-installed software.
func LookupEC2OnDemand(ctx context.Context, client pricing.GetProductsAPIClient, region, instanceType, operatingSystem string) (float64, error) {
	location, ok := Location(region)
	if !ok {
		return 0, fmt.Errorf("%w [region=%s]", errUnknownRegion, region)
	}
	if operatingSystem == "" {
		operatingSystem = "Linux"
	}
	return lookupOnDemand(ctx, client, &pricing.GetProductsInput{
		ServiceCode: awssdk.String(serviceCodeEC2),
		MaxResults:  awssdk.Int32(MaxResultsPerPage),
		Filters: []pricingtypes.Filter{
			termMatch("location", location),
			termMatch("instanceType", instanceType),
			termMatch("operatingSystem", operatingSystem),
			termMatch("tenancy", "Shared"),
			termMatch("preInstalledSw", "NA"),
			termMatch("capacitystatus", "Used"),
		},
	})
}

// LookupAutoModeFee returns the published EKS Auto Mode hourly fee for an instance type.
func LookupAutoModeFee(ctx context.Context, client pricing.GetProductsAPIClient, region, instanceType string) (float64, error) {
	location, ok := Location(region)
	if !ok {
		return 0, fmt.Errorf("%w [region=%s]", errUnknownRegion, region)
	}
	return lookupOnDemand(ctx, client, &pricing.GetProductsInput{
		ServiceCode: awssdk.String(serviceCodeEKS),
		MaxResults:  awssdk.Int32(MaxResultsPerPage),
		Filters: []pricingtypes.Filter{
			termMatch("location", location),
			termMatch("instanceType", instanceType),
			termMatch("operation", autoModeOperation),
		},
	})
}

func lookupOnDemand(ctx context.Context, client pricing.GetProductsAPIClient, input *pricing.GetProductsInput) (float64, error) {
	pag := pricing.NewGetProductsPaginator(client, input)
	for pag.HasMorePages() {
		page, err := pag.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("error while fetching products [service=%s]: %w", awssdk.ToString(input.ServiceCode), err)
		}
		for _, item := range page.PriceList {
			value, ok, err := onDemandHourlyUSD(item)
			if err != nil {
				log.WithError(err).Debugf("skipping unreadable price list item [service=%s]", awssdk.ToString(input.ServiceCode))
				continue
			}
			if ok {
				return value, nil
			}
		}
	}
	return 0, errNoProduct
}

// onDemandHourlyUSD extracts the <sku>.JRTCKXETXF.6YS6EN2CT7 USD rate from
// one price list document. Zero prices are treated as absent.
func onDemandHourlyUSD(item string) (float64, bool, error) {
	var doc Pricing
	if err := json.Unmarshal([]byte(item), &doc); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal pricing item: %w", err)
	}

	sku := doc.Product.Sku
	skuOnDemand := fmt.Sprintf("%s.%s", sku, TermOnDemand)
	skuOnDemandPerHour := fmt.Sprintf("%s.%s", skuOnDemand, TermPerHour)

	skuEntry, ok := doc.Terms.OnDemand[skuOnDemand]
	if !ok {
		return 0, false, nil
	}
	dimEntry, ok := skuEntry.PriceDimensions[skuOnDemandPerHour]
	if !ok {
		return 0, false, nil
	}
	usdPrice, ok := dimEntry.PricePerUnit["USD"]
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(usdPrice, 64)
	if err != nil {
		return 0, false, fmt.Errorf("error while parsing price value [sku=%s]: %w", sku, err)
	}
	if value <= 0 {
		return 0, false, nil
	}
	return value, true, nil
}
