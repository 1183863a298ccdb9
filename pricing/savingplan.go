package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/savingsplans"
	savingsplansTypes "github.com/aws/aws-sdk-go-v2/service/savingsplans/types"
	log "github.com/sirupsen/logrus"
)

var errNoSavingsPlanRate = errors.New("no savings plan rate found")

type savingPlanProperties struct {
	Region             string
	InstanceType       string
	InstanceFamily     string
	ProductDescription string
	Tenancy            string
}

// LookupComputeSavingsPlanRate returns the lowest 1 year, No Upfront Compute
// Savings Plan hourly rate for a Linux shared-tenancy instance.
func LookupComputeSavingsPlanRate(ctx context.Context, client SavingsPlansAPI, region, instanceType string) (float64, error) {
	params := &savingsplans.DescribeSavingsPlansOfferingRatesInput{
		MaxResults:                *aws.Int32(MaxResultsPerPage),
		SavingsPlanTypes:          []savingsplansTypes.SavingsPlanType{savingsplansTypes.SavingsPlanTypeCompute},
		SavingsPlanPaymentOptions: []savingsplansTypes.SavingsPlanPaymentOption{savingsplansTypes.SavingsPlanPaymentOptionNoUpfront},
		ServiceCodes:              []savingsplansTypes.SavingsPlanRateServiceCode{serviceCodeEC2},
		Filters: []savingsplansTypes.SavingsPlanOfferingRateFilterElement{
			{
				Name:   savingsplansTypes.SavingsPlanRateFilterAttributeRegion,
				Values: []string{region},
			},
			{
				Name:   savingsplansTypes.SavingsPlanRateFilterAttributeInstanceType,
				Values: []string{instanceType},
			},
			{
				Name:   savingsplansTypes.SavingsPlanRateFilterAttributeTenancy,
				Values: []string{"shared"},
			},
			{
				Name:   savingsplansTypes.SavingsPlanRateFilterAttributeProductDescription,
				Values: []string{"Linux/UNIX"},
			},
		},
	}

	best := 0.0
	for {
		resp, err := client.DescribeSavingsPlansOfferingRates(ctx, params)
		if err != nil {
			return 0, fmt.Errorf("error while fetching saving plans [region=%s, type=%s]: %w", region, instanceType, err)
		}

		for _, plan := range resp.SearchResults {
			props := convertPropertiesToStruct(plan.Properties)
			if props.InstanceType != "" && props.InstanceType != instanceType {
				continue
			}
			if plan.SavingsPlanOffering == nil || plan.Rate == nil {
				continue
			}
			years, err := SecondsToYears(plan.SavingsPlanOffering.DurationSeconds)
			if err != nil || years != 1 {
				continue
			}
			value, err := strconv.ParseFloat(*plan.Rate, 64)
			if err != nil {
				log.WithError(err).Debugf("error while parsing saving plan rate [region=%s, type=%s]", region, instanceType)
				continue
			}
			if value > 0 && (best == 0 || value < best) {
				best = value
			}
		}

		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		params.NextToken = resp.NextToken
	}

	if best == 0 {
		return 0, errNoSavingsPlanRate
	}
	return best, nil
}

// savingsPlanNote describes how far a savings plan rate sits below On-Demand.
func savingsPlanNote(rate, onDemand float64) string {
	if onDemand <= 0 {
		return fmt.Sprintf("Compute Savings Plan (1yr, No Upfront) rate $%.4f/hr", rate)
	}
	pct := (1 - rate/onDemand) * 100
	return fmt.Sprintf("Compute Savings Plan (1yr, No Upfront) rate $%.4f/hr, %.0f%% below On-Demand", rate, pct)
}

func convertPropertiesToStruct(properties []savingsplansTypes.SavingsPlanOfferingRateProperty) savingPlanProperties {
	result := savingPlanProperties{}

	for _, property := range properties {
		if property.Name != nil && property.Value != nil {
			switch *property.Name {
			case string(savingsplansTypes.SavingsPlanRatePropertyKeyRegion):
				result.Region = *property.Value
			case string(savingsplansTypes.SavingsPlanRatePropertyKeyInstanceType):
				result.InstanceType = *property.Value
			case string(savingsplansTypes.SavingsPlanRatePropertyKeyInstanceFamily):
				result.InstanceFamily = *property.Value
			case string(savingsplansTypes.SavingsPlanRatePropertyKeyProductDescription):
				result.ProductDescription = *property.Value
			case string(savingsplansTypes.SavingsPlanRatePropertyKeyTenancy):
				result.Tenancy = *property.Value
			}
		}
	}

	return result
}

// SecondsToYears converts a duration in seconds to years. Returns error for unexpected values.
func SecondsToYears(seconds int64) (int, error) {
	const secondsPerYear = 31536000

	years := seconds / secondsPerYear

	if years != 1 && years != 3 {
		return 0, fmt.Errorf("unexpected savings plan duration: %d seconds (%d years), expected 1 or 3 years", seconds, years)
	}

	return int(years), nil
}
