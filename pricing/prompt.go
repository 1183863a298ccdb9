package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// Prompter is the last pricing tier: an operator supplies the hourly rate.
// ok is false when the operator declines to provide one.
type Prompter interface {
	HourlyPrice(ctx context.Context, instanceType, region string) (price float64, ok bool, err error)
}

// StaticPrompter answers every prompt with a preconfigured rate, e.g. from --manual-price.
type StaticPrompter struct {
	Price float64
}

func (p StaticPrompter) HourlyPrice(_ context.Context, _, _ string) (float64, bool, error) {
	if p.Price <= 0 {
		return 0, false, nil
	}
	return p.Price, true, nil
}

// TerminalPrompter asks on the terminal.
type TerminalPrompter struct {
	// Accessible switches huh to plain line-based prompts, for non-TTY sessions.
	Accessible bool
}

func (p TerminalPrompter) HourlyPrice(ctx context.Context, instanceType, region string) (float64, bool, error) {
	var raw string
	input := huh.NewInput().
		Title(fmt.Sprintf("Hourly USD price for %s", instanceType)).
		Description(fmt.Sprintf("No price was found for %s in %s.", instanceType, region)).
		Placeholder("0.096").
		Value(&raw).
		Validate(func(s string) error {
			_, err := ParseHourlyPrice(s)
			return err
		})

	form := huh.NewForm(huh.NewGroup(input)).WithAccessible(p.Accessible)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read manual price for %s: %w", instanceType, err)
	}

	price, err := ParseHourlyPrice(raw)
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}

// ParseHourlyPrice parses a positive USD/hour rate, tolerating a leading "$".
func ParseHourlyPrice(s string) (float64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q is not a number", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("price must be greater than zero, got %v", v)
	}
	return v, nil
}
