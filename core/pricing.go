package core

import (
	"fmt"
	"math"
)

// PricingMode selects how a tool is charged.
type PricingMode string

const (
	PricingFree    PricingMode = "free"
	PricingFixed   PricingMode = "fixed"
	PricingDynamic PricingMode = "dynamic"
)

// fallbackFloorUSD is charged when a dynamic compute function misbehaves
// and the tool declares no usable minimum.
const fallbackFloorUSD = 0.01

// ComputeFn derives a dynamic price in USD from the validated arguments.
type ComputeFn func(args map[string]interface{}) float64

// Pricing describes what a tool charges per invocation.
type Pricing struct {
	Mode     PricingMode
	PriceUSD float64
	MinUSD   float64
	MaxUSD   float64
	Compute  ComputeFn
}

// FreePricing returns pricing that always bypasses the payment gate.
func FreePricing() Pricing {
	return Pricing{Mode: PricingFree}
}

// FixedPricing charges the same USD amount for every invocation.
func FixedPricing(usd float64) Pricing {
	return Pricing{Mode: PricingFixed, PriceUSD: usd}
}

// DynamicPricing charges compute(args) clamped into [min, max].
func DynamicPricing(minUSD, maxUSD float64, compute ComputeFn) Pricing {
	return Pricing{Mode: PricingDynamic, MinUSD: minUSD, MaxUSD: maxUSD, Compute: compute}
}

// Validate reports a descriptor error for impossible price configurations.
func (p Pricing) Validate() error {
	switch p.Mode {
	case PricingFree:
		return nil
	case PricingFixed:
		if p.PriceUSD < 0 {
			return fmt.Errorf("fixed price must be >= 0, got %v", p.PriceUSD)
		}
		return nil
	case PricingDynamic:
		if p.MinUSD < 0 {
			return fmt.Errorf("dynamic minimum must be >= 0, got %v", p.MinUSD)
		}
		if p.MinUSD > p.MaxUSD {
			return fmt.Errorf("dynamic minimum %v exceeds maximum %v", p.MinUSD, p.MaxUSD)
		}
		if p.Compute == nil {
			return fmt.Errorf("dynamic pricing requires a compute function")
		}
		return nil
	default:
		return fmt.Errorf("unknown pricing mode %q", p.Mode)
	}
}

// RequiredUSD resolves the price to charge for one invocation. For dynamic
// pricing a panicking or nonsensical compute function does not fail the
// call: the returned error describes the fallback and the price falls back
// to the declared minimum (or a one-cent floor when the minimum is zero).
func (p Pricing) RequiredUSD(args map[string]interface{}) (usd float64, err error) {
	switch p.Mode {
	case PricingFree:
		return 0, nil
	case PricingFixed:
		return p.PriceUSD, nil
	case PricingDynamic:
		usd, err = p.computeDynamic(args)
		return usd, err
	default:
		return 0, fmt.Errorf("unknown pricing mode %q", p.Mode)
	}
}

func (p Pricing) computeDynamic(args map[string]interface{}) (usd float64, err error) {
	fallback := p.MinUSD
	if fallback <= 0 {
		fallback = fallbackFloorUSD
	}

	defer func() {
		if r := recover(); r != nil {
			usd = fallback
			err = fmt.Errorf("dynamic price compute panicked: %v", r)
		}
	}()

	raw := p.Compute(args)
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
		return fallback, fmt.Errorf("dynamic price compute returned %v", raw)
	}
	return clamp(raw, p.MinUSD, p.MaxUSD), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
