package core

import (
	"math"
	"strings"
	"testing"
)

func TestPricingValidate(t *testing.T) {
	cases := []struct {
		name    string
		pricing Pricing
		wantErr string
	}{
		{"free", FreePricing(), ""},
		{"fixed ok", FixedPricing(0.10), ""},
		{"fixed zero", FixedPricing(0), ""},
		{"fixed negative", FixedPricing(-1), "must be >= 0"},
		{"dynamic ok", DynamicPricing(0.05, 0.25, func(map[string]interface{}) float64 { return 0.1 }), ""},
		{"dynamic inverted", DynamicPricing(2, 1, func(map[string]interface{}) float64 { return 0 }), "exceeds maximum"},
		{"dynamic nil fn", DynamicPricing(0, 1, nil), "requires a compute function"},
		{"unknown mode", Pricing{Mode: "subscription"}, "unknown pricing mode"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pricing.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPricingRequiredUSD(t *testing.T) {
	if usd, err := FreePricing().RequiredUSD(nil); err != nil || usd != 0 {
		t.Fatalf("Expected free = 0, got %v, %v", usd, err)
	}
	if usd, err := FixedPricing(0.10).RequiredUSD(nil); err != nil || usd != 0.10 {
		t.Fatalf("Expected fixed = 0.10, got %v, %v", usd, err)
	}
}

func TestDynamicPricingClamps(t *testing.T) {
	p := DynamicPricing(0.05, 0.25, func(args map[string]interface{}) float64 {
		return args["raw"].(float64)
	})

	cases := []struct {
		raw  float64
		want float64
	}{
		{0.10, 0.10},
		{0.01, 0.05},
		{9.99, 0.25},
	}
	for _, tc := range cases {
		usd, err := p.RequiredUSD(map[string]interface{}{"raw": tc.raw})
		if err != nil {
			t.Fatalf("RequiredUSD(%v): %v", tc.raw, err)
		}
		if usd != tc.want {
			t.Fatalf("Expected %v clamped to %v, got %v", tc.raw, tc.want, usd)
		}
	}
}

func TestDynamicPricingFallsBackOnPanic(t *testing.T) {
	p := DynamicPricing(0.05, 0.25, func(map[string]interface{}) float64 {
		panic("bad args")
	})

	usd, err := p.RequiredUSD(nil)
	if err == nil {
		t.Fatal("Expected fallback error")
	}
	if usd != 0.05 {
		t.Fatalf("Expected fallback to minimum 0.05, got %v", usd)
	}
}

func TestDynamicPricingFallsBackOnNaN(t *testing.T) {
	p := DynamicPricing(0, 0.25, func(map[string]interface{}) float64 {
		return math.NaN()
	})

	usd, err := p.RequiredUSD(nil)
	if err == nil {
		t.Fatal("Expected fallback error")
	}
	// A zero minimum falls back to the one-cent floor.
	if usd != 0.01 {
		t.Fatalf("Expected one-cent floor, got %v", usd)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&mockTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := reg.Register(&mockTool{name: "echo"})
	if err == nil {
		t.Fatal("Expected duplicate name to fail")
	}
	if !strings.Contains(err.Error(), "duplicate tool name") {
		t.Fatalf("Expected deterministic duplicate error, got %v", err)
	}
}

func TestRegistryRejectsBadDescriptors(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&mockTool{name: "BadName"}); err == nil {
		t.Fatal("Expected non-snake_case name to fail")
	}
	if err := reg.Register(&mockTool{name: "priced", pricing: FixedPricing(-2)}); err == nil {
		t.Fatal("Expected invalid pricing to fail")
	}
}

func TestRegistryListsInRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(&mockTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("Expected 3 tools, got %d", len(list))
	}
	got := []string{list[0].Name(), list[1].Name(), list[2].Name()}
	want := []string{"zeta", "alpha", "mid"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}

	if _, ok := reg.Lookup("alpha"); !ok {
		t.Fatal("Expected lookup to find registered tool")
	}
	if _, ok := reg.Lookup("nope"); ok {
		t.Fatal("Expected lookup miss for unknown tool")
	}
}
