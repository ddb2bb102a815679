package preferences

import (
	"strings"
	"testing"
)

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func TestMergeNilReturnsDefaults(t *testing.T) {
	if got := Merge(nil); got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	p := Merge(nil)
	p.Theme = "dark"
	if Defaults().Theme != "system" {
		t.Fatalf("defaults must not be shared")
	}
}

func TestMergeThemeOnlyKeepsOtherFields(t *testing.T) {
	got := Merge(&Overrides{Theme: strPtr("dark")})
	want := Defaults()
	want.Theme = "dark"
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if got.Assistant.InvestmentStyle != 50 {
		t.Fatalf("assistant defaults lost: %+v", got.Assistant)
	}
}

func TestMergeNestedAssistantFieldByField(t *testing.T) {
	got := Merge(&Overrides{Assistant: &AssistantOverrides{PreInstructions: strPtr("be brief")}})
	if got.Assistant.PreInstructions != "be brief" {
		t.Fatalf("preInstructions not applied: %+v", got.Assistant)
	}
	if got.Assistant.InvestmentStyle != 50 {
		t.Fatalf("investmentStyle default lost: %+v", got.Assistant)
	}
	zero := Merge(&Overrides{Assistant: &AssistantOverrides{InvestmentStyle: intPtr(0)}})
	if zero.Assistant.InvestmentStyle != 0 {
		t.Fatalf("explicit zero must override default, got %d", zero.Assistant.InvestmentStyle)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	cases := []*Overrides{
		nil,
		{},
		{Theme: strPtr("light")},
		{PortfolioCurrency: strPtr("EUR"), Assistant: &AssistantOverrides{InvestmentStyle: intPtr(90)}},
	}
	for i, o := range cases {
		once := Merge(o)
		twice := Merge(once.Overrides())
		if once != twice {
			t.Fatalf("case %d: merge not idempotent: %+v vs %+v", i, once, twice)
		}
		withEmpty := Merge(Apply(once.Overrides(), &Overrides{}))
		if once != withEmpty {
			t.Fatalf("case %d: empty override changed result: %+v vs %+v", i, once, withEmpty)
		}
	}
}

func TestMergeDoesNotValidate(t *testing.T) {
	got := Merge(&Overrides{Theme: strPtr("neon")})
	if got.Theme != "neon" {
		t.Fatalf("merge must keep caller value as-is, got %q", got.Theme)
	}
}

func TestApplyKeepsEarlierChoices(t *testing.T) {
	stored := Apply(nil, &Overrides{Theme: strPtr("dark")})
	stored = Apply(stored, &Overrides{PortfolioCurrency: strPtr("GBP")})
	got := Merge(stored)
	if got.Theme != "dark" || got.PortfolioCurrency != "GBP" {
		t.Fatalf("expected both updates kept, got %+v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := &Overrides{
		Theme:                      strPtr("dark"),
		PortfolioCurrency:          strPtr("USD"),
		PortfolioAggCostBasis:      strPtr("fifo"),
		PortfolioAggFeeRecognition: strPtr("accrual"),
		PortfolioFxPnlMethod:       strPtr("simple_account"),
		Assistant:                  &AssistantOverrides{PreInstructions: strPtr("hi"), InvestmentStyle: intPtr(100)},
	}
	if err := Validate(valid); err != nil {
		t.Fatalf("expected valid overrides, got %v", err)
	}
	if err := Validate(nil); err != nil {
		t.Fatalf("nil overrides are valid, got %v", err)
	}

	invalid := []*Overrides{
		{Theme: strPtr("neon")},
		{PortfolioCurrency: strPtr("US")},
		{PortfolioAggCostBasis: strPtr("avg")},
		{PortfolioAggFeeRecognition: strPtr("deferred")},
		{PortfolioFxPnlMethod: strPtr("none")},
		{Assistant: &AssistantOverrides{InvestmentStyle: intPtr(101)}},
		{Assistant: &AssistantOverrides{PreInstructions: strPtr(strings.Repeat("x", MaxPreInstructions+1))}},
	}
	for i, o := range invalid {
		if err := Validate(o); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestValidateCurrencyCountsCharacters(t *testing.T) {
	for _, code := range []string{"USD", "USDT", "€€€", "₿TC"} {
		if err := Validate(&Overrides{PortfolioCurrency: strPtr(code)}); err != nil {
			t.Fatalf("%q should be accepted, got %v", code, err)
		}
	}
	for _, code := range []string{"USD  ", "€€", "€€€€€", ""} {
		if err := Validate(&Overrides{PortfolioCurrency: strPtr(code)}); err == nil {
			t.Fatalf("%q should be rejected", code)
		}
	}
}

func TestParse(t *testing.T) {
	o, err := Parse(nil)
	if err != nil || o != nil {
		t.Fatalf("expected nil for empty input, got %+v, %v", o, err)
	}
	o, err = Parse([]byte(`{"theme":"dark","assistant":{"investmentStyle":10}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := Merge(o)
	if got.Theme != "dark" || got.Assistant.InvestmentStyle != 10 || got.PortfolioCurrency != "USD" {
		t.Fatalf("unexpected merged preferences %+v", got)
	}
	if _, err := Parse([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
