// Package preferences defines the per-user preference record, its defaults
// and the merge rule applied to partial updates.
package preferences

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxPreInstructions = 2000
	MinInvestmentStyle = 0
	MaxInvestmentStyle = 100
)

var (
	ThemeOptions          = []string{"light", "dark", "system"}
	CostBasisOptions      = []string{"fifo", "lifo", "bep"}
	FeeRecognitionOptions = []string{"cash", "accrual"}
	FxPnlMethodOptions    = []string{"complex", "simple_product", "simple_account"}
)

// Assistant tunes how the assistant answers.
type Assistant struct {
	PreInstructions string `json:"preInstructions"`
	InvestmentStyle int    `json:"investmentStyle"`
}

// Preferences is the complete record; every field has a value.
type Preferences struct {
	Theme                      string    `json:"theme"`
	PortfolioCurrency          string    `json:"portfolio_currency"`
	PortfolioAggCostBasis      string    `json:"portfolio_agg_cost_basis"`
	PortfolioAggFeeRecognition string    `json:"portfolio_agg_fee_recognition"`
	PortfolioFxPnlMethod       string    `json:"portfolio_fx_pnl_method"`
	Assistant                  Assistant `json:"assistant"`
}

// AssistantOverrides is a partial Assistant; nil fields keep the default.
type AssistantOverrides struct {
	PreInstructions *string `json:"preInstructions,omitempty"`
	InvestmentStyle *int    `json:"investmentStyle,omitempty"`
}

// Overrides is a partial Preferences as sent by clients and as stored.
type Overrides struct {
	Theme                      *string             `json:"theme,omitempty"`
	PortfolioCurrency          *string             `json:"portfolio_currency,omitempty"`
	PortfolioAggCostBasis      *string             `json:"portfolio_agg_cost_basis,omitempty"`
	PortfolioAggFeeRecognition *string             `json:"portfolio_agg_fee_recognition,omitempty"`
	PortfolioFxPnlMethod       *string             `json:"portfolio_fx_pnl_method,omitempty"`
	Assistant                  *AssistantOverrides `json:"assistant,omitempty"`
}

// Defaults returns a fresh copy of the default record.
func Defaults() Preferences {
	return Preferences{
		Theme:                      "system",
		PortfolioCurrency:          "USD",
		PortfolioAggCostBasis:      "bep",
		PortfolioAggFeeRecognition: "cash",
		PortfolioFxPnlMethod:       "complex",
		Assistant: Assistant{
			PreInstructions: "",
			InvestmentStyle: 50,
		},
	}
}

// Merge lays o over the defaults. Top-level fields are replaced when set and
// the nested assistant object is merged field by field, so a partial
// override never drops unrelated values. Merge does not validate.
func Merge(o *Overrides) Preferences {
	p := Defaults()
	overlay(&p, o)
	return p
}

// Apply merges o on top of an existing override set and returns the result.
// Stored overrides are updated this way so earlier choices survive a
// partial update.
func Apply(base, o *Overrides) *Overrides {
	p := Merge(base)
	overlay(&p, o)
	return p.Overrides()
}

func overlay(p *Preferences, o *Overrides) {
	if o == nil {
		return
	}
	setString(&p.Theme, o.Theme)
	setString(&p.PortfolioCurrency, o.PortfolioCurrency)
	setString(&p.PortfolioAggCostBasis, o.PortfolioAggCostBasis)
	setString(&p.PortfolioAggFeeRecognition, o.PortfolioAggFeeRecognition)
	setString(&p.PortfolioFxPnlMethod, o.PortfolioFxPnlMethod)
	if a := o.Assistant; a != nil {
		setString(&p.Assistant.PreInstructions, a.PreInstructions)
		if a.InvestmentStyle != nil {
			p.Assistant.InvestmentStyle = *a.InvestmentStyle
		}
	}
}

// Overrides expresses p as a fully populated override set, so that
// Merge(p.Overrides()) == p.
func (p Preferences) Overrides() *Overrides {
	theme, currency, cost, fee, fx := p.Theme, p.PortfolioCurrency, p.PortfolioAggCostBasis, p.PortfolioAggFeeRecognition, p.PortfolioFxPnlMethod
	pre, style := p.Assistant.PreInstructions, p.Assistant.InvestmentStyle
	return &Overrides{
		Theme:                      &theme,
		PortfolioCurrency:          &currency,
		PortfolioAggCostBasis:      &cost,
		PortfolioAggFeeRecognition: &fee,
		PortfolioFxPnlMethod:       &fx,
		Assistant: &AssistantOverrides{
			PreInstructions: &pre,
			InvestmentStyle: &style,
		},
	}
}

// Validate checks every set field of o against the accepted option sets.
func Validate(o *Overrides) error {
	if o == nil {
		return nil
	}
	if err := oneOf("theme", o.Theme, ThemeOptions); err != nil {
		return err
	}
	if o.PortfolioCurrency != nil {
		n := utf8.RuneCountInString(*o.PortfolioCurrency)
		if n < 3 || n > 4 {
			return fmt.Errorf("portfolio_currency must be 3 or 4 characters")
		}
	}
	if err := oneOf("portfolio_agg_cost_basis", o.PortfolioAggCostBasis, CostBasisOptions); err != nil {
		return err
	}
	if err := oneOf("portfolio_agg_fee_recognition", o.PortfolioAggFeeRecognition, FeeRecognitionOptions); err != nil {
		return err
	}
	if err := oneOf("portfolio_fx_pnl_method", o.PortfolioFxPnlMethod, FxPnlMethodOptions); err != nil {
		return err
	}
	if a := o.Assistant; a != nil {
		if a.PreInstructions != nil && utf8.RuneCountInString(*a.PreInstructions) > MaxPreInstructions {
			return fmt.Errorf("assistant.preInstructions exceeds %d characters", MaxPreInstructions)
		}
		if a.InvestmentStyle != nil && (*a.InvestmentStyle < MinInvestmentStyle || *a.InvestmentStyle > MaxInvestmentStyle) {
			return fmt.Errorf("assistant.investmentStyle must be between %d and %d", MinInvestmentStyle, MaxInvestmentStyle)
		}
	}
	return nil
}

// Parse decodes stored overrides. Empty input yields nil.
func Parse(raw []byte) (*Overrides, error) {
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var o Overrides
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return &o, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func oneOf(field string, v *string, options []string) error {
	if v == nil {
		return nil
	}
	for _, opt := range options {
		if *v == opt {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s", field, strings.Join(options, ", "))
}
