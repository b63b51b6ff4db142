package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/socialdesklabs/socialdesk/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var ErrPlanNotFound = errors.New("plan_not_found")

// Plan is one entry of the service catalog. Amounts are integer minor units
// (cents) to keep money arithmetic exact.
type Plan struct {
	Code        string   `json:"code" mapstructure:"code"`
	Name        string   `json:"name" mapstructure:"name"`
	AmountCents int64    `json:"amount_cents" mapstructure:"amount_cents"`
	Currency    string   `json:"currency" mapstructure:"currency"`
	Interval    string   `json:"interval" mapstructure:"interval"`
	Features    []string `json:"features" mapstructure:"features"`
}

// Catalog resolves plan codes. It is assembled once at startup and immutable
// afterwards; the built-in tiers can be overridden or extended through the
// plan_catalog_file setting, never at runtime.
type Catalog struct {
	plans map[string]Plan
}

var Module = fx.Module("plan",
	fx.Provide(NewCatalogFromConfig),
)

// NewCatalogFromConfig starts from the built-in tiers and merges the entries
// of the configured catalog file, if any. Entries match by code; a known code
// overrides field by field, an unknown code adds a new plan.
func NewCatalogFromConfig(cfg config.Config) (*Catalog, error) {
	catalog := NewCatalog()
	if cfg.PlanCatalogFile == "" {
		return catalog, nil
	}

	v := viper.New()
	v.SetConfigFile(cfg.PlanCatalogFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read plan catalog %s: %w", cfg.PlanCatalogFile, err)
	}
	var overrides []Plan
	if err := v.UnmarshalKey("plans", &overrides); err != nil {
		return nil, fmt.Errorf("parse plan catalog %s: %w", cfg.PlanCatalogFile, err)
	}

	for _, o := range overrides {
		if o.Code == "" {
			return nil, fmt.Errorf("plan catalog %s: entry without code", cfg.PlanCatalogFile)
		}
		merged := catalog.plans[o.Code]
		merged.Code = o.Code
		if o.Name != "" {
			merged.Name = o.Name
		}
		if o.AmountCents > 0 {
			merged.AmountCents = o.AmountCents
		}
		if o.Currency != "" {
			merged.Currency = o.Currency
		}
		if o.Interval != "" {
			merged.Interval = o.Interval
		}
		if len(o.Features) > 0 {
			merged.Features = o.Features
		}
		if merged.Name == "" {
			merged.Name = merged.Code
		}
		if merged.Currency == "" {
			merged.Currency = "USD"
		}
		if merged.Interval == "" {
			merged.Interval = "month"
		}
		catalog.plans[o.Code] = merged
	}
	return catalog, nil
}

func NewCatalog() *Catalog {
	return &Catalog{plans: map[string]Plan{
		"starter": {
			Code:        "starter",
			Name:        "Starter",
			AmountCents: 10000,
			Currency:    "USD",
			Interval:    "month",
			Features: []string{
				"12 posts per month",
				"12 interactive stories",
				"Hashtag research",
				"Monthly reports",
				"Ideal for small businesses",
			},
		},
		"pro": {
			Code:        "pro",
			Name:        "Pro",
			AmountCents: 25000,
			Currency:    "USD",
			Interval:    "month",
			Features: []string{
				"20 posts + reels",
				"Monthly promotional areas",
				"Boost strategies",
				"Bio optimization",
				"Report + recommendations",
				"Story engagement boost",
				"Aggressive boosting",
			},
		},
		"premium": {
			Code:        "premium",
			Name:        "Premium",
			AmountCents: 40000,
			Currency:    "USD",
			Interval:    "month",
			Features: []string{
				"Instagram + Facebook + TikTok",
				"30 posts (design, reels, carousel)",
				"Advertising on a budget",
				"Influencer outreach assistance",
				"Full and professional management",
			},
		},
	}}
}

func (c *Catalog) Get(code string) (Plan, error) {
	p, ok := c.plans[code]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

func (c *Catalog) Has(code string) bool {
	_, ok := c.plans[code]
	return ok
}

// List returns every plan ordered by monthly price, cheapest first.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AmountCents < out[j].AmountCents })
	return out
}
