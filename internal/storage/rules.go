package storage

import (
	"encoding/json"

	"github.com/tallyforge/edge/internal/order"
)

const catalogKindPriceRule = "price_rule"

// RuleProvider adapts the catalog-entity cache to order.RuleProvider: price
// rules arrive as CatalogOp pushes from the cloud (internal/edgesync) and
// land in the same embedded store as everything else, so OpenTable and
// MoveOrder read them straight out of it rather than a separate catalog
// service.
type RuleProvider struct {
	store *Store
}

// NewRuleProvider wraps store as an order.RuleProvider.
func NewRuleProvider(store *Store) *RuleProvider {
	return &RuleProvider{store: store}
}

// RulesForZone returns every cached price rule whose ZoneScope matches
// zoneID or is empty (tenant-wide). tenantID and isRetail are not used for
// filtering; the filter here only narrows by zone scope, leaving schedule
// evaluation to PriceRule.IsActive at apply time.
func (p *RuleProvider) RulesForZone(tenantID, zoneID string, isRetail bool) ([]order.PriceRule, error) {
	raw, err := p.store.ListCatalogEntities(catalogKindPriceRule)
	if err != nil {
		return nil, err
	}

	rules := make([]order.PriceRule, 0, len(raw))
	for id, data := range raw {
		var rule order.PriceRule
		if err := json.Unmarshal(data, &rule); err != nil {
			continue
		}
		if rule.ID == "" {
			rule.ID = id
		}
		if rule.ZoneScope != "" && rule.ZoneScope != zoneID {
			continue
		}
		rules = append(rules, rule)
	}
	_ = tenantID // rules are stored per-tenant store already scoped by deployment
	return rules, nil
}
