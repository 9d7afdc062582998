package order

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/tallyforge/edge/internal/moneyx"
)

// ProductScope is the audience a price rule applies to.
type ProductScope string

const (
	ScopeGlobal   ProductScope = "Global"
	ScopeCategory ProductScope = "Category"
	ScopeProduct  ProductScope = "Product"
	ScopeTag      ProductScope = "Tag"
)

// PriceRule is a tenant-configured discount or surcharge rule. Schedule is
// an optional CEL expression evaluated against a small activation context
// (hour, weekday, zone) to decide whether the rule is currently active —
// e.g. `hour >= 17 && hour < 19` for a happy-hour discount.
type PriceRule struct {
	ID              string
	RuleType        moneyx.RuleKind
	AdjustmentType  moneyx.AdjustmentKind
	AdjustmentValue float64
	ProductScope    ProductScope
	TargetID        int64
	ZoneScope       string
	IsStackable     bool
	IsExclusive     bool
	Schedule        string // CEL expression, empty means "always active"
}

// scheduleEnv is the shared CEL environment for rule-schedule evaluation;
// building it is expensive enough to do once per process.
var scheduleEnv = mustScheduleEnv()

func mustScheduleEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("zone_scope", cel.StringType),
		cel.Variable("is_retail", cel.BoolType),
	)
	if err != nil {
		panic(fmt.Sprintf("order: building schedule CEL environment: %v", err))
	}
	return env
}

// ScheduleContext is the activation context a rule's schedule expression
// is evaluated against.
type ScheduleContext struct {
	Now       time.Time
	ZoneScope string
	IsRetail  bool
}

// IsActive evaluates the rule's Schedule CEL expression against ctx. An
// empty schedule is always active. A malformed expression is treated as
// inactive rather than failing order processing — a misconfigured rule
// should silently not apply, not break checkout.
func (r PriceRule) IsActive(ctx ScheduleContext) bool {
	if r.Schedule == "" {
		return true
	}
	ast, issues := scheduleEnv.Compile(r.Schedule)
	if issues != nil && issues.Err() != nil {
		return false
	}
	prg, err := scheduleEnv.Program(ast)
	if err != nil {
		return false
	}
	out, _, err := prg.Eval(map[string]interface{}{
		"hour":       int64(ctx.Now.Hour()),
		"weekday":    int64(ctx.Now.Weekday()),
		"zone_scope": ctx.ZoneScope,
		"is_retail":  ctx.IsRetail,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// MatchesScope reports whether the rule applies to a product with the
// given id/category/tags.
func (r PriceRule) MatchesScope(productID int64, categoryID *int64, tagIDs []int64) bool {
	switch r.ProductScope {
	case ScopeGlobal:
		return true
	case ScopeProduct:
		return r.TargetID == productID
	case ScopeCategory:
		return categoryID != nil && *categoryID == r.TargetID
	case ScopeTag:
		for _, t := range tagIDs {
			if t == r.TargetID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RuleCache holds the price rules loaded for one order at OpenTable time.
// Rules are intentionally not re-fetched on later commands: fairness
// demands stable rules for the life of the order. MoveOrder is the one
// command that recomputes it, against the destination zone.
type RuleCache struct {
	orderRules map[string][]PriceRule
}

func NewRuleCache() *RuleCache {
	return &RuleCache{orderRules: make(map[string][]PriceRule)}
}

func (c *RuleCache) Set(orderID string, rules []PriceRule) {
	c.orderRules[orderID] = rules
}

func (c *RuleCache) Get(orderID string) []PriceRule {
	return c.orderRules[orderID]
}

func (c *RuleCache) Drop(orderID string) {
	delete(c.orderRules, orderID)
}

// RuleProvider loads the price rules applicable to a zone, for OpenTable
// and MoveOrder to populate the RuleCache.
type RuleProvider interface {
	RulesForZone(tenantID, zoneID string, isRetail bool) ([]PriceRule, error)
}
