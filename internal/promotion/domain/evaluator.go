package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
)

// CartLine is one line of the transaction under evaluation. Price is the
// line total in minor units. Trade-in callers map items onto lines with
// Price set to the line's base payout.
type CartLine struct {
	ID          string   `json:"id"`
	Quantity    int      `json:"quantity"`
	Price       int64    `json:"price"`
	Collections []string `json:"collections,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
	ProductType string   `json:"product_type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Usage carries the caller-read counter values the evaluator checks caps
// against. The evaluator itself never mutates counters.
type Usage struct {
	Total  int64
	Member int64
}

// EvalContext is everything the evaluator is allowed to see. Identical
// contexts (including Now) always evaluate identically.
type EvalContext struct {
	Now           time.Time
	Channel       Channel
	MemberTier    string
	MemberTags    []string
	CartLines     []CartLine
	OrderTotal    int64
	ExclusionTags []string
	Usage         map[snowflake.ID]Usage
}

type AppliedPromotion struct {
	ID         snowflake.ID `json:"id"`
	Name       string       `json:"name"`
	PromoType  PromoType    `json:"promo_type"`
	Stackable  bool         `json:"stackable"`
	Percent    float64      `json:"percent,omitempty"`
	Flat       int64        `json:"flat,omitempty"`
	Multiplier float64      `json:"multiplier,omitempty"`
}

type EvaluationResult struct {
	AppliedPromotions  []AppliedPromotion `json:"applied_promotions"`
	CombinedPercent    float64            `json:"combined_percent"`
	CombinedFlat       int64              `json:"combined_flat"`
	CombinedMultiplier float64            `json:"combined_multiplier"`
	EligibleLineIDs    []string           `json:"eligible_line_ids"`
}

// Evaluate selects and stacks the promotions applicable to one transaction.
// Pure: no I/O, no clock reads, no mutation of its inputs, and it never
// fails — a context missing loyalty data simply yields an empty result.
//
// Candidates are sorted by priority descending then id ascending. If any
// non-stackable candidate survives the filter, only the first applies,
// together with every stackable candidate. Percent and flat values add;
// multipliers combine multiplicatively and the caller applies them after
// the additive bonuses.
func Evaluate(promotions []Promotion, evalCtx EvalContext) EvaluationResult {
	result := EvaluationResult{CombinedMultiplier: 1}

	candidates := make([]Promotion, 0, len(promotions))
	eligibleLines := make(map[snowflake.ID][]CartLine, len(promotions))
	for _, promo := range promotions {
		lines, ok := eligible(promo, evalCtx)
		if !ok {
			continue
		}
		candidates = append(candidates, promo)
		eligibleLines[promo.ID] = lines
	}
	if len(candidates) == 0 {
		return result
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	applied := make([]Promotion, 0, len(candidates))
	exclusiveTaken := false
	for _, promo := range candidates {
		if promo.Stackable {
			applied = append(applied, promo)
			continue
		}
		if !exclusiveTaken {
			applied = append(applied, promo)
			exclusiveTaken = true
		}
	}

	lineIDs := make(map[string]struct{})
	for _, promo := range applied {
		entry := AppliedPromotion{
			ID:        promo.ID,
			Name:      promo.Name,
			PromoType: promo.PromoType,
			Stackable: promo.Stackable,
		}
		switch promo.PromoType {
		case PromoTypeMultiplier:
			entry.Multiplier = promo.Multiplier
			result.CombinedMultiplier *= promo.Multiplier
		default:
			entry.Percent = promo.BonusPercent
			entry.Flat = promo.BonusFlat
			result.CombinedPercent += promo.BonusPercent
			result.CombinedFlat += promo.BonusFlat
		}
		result.AppliedPromotions = append(result.AppliedPromotions, entry)
		for _, line := range eligibleLines[promo.ID] {
			lineIDs[line.ID] = struct{}{}
		}
	}

	result.EligibleLineIDs = make([]string, 0, len(lineIDs))
	for id := range lineIDs {
		result.EligibleLineIDs = append(result.EligibleLineIDs, id)
	}
	sort.Strings(result.EligibleLineIDs)
	return result
}

// eligible reports whether promo is a candidate for the context and, if so,
// which cart lines it reaches.
func eligible(promo Promotion, evalCtx EvalContext) ([]CartLine, bool) {
	if !promo.Active {
		return nil, false
	}
	if !withinWindow(promo, evalCtx.Now) {
		return nil, false
	}
	if promo.Channel != ChannelAll && evalCtx.Channel != "" && promo.Channel != evalCtx.Channel {
		return nil, false
	}
	if len(promo.TierRestriction) > 0 {
		if evalCtx.MemberTier == "" {
			return nil, false
		}
		if !containsFold(promo.TierRestriction, evalCtx.MemberTier) {
			return nil, false
		}
	}
	if usage, ok := evalCtx.Usage[promo.ID]; ok {
		if promo.MaxUses > 0 && usage.Total >= promo.MaxUses {
			return nil, false
		}
		if promo.MaxUsesPerMember > 0 && usage.Member >= promo.MaxUsesPerMember {
			return nil, false
		}
	} else if promo.MaxUses > 0 && promo.CurrentUses >= promo.MaxUses {
		return nil, false
	}

	lines := eligibleCartLines(promo, evalCtx)
	if hasLineFilters(promo) && len(lines) == 0 {
		return nil, false
	}

	// Minimums apply to the filtered eligible-line set, not the whole cart.
	itemCount := 0
	var value int64
	for _, line := range lines {
		itemCount += line.Quantity
		value += line.Price
	}
	if len(evalCtx.CartLines) == 0 {
		value = evalCtx.OrderTotal
	}
	if promo.MinItems > 0 && itemCount < promo.MinItems {
		return nil, false
	}
	if promo.MinValue > 0 && value < promo.MinValue {
		return nil, false
	}
	return lines, true
}

func eligibleCartLines(promo Promotion, evalCtx EvalContext) []CartLine {
	var lines []CartLine
	for _, line := range evalCtx.CartLines {
		if hasAnyFold(line.Tags, evalCtx.ExclusionTags) {
			continue
		}
		if len(promo.Collections) > 0 && !hasAnyFold(line.Collections, promo.Collections) {
			continue
		}
		if promo.Vendor != "" && !strings.EqualFold(promo.Vendor, line.Vendor) {
			continue
		}
		if promo.ProductType != "" && !strings.EqualFold(promo.ProductType, line.ProductType) {
			continue
		}
		if len(promo.ProductTags) > 0 && !hasAnyFold(line.Tags, promo.ProductTags) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func hasLineFilters(promo Promotion) bool {
	return len(promo.Collections) > 0 || promo.Vendor != "" ||
		promo.ProductType != "" || len(promo.ProductTags) > 0
}

func withinWindow(promo Promotion, now time.Time) bool {
	if now.Before(promo.StartsAt) || now.After(promo.EndsAt) {
		return false
	}
	if len(promo.ActiveDays) > 0 {
		day := strings.ToLower(now.Weekday().String())
		if !containsFold(promo.ActiveDays, day) {
			return false
		}
	}
	if promo.DailyStartTime != "" && promo.DailyEndTime != "" {
		start, err := time.Parse("15:04", promo.DailyStartTime)
		if err != nil {
			return false
		}
		end, err := time.Parse("15:04", promo.DailyEndTime)
		if err != nil {
			return false
		}
		minute := now.Hour()*60 + now.Minute()
		startMin := start.Hour()*60 + start.Minute()
		endMin := end.Hour()*60 + end.Minute()
		if startMin <= endMin {
			if minute < startMin || minute > endMin {
				return false
			}
		} else if minute < startMin && minute > endMin {
			// Overnight window, e.g. 22:00 to 02:00.
			return false
		}
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, candidate := range haystack {
		if strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(needle)) {
			return true
		}
	}
	return false
}

func hasAnyFold(values, wanted []string) bool {
	for _, want := range wanted {
		if containsFold(values, want) {
			return true
		}
	}
	return false
}

// TierDisplay formats the member-facing tier name used in discount labels.
func TierDisplay(name string) string {
	return referencedomain.DisplayTierName(name)
}
