// Package domain builds the checkout-time discount payload. Everything here
// is pure and allocation-light: it runs inside the checkout path where a
// loyalty miscalculation must never block a sale, so every bad input maps
// to the empty result instead of an error.
package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/meridian/internal/money"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
)

// CartLine is one line of the cart snapshot supplied by the storefront.
type CartLine struct {
	ID          string   `json:"id"`
	Quantity    int      `json:"quantity"`
	Price       int64    `json:"price"`
	Collections []string `json:"collections,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
	ProductType string   `json:"product_type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type Cart struct {
	Lines []CartLine `json:"lines"`
}

type Customer struct {
	ID   string   `json:"id,omitempty"`
	Tier string   `json:"tier"`
	Tags []string `json:"tags,omitempty"`
}

// DiscountInput is the cart/customer snapshot the sandbox evaluates.
type DiscountInput struct {
	Cart     *Cart     `json:"cart"`
	Customer *Customer `json:"customer"`
}

// The response shape is fixed by the checkout platform contract.

type CartLineTarget struct {
	ID string `json:"id"`
}

type Target struct {
	CartLine CartLineTarget `json:"cartLine"`
}

type Percentage struct {
	Value string `json:"value"`
}

type Value struct {
	Percentage Percentage `json:"percentage"`
}

type Discount struct {
	Targets []Target `json:"targets"`
	Value   Value    `json:"value"`
	Message string   `json:"message"`
}

type DiscountResponse struct {
	Discounts []Discount `json:"discounts"`
}

// Empty is the universal "no applicable promotion" response.
func Empty() DiscountResponse {
	return DiscountResponse{Discounts: []Discount{}}
}

// BuildParams carries the already-resolved inputs of one build: the member's
// tier, the combined discount percent before clamping, and store settings.
type BuildParams struct {
	TierName              string
	Percent               float64
	MaxPercent            float64
	FreeShippingThreshold int64
	ExclusionTags         []string
}

// Build assembles the discount payload for one cart snapshot. Incomplete
// input, a clamped-out percentage or a fully excluded cart all yield the
// empty response.
func Build(input DiscountInput, params BuildParams) DiscountResponse {
	if input.Cart == nil || len(input.Cart.Lines) == 0 {
		return Empty()
	}
	if input.Customer == nil || strings.TrimSpace(input.Customer.Tier) == "" {
		return Empty()
	}

	pct := money.ClampPercentValue(params.Percent, params.MaxPercent)
	if pct == 0 {
		return Empty()
	}

	targets := make([]Target, 0, len(input.Cart.Lines))
	for _, line := range input.Cart.Lines {
		if excluded(line.Tags, params.ExclusionTags) {
			continue
		}
		targets = append(targets, Target{CartLine: CartLineTarget{ID: line.ID}})
	}
	if len(targets) == 0 {
		return Empty()
	}

	return DiscountResponse{Discounts: []Discount{{
		Targets: targets,
		Value:   Value{Percentage: Percentage{Value: formatPercent(pct)}},
		Message: label(params.TierName, pct, params.FreeShippingThreshold),
	}}}
}

func label(tierName string, pct float64, freeShippingThreshold int64) string {
	msg := fmt.Sprintf("%s Member %s%% Off", referencedomain.DisplayTierName(tierName), formatPercent(pct))
	if freeShippingThreshold == 0 {
		msg += " + Free Shipping"
	}
	return msg
}

func formatPercent(pct float64) string {
	return strconv.FormatFloat(pct, 'f', -1, 64)
}

func excluded(tags, exclusionTags []string) bool {
	for _, tag := range tags {
		for _, excludedTag := range exclusionTags {
			if strings.EqualFold(strings.TrimSpace(tag), excludedTag) {
				return true
			}
		}
	}
	return false
}
