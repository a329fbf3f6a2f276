package domain

// Template is a canned promotion configuration staff can start from. The
// window fields are intentionally zero; the caller fills in dates before
// submitting the template as a CreateRequest.
type Template struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Request     CreateRequest `json:"request"`
}

// Templates returns the built-in catalog. The entries mirror the program's
// most-run campaigns so a new store does not configure them from scratch.
func Templates() []Template {
	return []Template{
		{
			Name:        "Weekend Trade-In Boost",
			Description: "Extra 10% trade-in credit on weekends.",
			Request: CreateRequest{
				Name:         "Weekend Trade-In Boost",
				PromoType:    PromoTypeTradeInBonus,
				BonusPercent: 10,
				ActiveDays:   []string{"saturday", "sunday"},
				Channel:      ChannelInStore,
				Stackable:    true,
			},
		},
		{
			Name:        "Double Trade-In Credit",
			Description: "Doubles the promotion bonus on qualifying trade-ins. Exclusive.",
			Request: CreateRequest{
				Name:       "Double Trade-In Credit",
				PromoType:  PromoTypeMultiplier,
				Multiplier: 2,
				Channel:    ChannelInStore,
				Priority:   100,
			},
		},
		{
			Name:        "New Member Welcome Bonus",
			Description: "Flat store credit on a member's first qualifying trade-in.",
			Request: CreateRequest{
				Name:             "New Member Welcome Bonus",
				PromoType:        PromoTypeFlatBonus,
				BonusFlat:        500,
				Channel:          ChannelAll,
				MaxUsesPerMember: 1,
				Stackable:        true,
			},
		},
		{
			Name:        "Happy Hour Cashback",
			Description: "Evening purchase cashback boost, online only.",
			Request: CreateRequest{
				Name:           "Happy Hour Cashback",
				PromoType:      PromoTypePurchaseCashback,
				BonusPercent:   5,
				DailyStartTime: "17:00",
				DailyEndTime:   "21:00",
				Channel:        ChannelOnline,
				Stackable:      true,
			},
		},
		{
			Name:        "Bulk Seller Appreciation",
			Description: "Extra credit for large trade-in lots.",
			Request: CreateRequest{
				Name:         "Bulk Seller Appreciation",
				PromoType:    PromoTypeTradeInBonus,
				BonusPercent: 5,
				MinItems:     10,
				Channel:      ChannelInStore,
				Stackable:    true,
			},
		},
	}
}
