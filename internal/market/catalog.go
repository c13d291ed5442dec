package market

import "github.com/evituu/bar-market/internal/model"

// DefaultCatalog is the seed used when the database has no items yet.
func DefaultCatalog() []model.Item {
	return []model.Item{
		{ID: "item-lagr", SKU: "DRK-001", Ticker: "LAGR", Name: "House Lager", Category: "Draft", IsActive: true, BasePriceCents: 1800, PriceFloorCents: 1200, PriceCapCents: 3200},
		{ID: "item-ipa4", SKU: "DRK-002", Ticker: "IPA4", Name: "West Coast IPA", Category: "Draft", IsActive: true, BasePriceCents: 2600, PriceFloorCents: 1800, PriceCapCents: 4200},
		{ID: "item-caip", SKU: "DRK-003", Ticker: "CAIP", Name: "Caipirinha", Category: "Cocktails", IsActive: true, BasePriceCents: 3200, PriceFloorCents: 2200, PriceCapCents: 5000},
		{ID: "item-negr", SKU: "DRK-004", Ticker: "NEGR", Name: "Negroni", Category: "Cocktails", IsActive: true, BasePriceCents: 3800, PriceFloorCents: 2600, PriceCapCents: 5600},
		{ID: "item-gint", SKU: "DRK-005", Ticker: "GINT", Name: "Gin Tonic", Category: "Cocktails", IsActive: true, BasePriceCents: 2900, PriceFloorCents: 2000, PriceCapCents: 4600},
		{ID: "item-wine", SKU: "DRK-006", Ticker: "WINE", Name: "House Red (glass)", Category: "Wine", IsActive: true, BasePriceCents: 2400, PriceFloorCents: 1600, PriceCapCents: 4000},
		{ID: "item-soda", SKU: "DRK-007", Ticker: "SODA", Name: "Craft Soda", Category: "Soft", IsActive: true, BasePriceCents: 1000, PriceFloorCents: 700, PriceCapCents: 1600},
	}
}
