package feed

import (
	"context"
	"slices"
	"strings"

	"promptdeck/internal/models"
)

// inlineEvery is the number of records between two inline ads.
const inlineEvery = 5

// AdSource supplies the active ad inventory.
type AdSource interface {
	ActiveAds(ctx context.Context) ([]models.Ad, error)
}

// Inventory is a fixed in-process AdSource.
type Inventory struct {
	ads []models.Ad
}

// NewInventory returns an AdSource serving ads.
func NewInventory(ads ...models.Ad) *Inventory {
	return &Inventory{ads: slices.Clone(ads)}
}

// ActiveAds implements AdSource.
func (inv *Inventory) ActiveAds(context.Context) ([]models.Ad, error) {
	out := make([]models.Ad, 0, len(inv.ads))
	for _, ad := range inv.ads {
		if ad.IsActive() {
			out = append(out, ad)
		}
	}
	return out, nil
}

// adPools splits the active ads by type, each pool ordered by id so the
// cycle is stable across calls.
func adPools(ads []models.Ad) (banners, inline []models.Ad) {
	for _, ad := range ads {
		if !ad.IsActive() {
			continue
		}
		switch ad.Type {
		case models.AdTypeBanner:
			banners = append(banners, ad)
		case models.AdTypeInline:
			inline = append(inline, ad)
		}
	}
	byID := func(a, b models.Ad) int { return strings.Compare(a.ID, b.ID) }
	slices.SortFunc(banners, byID)
	slices.SortFunc(inline, byID)
	return banners, inline
}

// inlineAfter returns the inline ad that follows the record at global
// index g, if any. The choice depends only on g and the pool size, so a
// record is followed by the same ad whatever the page size.
func inlineAfter(g int, pool []models.Ad) (models.Ad, bool) {
	if len(pool) == 0 || (g+1)%inlineEvery != 0 {
		return models.Ad{}, false
	}
	n := (g+1)/inlineEvery - 1
	return pool[n%len(pool)], true
}

// bannerFor picks the banner shown above the page starting at start.
func bannerFor(start, pageSize int, pool []models.Ad) (models.Ad, bool) {
	if len(pool) == 0 {
		return models.Ad{}, false
	}
	return pool[(start/pageSize)%len(pool)], true
}
