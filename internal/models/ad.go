package models

import "encoding/json"

// AdType selects where an ad may be placed in a feed page.
type AdType string

const (
	AdTypeBanner AdType = "banner"
	AdTypeInline AdType = "inline"
)

// AdStatus marks whether an ad is eligible for placement.
type AdStatus string

const (
	AdStatusActive   AdStatus = "active"
	AdStatusInactive AdStatus = "inactive"
)

// Ad is a sponsored placement supplied by the ad inventory. Content is an
// opaque renderable payload passed through to the client.
type Ad struct {
	ID      string          `json:"id"`
	Type    AdType          `json:"type"`
	Status  AdStatus        `json:"status"`
	Content json.RawMessage `json:"content"`
}

// IsActive returns true if the ad may be placed.
func (a *Ad) IsActive() bool {
	return a.Status == AdStatusActive
}
