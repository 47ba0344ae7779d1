package models

import (
	"encoding/json"
	"time"
)

// RawListing is one vehicle record as returned by the auction API.
// The upstream shape is inconsistent across source domains: newer sources
// nest manufacturer/model/color as objects, older ones send flat strings,
// and some records carry no lots at all. Every field here is optional at
// the wire level; the transformer decides what is usable.
type RawListing struct {
	ID           json.Number `json:"id"`
	VIN          string      `json:"vin"`
	Year         json.Number `json:"year"`
	Title        string      `json:"title"`
	Manufacturer *NamedRef   `json:"manufacturer"`
	Model        *NamedRef   `json:"model"`
	Color        *NamedRef   `json:"color"`
	Fuel         *NamedRef   `json:"fuel"`
	Transmission *NamedRef   `json:"transmission"`

	// Flat fallbacks used by older source domains.
	Make      string `json:"make"`
	ModelName string `json:"model_name"`
	ColorName string `json:"color_name"`
	FuelType  string `json:"fuel_type"`

	Lots []Lot `json:"lots"`

	// Flat lot fallbacks for sources that inline the single lot.
	BuyNow   json.Number `json:"buy_now"`
	Odometer json.Number `json:"odometer"`
	Domain   string      `json:"domain"`
}

// NamedRef is a nested reference object ({"id": 9, "name": "Toyota"}).
type NamedRef struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// Lot is one auction listing attached to a vehicle. A vehicle may carry
// several historical lots; the pipeline uses the primary (first) one.
type Lot struct {
	LotNumber  json.Number `json:"lot"`
	Domain     *NamedRef   `json:"domain"`
	Status     *NamedRef   `json:"status"`
	SaleStatus string      `json:"sale_status"`
	BuyNow     json.Number `json:"buy_now"`
	Bid        json.Number `json:"bid"`
	FinalPrice json.Number `json:"final_price"`
	Odometer   *Odometer   `json:"odometer"`
	Images     *LotImages  `json:"images"`
	Condition  *NamedRef   `json:"condition"`
	Damage     *LotDamage  `json:"damage"`
}

type Odometer struct {
	Km json.Number `json:"km"`
	Mi json.Number `json:"mi"`
}

type LotImages struct {
	Normal []string `json:"normal"`
	Big    []string `json:"big"`
}

type LotDamage struct {
	Main      *NamedRef `json:"main_damage"`
	Secondary *NamedRef `json:"second_damage"`
}

// CachedCarRecord is the normalized row persisted to the cache store.
// ID is the stable external identifier and the upsert conflict key, so
// replaying a sync is idempotent.
type CachedCarRecord struct {
	ID           string          `json:"id" db:"id"`
	Make         string          `json:"make" db:"make"`
	Model        string          `json:"model" db:"model"`
	Year         int             `json:"year" db:"year"`
	Price        int             `json:"price" db:"price"`
	PriceCents   int64           `json:"price_cents" db:"price_cents"`
	Mileage      string          `json:"mileage" db:"mileage"`
	VIN          string          `json:"vin" db:"vin"`
	Fuel         string          `json:"fuel" db:"fuel"`
	Transmission string          `json:"transmission" db:"transmission"`
	Color        string          `json:"color" db:"color"`
	Condition    string          `json:"condition" db:"condition"`
	LotNumber    string          `json:"lot_number" db:"lot_number"`
	Images       []string        `json:"images" db:"images"`
	SourceSite   string          `json:"source_site" db:"source_site"`
	SaleStatus   string          `json:"sale_status" db:"sale_status"`
	ContentHash  string          `json:"content_hash" db:"content_hash"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty" db:"raw_payload"`
	LastAPISync  time.Time       `json:"last_api_sync" db:"last_api_sync"`
	IsActive     bool            `json:"is_active" db:"is_active"`
}

// Sale status
const (
	SaleStatusActive  = "active"
	SaleStatusPending = "pending"
	SaleStatusSold    = "sold"
)

// CarFilter selects rows from the catalog read interface. Zero values mean
// "no constraint".
type CarFilter struct {
	Make     string
	Model    string
	YearMin  int
	YearMax  int
	PriceMin int
	PriceMax int
	Fuel     string
	SortBy   string // price_asc, price_desc, year_desc, newest
	Limit    int
	Offset   int
}

// FacetCount is one value/count pair for a catalog facet.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
