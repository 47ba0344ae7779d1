package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"carsync/models"
)

const (
	unknownValue    = "Unknown"
	defaultBaseYear = 2000
)

// Transformer normalizes raw API listings into cache records. It is a pure
// mapping: two calls on identical input produce identical output, including
// the content hash.
type Transformer struct {
	PriceMarkup   int
	DefaultSource string
}

func NewTransformer(priceMarkup int, defaultSource string) *Transformer {
	return &Transformer{
		PriceMarkup:   priceMarkup,
		DefaultSource: defaultSource,
	}
}

// Transform maps one raw listing to a cache record. Returns nil when the
// record lacks a resolvable id, make or model; such rows are counted and
// dropped upstream, never stored with placeholder identity.
//
// Field extraction is layered: nested ref name first, flat string second,
// literal default last. Upstream source domains disagree on shape.
func (t *Transformer) Transform(raw *models.RawListing, syncTime time.Time) *models.CachedCarRecord {
	if raw == nil {
		return nil
	}

	id := raw.ID.String()
	if id == "" || id == "0" {
		return nil
	}

	makeName := refName(raw.Manufacturer, raw.Make)
	modelName := refName(raw.Model, raw.ModelName)
	if makeName == "" || modelName == "" {
		return nil
	}

	var lot *models.Lot
	if len(raw.Lots) > 0 {
		lot = &raw.Lots[0]
	}

	year := numToInt(raw.Year)
	if year == 0 {
		year = defaultBaseYear
	}

	buyNow := 0
	if lot != nil {
		buyNow = numToInt(lot.BuyNow)
	}
	if buyNow == 0 {
		buyNow = numToInt(raw.BuyNow)
	}
	price := buyNow + t.PriceMarkup

	mileage := ""
	if lot != nil && lot.Odometer != nil {
		if km := numToInt(lot.Odometer.Km); km > 0 {
			mileage = fmt.Sprintf("%d km", km)
		}
	}
	if mileage == "" {
		if km := numToInt(raw.Odometer); km > 0 {
			mileage = fmt.Sprintf("%d km", km)
		}
	}

	var images []string
	if lot != nil && lot.Images != nil {
		images = lot.Images.Normal
		if len(images) == 0 {
			images = lot.Images.Big
		}
	}

	source := t.DefaultSource
	if lot != nil && lot.Domain != nil && lot.Domain.Name != "" {
		source = lot.Domain.Name
	} else if raw.Domain != "" {
		source = raw.Domain
	}

	lotNumber := ""
	condition := unknownValue
	saleStatus := models.SaleStatusActive
	if lot != nil {
		lotNumber = lot.LotNumber.String()
		if lotNumber == "0" {
			lotNumber = ""
		}
		if lot.Condition != nil && lot.Condition.Name != "" {
			condition = lot.Condition.Name
		}
		saleStatus = normalizeSaleStatus(lot)
	}

	rec := &models.CachedCarRecord{
		ID:           id,
		Make:         makeName,
		Model:        modelName,
		Year:         year,
		Price:        price,
		PriceCents:   int64(price) * 100,
		Mileage:      mileage,
		VIN:          raw.VIN,
		Fuel:         refNameDefault(raw.Fuel, raw.FuelType),
		Transmission: refNameDefault(raw.Transmission, ""),
		Color:        refNameDefault(raw.Color, raw.ColorName),
		Condition:    condition,
		LotNumber:    lotNumber,
		Images:       images,
		SourceSite:   source,
		SaleStatus:   saleStatus,
		LastAPISync:  syncTime,
		IsActive:     saleStatus != models.SaleStatusSold,
	}
	rec.ContentHash = contentHash(rec)

	if payload, err := json.Marshal(raw); err == nil {
		rec.RawPayload = payload
	}

	return rec
}

// contentHash covers the normalized fields that matter for change detection.
// Volatile fields (last_api_sync, raw_payload) are excluded so an unchanged
// listing hashes identically across runs.
func contentHash(r *models.CachedCarRecord) string {
	parts := []string{
		r.ID, r.Make, r.Model, strconv.Itoa(r.Year), strconv.Itoa(r.Price),
		r.Mileage, r.VIN, r.Fuel, r.Transmission, r.Color, r.Condition,
		r.LotNumber, r.SaleStatus, strings.Join(r.Images, ","),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:16])
}

func normalizeSaleStatus(lot *models.Lot) string {
	status := strings.ToLower(lot.SaleStatus)
	if status == "" && lot.Status != nil {
		status = strings.ToLower(lot.Status.Name)
	}
	switch {
	case strings.Contains(status, "sold"):
		return models.SaleStatusSold
	case strings.Contains(status, "pending"):
		return models.SaleStatusPending
	default:
		return models.SaleStatusActive
	}
}

// refName prefers the nested ref's name, then the flat fallback. Empty means
// unresolvable.
func refName(ref *models.NamedRef, flat string) string {
	if ref != nil && ref.Name != "" {
		return ref.Name
	}
	return strings.TrimSpace(flat)
}

// refNameDefault is refName with the "Unknown" literal for optional fields.
func refNameDefault(ref *models.NamedRef, flat string) string {
	if name := refName(ref, flat); name != "" {
		return name
	}
	return unknownValue
}

// numToInt coerces a json.Number, tolerating floats and garbage. Zero on
// anything unparseable.
func numToInt(n json.Number) int {
	if n == "" {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}
