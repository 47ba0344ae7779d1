package syncer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carsync/models"
)

func loadFixture(t *testing.T, name string) *models.RawListing {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	var raw models.RawListing
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to parse fixture %s: %v", name, err)
	}
	return &raw
}

func TestTransform_NestedListing(t *testing.T) {
	tr := NewTransformer(200, "auctionapi")
	raw := loadFixture(t, "listing_nested.json")
	syncTime := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rec := tr.Transform(raw, syncTime)
	if rec == nil {
		t.Fatal("expected record, got nil")
	}

	if rec.ID != "123456" {
		t.Fatalf("expected id 123456, got %s", rec.ID)
	}
	if rec.Make != "Toyota" || rec.Model != "Camry" {
		t.Fatalf("expected Toyota Camry, got %s %s", rec.Make, rec.Model)
	}
	if rec.Year != 2018 {
		t.Fatalf("expected year 2018, got %d", rec.Year)
	}
	if rec.Price != 15700 {
		t.Fatalf("expected price 15500+200=15700, got %d", rec.Price)
	}
	if rec.PriceCents != 1570000 {
		t.Fatalf("expected price_cents 1570000, got %d", rec.PriceCents)
	}
	if rec.Mileage != "98500 km" {
		t.Fatalf("expected mileage '98500 km', got %q", rec.Mileage)
	}
	if rec.VIN != "4T1BF1FK5JU123456" {
		t.Fatalf("unexpected vin %s", rec.VIN)
	}
	if rec.Fuel != "Gasoline" || rec.Transmission != "Automatic" || rec.Color != "Silver" {
		t.Fatalf("unexpected fuel/transmission/color: %s/%s/%s", rec.Fuel, rec.Transmission, rec.Color)
	}
	if rec.Condition != "Run and Drive" {
		t.Fatalf("unexpected condition %s", rec.Condition)
	}
	if rec.LotNumber != "45678901" {
		t.Fatalf("unexpected lot number %s", rec.LotNumber)
	}
	if len(rec.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(rec.Images))
	}
	if rec.SourceSite != "copart.com" {
		t.Fatalf("unexpected source site %s", rec.SourceSite)
	}
	if rec.SaleStatus != models.SaleStatusActive {
		t.Fatalf("unexpected sale status %s", rec.SaleStatus)
	}
	if !rec.IsActive {
		t.Fatal("expected active record")
	}
	if rec.ContentHash == "" {
		t.Fatal("expected content hash")
	}
	if len(rec.RawPayload) == 0 {
		t.Fatal("expected raw payload mirror")
	}
}

func TestTransform_FlatListingFallbacks(t *testing.T) {
	tr := NewTransformer(200, "auctionapi")
	raw := loadFixture(t, "listing_flat.json")

	rec := tr.Transform(raw, time.Now())
	if rec == nil {
		t.Fatal("expected record, got nil")
	}

	if rec.Make != "Honda" || rec.Model != "Civic" {
		t.Fatalf("expected Honda Civic from flat fields, got %s %s", rec.Make, rec.Model)
	}
	if rec.Year != defaultBaseYear {
		t.Fatalf("expected base year %d for missing year, got %d", defaultBaseYear, rec.Year)
	}
	if rec.Price != 7400 {
		t.Fatalf("expected price 7200+200=7400, got %d", rec.Price)
	}
	if rec.Mileage != "150000 km" {
		t.Fatalf("expected flat odometer fallback, got %q", rec.Mileage)
	}
	if rec.Color != "Blue" || rec.Fuel != "Gasoline" {
		t.Fatalf("unexpected color/fuel %s/%s", rec.Color, rec.Fuel)
	}
	if rec.Transmission != unknownValue {
		t.Fatalf("expected Unknown transmission, got %s", rec.Transmission)
	}
	if rec.Condition != unknownValue {
		t.Fatalf("expected Unknown condition without a lot, got %s", rec.Condition)
	}
	if rec.SourceSite != "iaai.com" {
		t.Fatalf("expected flat domain fallback, got %s", rec.SourceSite)
	}
}

func TestTransform_RejectsIncompleteRecords(t *testing.T) {
	tr := NewTransformer(200, "auctionapi")

	if rec := tr.Transform(loadFixture(t, "listing_missing_model.json"), time.Now()); rec != nil {
		t.Fatalf("expected nil for record without model, got %+v", rec)
	}

	noID := &models.RawListing{Make: "Ford", ModelName: "Focus"}
	if rec := tr.Transform(noID, time.Now()); rec != nil {
		t.Fatalf("expected nil for record without id, got %+v", rec)
	}

	if rec := tr.Transform(nil, time.Now()); rec != nil {
		t.Fatal("expected nil for nil input")
	}
}

func TestTransform_Deterministic(t *testing.T) {
	tr := NewTransformer(200, "auctionapi")
	syncTime := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a := tr.Transform(loadFixture(t, "listing_nested.json"), syncTime)
	b := tr.Transform(loadFixture(t, "listing_nested.json"), syncTime)
	if a == nil || b == nil {
		t.Fatal("expected records")
	}
	if a.ContentHash != b.ContentHash {
		t.Fatalf("hash not deterministic: %s vs %s", a.ContentHash, b.ContentHash)
	}

	// The hash ignores sync time: an unchanged listing hashes identically
	// across runs.
	c := tr.Transform(loadFixture(t, "listing_nested.json"), syncTime.Add(24*time.Hour))
	if a.ContentHash != c.ContentHash {
		t.Fatal("hash must not depend on sync time")
	}

	// A price change must change the hash.
	changed := loadFixture(t, "listing_nested.json")
	changed.Lots[0].BuyNow = "16000"
	d := tr.Transform(changed, syncTime)
	if a.ContentHash == d.ContentHash {
		t.Fatal("hash must change when price changes")
	}
}
