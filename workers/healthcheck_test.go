package workers

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"carsync/models"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestHasSoldMarker(t *testing.T) {
	sold := docFromHTML(t, `<html><head><title>2018 Toyota Camry</title></head>
		<body><div class="lot-status">Sold</div></body></html>`)
	if !hasSoldMarker(sold) {
		t.Fatal("expected sold marker in status banner")
	}

	soldAttr := docFromHTML(t, `<html><body><span data-status="sold_final">Auction ended</span></body></html>`)
	if !hasSoldMarker(soldAttr) {
		t.Fatal("expected sold marker in data-status attribute")
	}

	soldTitle := docFromHTML(t, `<html><head><title>SOLD: 2018 Toyota Camry - Lot 45678901</title></head><body></body></html>`)
	if !hasSoldMarker(soldTitle) {
		t.Fatal("expected sold marker in title")
	}

	live := docFromHTML(t, `<html><head><title>2018 Toyota Camry - Lot 45678901</title></head>
		<body><div class="lot-status">Live Auction</div><div class="sale-status">Bidding open</div></body></html>`)
	if hasSoldMarker(live) {
		t.Fatal("did not expect sold marker on live lot page")
	}
}

func TestLotPageURL(t *testing.T) {
	car := &models.CachedCarRecord{SourceSite: "copart.com", LotNumber: "45678901"}
	if got := lotPageURL(car); got != "https://copart.com/lot/45678901" {
		t.Fatalf("unexpected url %s", got)
	}

	noLot := &models.CachedCarRecord{SourceSite: "copart.com"}
	if got := lotPageURL(noLot); got != "" {
		t.Fatalf("expected empty url without lot number, got %s", got)
	}

	noSite := &models.CachedCarRecord{LotNumber: "45678901"}
	if got := lotPageURL(noSite); got != "" {
		t.Fatalf("expected empty url without source site, got %s", got)
	}
}
