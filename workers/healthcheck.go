package workers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"carsync/models"
	"carsync/storage"
)

// HealthcheckWorker spot-checks active cars the sync has not touched in a
// while. The auction API drops sold lots from its paginated feed silently, so
// between full syncs the worker fetches the public lot page and looks for
// sold markers in the HTML.
type HealthcheckWorker struct {
	store      *storage.PostgresStore
	httpClient *http.Client
	triggerCh  chan struct{}
	logFunc    LogFunc
}

func NewHealthcheckWorker(store *storage.PostgresStore, client *http.Client) *HealthcheckWorker {
	return &HealthcheckWorker{
		store:      store,
		httpClient: client,
		triggerCh:  make(chan struct{}, 1),
		logFunc:    NoOpLogger,
	}
}

func (w *HealthcheckWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *HealthcheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type CheckResult struct {
	Sold       bool
	StatusCode int
	Error      error
}

// Check fetches a lot detail page and reports whether the lot reads as sold.
// A 404/410 counts as sold: the source removes closed lot pages.
func (w *HealthcheckWorker) Check(ctx context.Context, lotURL string) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lotURL, nil)
	if err != nil {
		return CheckResult{Error: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return CheckResult{Error: err}
	}
	defer resp.Body.Close()

	result := CheckResult{StatusCode: resp.StatusCode}

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		result.Sold = true
		return result
	case http.StatusOK:
	default:
		return result
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		result.Error = fmt.Errorf("parse page: %w", err)
		return result
	}

	result.Sold = hasSoldMarker(doc)
	return result
}

// hasSoldMarker looks for the status banner the source renders on closed
// lots. Selectors cover the two markup generations seen in the wild.
func hasSoldMarker(doc *goquery.Document) bool {
	found := false
	doc.Find(".lot-status, .sale-status, [data-status]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if attr, ok := s.Attr("data-status"); ok {
			text += " " + strings.ToLower(attr)
		}
		if strings.Contains(text, "sold") || strings.Contains(text, "sale closed") {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}

	title := strings.ToLower(doc.Find("title").Text())
	return strings.Contains(title, "sold")
}

// Run starts the healthcheck loop
func (w *HealthcheckWorker) Run(ctx context.Context, staleDuration time.Duration, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Healthcheck worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, staleDuration, batchSize)
		case <-w.triggerCh:
			log.Println("Healthcheck worker triggered manually")
			w.processBatch(ctx, staleDuration, batchSize)
		}
	}
}

func (w *HealthcheckWorker) processBatch(ctx context.Context, staleDuration time.Duration, batchSize int) {
	cars, err := w.store.GetStaleActiveCars(ctx, staleDuration, batchSize)
	if err != nil {
		log.Printf("Healthcheck: query error: %v", err)
		return
	}
	if len(cars) == 0 {
		return
	}

	log.Printf("Healthcheck: checking %d stale cars", len(cars))

	var checked, sold int
	for i := range cars {
		car := &cars[i]
		lotURL := lotPageURL(car)
		if lotURL == "" {
			continue
		}

		result := w.Check(ctx, lotURL)
		checked++

		if result.Error != nil {
			log.Printf("Healthcheck: error checking %s: %v", car.ID, result.Error)
			continue
		}

		if result.Sold {
			log.Printf("Healthcheck: car %s (%s %s) sold (status %d)", car.ID, car.Make, car.Model, result.StatusCode)
			if err := w.store.MarkCarInactive(ctx, car.ID); err != nil {
				log.Printf("Healthcheck: failed to mark %s inactive: %v", car.ID, err)
			} else {
				sold++
			}
		}

		// Pace requests against the source site
		time.Sleep(500 * time.Millisecond)
	}

	if sold > 0 {
		msg := fmt.Sprintf("Checked %d cars, %d marked sold", checked, sold)
		log.Printf("Healthcheck: %s", msg)
		w.logFunc(models.LogLevelInfo, "healthcheck", msg)
	}
}

// lotPageURL rebuilds the public lot detail URL from the source domain and
// lot number. Cars without both cannot be checked.
func lotPageURL(car *models.CachedCarRecord) string {
	if car.SourceSite == "" || car.LotNumber == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/lot/%s", car.SourceSite, car.LotNumber)
}
