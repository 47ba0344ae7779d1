package workers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"carsync/models"
	"carsync/storage"
)

// S3Uploader is the upload surface the worker needs; the storage uploader
// implements it, and tests substitute a fake.
type S3Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// ImageWorker archives listing photos. Source CDNs drop images shortly after
// a lot closes, so the worker copies pending ones into our bucket and records
// the key and content hash.
type ImageWorker struct {
	store      *storage.PostgresStore
	httpClient *http.Client
	uploader   S3Uploader
	triggerCh  chan struct{}
	logFunc    LogFunc
}

func NewImageWorker(store *storage.PostgresStore, client *http.Client, uploader S3Uploader) *ImageWorker {
	return &ImageWorker{
		store:      store,
		httpClient: client,
		uploader:   uploader,
		triggerCh:  make(chan struct{}, 1),
		logFunc:    NoOpLogger,
	}
}

func (w *ImageWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run a batch immediately
func (w *ImageWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type ImageResult struct {
	S3Key       string
	ContentHash string
	Size        int64
	Error       error
}

// Archive downloads one image, hashes it, and uploads it to the bucket.
func (w *ImageWorker) Archive(ctx context.Context, img *models.CarImage) ImageResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.OriginalURL, nil)
	if err != nil {
		return ImageResult{Error: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return ImageResult{Error: fmt.Errorf("download: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ImageResult{Error: fmt.Errorf("download status: %d", resp.StatusCode)}
	}

	// 20MB cap, listing photos are far smaller
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return ImageResult{Error: fmt.Errorf("read body: %w", err)}
	}

	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	ext := guessExtension(img.OriginalURL, resp.Header.Get("Content-Type"))
	key := fmt.Sprintf("cars/%s/%s%s", img.CarID, contentHash[:16], ext)

	if w.uploader != nil {
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "image/jpeg"
		}
		if err := w.uploader.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
			return ImageResult{Error: fmt.Errorf("upload: %w", err)}
		}
	}

	return ImageResult{
		S3Key:       key,
		ContentHash: contentHash,
		Size:        int64(len(data)),
	}
}

// Run starts the worker loop
func (w *ImageWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Image worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Image worker triggered manually")
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *ImageWorker) processBatch(ctx context.Context, batchSize int) {
	if queued, err := w.store.QueueNewImages(ctx); err != nil {
		log.Printf("Image worker: queue error: %v", err)
	} else if queued > 0 {
		log.Printf("Image worker: queued %d new images", queued)
	}

	images, err := w.store.GetPendingImages(ctx, batchSize)
	if err != nil {
		log.Printf("Image worker: query error: %v", err)
		return
	}
	if len(images) == 0 {
		return
	}

	var archived, failed int
	for i := range images {
		img := &images[i]

		result := w.Archive(ctx, img)
		if result.Error != nil {
			log.Printf("Image worker: failed %s: %v", img.OriginalURL, result.Error)
			failed++

			newAttempts := img.Attempts + 1
			status := models.ImageStatusPending
			if newAttempts >= 3 {
				status = models.ImageStatusFailed
			}
			w.store.UpdateImageStatus(ctx, img.ID, status, nil, "", newAttempts)
			continue
		}

		if err := w.store.UpdateImageStatus(ctx, img.ID, models.ImageStatusUploaded, &result.S3Key, result.ContentHash, img.Attempts); err != nil {
			log.Printf("Image worker: failed to update %s: %v", img.ID, err)
			failed++
			continue
		}
		archived++

		// Pace downloads against the source CDN
		time.Sleep(200 * time.Millisecond)
	}

	if archived > 0 || failed > 0 {
		log.Printf("Image worker: archived %d, failed %d", archived, failed)
		w.logFunc(models.LogLevelInfo, "images", fmt.Sprintf("Archived %d images, %d failed", archived, failed))
	}
}

func guessExtension(url, contentType string) string {
	ext := strings.ToLower(path.Ext(url))
	if idx := strings.IndexAny(ext, "?#"); idx >= 0 {
		ext = ext[:idx]
	}
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	}

	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// NoOpUploader skips the actual upload (for dry runs and tests)
type NoOpUploader struct{}

func (u *NoOpUploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	io.Copy(io.Discard, data)
	return nil
}
