package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sjsage522/listingwatcher/internal/crawler"
	"sjsage522/listingwatcher/logger"
	"sjsage522/listingwatcher/services/notifier"
	"sjsage522/listingwatcher/services/store"
)

// AdapterReport is the outcome of one adapter within a pass
type AdapterReport struct {
	Name     string
	Listings int
	New      int
	Err      error
}

// PassReport summarizes one scrape pass
type PassReport struct {
	StartedAt    time.Time
	Duration     time.Duration
	Adapters     []AdapterReport
	TotalNew     int
	Notified     int
	NotifyFailed int
	StoreFailed  int
}

// Worker runs scrape passes over all crawlers and notifies about new listings
type Worker struct {
	crawlers      []crawler.Crawler
	store         store.Store
	notifier      notifier.Notifier
	crawlInterval time.Duration
	log           *logger.Logger
	now           func() time.Time
}

// NewWorker creates a new worker
func NewWorker(
	crawlers []crawler.Crawler,
	st store.Store,
	n notifier.Notifier,
	crawlInterval time.Duration,
) *Worker {
	return &Worker{
		crawlers:      crawlers,
		store:         st,
		notifier:      n,
		crawlInterval: crawlInterval,
		log:           logger.ForWorker(),
		now:           time.Now,
	}
}

// Start runs a pass immediately, then one every interval measured start to start.
// A pass that overruns the interval is followed right away by the next one.
// It returns nil once ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return nil
		case <-timer.C:
		}
		if ctx.Err() != nil {
			w.log.Info().Msg("Worker stopped")
			return nil
		}

		start := time.Now()
		w.logReport(w.RunPass(ctx))

		wait := w.crawlInterval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

type collectResult struct {
	listings []crawler.Listing
	err      error
}

// RunPass collects every adapter concurrently, then records and notifies in registry order
func (w *Worker) RunPass(ctx context.Context) PassReport {
	report := PassReport{StartedAt: w.now()}

	results := make([]collectResult, len(w.crawlers))
	var wg sync.WaitGroup
	for i, c := range w.crawlers {
		wg.Add(1)
		go func(i int, c crawler.Crawler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = collectResult{err: fmt.Errorf("crawler panic: %v", r)}
				}
			}()
			listings, err := crawler.Collect(ctx, c)
			results[i] = collectResult{listings: listings, err: err}
		}(i, c)
	}
	wg.Wait()

	report.Adapters = make([]AdapterReport, len(w.crawlers))
	for i, c := range w.crawlers {
		adapter := &report.Adapters[i]
		adapter.Name = c.GetName()

		if err := results[i].err; err != nil {
			adapter.Err = err
			logger.ForCrawler(adapter.Name).WithError(err).Error().Msg("Crawl failed")
			continue
		}
		adapter.Listings = len(results[i].listings)

		for _, listing := range results[i].listings {
			record := store.Record{
				Id:           listing.Id,
				Title:        listing.Title,
				Price:        listing.Price,
				URL:          listing.URL,
				ImageURL:     listing.ImageURL,
				Source:       listing.Source,
				DiscoveredAt: w.now().UTC(),
			}

			inserted, err := w.store.InsertIfAbsent(ctx, record)
			if err != nil {
				report.StoreFailed++
				w.log.Error().Err(err).Str("id", record.Id).Str("url", record.URL).Msg("Failed to record listing")
				continue
			}
			if !inserted {
				continue
			}
			adapter.New++
			report.TotalNew++

			if err := w.notifier.Notify(ctx, record); err != nil {
				report.NotifyFailed++
				w.log.Error().Err(err).Str("id", record.Id).Msg("Failed to send notification")
				continue
			}
			report.Notified++
		}
	}

	if hook, ok := w.notifier.(notifier.PassHook); ok {
		if err := hook.AfterPass(ctx); err != nil {
			logger.LogError("worker", err, "Pass hook failed")
		}
	}

	report.Duration = w.now().Sub(report.StartedAt)
	return report
}

func (w *Worker) logReport(report PassReport) {
	for _, adapter := range report.Adapters {
		event := w.log.Info()
		if adapter.Err != nil {
			event = w.log.Warn().Err(adapter.Err)
		}
		event.Str("crawler", adapter.Name).
			Int("listings", adapter.Listings).
			Int("new", adapter.New).
			Msg("Adapter finished")
	}

	w.log.Info().
		Dur("duration", report.Duration).
		Int("new", report.TotalNew).
		Int("notified", report.Notified).
		Int("notify_failed", report.NotifyFailed).
		Int("store_failed", report.StoreFailed).
		Msg("Pass finished")
}
