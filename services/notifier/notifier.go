package notifier

import (
	"context"
	"errors"

	"sjsage522/listingwatcher/logger"
	"sjsage522/listingwatcher/services/store"
)

// Notifier delivers one notification per newly discovered listing
type Notifier interface {
	// Notify sends the notification for a newly recorded listing
	Notify(ctx context.Context, record store.Record) error

	// Close releases the sink's connections
	Close() error
}

// PassHook is implemented by sinks that need work once per scrape pass
type PassHook interface {
	AfterPass(ctx context.Context) error
}

// MultiNotifier fans a notification out to several sinks
type MultiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier creates a notifier delivering to every sink in order
func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks}
}

// Notify delivers to all sinks; one failing sink does not skip the others
func (m *MultiNotifier) Notify(ctx context.Context, record store.Record) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AfterPass runs the pass hooks of the sinks that have one
func (m *MultiNotifier) AfterPass(ctx context.Context) error {
	var errs []error
	for _, sink := range m.sinks {
		if hook, ok := sink.(PassHook); ok {
			if err := hook.AfterPass(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *MultiNotifier) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier only logs new listings, used when no webhook is configured
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.ForNotifier("log")}
}

// Notify logs the listing
func (l *LogNotifier) Notify(ctx context.Context, record store.Record) error {
	l.log.Info().
		Str("source", record.Source).
		Str("title", record.Title).
		Str("price", record.Price).
		Str("url", record.URL).
		Msg("New listing")
	return nil
}

// Close is a no-op
func (l *LogNotifier) Close() error {
	return nil
}
