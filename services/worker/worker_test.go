package worker

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sjsage522/listingwatcher/helpers"
	"sjsage522/listingwatcher/internal/crawler"
	"sjsage522/listingwatcher/services/notifier"
	"sjsage522/listingwatcher/services/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCrawler implements the crawler.Crawler interface for testing
type MockCrawler struct {
	name     string
	listings []crawler.Listing
	err      error
	delay    time.Duration
	panics   bool
	active   *atomic.Int32
	maxSeen  *atomic.Int32
	searches atomic.Int32
}

// Ensure MockCrawler implements crawler.Crawler
var _ crawler.Crawler = (*MockCrawler)(nil)

func (m *MockCrawler) GetName() string {
	return m.name
}

func (m *MockCrawler) SearchTerms() []string {
	return []string{"deck jacket"}
}

func (m *MockCrawler) Search(ctx context.Context, term string) iter.Seq2[crawler.Listing, error] {
	return func(yield func(crawler.Listing, error) bool) {
		m.searches.Add(1)
		if m.active != nil {
			n := m.active.Add(1)
			defer m.active.Add(-1)
			for {
				seen := m.maxSeen.Load()
				if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
					break
				}
			}
		}
		if m.panics {
			panic("selector exploded")
		}
		if m.delay > 0 {
			time.Sleep(m.delay)
		}
		if m.err != nil {
			yield(crawler.Listing{}, m.err)
			return
		}
		for _, listing := range m.listings {
			if !yield(listing, nil) {
				return
			}
		}
	}
}

// MockStore implements store.Store in memory
type MockStore struct {
	mu      sync.Mutex
	records map[string]store.Record
	failIds map[string]bool
}

var _ store.Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{records: make(map[string]store.Record), failIds: make(map[string]bool)}
}

func (m *MockStore) InsertIfAbsent(ctx context.Context, record store.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIds[record.Id] {
		return false, errors.New("disk full")
	}
	if _, ok := m.records[record.Id]; ok {
		return false, nil
	}
	m.records[record.Id] = record
	return true, nil
}

func (m *MockStore) Close() error {
	return nil
}

// MockNotifier records notifications and implements notifier.PassHook
type MockNotifier struct {
	mu       sync.Mutex
	notified []store.Record
	failIds  map[string]bool
	passes   int
}

var (
	_ notifier.Notifier = (*MockNotifier)(nil)
	_ notifier.PassHook = (*MockNotifier)(nil)
)

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{failIds: make(map[string]bool)}
}

func (m *MockNotifier) Notify(ctx context.Context, record store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIds[record.Id] {
		return errors.New("webhook returned 500")
	}
	m.notified = append(m.notified, record)
	return nil
}

func (m *MockNotifier) AfterPass(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes++
	return nil
}

func (m *MockNotifier) Close() error {
	return nil
}

func (m *MockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notified)
}

func listing(source, id string) crawler.Listing {
	return crawler.Listing{
		Id:     id,
		Title:  "N-1 Deck Jacket " + id,
		Price:  "€299,00",
		URL:    "https://shop.example.com/products/" + id,
		Source: source,
	}
}

func TestRunPassIsolatesFailingAdapter(t *testing.T) {
	a := &MockCrawler{name: "A", err: errors.New("connection refused")}
	b := &MockCrawler{name: "B", listings: []crawler.Listing{listing("B", "1"), listing("B", "2")}}
	st := NewMockStore()
	n := NewMockNotifier()

	w := NewWorker([]crawler.Crawler{a, b}, st, n, time.Minute)
	report := w.RunPass(context.Background())

	require.Len(t, report.Adapters, 2)
	assert.Equal(t, "A", report.Adapters[0].Name)
	assert.Error(t, report.Adapters[0].Err)
	assert.Equal(t, 0, report.Adapters[0].Listings)
	assert.Equal(t, "B", report.Adapters[1].Name)
	assert.NoError(t, report.Adapters[1].Err)
	assert.Equal(t, 2, report.Adapters[1].New)

	assert.Equal(t, 2, report.TotalNew)
	assert.Equal(t, 2, report.Notified)
	assert.Equal(t, 2, n.count())
	assert.Equal(t, "1", n.notified[0].Id)
	assert.Equal(t, "2", n.notified[1].Id)
	assert.Equal(t, 1, n.passes)
}

func TestRunPassRepeatIsQuiet(t *testing.T) {
	c := &MockCrawler{name: "B", listings: []crawler.Listing{listing("B", "1"), listing("B", "2")}}
	n := NewMockNotifier()
	w := NewWorker([]crawler.Crawler{c}, NewMockStore(), n, time.Minute)

	first := w.RunPass(context.Background())
	second := w.RunPass(context.Background())

	assert.Equal(t, 2, first.TotalNew)
	assert.Equal(t, 0, second.TotalNew)
	assert.Equal(t, 2, second.Adapters[0].Listings)
	assert.Equal(t, 2, n.count())
	assert.Equal(t, 2, n.passes)
}

func TestRunPassStoreFailureSkipsNotification(t *testing.T) {
	c := &MockCrawler{name: "B", listings: []crawler.Listing{listing("B", "1"), listing("B", "2")}}
	st := NewMockStore()
	st.failIds["1"] = true
	n := NewMockNotifier()

	report := NewWorker([]crawler.Crawler{c}, st, n, time.Minute).RunPass(context.Background())

	assert.Equal(t, 1, report.StoreFailed)
	assert.Equal(t, 1, report.TotalNew)
	require.Equal(t, 1, n.count())
	assert.Equal(t, "2", n.notified[0].Id)
}

func TestRunPassNotifyFailureIsNotRolledBack(t *testing.T) {
	c := &MockCrawler{name: "B", listings: []crawler.Listing{listing("B", "1")}}
	st := NewMockStore()
	n := NewMockNotifier()
	n.failIds["1"] = true
	w := NewWorker([]crawler.Crawler{c}, st, n, time.Minute)

	report := w.RunPass(context.Background())
	assert.Equal(t, 1, report.TotalNew)
	assert.Equal(t, 1, report.NotifyFailed)
	assert.Equal(t, 0, report.Notified)
	assert.Contains(t, st.records, "1")

	report = w.RunPass(context.Background())
	assert.Equal(t, 0, report.TotalNew)
	assert.Equal(t, 0, report.NotifyFailed)
}

func TestRunPassDeduplicatesAcrossAdapters(t *testing.T) {
	a := &MockCrawler{name: "A", listings: []crawler.Listing{listing("A", "same")}}
	b := &MockCrawler{name: "B", listings: []crawler.Listing{listing("B", "same")}}
	n := NewMockNotifier()

	report := NewWorker([]crawler.Crawler{a, b}, NewMockStore(), n, time.Minute).RunPass(context.Background())

	assert.Equal(t, 1, report.TotalNew)
	assert.Equal(t, 1, report.Adapters[0].New)
	assert.Equal(t, 0, report.Adapters[1].New)
	require.Equal(t, 1, n.count())
	assert.Equal(t, "A", n.notified[0].Source)
}

func TestRunPassRecoversAdapterPanic(t *testing.T) {
	a := &MockCrawler{name: "A", panics: true}
	b := &MockCrawler{name: "B", listings: []crawler.Listing{listing("B", "1")}}

	report := NewWorker([]crawler.Crawler{a, b}, NewMockStore(), NewMockNotifier(), time.Minute).RunPass(context.Background())

	assert.ErrorContains(t, report.Adapters[0].Err, "selector exploded")
	assert.Equal(t, 1, report.TotalNew)
}

func TestRunPassRecordsDiscoveryTime(t *testing.T) {
	c := &MockCrawler{name: "B", listings: []crawler.Listing{listing("B", "1")}}
	st := NewMockStore()
	w := NewWorker([]crawler.Crawler{c}, st, NewMockNotifier(), time.Minute)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	report := w.RunPass(context.Background())

	assert.Equal(t, fixed, report.StartedAt)
	assert.Equal(t, fixed, st.records["1"].DiscoveredAt)
}

func renderItem(title, href string) string {
	return fmt.Sprintf(`<div class="item"><a class="link" href="%s"><span class="title">%s</span></a><span class="price">€649,95</span></div>`, href, title)
}

func TestRunPassEndToEnd(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprintf(w, `<html><body>%s%s%s</body></html>`,
				renderItem("Chino Trousers", "/products/chinos"),
				renderItem("Denim Deck Jacket", "/products/denim-deck"),
				renderItem("Wool Sweater", "/products/sweater"))
			return
		}
		fmt.Fprintf(w, `<html><body>%s%s%s%s%s<a class="next" href="/search?q=n-1&page=2">Next</a></body></html>`,
			renderItem("Denim Jacket", "/products/denim"),
			renderItem("Buzz Rickson's N-1 Deck Jacket Navy", "/products/n-1-navy?variant=3"),
			renderItem("Flight Jacket", "/products/flight"),
			renderItem("Field Shirt", "/products/shirt"),
			renderItem("Leather Boots", "/products/boots"))
	}))
	defer server.Close()

	c := crawler.NewConfigurableCrawler(crawler.CrawlerConfig{
		Name:      "TestShop",
		BaseURL:   server.URL,
		SearchURL: server.URL + "/search?q={query}",
		Selectors: crawler.Selectors{
			Container:      ".item",
			Title:          ".title",
			Price:          ".price",
			Link:           "a.link",
			PaginationNext: "a.next",
		},
		SearchTerms:   []string{"n-1 deck jacket"},
		TitleKeywords: []string{"n-1 deck jacket"},
		MaxPages:      5,
	}, helpers.NewClient(2*time.Second), nil)

	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "listings.db"))
	require.NoError(t, err)
	defer st.Close()

	n := NewMockNotifier()
	w := NewWorker([]crawler.Crawler{c}, st, n, time.Minute)

	report := w.RunPass(context.Background())
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 1, report.TotalNew)
	require.Equal(t, 1, n.count())
	assert.Equal(t, server.URL+"/products/n-1-navy", n.notified[0].URL)
	assert.Equal(t, crawler.ListingID(server.URL+"/products/n-1-navy"), n.notified[0].Id)

	report = w.RunPass(context.Background())
	assert.Equal(t, 0, report.TotalNew)
	assert.Equal(t, 1, n.count())

	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func runWorker(w *Worker) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestStartRunsFirstPassImmediately(t *testing.T) {
	c := &MockCrawler{name: "B"}
	w := NewWorker([]crawler.Crawler{c}, NewMockStore(), NewMockNotifier(), time.Hour)

	cancel, done := runWorker(w)
	require.Eventually(t, func() bool { return c.searches.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	waitStopped(t, done)

	assert.Equal(t, int32(1), c.searches.Load())
}

func TestStartRepeatsEveryInterval(t *testing.T) {
	c := &MockCrawler{name: "B"}
	n := NewMockNotifier()
	w := NewWorker([]crawler.Crawler{c}, NewMockStore(), n, 20*time.Millisecond)

	cancel, done := runWorker(w)
	require.Eventually(t, func() bool { return c.searches.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	waitStopped(t, done)
}

func TestStartDoesNotOverlapPasses(t *testing.T) {
	var active, maxSeen atomic.Int32
	c := &MockCrawler{name: "Slow", delay: 30 * time.Millisecond, active: &active, maxSeen: &maxSeen}
	w := NewWorker([]crawler.Crawler{c}, NewMockStore(), NewMockNotifier(), 5*time.Millisecond)

	cancel, done := runWorker(w)
	require.Eventually(t, func() bool { return c.searches.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	waitStopped(t, done)

	assert.Equal(t, int32(1), maxSeen.Load())
}
