package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"metal-rates-alerts/internal/fetcher"
	"metal-rates-alerts/internal/storage"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeRateStore is an in-memory stand-in for the metal_rates table.
type fakeRateStore struct {
	mu       sync.Mutex
	rates    map[time.Time]storage.MetalRate
	epoch    time.Time
	busyLeft int
}

func newFakeRateStore(epoch time.Time) *fakeRateStore {
	return &fakeRateStore{
		rates: make(map[time.Time]storage.MetalRate),
		epoch: storage.NormalizeDate(epoch),
	}
}

func (f *fakeRateStore) sortedDates() []time.Time {
	dates := make([]time.Time, 0, len(f.rates))
	for d := range f.rates {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func (f *fakeRateStore) InsertRate(_ context.Context, rate storage.MetalRate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busyLeft > 0 {
		f.busyLeft--
		return storage.ErrBusy
	}
	day := storage.NormalizeDate(rate.Date)
	if _, exists := f.rates[day]; exists {
		return nil
	}
	rate.Date = day
	f.rates[day] = rate
	return nil
}

func (f *fakeRateStore) GetRate(_ context.Context, date time.Time) (*storage.MetalRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rate, ok := f.rates[storage.NormalizeDate(date)]
	if !ok {
		return nil, nil
	}
	return &rate, nil
}

func (f *fakeRateStore) LatestDate(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dates := f.sortedDates()
	if len(dates) == 0 {
		return f.epoch, nil
	}
	return dates[len(dates)-1], nil
}

func (f *fakeRateStore) EarliestDate(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dates := f.sortedDates()
	if len(dates) == 0 {
		return f.epoch, nil
	}
	return dates[0], nil
}

func (f *fakeRateStore) RangeDates(ctx context.Context) (time.Time, time.Time, error) {
	earliest, _ := f.EarliestDate(ctx)
	latest, _ := f.LatestDate(ctx)
	return earliest, latest, nil
}

func (f *fakeRateStore) PrevNextDates(_ context.Context, date time.Time) (*time.Time, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := storage.NormalizeDate(date)
	var prev, next *time.Time
	for _, d := range f.sortedDates() {
		d := d
		if d.Before(day) {
			prev = &d
		}
		if d.After(day) {
			next = &d
			break
		}
	}
	return prev, next, nil
}

func (f *fakeRateStore) LastDates(_ context.Context, n int) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dates := f.sortedDates()
	if len(dates) == 0 {
		return []time.Time{f.epoch}, nil
	}
	out := make([]time.Time, 0, n)
	for i := len(dates) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, dates[i])
	}
	return out, nil
}

func (f *fakeRateStore) DatesInYear(_ context.Context, year int) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, d := range f.sortedDates() {
		if d.Year() == year {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRateStore) LastRates(_ context.Context, n int, requireComplete bool) ([]storage.MetalRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dates := f.sortedDates()
	start := len(dates) - n
	if start < 0 {
		start = 0
	}
	var out []storage.MetalRate
	for _, d := range dates[start:] {
		rate := f.rates[d]
		if requireComplete && !rate.Complete() {
			continue
		}
		out = append(out, rate)
	}
	return out, nil
}

func (f *fakeRateStore) ListRatesBetween(_ context.Context, from, to time.Time) ([]storage.MetalRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.MetalRate
	for _, d := range f.sortedDates() {
		if !d.Before(storage.NormalizeDate(from)) && !d.After(storage.NormalizeDate(to)) {
			out = append(out, f.rates[d])
		}
	}
	return out, nil
}

func (f *fakeRateStore) CountRates(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rates)), nil
}

var _ storage.RateStore = (*fakeRateStore)(nil)

// fakeRegistry is an in-memory stand-in for the subscriptions table.
type fakeRegistry struct {
	mu         sync.Mutex
	subs       map[int64]*storage.Subscription
	resetCalls int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{subs: make(map[int64]*storage.Subscription)}
}

func (f *fakeRegistry) Subscribe(_ context.Context, chatID int64) (storage.SubscribeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[chatID]; ok {
		if sub.Active {
			return storage.ResultAlready, nil
		}
		sub.Active = true
		sub.Pending = false
		return storage.ResultOK, nil
	}
	f.subs[chatID] = &storage.Subscription{ChatID: chatID, Active: true}
	return storage.ResultOK, nil
}

func (f *fakeRegistry) Unsubscribe(_ context.Context, chatID int64) (storage.SubscribeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[chatID]
	if !ok || !sub.Active {
		return storage.ResultAlready, nil
	}
	sub.Active = false
	return storage.ResultOK, nil
}

func (f *fakeRegistry) IsActive(_ context.Context, chatID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[chatID]
	return ok && sub.Active, nil
}

func (f *fakeRegistry) ActivePending(context.Context) ([]storage.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Subscription
	for _, sub := range f.subs {
		if sub.Active && sub.Pending {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (f *fakeRegistry) ListSubscriptions(context.Context) ([]storage.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Subscription
	for _, sub := range f.subs {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (f *fakeRegistry) ResetAllPending(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	var flipped int64
	for _, sub := range f.subs {
		if sub.Active && !sub.Pending {
			sub.Pending = true
			flipped++
		}
	}
	return flipped, nil
}

func (f *fakeRegistry) MarkSent(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[chatID]; ok {
		sub.Pending = false
	}
	return nil
}

func (f *fakeRegistry) Deactivate(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[chatID]; ok {
		sub.Active = false
	}
	return nil
}

func (f *fakeRegistry) get(chatID int64) storage.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.subs[chatID]
}

var _ storage.SubscriptionStore = (*fakeRegistry)(nil)

// fakeSettings holds the notification cursor in memory.
type fakeSettings struct {
	mu   sync.Mutex
	date *time.Time
	sets int
}

func (f *fakeSettings) NotifiedDate(context.Context) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.date, nil
}

func (f *fakeSettings) SetNotifiedDate(_ context.Context, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	normalized := storage.NormalizeDate(date)
	f.date = &normalized
	f.sets++
	return nil
}

var _ storage.SettingsStore = (*fakeSettings)(nil)

// fakeFetcher scripts per-window responses; repeated calls for the same
// window consume the scripted entries in order, sticking on the last one.
type fakeFetcher struct {
	mu      sync.Mutex
	scripts map[time.Time][]fetchResult
	calls   []fetcher.Window
}

type fetchResult struct {
	days []fetcher.DayRates
	err  error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{scripts: make(map[time.Time][]fetchResult)}
}

func (f *fakeFetcher) script(windowStart time.Time, results ...fetchResult) {
	f.scripts[storage.NormalizeDate(windowStart)] = results
}

func (f *fakeFetcher) FetchRates(_ context.Context, window fetcher.Window) ([]fetcher.DayRates, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, window)

	key := storage.NormalizeDate(window.Start)
	results := f.scripts[key]
	if len(results) == 0 {
		return nil, nil
	}
	result := results[0]
	if len(results) > 1 {
		f.scripts[key] = results[1:]
	}
	return result.days, result.err
}

func (f *fakeFetcher) callsFor(windowStart time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call.Start.Equal(windowStart) {
			count++
		}
	}
	return count
}

var _ fetcher.RateFetcher = (*fakeFetcher)(nil)

// fakeDeliverer records delivery attempts and fails scripted recipients.
type fakeDeliverer struct {
	mu       sync.Mutex
	attempts map[int64]int
	failWith map[int64]error
	texts    []string
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{
		attempts: make(map[int64]int),
		failWith: make(map[int64]error),
	}
}

func (f *fakeDeliverer) Deliver(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[chatID]++
	f.texts = append(f.texts, text)
	return f.failWith[chatID]
}

func (f *fakeDeliverer) attemptsFor(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[chatID]
}
