package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

var (
	london  = domain.City{Name: "London", Slug: "london", Unit: domain.Celsius, MinConsensus: 1}
	paris   = domain.City{Name: "Paris", Slug: "paris", Unit: domain.Celsius, MinConsensus: 3, RequireAnchor: true}
	chicago = domain.City{Name: "Chicago", Slug: "chicago", Unit: domain.Fahrenheit, MinConsensus: 3, RequireAnchor: true}
)

func ptr(v float64) *float64 { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeForecasts struct {
	mu     sync.Mutex
	values map[string]map[string]float64 // city|date -> model -> value
	err    error
}

func (f *fakeForecasts) set(city string, date time.Time, values map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[string]map[string]float64{}
	}
	f.values[city+"|"+domain.DateKey(date)] = values
}

func (f *fakeForecasts) Forecasts(_ context.Context, city domain.City, date time.Time) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]float64{}
	for k, v := range f.values[city.Slug+"|"+domain.DateKey(date)] {
		out[k] = v
	}
	return out, nil
}

type fakeActuals struct {
	values map[string]float64 // city|date
}

func (f *fakeActuals) Actual(_ context.Context, city domain.City, date time.Time) (*float64, error) {
	v, ok := f.values[city.Slug+"|"+domain.DateKey(date)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeActuals) Actuals(_ context.Context, city domain.City, from, to time.Time) (map[string]float64, error) {
	out := map[string]float64{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if v, ok := f.values[city.Slug+"|"+domain.DateKey(d)]; ok {
			out[domain.DateKey(d)] = v
		}
	}
	return out, nil
}

type fakeMarkets struct {
	events map[string]domain.MarketEvent // city|date
}

func (f *fakeMarkets) Market(_ context.Context, city domain.City, date time.Time) (domain.MarketEvent, error) {
	ev, ok := f.events[city.Slug+"|"+domain.DateKey(date)]
	if !ok {
		return domain.MarketEvent{}, domain.ErrNotFound
	}
	return ev, nil
}

type fakeBooks struct {
	books map[string]domain.OrderBook
}

func (f *fakeBooks) Book(_ context.Context, token string) (domain.OrderBook, error) {
	b, ok := f.books[token]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return b, nil
}

type memTrades struct {
	mu             sync.Mutex
	trades         map[string]domain.Trade
	createErr      error
	skipGetByDate  bool
	resolveErr     error
	resolvedCalled int
}

func newMemTrades() *memTrades {
	return &memTrades{trades: map[string]domain.Trade{}}
}

func (s *memTrades) Create(_ context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, x := range s.trades {
		if x.City == t.City && x.TargetDate.Equal(t.TargetDate) {
			return domain.ErrAlreadyExists
		}
	}
	s.trades[t.ID] = t
	return nil
}

func (s *memTrades) GetByID(_ context.Context, id string) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return domain.Trade{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *memTrades) GetByCityDate(_ context.Context, city string, date time.Time) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.skipGetByDate {
		for _, t := range s.trades {
			if t.City == city && t.TargetDate.Equal(domain.Day(date)) {
				return t, nil
			}
		}
	}
	return domain.Trade{}, domain.ErrNotFound
}

func (s *memTrades) filter(keep func(domain.Trade) bool) []domain.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetDate.Before(out[j].TargetDate) })
	return out
}

func (s *memTrades) ListOpenFrom(_ context.Context, from time.Time) ([]domain.Trade, error) {
	return s.filter(func(t domain.Trade) bool { return t.Status == domain.TradeOpen && !t.TargetDate.Before(from) }), nil
}

func (s *memTrades) ListOpenBefore(_ context.Context, before time.Time) ([]domain.Trade, error) {
	return s.filter(func(t domain.Trade) bool { return t.Status == domain.TradeOpen && t.TargetDate.Before(before) }), nil
}

func (s *memTrades) ListResolved(_ context.Context, city string) ([]domain.Trade, error) {
	return s.filter(func(t domain.Trade) bool { return t.Status.Terminal() && (city == "" || t.City == city) }), nil
}

func (s *memTrades) MarkResolved(_ context.Context, id string, res domain.Resolution, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvedCalled++
	if s.resolveErr != nil {
		return s.resolveErr
	}
	t, ok := s.trades[id]
	if !ok || t.Status != domain.TradeOpen {
		return domain.ErrAlreadyResolved
	}
	t.Status = res.Status
	t.PnL = &res.PnL
	t.ActualValue = &res.ActualValue
	t.ActualBucket = res.ActualBucket
	t.ResolvedAt = &at
	s.trades[id] = t
	return nil
}

func (s *memTrades) List(_ context.Context, _ domain.ListOpts) ([]domain.Trade, error) {
	return s.filter(func(domain.Trade) bool { return true }), nil
}

func (s *memTrades) only() domain.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		return t
	}
	return domain.Trade{}
}

type memAlerts struct {
	mu     sync.Mutex
	alerts []domain.TradeAlert
}

func (s *memAlerts) Append(_ context.Context, a domain.TradeAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *memAlerts) Latest(_ context.Context, tradeID string) (domain.TradeAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].TradeID == tradeID {
			return s.alerts[i], nil
		}
	}
	return domain.TradeAlert{}, domain.ErrNotFound
}

func (s *memAlerts) ListByTrade(_ context.Context, tradeID string) ([]domain.TradeAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TradeAlert
	for _, a := range s.alerts {
		if a.TradeID == tradeID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memForecastStore struct {
	mu   sync.Mutex
	rows []domain.ModelForecast
}

func (s *memForecastStore) InsertBatch(_ context.Context, rows []domain.ModelForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *memForecastStore) Latest(_ context.Context, city, model string, date time.Time) (domain.ModelForecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.ModelForecast
	for i, r := range s.rows {
		if r.City == city && r.Model == model && r.TargetDate.Equal(date) {
			if best == nil || !r.CollectedAt.Before(best.CollectedAt) {
				best = &s.rows[i]
			}
		}
	}
	if best == nil {
		return domain.ModelForecast{}, domain.ErrNotFound
	}
	return *best, nil
}

func (s *memForecastStore) ListForDates(_ context.Context, city string, dates []time.Time) ([]domain.ModelForecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]bool{}
	for _, d := range dates {
		want[domain.DateKey(d)] = true
	}
	var out []domain.ModelForecast
	for _, r := range s.rows {
		if r.City == city && want[domain.DateKey(r.TargetDate)] {
			out = append(out, r)
		}
	}
	return out, nil
}

type memPrices struct {
	mu    sync.Mutex
	count int
}

func (s *memPrices) InsertBatch(_ context.Context, _ string, _ time.Time, buckets []domain.MarketBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count += len(buckets)
	return nil
}

type memSignals struct {
	mu      sync.Mutex
	signals []domain.Signal
}

func (s *memSignals) Insert(_ context.Context, sig domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	return nil
}

func (s *memSignals) List(_ context.Context, _ domain.ListOpts) ([]domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Signal(nil), s.signals...), nil
}

type memDepth struct {
	mu    sync.Mutex
	snaps []domain.DepthSnapshot
}

func (s *memDepth) Insert(_ context.Context, snap domain.DepthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

type memAccuracy struct {
	mu   sync.Mutex
	rows map[string]domain.AccuracyRow
}

func (s *memAccuracy) Upsert(_ context.Context, rows []domain.AccuracyRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = map[string]domain.AccuracyRow{}
	}
	for _, r := range rows {
		s.rows[fmt.Sprintf("%s|%s|%d", r.City, r.Model, r.LeadDays)] = r
	}
	return nil
}

func (s *memAccuracy) List(_ context.Context, _ string) ([]domain.AccuracyRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AccuracyRow
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	stream    [][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

type recNotifier struct {
	mu       sync.Mutex
	opened   []domain.Trade
	alerts   []domain.TradeAlert
	resolved []domain.Trade
	drops    []string
	errors   []string
}

func (n *recNotifier) TradeOpened(_ context.Context, t domain.Trade) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened = append(n.opened, t)
	return nil
}

func (n *recNotifier) TradeAlert(_ context.Context, a domain.TradeAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recNotifier) TradeResolved(_ context.Context, t domain.Trade) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, t)
	return nil
}

func (n *recNotifier) ModelDrop(_ context.Context, _, model, _ string, _, _ float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drops = append(n.drops, model)
	return nil
}

func (n *recNotifier) Error(_ context.Context, where string, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, where)
	return nil
}
