package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	name   string
	err    error
	titles []string
	bodies []string
}

func (r *recorder) Send(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return r.err
}

func (r *recorder) Name() string { return r.name }

var day = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func TestNotifyFiltersEvents(t *testing.T) {
	rec := &recorder{name: "rec"}
	n := NewNotifier([]Sender{rec}, []string{EventTradeBroken, " trade_resolved "}, nil)
	ctx := context.Background()

	require.NoError(t, n.TradeOpened(ctx, domain.Trade{City: "london", TargetDate: day}))
	require.NoError(t, n.TradeAlert(ctx, domain.TradeAlert{City: "london", TargetDate: day, State: domain.DriftDrifting}))
	require.NoError(t, n.TradeAlert(ctx, domain.TradeAlert{City: "london", TargetDate: day, State: domain.DriftBroken, TradeBucket: "16°C", CurrentConsensus: "17°C"}))

	require.Len(t, rec.titles, 1)
	assert.Equal(t, "BROKEN: london 2026-10-15", rec.titles[0])
	assert.Contains(t, rec.bodies[0], "trade bucket 16°C, consensus 17°C")
}

func TestTradeAlertSkipsHolding(t *testing.T) {
	rec := &recorder{name: "rec"}
	n := NewNotifier([]Sender{rec}, nil, nil)
	require.NoError(t, n.TradeAlert(context.Background(), domain.TradeAlert{State: domain.DriftHolding}))
	assert.Empty(t, rec.titles)
}

func TestTradeMessages(t *testing.T) {
	rec := &recorder{name: "rec"}
	n := NewNotifier([]Sender{rec}, nil, nil)
	ctx := context.Background()

	require.NoError(t, n.TradeOpened(ctx, domain.Trade{
		City: "paris", TargetDate: day, Bucket: "14°C", Price: 0.32, Shares: 62, Cost: 19.84, Agreement: 3, Edge: 0.44,
	}))
	pnl, actual := 42.16, 14.2
	require.NoError(t, n.TradeResolved(ctx, domain.Trade{
		City: "paris", TargetDate: day, Bucket: "14°C", Status: domain.TradeWon, PnL: &pnl, ActualValue: &actual, ActualBucket: "14°C",
	}))

	require.Len(t, rec.bodies, 2)
	assert.Equal(t, "Paper trade: paris 2026-10-15", rec.titles[0])
	assert.Contains(t, rec.bodies[0], "14°C YES @ 32.0¢ | 62 shares | $19.84")
	assert.Equal(t, "WON: paris 2026-10-15", rec.titles[1])
	assert.Contains(t, rec.bodies[1], "P&L +42.16")
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &recorder{name: "bad", err: errors.New("boom")}
	good := &recorder{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, nil)

	err := n.Error(context.Background(), "collect", errors.New("duplicate trade"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), EventError, "t", "m"))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.Notify(context.Background(), EventError, "t", "m"))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid webhook"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 400: invalid webhook")
}
