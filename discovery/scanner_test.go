package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportsfade/fadebot/exchange"
)

type mockLister struct {
	markets []exchange.RawMarket
	err     error
}

func (m *mockLister) ListEventMarkets(_ context.Context) ([]exchange.RawMarket, error) {
	return m.markets, m.err
}

func rawGame(ticker, question string, open time.Time) exchange.RawMarket {
	return exchange.RawMarket{
		Ticker:      ticker,
		ConditionID: "cond-" + ticker,
		YesTokenID:  "yes-" + ticker,
		NoTokenID:   "no-" + ticker,
		Question:    question,
		YesPrice:    decimal.NewFromFloat(0.6),
		NoPrice:     decimal.NewFromFloat(0.4),
		OpenTime:    open,
		Legs:        1,
	}
}

func TestDiscoverNormalizes(t *testing.T) {
	soon := time.Now().UTC().Add(2 * time.Hour)
	lister := &mockLister{markets: []exchange.RawMarket{
		rawGame("KXNBAGAME-26FEB07BOSMIA-BOS", "Will the Boston Celtics beat the Miami Heat?", soon),
	}}

	got, err := NewScanner(lister).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	m := got[0]
	assert.Equal(t, "nba", m.Sport)
	assert.Equal(t, "Boston Celtics", m.HomeTeam)
	assert.Equal(t, "Miami Heat", m.AwayTeam)
	assert.Equal(t, "yes-KXNBAGAME-26FEB07BOSMIA-BOS", m.YesTokenID)
}

func TestDiscoverFiltersParlays(t *testing.T) {
	soon := time.Now().UTC().Add(2 * time.Hour)
	parlay := rawGame("KXNBAGAME-26FEB07BOSMIA-BOS", "Will the Boston Celtics beat the Miami Heat?", soon)
	parlay.Legs = 3

	got, err := NewScanner(&mockLister{markets: []exchange.RawMarket{parlay}}).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscoverFiltersFarFuture(t *testing.T) {
	far := time.Now().UTC().Add(72 * time.Hour)
	lister := &mockLister{markets: []exchange.RawMarket{
		rawGame("KXNBAGAME-26FEB07BOSMIA-BOS", "Will the Boston Celtics beat the Miami Heat?", far),
	}}
	got, err := NewScanner(lister).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscoverKeepsPlausiblyLive(t *testing.T) {
	started := time.Now().UTC().Add(-time.Hour)
	long := time.Now().UTC().Add(-6 * time.Hour)
	lister := &mockLister{markets: []exchange.RawMarket{
		rawGame("KXNBAGAME-26FEB07BOSMIA-BOS", "Will the Boston Celtics beat the Miami Heat?", started),
		rawGame("KXNBAGAME-26FEB07GSWLAL-LAL", "Will the Golden State Warriors beat the Los Angeles Lakers?", long),
	}}
	got, err := NewScanner(lister).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1, "the 6h-old game is past NBA max duration")
	assert.Equal(t, "cond-KXNBAGAME-26FEB07BOSMIA-BOS", got[0].ConditionID)
}

func TestDiscoverDropsUnknownSport(t *testing.T) {
	soon := time.Now().UTC().Add(2 * time.Hour)
	unknown := rawGame("KXBTCPRICE-26FEB07", "Will BTC be above 100k?", soon)
	got, err := NewScanner(&mockLister{markets: []exchange.RawMarket{unknown}}).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscoverPropagatesError(t *testing.T) {
	_, err := NewScanner(&mockLister{err: errors.New("boom")}).Discover(context.Background())
	assert.Error(t, err)
}
