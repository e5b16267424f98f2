package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sportsfade/fadebot/types"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCentsProbConversion(t *testing.T) {
	assert.True(t, centsToProb(52).Equal(decimal.NewFromFloat(0.52)))
	assert.Equal(t, 52, probToCents(decimal.NewFromFloat(0.52)))

	// Clamped to the tradable band.
	assert.Equal(t, 1, probToCents(decimal.Zero))
	assert.Equal(t, 1, probToCents(decimal.NewFromFloat(0.001)))
	assert.Equal(t, 99, probToCents(decimal.NewFromFloat(0.999)))
	assert.Equal(t, 99, probToCents(decimal.NewFromInt(1)))
}

func TestGetQuoteNormalizesCents(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/KXNBAGAME-26FEB07BOSMIA-BOS", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("EX-API-KEY"))
		assert.NotEmpty(t, r.Header.Get("EX-SIGNATURE"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"market": map[string]interface{}{
				"ticker":  "KXNBAGAME-26FEB07BOSMIA-BOS",
				"yes_bid": 51, "yes_ask": 53,
				"no_bid": 47, "no_ask": 49,
				"last_price": 52,
			},
		})
	}))

	q, err := c.GetQuote(context.Background(), "KXNBAGAME-26FEB07BOSMIA-BOS")
	require.NoError(t, err)
	assert.True(t, q.YesBid.Equal(decimal.NewFromFloat(0.51)))
	assert.True(t, q.YesAsk.Equal(decimal.NewFromFloat(0.53)))
	assert.True(t, q.Last.Equal(decimal.NewFromFloat(0.52)))
}

func TestPlaceOrderFlatEnvelope(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "BUY", payload["action"])
		assert.Equal(t, "YES", payload["side"])
		assert.EqualValues(t, 52, payload["yes_price"])
		assert.EqualValues(t, 10, payload["count"])
		_, hasNo := payload["no_price"]
		assert.False(t, hasNo)

		json.NewEncoder(w).Encode(map[string]string{"order_id": "ord-123"})
	}))

	id, err := c.PlaceOrder(context.Background(), "TICK", types.ActionBuy, types.SideYes, decimal.NewFromFloat(0.52), 10)
	require.NoError(t, err)
	assert.Equal(t, "ord-123", id)
}

func TestPlaceOrderNestedEnvelope(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"order": map[string]string{"order_id": "ord-456"},
		})
	}))

	id, err := c.PlaceOrder(context.Background(), "TICK", types.ActionSell, types.SideNo, decimal.NewFromFloat(0.48), 5)
	require.NoError(t, err)
	assert.Equal(t, "ord-456", id)
}

func TestPlaceOrderValidation(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the server")
	}))

	_, err := c.PlaceOrder(context.Background(), "TICK", types.ActionBuy, types.SideYes, decimal.NewFromFloat(0.52), 0)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = c.PlaceOrder(context.Background(), "TICK", types.ActionBuy, types.SideYes, decimal.Zero, 10)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = c.PlaceOrder(context.Background(), "TICK", types.ActionBuy, types.SideYes, decimal.NewFromInt(1), 10)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestRetryOn500ThenSuccess(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]int64{"balance": 12345})
	}))

	bal, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	assert.True(t, bal.Available.Equal(decimal.NewFromFloat(123.45)))
}

func TestNoRetryOnAuthFailure(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.GetBalance(context.Background())
	assert.True(t, errors.Is(err, types.ErrAuth))
	assert.EqualValues(t, 1, calls.Load(), "auth failures must not retry")
}

func TestNoRetryOnValidationFailure(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := c.GetBalance(context.Background())
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryExhaustionReturnsTransient(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.GetBalance(context.Background())
	assert.True(t, errors.Is(err, types.ErrTransient))
	assert.EqualValues(t, maxAttempts, calls.Load())
}

func TestWaitForFillTerminalStates(t *testing.T) {
	for status, want := range map[string]types.FillStatus{
		"filled":    types.FillFilled,
		"executed":  types.FillFilled,
		"cancelled": types.FillCancelled,
		"expired":   types.FillExpired,
	} {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"order": map[string]interface{}{"order_id": "o1", "status": status},
			})
		}))
		got, err := c.WaitForFill(context.Background(), "o1", 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got, status)
	}
}

func TestWaitForFillTimeout(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"order": map[string]interface{}{"order_id": "o1", "status": "resting"},
		})
	}))

	got, err := c.WaitForFill(context.Background(), "o1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.FillTimeout, got)
}

func TestCheckSlippage(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"market": map[string]interface{}{
				"ticker": "T", "yes_bid": 50, "yes_ask": 53,
			},
		})
	}))

	maxSlip := decimal.NewFromFloat(0.02)

	// Buy at 0.52 vs ask 0.53: deviation ~1.9%, within tolerance.
	ok, observed, err := c.CheckSlippage(context.Background(), "T", decimal.NewFromFloat(0.52), types.ActionBuy, types.SideYes, maxSlip)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, observed.Equal(decimal.NewFromFloat(0.53)))

	// Buy at 0.48 vs ask 0.53: over 10% off.
	ok, _, err = c.CheckSlippage(context.Background(), "T", decimal.NewFromFloat(0.48), types.ActionBuy, types.SideYes, maxSlip)
	require.NoError(t, err)
	assert.False(t, ok)

	// Sells compare against the bid.
	ok, observed, err = c.CheckSlippage(context.Background(), "T", decimal.NewFromFloat(0.50), types.ActionSell, types.SideYes, maxSlip)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, observed.Equal(decimal.NewFromFloat(0.50)))
}

func TestCheckSlippageNoSideReadsNoBook(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"market": map[string]interface{}{
				"ticker": "T",
				"yes_bid": 50, "yes_ask": 52,
				"no_bid": 46, "no_ask": 48,
			},
		})
	}))

	maxSlip := decimal.NewFromFloat(0.02)

	// A NO buy priced exactly at the live NO ask must pass, even though the
	// YES book sits well away from it.
	ok, observed, err := c.CheckSlippage(context.Background(), "T", decimal.NewFromFloat(0.48), types.ActionBuy, types.SideNo, maxSlip)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, observed.Equal(decimal.NewFromFloat(0.48)))

	// NO sells hit the NO bid.
	ok, observed, err = c.CheckSlippage(context.Background(), "T", decimal.NewFromFloat(0.46), types.ActionSell, types.SideNo, maxSlip)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, observed.Equal(decimal.NewFromFloat(0.46)))
}

func TestCheckSlippageNoSideImpliedFromYes(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"market": map[string]interface{}{
				"ticker": "T", "yes_bid": 50, "yes_ask": 52,
			},
		})
	}))

	// No NO book on the feed: a NO buy compares against 1 - yes_bid.
	ok, observed, err := c.CheckSlippage(context.Background(), "T", decimal.NewFromFloat(0.50), types.ActionBuy, types.SideNo, decimal.NewFromFloat(0.02))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, observed.Equal(decimal.NewFromFloat(0.50)))
}

func TestListEventMarketsPaginates(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			assert.Empty(t, r.URL.Query().Get("cursor"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"markets": []map[string]interface{}{{"ticker": "A", "yes_ask": 60, "yes_bid": 58}},
				"cursor":  "next",
			})
		default:
			assert.Equal(t, "next", r.URL.Query().Get("cursor"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"markets": []map[string]interface{}{{"ticker": "B", "yes_ask": 40, "yes_bid": 39}},
			})
		}
	}))

	got, err := c.ListEventMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Ticker)
	assert.Equal(t, "B", got[1].Ticker)
	assert.True(t, got[0].YesPrice.Equal(decimal.NewFromFloat(0.60)))
	assert.True(t, got[0].Spread.Equal(decimal.NewFromFloat(0.02)))
}

func TestRetryAfterHonored(t *testing.T) {
	var calls atomic.Int32
	var firstRetry time.Time
	start := time.Now()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		firstRetry = time.Now()
		json.NewEncoder(w).Encode(map[string]int64{"balance": 100})
	}))

	_, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, firstRetry.Sub(start), time.Second,
		"second attempt must wait out Retry-After")
}
