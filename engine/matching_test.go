package engine

import (
	"errors"
	"testing"

	"github.com/openalpha/spot-exchange/exchange/types"
)

func TestLimitOrderRestsAndReserves(t *testing.T) {
	e := newTestEngine(t)
	user := fundedUser(t, e, 1000, 0)

	order, err := e.PlaceLimitOrder(user.ID, testTicker, types.DirectionBuy, 5, 100)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.Status != types.OrderStatusNew {
		t.Errorf("expected NEW, got %s", order.Status)
	}

	balances, _ := e.Balances(user.ID)
	if balances[types.QuoteTicker] != 500 {
		t.Errorf("expected 500 spendable RUB, got %d", balances[types.QuoteTicker])
	}
	if got := e.balances.blocked(user.ID, types.QuoteTicker); got != 500 {
		t.Errorf("expected 500 blocked RUB, got %d", got)
	}

	bids, _, err := e.Depth(testTicker, 10)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if len(bids) != 1 || bids[0].Price != 100 || bids[0].Qty != 5 {
		t.Errorf("unexpected bid levels: %+v", bids)
	}
}

func TestLimitOrderInsufficientFunds(t *testing.T) {
	e := newTestEngine(t)
	buyer := fundedUser(t, e, 100, 0)
	seller := fundedUser(t, e, 0, 3)

	if _, err := e.PlaceLimitOrder(buyer.ID, testTicker, types.DirectionBuy, 5, 100); !errors.Is(err, types.ErrInsufficientFunds) {
		t.Errorf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 5, 100); !errors.Is(err, types.ErrInsufficientAsset) {
		t.Errorf("expected insufficient asset, got %v", err)
	}
}

func TestLimitOrdersCrossAtRestingPrice(t *testing.T) {
	e := newTestEngine(t)
	seller := fundedUser(t, e, 0, 10)
	buyer := fundedUser(t, e, 2000, 0)

	ask, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 5, 100)
	if err != nil {
		t.Fatalf("place ask: %v", err)
	}

	// Buyer bids 120 but trades at the resting 100.
	bid, err := e.PlaceLimitOrder(buyer.ID, testTicker, types.DirectionBuy, 5, 120)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if bid.Status != types.OrderStatusExecuted {
		t.Errorf("expected taker EXECUTED, got %s", bid.Status)
	}
	if ask.Status != types.OrderStatusExecuted {
		t.Errorf("expected maker EXECUTED, got %s", ask.Status)
	}

	trades, err := e.Trades(testTicker, 10)
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Price != 100 || trades[0].Qty != 5 {
		t.Errorf("expected trade 5@100, got %d@%d", trades[0].Qty, trades[0].Price)
	}

	// Price improvement: buyer reserved 5*120 but paid 5*100; the 100
	// difference is back in spendable and nothing stays blocked.
	buyerBal, _ := e.Balances(buyer.ID)
	if buyerBal[types.QuoteTicker] != 2000-500 {
		t.Errorf("expected buyer 1500 RUB, got %d", buyerBal[types.QuoteTicker])
	}
	if buyerBal[testTicker] != 5 {
		t.Errorf("expected buyer 5 %s, got %d", testTicker, buyerBal[testTicker])
	}
	if got := e.balances.blocked(buyer.ID, types.QuoteTicker); got != 0 {
		t.Errorf("expected 0 blocked RUB, got %d", got)
	}

	sellerBal, _ := e.Balances(seller.ID)
	if sellerBal[types.QuoteTicker] != 500 {
		t.Errorf("expected seller 500 RUB, got %d", sellerBal[types.QuoteTicker])
	}
	if got := e.balances.blocked(seller.ID, testTicker); got != 0 {
		t.Errorf("expected 0 blocked %s, got %d", testTicker, got)
	}
}

func TestPartialFillKeepsPriorityAndReservation(t *testing.T) {
	e := newTestEngine(t)
	seller := fundedUser(t, e, 0, 10)
	buyer := fundedUser(t, e, 10000, 0)

	bid, err := e.PlaceLimitOrder(buyer.ID, testTicker, types.DirectionBuy, 10, 100)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 4, 100); err != nil {
		t.Fatalf("place ask: %v", err)
	}

	if bid.Status != types.OrderStatusPartiallyExecuted {
		t.Errorf("expected PARTIALLY_EXECUTED, got %s", bid.Status)
	}
	if bid.Filled() != 4 {
		t.Errorf("expected filled 4, got %d", bid.Filled())
	}

	// Blocked tracks the remaining reservation: 6 * 100.
	if got := e.balances.blocked(buyer.ID, types.QuoteTicker); got != 600 {
		t.Errorf("expected 600 blocked RUB, got %d", got)
	}

	bids, _, _ := e.Depth(testTicker, 10)
	if len(bids) != 1 || bids[0].Qty != 6 {
		t.Errorf("expected 6 remaining on the bid level, got %+v", bids)
	}
}

func TestPriceTimePriority(t *testing.T) {
	e := newTestEngine(t)
	s1 := fundedUser(t, e, 0, 10)
	s2 := fundedUser(t, e, 0, 10)
	buyer := fundedUser(t, e, 10000, 0)

	// Better price wins over earlier time.
	first, err := e.PlaceLimitOrder(s1.ID, testTicker, types.DirectionSell, 5, 110)
	if err != nil {
		t.Fatalf("place first ask: %v", err)
	}
	second, err := e.PlaceLimitOrder(s2.ID, testTicker, types.DirectionSell, 5, 100)
	if err != nil {
		t.Fatalf("place second ask: %v", err)
	}

	if _, err := e.PlaceLimitOrder(buyer.ID, testTicker, types.DirectionBuy, 5, 120); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if second.Status != types.OrderStatusExecuted {
		t.Errorf("expected cheaper ask filled, got %s", second.Status)
	}
	if first.Status != types.OrderStatusNew {
		t.Errorf("expected dearer ask untouched, got %s", first.Status)
	}

	// Same price: FIFO within the level.
	third, err := e.PlaceLimitOrder(s2.ID, testTicker, types.DirectionSell, 5, 110)
	if err != nil {
		t.Fatalf("place third ask: %v", err)
	}
	if _, err := e.PlaceLimitOrder(buyer.ID, testTicker, types.DirectionBuy, 5, 110); err != nil {
		t.Fatalf("place second bid: %v", err)
	}
	if first.Status != types.OrderStatusExecuted {
		t.Errorf("expected earlier ask at 110 filled first, got %s", first.Status)
	}
	if third.Status != types.OrderStatusNew {
		t.Errorf("expected later ask at 110 untouched, got %s", third.Status)
	}
}

func TestMarketBuySweepsLevels(t *testing.T) {
	e := newTestEngine(t)
	seller := fundedUser(t, e, 0, 10)
	buyer := fundedUser(t, e, 10000, 0)

	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 3, 100); err != nil {
		t.Fatalf("place ask 1: %v", err)
	}
	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 3, 110); err != nil {
		t.Fatalf("place ask 2: %v", err)
	}

	order, err := e.PlaceMarketOrder(buyer.ID, testTicker, types.DirectionBuy, 5)
	if err != nil {
		t.Fatalf("place market order: %v", err)
	}
	if order.Status != types.OrderStatusExecuted {
		t.Errorf("expected EXECUTED, got %s", order.Status)
	}

	// 3@100 + 2@110 = 520 paid from spendable.
	buyerBal, _ := e.Balances(buyer.ID)
	if buyerBal[types.QuoteTicker] != 10000-520 {
		t.Errorf("expected 9480 RUB, got %d", buyerBal[types.QuoteTicker])
	}
	if buyerBal[testTicker] != 5 {
		t.Errorf("expected 5 %s, got %d", testTicker, buyerBal[testTicker])
	}

	trades, _ := e.Trades(testTicker, 10)
	if len(trades) != 2 {
		t.Errorf("expected 2 trades, got %d", len(trades))
	}
}

func TestMarketOrderNoLiquidity(t *testing.T) {
	e := newTestEngine(t)
	buyer := fundedUser(t, e, 1000, 0)

	order, err := e.PlaceMarketOrder(buyer.ID, testTicker, types.DirectionBuy, 5)
	if !errors.Is(err, types.ErrIllegalState) {
		t.Errorf("expected ILLEGAL_STATE with empty book, got %v", err)
	}
	if order.Status != types.OrderStatusRejected {
		t.Errorf("expected REJECTED, got %s", order.Status)
	}
}

func TestMarketBuyInsufficientFunds(t *testing.T) {
	e := newTestEngine(t)
	seller := fundedUser(t, e, 0, 10)
	buyer := fundedUser(t, e, 50, 0)

	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 5, 100); err != nil {
		t.Fatalf("place ask: %v", err)
	}

	// 50 RUB cannot cover even one unit at 100.
	order, err := e.PlaceMarketOrder(buyer.ID, testTicker, types.DirectionBuy, 5)
	if !errors.Is(err, types.ErrInsufficientFunds) {
		t.Errorf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
	if order.Status != types.OrderStatusRejected {
		t.Errorf("expected REJECTED, got %s", order.Status)
	}

	buyerBal, _ := e.Balances(buyer.ID)
	if buyerBal[types.QuoteTicker] != 50 {
		t.Errorf("expected untouched balance, got %d", buyerBal[types.QuoteTicker])
	}
}

func TestMarketBuyStopsWhenFundsRunOut(t *testing.T) {
	e := newTestEngine(t)
	seller := fundedUser(t, e, 0, 10)
	buyer := fundedUser(t, e, 250, 0)

	// Two one-unit trades at 100 fit into 250; the third does not.
	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 5, 100); err != nil {
		t.Fatalf("place ask: %v", err)
	}

	order, err := e.PlaceMarketOrder(buyer.ID, testTicker, types.DirectionBuy, 5)
	if err != nil {
		t.Fatalf("expected fills to stand, got %v", err)
	}
	if order.Status != types.OrderStatusExecuted {
		t.Errorf("expected EXECUTED after affordable fills, got %s", order.Status)
	}

	buyerBal, _ := e.Balances(buyer.ID)
	if buyerBal[testTicker] != 2 {
		t.Errorf("expected 2 units bought, got %d", buyerBal[testTicker])
	}
	if buyerBal[types.QuoteTicker] != 50 {
		t.Errorf("expected 50 RUB left, got %d", buyerBal[types.QuoteTicker])
	}
}

func TestMarketSellIntoRestingBid(t *testing.T) {
	e := newTestEngine(t)
	buyer := fundedUser(t, e, 1000, 0)
	seller := fundedUser(t, e, 0, 10)

	if _, err := e.PlaceLimitOrder(buyer.ID, testTicker, types.DirectionBuy, 5, 100); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	order, err := e.PlaceMarketOrder(seller.ID, testTicker, types.DirectionSell, 3)
	if err != nil {
		t.Fatalf("place market sell: %v", err)
	}
	if order.Status != types.OrderStatusExecuted {
		t.Errorf("expected EXECUTED, got %s", order.Status)
	}

	sellerBal, _ := e.Balances(seller.ID)
	if sellerBal[types.QuoteTicker] != 300 {
		t.Errorf("expected seller 300 RUB, got %d", sellerBal[types.QuoteTicker])
	}
	if sellerBal[testTicker] != 7 {
		t.Errorf("expected seller 7 %s left, got %d", testTicker, sellerBal[testTicker])
	}

	// Buyer's remaining reservation covers the unfilled 2 units.
	if got := e.balances.blocked(buyer.ID, types.QuoteTicker); got != 200 {
		t.Errorf("expected 200 blocked RUB, got %d", got)
	}
}

func TestSelfTradePrevention(t *testing.T) {
	e := newTestEngine(t)
	user := fundedUser(t, e, 10000, 10)
	other := fundedUser(t, e, 0, 10)

	if _, err := e.PlaceLimitOrder(user.ID, testTicker, types.DirectionSell, 5, 100); err != nil {
		t.Fatalf("place own ask: %v", err)
	}
	if _, err := e.PlaceLimitOrder(other.ID, testTicker, types.DirectionSell, 5, 100); err != nil {
		t.Fatalf("place other ask: %v", err)
	}

	// The user's bid must skip their own ask and fill against the
	// other's, even though the own ask has time priority.
	bid, err := e.PlaceLimitOrder(user.ID, testTicker, types.DirectionBuy, 5, 100)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if bid.Status != types.OrderStatusExecuted {
		t.Errorf("expected EXECUTED, got %s", bid.Status)
	}

	trades, _ := e.Trades(testTicker, 10)
	for _, trade := range trades {
		if trade.Buyer == trade.Seller {
			t.Error("self-trade executed")
		}
	}
}

func TestCancelRefundsReservation(t *testing.T) {
	e := newTestEngine(t)
	user := fundedUser(t, e, 1000, 10)

	bid, err := e.PlaceLimitOrder(user.ID, testTicker, types.DirectionBuy, 5, 100)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if err := e.CancelOrder(user.ID, bid.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if bid.Status != types.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", bid.Status)
	}

	balances, _ := e.Balances(user.ID)
	if balances[types.QuoteTicker] != 1000 {
		t.Errorf("expected full refund, got %d", balances[types.QuoteTicker])
	}

	// Cancelling again is an illegal transition.
	if err := e.CancelOrder(user.ID, bid.ID); !errors.Is(err, types.ErrIllegalState) {
		t.Errorf("expected ILLEGAL_STATE, got %v", err)
	}

	// A sell cancellation refunds the asset reservation.
	ask, err := e.PlaceLimitOrder(user.ID, testTicker, types.DirectionSell, 4, 100)
	if err != nil {
		t.Fatalf("place ask: %v", err)
	}
	if err := e.CancelOrder(user.ID, ask.ID); err != nil {
		t.Fatalf("cancel ask: %v", err)
	}
	if got := e.balances.blocked(user.ID, testTicker); got != 0 {
		t.Errorf("expected 0 blocked %s, got %d", testTicker, got)
	}
}

func TestCancelPartiallyFilledRefundsRemainder(t *testing.T) {
	e := newTestEngine(t)
	buyer := fundedUser(t, e, 1000, 0)
	seller := fundedUser(t, e, 0, 10)

	bid, err := e.PlaceLimitOrder(buyer.ID, testTicker, types.DirectionBuy, 5, 100)
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 2, 100); err != nil {
		t.Fatalf("place ask: %v", err)
	}

	if err := e.CancelOrder(buyer.ID, bid.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Paid 200 for the filled part, the 300 reservation came back.
	balances, _ := e.Balances(buyer.ID)
	if balances[types.QuoteTicker] != 800 {
		t.Errorf("expected 800 RUB, got %d", balances[types.QuoteTicker])
	}
	if got := e.balances.blocked(buyer.ID, types.QuoteTicker); got != 0 {
		t.Errorf("expected 0 blocked, got %d", got)
	}
}

func TestCancelMarketOrderIsIllegal(t *testing.T) {
	e := newTestEngine(t)
	seller := fundedUser(t, e, 0, 10)
	buyer := fundedUser(t, e, 1000, 0)

	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 5, 100); err != nil {
		t.Fatalf("place ask: %v", err)
	}
	order, err := e.PlaceMarketOrder(buyer.ID, testTicker, types.DirectionBuy, 2)
	if err != nil {
		t.Fatalf("place market order: %v", err)
	}

	if err := e.CancelOrder(buyer.ID, order.ID); !errors.Is(err, types.ErrIllegalState) {
		t.Errorf("expected ILLEGAL_STATE, got %v", err)
	}
}

func TestConservationAcrossMatching(t *testing.T) {
	e := newTestEngine(t)
	alice := fundedUser(t, e, 5000, 20)
	bob := fundedUser(t, e, 5000, 20)

	rubBefore := e.balances.totals(types.QuoteTicker)
	assetBefore := e.balances.totals(testTicker)

	if _, err := e.PlaceLimitOrder(alice.ID, testTicker, types.DirectionSell, 10, 90); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := e.PlaceLimitOrder(bob.ID, testTicker, types.DirectionBuy, 6, 95); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if _, err := e.PlaceMarketOrder(bob.ID, testTicker, types.DirectionBuy, 2); err != nil {
		t.Fatalf("market: %v", err)
	}
	// May or may not fill depending on remaining bids; conservation
	// must hold either way.
	_, _ = e.PlaceMarketOrder(alice.ID, testTicker, types.DirectionSell, 1)

	if got := e.balances.totals(types.QuoteTicker); got != rubBefore {
		t.Errorf("RUB not conserved: %d != %d", got, rubBefore)
	}
	if got := e.balances.totals(testTicker); got != assetBefore {
		t.Errorf("%s not conserved: %d != %d", testTicker, got, assetBefore)
	}
}

func TestTradesNewestFirst(t *testing.T) {
	e := newTestEngine(t)
	seller := fundedUser(t, e, 0, 10)
	buyer := fundedUser(t, e, 10000, 0)

	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 2, 100); err != nil {
		t.Fatalf("ask 1: %v", err)
	}
	if _, err := e.PlaceLimitOrder(seller.ID, testTicker, types.DirectionSell, 2, 110); err != nil {
		t.Fatalf("ask 2: %v", err)
	}
	if _, err := e.PlaceMarketOrder(buyer.ID, testTicker, types.DirectionBuy, 4); err != nil {
		t.Fatalf("market: %v", err)
	}

	trades, err := e.Trades(testTicker, 10)
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Price != 110 || trades[1].Price != 100 {
		t.Errorf("expected newest first (110 then 100), got %d then %d", trades[0].Price, trades[1].Price)
	}

	// Limit applies from the newest end.
	limited, _ := e.Trades(testTicker, 1)
	if len(limited) != 1 || limited[0].Price != 110 {
		t.Errorf("expected only the newest trade, got %+v", limited)
	}
}
