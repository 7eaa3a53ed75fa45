package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/openalpha/spot-exchange/exchange/types"
)

func TestReserveAndRelease(t *testing.T) {
	bs := newBalanceStore()
	user := uuid.New()

	bs.Deposit(user, types.QuoteTicker, 1000)

	if err := bs.Reserve(user, types.QuoteTicker, 600); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := bs.Reserve(user, types.QuoteTicker, 500); !errors.Is(err, types.ErrInsufficientFunds) {
		t.Errorf("expected INSUFFICIENT_FUNDS, got %v", err)
	}

	if err := bs.Release(user, types.QuoteTicker, 600); err != nil {
		t.Fatalf("release: %v", err)
	}
	// Releasing more than blocked is an invariant break.
	if err := bs.Release(user, types.QuoteTicker, 1); !errors.Is(err, types.ErrInternal) {
		t.Errorf("expected INTERNAL_ERROR, got %v", err)
	}

	if got := bs.Snapshot(user)[types.QuoteTicker]; got != 1000 {
		t.Errorf("expected 1000 spendable after release, got %d", got)
	}
}

func TestWithdrawShortfalls(t *testing.T) {
	bs := newBalanceStore()
	user := uuid.New()

	if err := bs.Withdraw(user, types.QuoteTicker, 1); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected NOT_FOUND on missing row, got %v", err)
	}

	bs.Deposit(user, "MEMCOIN", 5)
	if err := bs.Withdraw(user, "MEMCOIN", 6); !errors.Is(err, types.ErrInsufficientAsset) {
		t.Errorf("expected insufficient asset, got %v", err)
	}
	if err := bs.Withdraw(user, "MEMCOIN", 5); err != nil {
		t.Errorf("withdraw: %v", err)
	}
}

func TestSettleLimitBuyerRefundsImprovement(t *testing.T) {
	bs := newBalanceStore()
	buyer, seller := uuid.New(), uuid.New()

	bs.Deposit(buyer, types.QuoteTicker, 1000)
	bs.Deposit(seller, "MEMCOIN", 10)

	// Buyer reserved 5@120, seller reserved 5 units; trade happens at 100.
	if err := bs.Reserve(buyer, types.QuoteTicker, 600); err != nil {
		t.Fatalf("reserve buyer: %v", err)
	}
	if err := bs.Reserve(seller, "MEMCOIN", 5); err != nil {
		t.Fatalf("reserve seller: %v", err)
	}

	err := bs.Settle(settlement{
		buyer: buyer, seller: seller, ticker: "MEMCOIN",
		qty: 5, price: 100,
		buyerLimitPrice: 120, buyerFromBlocked: true, sellerFromBlocked: true,
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	// 600 blocked released, 500 paid, 100 refunded.
	if got := bs.Snapshot(buyer)[types.QuoteTicker]; got != 500 {
		t.Errorf("expected buyer 500 spendable RUB, got %d", got)
	}
	if got := bs.blocked(buyer, types.QuoteTicker); got != 0 {
		t.Errorf("expected buyer 0 blocked, got %d", got)
	}
	if got := bs.Snapshot(buyer)["MEMCOIN"]; got != 5 {
		t.Errorf("expected buyer 5 MEMCOIN, got %d", got)
	}
	if got := bs.Snapshot(seller)[types.QuoteTicker]; got != 500 {
		t.Errorf("expected seller 500 RUB, got %d", got)
	}
	if got := bs.blocked(seller, "MEMCOIN"); got != 0 {
		t.Errorf("expected seller 0 blocked MEMCOIN, got %d", got)
	}
}

func TestSettleMarketBuyerShortfall(t *testing.T) {
	bs := newBalanceStore()
	buyer, seller := uuid.New(), uuid.New()

	bs.Deposit(buyer, types.QuoteTicker, 50)
	bs.Deposit(seller, "MEMCOIN", 10)
	if err := bs.Reserve(seller, "MEMCOIN", 5); err != nil {
		t.Fatalf("reserve seller: %v", err)
	}

	err := bs.Settle(settlement{
		buyer: buyer, seller: seller, ticker: "MEMCOIN",
		qty: 1, price: 100, sellerFromBlocked: true,
	})
	if !errors.Is(err, errSettlementShort) {
		t.Fatalf("expected settlement shortfall, got %v", err)
	}

	// Nothing moved.
	if got := bs.Snapshot(buyer)[types.QuoteTicker]; got != 50 {
		t.Errorf("expected buyer balance untouched, got %d", got)
	}
	if got := bs.blocked(seller, "MEMCOIN"); got != 5 {
		t.Errorf("expected seller reservation untouched, got %d", got)
	}
}

func TestSettleBlockedShortfallIsInternal(t *testing.T) {
	bs := newBalanceStore()
	buyer, seller := uuid.New(), uuid.New()

	bs.Deposit(seller, "MEMCOIN", 10)
	if err := bs.Reserve(seller, "MEMCOIN", 5); err != nil {
		t.Fatalf("reserve seller: %v", err)
	}

	// A limit buyer leg without the matching reservation is corrupt.
	err := bs.Settle(settlement{
		buyer: buyer, seller: seller, ticker: "MEMCOIN",
		qty: 1, price: 100,
		buyerLimitPrice: 100, buyerFromBlocked: true, sellerFromBlocked: true,
	})
	if !errors.Is(err, types.ErrInternal) {
		t.Errorf("expected INTERNAL_ERROR, got %v", err)
	}
}

func TestDepositOverflowRejected(t *testing.T) {
	bs := newBalanceStore()
	user := uuid.New()

	if err := bs.Deposit(user, types.QuoteTicker, math.MaxUint64-10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := bs.Reserve(user, types.QuoteTicker, 5); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Amount+blocked sit 10 below the ceiling; 11 more would wrap.
	if err := bs.Deposit(user, types.QuoteTicker, 11); !errors.Is(err, types.ErrValidation) {
		t.Errorf("expected VALIDATION on overflow, got %v", err)
	}
	if err := bs.Deposit(user, types.QuoteTicker, 10); err != nil {
		t.Errorf("deposit up to the ceiling: %v", err)
	}

	if got := bs.Snapshot(user)[types.QuoteTicker]; got != math.MaxUint64-5 {
		t.Errorf("expected spendable at ceiling minus reservation, got %d", got)
	}
}

func TestDeleteUserDropsRows(t *testing.T) {
	bs := newBalanceStore()
	user, other := uuid.New(), uuid.New()

	bs.Deposit(user, types.QuoteTicker, 100)
	bs.Deposit(user, "MEMCOIN", 5)
	bs.Deposit(other, types.QuoteTicker, 100)

	bs.DeleteUser(user)

	if len(bs.Snapshot(user)) != 0 {
		t.Error("expected no rows for deleted user")
	}
	if got := bs.Snapshot(other)[types.QuoteTicker]; got != 100 {
		t.Errorf("expected other user untouched, got %d", got)
	}
}
