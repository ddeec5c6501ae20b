package execution

import (
	"context"
	"sync"

	"signal-bridge/internal/broker"
	"signal-bridge/internal/signal"
)

func xauSell() signal.TradeSignal {
	return signal.TradeSignal{
		Symbol:    "XAUUSD",
		Action:    signal.ActionSell,
		EntryZone: signal.EntryZone{Min: 3345, Max: 3351},
		StopLoss:  3367,
		Targets:   []float64{3312.43, 3295.385},
	}
}

type fakeBroker struct {
	mu       sync.Mutex
	accounts []broker.Account // served in order, the last one repeats
	getErr   error
	deploys  int
	balance  float64
	infoErr  error
	orders   []broker.OrderRequest
	orderFn  func(i int, req broker.OrderRequest) (*broker.OrderResult, error)
	closes   int
}

func (f *fakeBroker) GetAccount(context.Context) (*broker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	acct := f.accounts[0]
	if len(f.accounts) > 1 {
		f.accounts = f.accounts[1:]
	}
	return &acct, nil
}

func (f *fakeBroker) Deploy(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deploys++
	return nil
}

func (f *fakeBroker) AccountInformation(context.Context) (*broker.AccountInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &broker.AccountInfo{Balance: f.balance, Currency: "USD"}, nil
}

func (f *fakeBroker) CreateMarketOrder(_ context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	f.mu.Lock()
	i := len(f.orders)
	f.orders = append(f.orders, req)
	f.mu.Unlock()
	if f.orderFn != nil {
		return f.orderFn(i, req)
	}
	return &broker.OrderResult{OrderID: "ord-" + string(rune('1'+i)), Retcode: broker.RetcodeDone}, nil
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}
