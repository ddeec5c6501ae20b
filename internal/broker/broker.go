package broker

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Account deployment and connection states reported by the gateway.
const (
	StateDeployed   = "DEPLOYED"
	StateUndeployed = "UNDEPLOYED"
	StateConnected  = "CONNECTED"
)

// Trade server return codes.
const (
	RetcodePlaced = 10008
	RetcodeDone   = 10009
	RetcodeReject = 10006
)

// Account is the deployment view of the trading account.
type Account struct {
	ID               string
	State            string
	ConnectionStatus string
}

// Ready reports whether the account is deployed and connected to its broker.
func (a Account) Ready() bool {
	return a.State == StateDeployed && a.ConnectionStatus == StateConnected
}

// AccountInfo carries the money figures used for sizing.
type AccountInfo struct {
	Balance  float64
	Equity   float64
	Currency string
}

// OrderRequest is a market order with shared stop loss and its own take profit.
type OrderRequest struct {
	Symbol     string
	Action     string // BUY or SELL
	Volume     float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
	Magic      int64
}

// OrderResult is the gateway's answer to a market order.
type OrderResult struct {
	OrderID    string
	PositionID string
	Retcode    int
	Message    string
}

// OK reports whether the trade server accepted the order.
func (r OrderResult) OK() bool {
	return r.Retcode == 0 || r.Retcode == RetcodeDone || r.Retcode == RetcodePlaced
}

// Client is the remote broker collaborator. Every call is bound to the
// account the client was built for.
type Client interface {
	GetAccount(ctx context.Context) (*Account, error)
	Deploy(ctx context.Context) error
	AccountInformation(ctx context.Context) (*AccountInfo, error)
	CreateMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	Close() error
}

// Reason turns a client error into a short operator-safe description.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "broker timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		st := se.GRPCStatus()
		switch st.Code() {
		case codes.DeadlineExceeded:
			return "broker timeout"
		case codes.Unavailable:
			return "broker unavailable"
		case codes.Unauthenticated, codes.PermissionDenied:
			return "broker rejected credentials"
		}
		if msg := st.Message(); msg != "" {
			return msg
		}
	}
	return "broker request failed"
}
