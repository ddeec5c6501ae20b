package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

const servicePrefix = "/broker.v1.BrokerGateway/"

// GRPCConfig configures the gateway connection.
type GRPCConfig struct {
	Addr      string
	Token     string
	AccountID string
	Timeout   time.Duration // per call
}

// GRPCClient talks to a broker gateway using structpb.Struct messages.
type GRPCClient struct {
	conn      *grpc.ClientConn
	token     string
	accountID string
	timeout   time.Duration
}

// NewGRPCClient builds a lazy connection; nothing is dialed until the first call.
func NewGRPCClient(cfg GRPCConfig, opts ...grpc.DialOption) (*GRPCClient, error) {
	if cfg.Addr == "" {
		return nil, errors.New("broker address is empty")
	}
	if cfg.AccountID == "" {
		return nil, errors.New("broker account id is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("broker client: %w", err)
	}
	return &GRPCClient{
		conn:      conn,
		token:     cfg.Token,
		accountID: cfg.AccountID,
		timeout:   cfg.Timeout,
	}, nil
}

func (c *GRPCClient) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["account_id"] = c.accountID
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, servicePrefix+method, in, out); err != nil {
		return nil, fmt.Errorf("broker %s: %w", method, err)
	}
	return out, nil
}

func (c *GRPCClient) GetAccount(ctx context.Context) (*Account, error) {
	out, err := c.call(ctx, "GetAccount", nil)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:               str(out, "id"),
		State:            str(out, "state"),
		ConnectionStatus: str(out, "connection_status"),
	}, nil
}

func (c *GRPCClient) Deploy(ctx context.Context) error {
	_, err := c.call(ctx, "Deploy", nil)
	return err
}

func (c *GRPCClient) AccountInformation(ctx context.Context) (*AccountInfo, error) {
	out, err := c.call(ctx, "AccountInformation", nil)
	if err != nil {
		return nil, err
	}
	return &AccountInfo{
		Balance:  num(out, "balance"),
		Equity:   num(out, "equity"),
		Currency: str(out, "currency"),
	}, nil
}

func (c *GRPCClient) CreateMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	out, err := c.call(ctx, "CreateMarketOrder", map[string]any{
		"symbol":      req.Symbol,
		"action":      req.Action,
		"volume":      req.Volume,
		"stop_loss":   req.StopLoss,
		"take_profit": req.TakeProfit,
		"comment":     req.Comment,
		"magic":       req.Magic,
	})
	if err != nil {
		return nil, err
	}
	return &OrderResult{
		OrderID:    str(out, "order_id"),
		PositionID: str(out, "position_id"),
		Retcode:    int(num(out, "retcode")),
		Message:    str(out, "message"),
	}, nil
}

func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func num(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}
