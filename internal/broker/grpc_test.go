package broker

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type gatewayFunc func(method string, in *structpb.Struct, md metadata.MD) (*structpb.Struct, error)

func startGateway(t *testing.T, handle gatewayFunc) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		in := &structpb.Struct{}
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		md, _ := metadata.FromIncomingContext(stream.Context())
		out, err := handle(method, in, md)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	}))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := NewGRPCClient(GRPCConfig{
		Addr:      "passthrough:///bufnet",
		Token:     "secret-token",
		AccountID: "acc-1",
		Timeout:   time.Second,
	}, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestGRPCClientRoundTrips(t *testing.T) {
	var seenOrder *structpb.Struct
	client := startGateway(t, func(method string, in *structpb.Struct, md metadata.MD) (*structpb.Struct, error) {
		if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer secret-token" {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}
		if in.GetFields()["account_id"].GetStringValue() != "acc-1" {
			return nil, status.Error(codes.InvalidArgument, "missing account")
		}
		switch strings.TrimPrefix(method, servicePrefix) {
		case "GetAccount":
			return mustStruct(t, map[string]any{"id": "acc-1", "state": "DEPLOYED", "connection_status": "CONNECTED"}), nil
		case "AccountInformation":
			return mustStruct(t, map[string]any{"balance": 10000.0, "equity": 10050.5, "currency": "USD"}), nil
		case "CreateMarketOrder":
			seenOrder = in
			return mustStruct(t, map[string]any{"order_id": "9001", "retcode": 10009}), nil
		case "Deploy":
			return &structpb.Struct{}, nil
		}
		return nil, status.Error(codes.Unimplemented, method)
	})
	ctx := context.Background()

	acct, err := client.GetAccount(ctx)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.Ready() {
		t.Fatalf("account not ready: %+v", acct)
	}
	if err := client.Deploy(ctx); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	info, err := client.AccountInformation(ctx)
	if err != nil {
		t.Fatalf("AccountInformation: %v", err)
	}
	if info.Balance != 10000 || info.Currency != "USD" {
		t.Fatalf("info = %+v", info)
	}

	res, err := client.CreateMarketOrder(ctx, OrderRequest{
		Symbol: "XAUUSD", Action: "SELL", Volume: 0.05,
		StopLoss: 3367, TakeProfit: 3312.43, Comment: "Bot-1-TP1", Magic: 123456,
	})
	if err != nil {
		t.Fatalf("CreateMarketOrder: %v", err)
	}
	if !res.OK() || res.OrderID != "9001" {
		t.Fatalf("result = %+v", res)
	}
	f := seenOrder.GetFields()
	if f["symbol"].GetStringValue() != "XAUUSD" || f["take_profit"].GetNumberValue() != 3312.43 || f["magic"].GetNumberValue() != 123456 {
		t.Fatalf("order payload = %v", seenOrder)
	}
}

func TestGRPCClientErrors(t *testing.T) {
	client := startGateway(t, func(method string, _ *structpb.Struct, _ metadata.MD) (*structpb.Struct, error) {
		if strings.HasSuffix(method, "CreateMarketOrder") {
			return nil, status.Error(codes.FailedPrecondition, "market closed")
		}
		return nil, status.Error(codes.Unavailable, "down")
	})

	_, err := client.GetAccount(context.Background())
	if err == nil || Reason(err) != "broker unavailable" {
		t.Fatalf("GetAccount err=%v reason=%q", err, Reason(err))
	}
	_, err = client.CreateMarketOrder(context.Background(), OrderRequest{Symbol: "XAUUSD"})
	if Reason(err) != "market closed" {
		t.Fatalf("reason = %q", Reason(err))
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{context.DeadlineExceeded, "broker timeout"},
		{status.Error(codes.DeadlineExceeded, "x"), "broker timeout"},
		{status.Error(codes.PermissionDenied, "x"), "broker rejected credentials"},
		{errors.New("dial tcp: refused"), "broker request failed"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNewGRPCClientRequiresConfig(t *testing.T) {
	if _, err := NewGRPCClient(GRPCConfig{AccountID: "a"}); err == nil {
		t.Fatal("expected error for empty address")
	}
	if _, err := NewGRPCClient(GRPCConfig{Addr: "localhost:1"}); err == nil {
		t.Fatal("expected error for empty account")
	}
}
