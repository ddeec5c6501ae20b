package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
)

// fakeTerminal runs a REP socket that answers each request with reply(req);
// a nil reply leaves the request unanswered.
func fakeTerminal(t *testing.T, reply func(Request) *Response) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rep := zmq4.NewRep(ctx)
	if err := rep.Listen("tcp://127.0.0.1:0"); err != nil {
		cancel()
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		rep.Close()
		cancel()
	})

	go func() {
		for {
			msg, err := rep.Recv()
			if err != nil {
				return
			}
			var req Request
			if err := json.Unmarshal(msg.Bytes(), &req); err != nil {
				return
			}
			resp := reply(req)
			if resp == nil {
				continue
			}
			data, _ := json.Marshal(resp)
			if err := rep.Send(zmq4.NewMsg(data)); err != nil {
				return
			}
		}
	}()
	return "tcp://" + rep.Addr().String()
}

func TestClientTradeAndModify(t *testing.T) {
	seen := make(chan Request, 8)
	endpoint := fakeTerminal(t, func(req Request) *Response {
		seen <- req
		switch req.Action {
		case "ping":
			return &Response{Success: true}
		case "trade":
			return &Response{Success: true, Ticket: 555, Retcode: 10009}
		case "modify_position":
			return &Response{Success: true}
		}
		return &Response{Error: "unknown action"}
	})

	c := New(endpoint, time.Second)
	defer c.Close()
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	resp, err := c.Trade(ctx, TradeRequest{Symbol: "XAUUSD", Action: "SELL", Volume: 0.1, SL: 3367, TP: 3312.43})
	if err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if !resp.Success || resp.Ticket != 555 {
		t.Fatalf("trade resp = %+v", resp)
	}
	if _, err := c.ModifyPosition(ctx, 555, 0.05, 3295.385); err != nil {
		t.Fatalf("ModifyPosition: %v", err)
	}

	close(seen)
	var got []Request
	for req := range seen {
		got = append(got, req)
	}
	if len(got) != 3 {
		t.Fatalf("server saw %d requests", len(got))
	}
	if got[1].Request == nil || got[1].Request.Symbol != "XAUUSD" || got[1].Request.TP != 3312.43 {
		t.Fatalf("trade request = %+v", got[1].Request)
	}
	if got[2].Ticket != 555 || got[2].Volume != 0.05 || got[2].TP != 3295.385 {
		t.Fatalf("modify request = %+v", got[2])
	}
}

func TestPingRejected(t *testing.T) {
	endpoint := fakeTerminal(t, func(Request) *Response { return &Response{Success: false, Error: "terminal offline"} })
	c := New(endpoint, time.Second)
	defer c.Close()
	if err := c.Ping(context.Background()); !errors.Is(err, ErrPingFailed) {
		t.Fatalf("expected ErrPingFailed, got %v", err)
	}
}

func TestDoTimesOutAndRedials(t *testing.T) {
	var calls atomic.Int32
	endpoint := fakeTerminal(t, func(Request) *Response {
		if calls.Add(1) == 1 {
			return nil
		}
		return &Response{Success: true}
	})
	c := New(endpoint, 50*time.Millisecond)
	defer c.Close()

	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected timeout on stalled bridge")
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("expected redial to succeed, got %v", err)
	}
}

func TestClosedClient(t *testing.T) {
	c := New("tcp://127.0.0.1:1", time.Second)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := c.Do(context.Background(), Request{Action: "ping"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAddr(t *testing.T) {
	if got := Addr("localhost", 18812); got != "tcp://localhost:18812" {
		t.Fatalf("Addr = %s", got)
	}
}

func TestDialFailsWithoutAgent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := New("tcp://"+addr, 200*time.Millisecond)
	defer c.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail with nothing listening")
	}
}
