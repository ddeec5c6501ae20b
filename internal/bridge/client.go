package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

var (
	ErrClosed     = errors.New("bridge client closed")
	ErrPingFailed = errors.New("bridge ping not acknowledged")
)

// TradeRequest is the order block of a "trade" request.
type TradeRequest struct {
	Symbol  string  `json:"symbol"`
	Action  string  `json:"action"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price,omitempty"`
	SL      float64 `json:"sl,omitempty"`
	TP      float64 `json:"tp,omitempty"`
	Comment string  `json:"comment,omitempty"`
}

// Request is one message to the terminal bridge.
type Request struct {
	Action  string        `json:"action"` // ping, trade, modify_position
	Request *TradeRequest `json:"request,omitempty"`
	Ticket  int64         `json:"ticket,omitempty"`
	Volume  float64       `json:"volume,omitempty"`
	TP      float64       `json:"tp,omitempty"`
}

// Response is the bridge's single reply to a Request.
type Response struct {
	Success bool   `json:"success"`
	Ticket  int64  `json:"ticket,omitempty"`
	Error   string `json:"error,omitempty"`
	Retcode int    `json:"retcode,omitempty"`
}

// Client is a ZeroMQ REQ peer of the terminal agent's REP socket. A request
// is sent and its reply received before the next request goes out.
type Client struct {
	endpoint string
	timeout  time.Duration

	mu     sync.Mutex
	sock   zmq4.Socket
	cancel context.CancelFunc
	closed bool
}

// New returns an unconnected client for a tcp:// endpoint. timeout bounds
// the dial and each round trip.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{endpoint: endpoint, timeout: timeout}
}

// Addr builds the agent endpoint from host and port.
func Addr(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// Connect dials the agent if there is no live socket.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.sock != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewReq(sctx,
		zmq4.WithDialerTimeout(c.timeout),
		zmq4.WithDialerMaxRetries(0),
		zmq4.WithTimeout(c.timeout),
	)
	if err := sock.Dial(c.endpoint); err != nil {
		sock.Close()
		cancel()
		return fmt.Errorf("dial bridge %s: %w", c.endpoint, err)
	}
	c.sock, c.cancel = sock, cancel
	return nil
}

// dropLocked discards the socket. A REQ socket that missed a reply cannot
// send again, so every failure ends with a fresh dial.
func (c *Client) dropLocked() error {
	if c.sock == nil {
		return nil
	}
	err := c.sock.Close()
	c.cancel()
	c.sock, c.cancel = nil, nil
	return err
}

type reply struct {
	msg zmq4.Msg
	err error
}

// Do sends req and waits for the reply. A transport error or timeout drops
// the socket; the next call redials.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode bridge %s: %w", req.Action, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sock := c.sock
	done := make(chan reply, 1)
	go func() {
		if err := sock.Send(zmq4.NewMsg(payload)); err != nil {
			done <- reply{err: err}
			return
		}
		msg, err := sock.Recv()
		done <- reply{msg: msg, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		c.dropLocked()
		return nil, fmt.Errorf("bridge %s: %w", req.Action, ctx.Err())
	}
	if r.err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("bridge %s: %w", req.Action, r.err)
	}

	var resp Response
	if err := json.Unmarshal(r.msg.Bytes(), &resp); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("decode bridge %s reply: %w", req.Action, err)
	}
	return &resp, nil
}

// Ping fails unless the agent answers {success:true} within the timeout.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Do(ctx, Request{Action: "ping"})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrPingFailed, resp.Error)
	}
	return nil
}

// Trade places a market order.
func (c *Client) Trade(ctx context.Context, tr TradeRequest) (*Response, error) {
	return c.Do(ctx, Request{Action: "trade", Request: &tr})
}

// ModifyPosition attaches a take profit to part of an open position.
func (c *Client) ModifyPosition(ctx context.Context, ticket int64, volume, tp float64) (*Response, error) {
	return c.Do(ctx, Request{Action: "modify_position", Ticket: ticket, Volume: volume, TP: tp})
}

// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.dropLocked()
}
