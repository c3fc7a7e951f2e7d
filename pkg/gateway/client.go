// Package gateway implements the request/reply client to the local, then
// external, attestor process (spec.md §4.4 component C4, §6 wire
// protocol). The local socket is tried first; only an explicit "miss"
// reply triggers a reconnect to the external gateway URL, per the
// original processor's retry sequencing (SPEC_FULL.md §3).
package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/creditcoin-project/ccprocessor/pkg/apperr"
)

// Reply grammar returned by the attestor.
const (
	replyGood = "good"
	replyMiss = "miss"
)

// Client serializes access to the local and external request/reply
// sockets under one mutex, reconnecting on failure or a "miss" reply
// (spec.md §5 concurrency model).
type Client struct {
	mu          sync.Mutex
	localURL    string
	externalURL func() string // resolved lazily (settings cache may change)
	timeout     time.Duration
	logger      *zap.SugaredLogger

	local    zmq4.Socket
	external zmq4.Socket
}

// New builds a client that dials localURL immediately and externalURL (read
// dynamically, since it comes from the settings cache) on demand.
func New(localURL string, externalURL func() string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{localURL: localURL, externalURL: externalURL, timeout: timeout, logger: logger}
}

func (c *Client) dial(ctx context.Context, sock *zmq4.Socket, url string) error {
	if *sock != nil {
		(*sock).Close()
		*sock = nil
	}
	if url == "" {
		return apperr.Internal("gateway: no URL configured")
	}
	s := zmq4.NewReq(ctx)
	if err := s.Dial(url); err != nil {
		return apperr.InternalWrap(err, "gateway: dial %s", url)
	}
	*sock = s
	return nil
}

// request sends payload over sock (dialing lazily) and returns the reply.
func (c *Client) request(ctx context.Context, sock *zmq4.Socket, url, payload string) (string, error) {
	if *sock == nil {
		if err := c.dial(ctx, sock, url); err != nil {
			return "", err
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := (*sock).Send(zmq4.NewMsgString(payload)); err != nil {
		// Reconnect once on a send failure before giving up.
		if err2 := c.dial(ctx, sock, url); err2 != nil {
			return "", err2
		}
		if err := (*sock).Send(zmq4.NewMsgString(payload)); err != nil {
			return "", apperr.InternalWrap(err, "gateway: send to %s", url)
		}
	}
	return c.recvWithDeadline(reqCtx, sock, url)
}

// recvWithDeadline bounds a blocking Recv by reqCtx. The zmq4.Socket
// interface takes no per-call context, so a reply that never arrives is
// raced against the deadline in a goroutine; on timeout the socket is torn
// down so the stuck Recv unblocks and the next request redials fresh.
func (c *Client) recvWithDeadline(reqCtx context.Context, sock *zmq4.Socket, url string) (string, error) {
	type result struct {
		msg zmq4.Msg
		err error
	}
	done := make(chan result, 1)
	conn := *sock // snapshot: the timeout branch below may close and nil *sock concurrently
	go func() {
		msg, err := conn.Recv()
		done <- result{msg, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", apperr.InternalWrap(r.err, "gateway: recv from %s", url)
		}
		return string(r.msg.Bytes()), nil
	case <-reqCtx.Done():
		conn.Close()
		*sock = nil
		return "", apperr.InternalWrap(reqCtx.Err(), "gateway: recv from %s timed out", url)
	}
}

// verify sends payload to the local gateway first, falling back to the
// external gateway only on an explicit "miss" reply. Any reply other than
// "good" fails the transaction (spec.md §6).
func (c *Client) verify(ctx context.Context, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.request(ctx, &c.local, c.localURL, payload)
	if err != nil {
		return err
	}
	if reply == replyGood {
		return nil
	}
	if reply != replyMiss {
		return apperr.Invalid("gateway rejected transfer: %s", reply)
	}
	// A miss drops the local socket; the next request redials it fresh.
	if c.local != nil {
		c.local.Close()
		c.local = nil
	}

	extURL := ""
	if c.externalURL != nil {
		extURL = c.externalURL()
	}
	reply, err = c.request(ctx, &c.external, extURL, payload)
	if err != nil {
		return err
	}
	if reply != replyGood {
		return apperr.Invalid("gateway rejected transfer: %s", reply)
	}
	return nil
}

// VerifyTransfer attests a foreign-chain transfer per spec.md §6:
// "<chain> verify <srcAddr> <dstAddr> <orderId> <amount> <txId> <network>".
func (c *Client) VerifyTransfer(ctx context.Context, chain, src, dst, orderID, amount, txID, network string) error {
	return c.verify(ctx, buildVerifyTransferPayload(chain, src, dst, orderID, amount, txID, network))
}

// VerifyErc20Collect attests an ERC20 mint per spec.md §6:
// "ethereum verify <ethAddr> creditcoin <sighash> <amount> <txId> unused".
func (c *Client) VerifyErc20Collect(ctx context.Context, ethAddr, sighash, amount, txID string) error {
	return c.verify(ctx, buildVerifyErc20CollectPayload(ethAddr, sighash, amount, txID))
}

func buildVerifyTransferPayload(chain, src, dst, orderID, amount, txID, network string) string {
	return strings.Join([]string{chain, "verify", src, dst, orderID, amount, txID, network}, " ")
}

func buildVerifyErc20CollectPayload(ethAddr, sighash, amount, txID string) string {
	return strings.Join([]string{"ethereum", "verify", ethAddr, "creditcoin", sighash, amount, txID, "unused"}, " ")
}

// Close releases both sockets.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local != nil {
		c.local.Close()
	}
	if c.external != nil {
		c.external.Close()
	}
}
