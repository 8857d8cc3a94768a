package rpc

import (
	"fmt"
	"net"

	"github.com/radicle-link/linkd/internal/codec"
	"github.com/radicle-link/linkd/internal/urn"
)

// Client issues one-shot requests against a daemon's request socket.
type Client struct {
	requestPath string
}

// NewClient wraps the Unix socket path a running daemon listens on.
func NewClient(requestPath string) *Client {
	return &Client{requestPath: requestPath}
}

// call opens a fresh connection, writes req, reads the response, and
// closes the connection — matching the server's one-request-per-
// connection contract.
func (c *Client) call(req Request) (Response, error) {
	conn, err := net.Dial("unix", c.requestPath)
	if err != nil {
		return Response{}, fmt.Errorf("rpc: dial %s: %w", c.requestPath, err)
	}
	defer conn.Close()

	if err := codec.WriteFrame(conn, &req); err != nil {
		return Response{}, fmt.Errorf("rpc: write request: %w", err)
	}

	var resp Response
	if err := codec.ReadFrame(conn, &resp); err != nil {
		return Response{}, fmt.Errorf("rpc: read response: %w", err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("rpc: %s", resp.Error)
	}
	return resp, nil
}

// Announce asks the daemon to gossip that u reached revision.
func (c *Client) Announce(u urn.URN, revision string) error {
	_, err := c.call(Request{Kind: RequestAnnounce, URN: u, Revision: revision})
	return err
}

// Pull asks the daemon to replicate u from peer immediately.
func (c *Client) Pull(u urn.URN, peer string) error {
	_, err := c.call(Request{Kind: RequestPull, URN: u, Peer: peer})
	return err
}

// Subscribe connects to the event socket and returns the raw
// connection for the caller to read framed Events from until closed.
func Subscribe(eventPath string) (net.Conn, error) {
	conn, err := net.Dial("unix", eventPath)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", eventPath, err)
	}
	return conn, nil
}
