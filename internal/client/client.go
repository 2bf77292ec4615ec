// Package client provides an IPC client for communicating with the daemon.
package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/wellsgz/fwledger/api"
	"github.com/wellsgz/fwledger/internal/config"
	"github.com/wellsgz/fwledger/internal/types"
)

// Client connects to the fwledger daemon via Unix socket.
type Client struct {
	socketPath string
	conn       net.Conn
	encoder    *json.Encoder
	scanner    *bufio.Scanner
	mu         sync.Mutex
	reqID      atomic.Int32
}

// New creates a new client.
func New(socketPath string) *Client {
	if socketPath == "" {
		socketPath = config.Defaults().ResolveSocket()
	}
	return &Client{
		socketPath: socketPath,
	}
}

// Connect establishes connection to the daemon.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w", err)
	}

	c.conn = conn
	c.encoder = json.NewEncoder(conn)
	c.scanner = bufio.NewScanner(conn)
	c.scanner.Buffer(make([]byte, 0, 64*1024), api.MaxMessageSize)

	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.encoder = nil
		c.scanner = nil
		return err
	}
	return nil
}

// IsConnected returns true if connected to daemon.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// call sends a request and waits for response.
func (c *Client) call(method string, params any) (*api.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, errors.New("not connected")
	}

	id := int(c.reqID.Add(1))

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params: %w", err)
		}
		paramsJSON = data
	}

	req := api.Request{
		Method: method,
		Params: paramsJSON,
		ID:     id,
	}

	if err := c.encoder.Encode(req); err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if !c.scanner.Scan() {
		c.conn.Close()
		c.conn = nil
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		return nil, errors.New("connection closed")
	}

	var resp api.Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	return &resp, nil
}

// decode unmarshals a successful response into T.
func decode[T any](resp *api.Response, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return &result, nil
}

// ProcessPackets submits packets for evaluation. With batch set they are
// recorded in a single block.
func (c *Client) ProcessPackets(packets []types.PacketSpec, batch bool) (*api.ProcessResult, error) {
	return decode[api.ProcessResult](c.call(api.MethodProcessPacket, api.ProcessParams{
		Packets: packets,
		Batch:   batch,
	}))
}

// GetStats retrieves counters and up to recent of the newest decisions.
func (c *Client) GetStats(recent int) (*api.StatsResult, error) {
	return decode[api.StatsResult](c.call(api.MethodGetStats, api.LimitParams{Limit: recent}))
}

// GetTop retrieves the busiest sources and protocols.
func (c *Client) GetTop(limit int) (*api.TopResult, error) {
	return decode[api.TopResult](c.call(api.MethodGetTop, api.LimitParams{Limit: limit}))
}

// GetChain retrieves blocks with Index >= since, at most limit of them.
func (c *Client) GetChain(since, limit int, decisions bool) (*api.ChainResult, error) {
	return decode[api.ChainResult](c.call(api.MethodGetChain, api.ChainParams{
		Since:     since,
		Limit:     limit,
		Decisions: decisions,
	}))
}

// VerifyChain runs a full chain verification on the daemon.
func (c *Client) VerifyChain() (*api.VerifyResult, error) {
	return decode[api.VerifyResult](c.call(api.MethodVerifyChain, nil))
}

// GetStatus retrieves daemon status.
func (c *Client) GetStatus() (*api.StatusResult, error) {
	return decode[api.StatusResult](c.call(api.MethodGetStatus, nil))
}

// ClearChain destroys the chain history and returns the new genesis block.
func (c *Client) ClearChain() (*api.ClearResult, error) {
	return decode[api.ClearResult](c.call(api.MethodClearChain, nil))
}

// ResetStats zeroes the daemon's statistics.
func (c *Client) ResetStats() error {
	_, err := c.call(api.MethodResetStats, nil)
	return err
}

// Flush triggers immediate persistence of pending blocks.
func (c *Client) Flush() (int, error) {
	result, err := decode[api.FlushResult](c.call(api.MethodFlush, nil))
	if err != nil {
		return 0, err
	}
	return result.Written, nil
}

// GetHistory retrieves stored decisions for a range preset.
func (c *Client) GetHistory(rangePreset string, limit int) (*api.HistoryResult, error) {
	return decode[api.HistoryResult](c.call(api.MethodGetHistory, api.HistoryParams{
		Range: rangePreset,
		Limit: limit,
	}))
}
